package storefront

import (
	"encoding/json"
)

// Content is the type-specific payload of a block. The set of implementations
// is closed; renderers switch over it exhaustively.
type Content interface {
	blockType() BlockType
}

// Slide is one frame of a hero carousel.
type Slide struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Subtitle    string `json:"subtitle,omitempty"`
	ButtonText  string `json:"buttonText,omitempty"`
	ButtonLink  string `json:"buttonLink,omitempty"`
	Image       string `json:"image,omitempty"`
	MobileImage string `json:"mobileImage,omitempty"`
}

// HeroContent covers both the legacy single-banner shape (Title, Subtitle, ...)
// and the slide carousel. MigrateLegacyShape moves the former into the latter.
type HeroContent struct {
	Title      string `json:"title,omitempty"`
	Subtitle   string `json:"subtitle,omitempty"`
	ButtonText string `json:"buttonText,omitempty"`
	ButtonLink string `json:"buttonLink,omitempty"`
	Image      string `json:"image,omitempty"`

	Slides           []Slide `json:"slides,omitempty"`
	Autoplay         bool    `json:"autoplay"`
	AutoplayInterval int     `json:"autoplayInterval,omitempty"`
	Height           string  `json:"height,omitempty"`
}

// IsLegacy reports whether the hero still uses the pre-carousel shape.
func (c HeroContent) IsLegacy() bool {
	if len(c.Slides) > 0 {
		return false
	}
	return c.Title != "" || c.Subtitle != "" || c.ButtonText != "" || c.ButtonLink != "" || c.Image != ""
}

type TextContent struct {
	Title    string `json:"title,omitempty"`
	HTML     string `json:"html,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

type HTMLContent struct {
	HTML string `json:"html,omitempty"`
}

// ProductGridContent selects products by collection. CollectionType is one of
// "featured" (default), "all", "category" or "manual".
type ProductGridContent struct {
	Title          string   `json:"title,omitempty"`
	CollectionType string   `json:"collectionType,omitempty"`
	CategoryID     string   `json:"categoryId,omitempty"`
	ProductIDs     []string `json:"productIds,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Columns        int      `json:"columns,omitempty"`
}

type ImageContent struct {
	ImageURL  string `json:"imageUrl,omitempty"`
	MobileURL string `json:"mobileUrl,omitempty"`
	Alt       string `json:"alt,omitempty"`
	Link      string `json:"link,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

type VideoContent struct {
	VideoURL string `json:"videoUrl,omitempty"`
	Title    string `json:"title,omitempty"`
	Poster   string `json:"poster,omitempty"`
	Autoplay bool   `json:"autoplay,omitempty"`
	Loop     bool   `json:"loop,omitempty"`
	Muted    bool   `json:"muted,omitempty"`
}

// ColumnsContent holds one nested block array per column.
type ColumnsContent struct {
	Columns [][]Block `json:"columns"`
	Gap     string    `json:"gap,omitempty"`
}

// UnmarshalJSON decodes nested columns with the same lenient rules as
// ParseBlocks: malformed nested elements are dropped and logged.
func (c *ColumnsContent) UnmarshalJSON(data []byte) error {
	var w struct {
		Columns [][]json.RawMessage `json:"columns"`
		Gap     string              `json:"gap"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Gap = w.Gap
	c.Columns = make([][]Block, 0, len(w.Columns))
	for _, col := range w.Columns {
		blocks, _ := parseElements(col)
		c.Columns = append(c.Columns, blocks)
	}
	return nil
}

type SpacerContent struct {
	Height string `json:"height,omitempty"`
}

type InstagramContent struct {
	Title    string   `json:"title,omitempty"`
	Username string   `json:"username,omitempty"`
	Posts    []string `json:"posts,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type MapContent struct {
	Title    string `json:"title,omitempty"`
	Address  string `json:"address,omitempty"`
	EmbedURL string `json:"embedUrl,omitempty"`
	Height   string `json:"height,omitempty"`
}

// PromoContent is a call-to-action strip, optionally backed by a banner.
type PromoContent struct {
	Title      string `json:"title,omitempty"`
	Subtitle   string `json:"subtitle,omitempty"`
	ButtonText string `json:"buttonText,omitempty"`
	ButtonLink string `json:"buttonLink,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	BannerID   string `json:"bannerId,omitempty"`
}

type BrandsContent struct {
	Title    string   `json:"title,omitempty"`
	BrandIDs []string `json:"brandIds,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type CategoriesContent struct {
	Title        string   `json:"title,omitempty"`
	CategoryIDs  []string `json:"categoryIds,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	ShowChildren bool     `json:"showChildren,omitempty"`
}

type NewsletterContent struct {
	Title          string `json:"title,omitempty"`
	Subtitle       string `json:"subtitle,omitempty"`
	Placeholder    string `json:"placeholder,omitempty"`
	ButtonText     string `json:"buttonText,omitempty"`
	SuccessMessage string `json:"successMessage,omitempty"`
}

// UnknownContent preserves the raw content of a block whose type is not in
// the closed set, so the document round-trips unchanged.
type UnknownContent struct {
	Type BlockType
	Raw  json.RawMessage
}

func (HeroContent) blockType() BlockType        { return TypeHero }
func (TextContent) blockType() BlockType        { return TypeText }
func (HTMLContent) blockType() BlockType        { return TypeHTML }
func (ProductGridContent) blockType() BlockType { return TypeProductGrid }
func (ImageContent) blockType() BlockType       { return TypeImage }
func (VideoContent) blockType() BlockType       { return TypeVideo }
func (ColumnsContent) blockType() BlockType     { return TypeColumns }
func (SpacerContent) blockType() BlockType      { return TypeSpacer }
func (InstagramContent) blockType() BlockType   { return TypeInstagram }
func (MapContent) blockType() BlockType         { return TypeMap }
func (PromoContent) blockType() BlockType       { return TypePromo }
func (BrandsContent) blockType() BlockType      { return TypeBrands }
func (CategoriesContent) blockType() BlockType  { return TypeCategories }
func (NewsletterContent) blockType() BlockType  { return TypeNewsletter }
func (c UnknownContent) blockType() BlockType   { return c.Type }

// zeroContent returns the empty content value for t.
func zeroContent(t BlockType) Content {
	switch t {
	case TypeHero:
		return HeroContent{}
	case TypeText:
		return TextContent{}
	case TypeHTML:
		return HTMLContent{}
	case TypeProductGrid:
		return ProductGridContent{}
	case TypeImage:
		return ImageContent{}
	case TypeVideo:
		return VideoContent{}
	case TypeColumns:
		return ColumnsContent{}
	case TypeSpacer:
		return SpacerContent{}
	case TypeInstagram:
		return InstagramContent{}
	case TypeMap:
		return MapContent{}
	case TypePromo:
		return PromoContent{}
	case TypeBrands:
		return BrandsContent{}
	case TypeCategories:
		return CategoriesContent{}
	case TypeNewsletter:
		return NewsletterContent{}
	default:
		return UnknownContent{Type: t}
	}
}

// decodeContent decodes raw into the content shape of t.
func decodeContent(t BlockType, raw json.RawMessage) (Content, error) {
	if !t.Valid() {
		return UnknownContent{Type: t, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
	if isEmptyJSON(raw) {
		return zeroContent(t), nil
	}

	var (
		c   Content
		err error
	)
	switch t {
	case TypeHero:
		var v HeroContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeText:
		var v TextContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeHTML:
		var v HTMLContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeProductGrid:
		var v ProductGridContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeImage:
		var v ImageContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeVideo:
		var v VideoContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeColumns:
		var v ColumnsContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeSpacer:
		var v SpacerContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeInstagram:
		var v InstagramContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeMap:
		var v MapContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypePromo:
		var v PromoContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeBrands:
		var v BrandsContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeCategories:
		var v CategoriesContent
		err = json.Unmarshal(raw, &v)
		c = v
	case TypeNewsletter:
		var v NewsletterContent
		err = json.Unmarshal(raw, &v)
		c = v
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeContent decodes a raw JSON content object for the given type.
// It is used by editing surfaces that replace a single block's content.
func DecodeContent(t BlockType, raw json.RawMessage) (Content, error) {
	return decodeContent(t, raw)
}
