package storefront

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BlockType identifies one of the renderable block variants.
type BlockType string

const (
	TypeHero        BlockType = "hero"
	TypeText        BlockType = "text"
	TypeHTML        BlockType = "html"
	TypeProductGrid BlockType = "product-grid"
	TypeImage       BlockType = "image"
	TypeVideo       BlockType = "video"
	TypeColumns     BlockType = "columns"
	TypeSpacer      BlockType = "spacer"
	TypeInstagram   BlockType = "instagram"
	TypeMap         BlockType = "map"
	TypePromo       BlockType = "promo"
	TypeBrands      BlockType = "brands"
	TypeCategories  BlockType = "categories"
	TypeNewsletter  BlockType = "newsletter"
)

var blockTypes = []BlockType{
	TypeHero, TypeText, TypeHTML, TypeProductGrid, TypeImage, TypeVideo, TypeColumns,
	TypeSpacer, TypeInstagram, TypeMap, TypePromo, TypeBrands, TypeCategories, TypeNewsletter,
}

// BlockTypes returns every known block type in declaration order.
func BlockTypes() []BlockType {
	return append([]BlockType(nil), blockTypes...)
}

// Valid reports whether t is a member of the closed block type set.
func (t BlockType) Valid() bool {
	for _, known := range blockTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DefaultVariant returns the variant used when a block leaves variant empty.
func DefaultVariant(t BlockType) string {
	switch t {
	case TypeHero:
		return "center"
	case TypeProductGrid:
		return "grid"
	case TypeNewsletter:
		return "inline"
	default:
		return "default"
	}
}

// Block is one renderable unit of a page-builder document.
type Block struct {
	ID      string
	Type    BlockType
	Variant string
	Content Content
	Styles  Styles
}

// EffectiveVariant returns the block variant or the type default.
func (b Block) EffectiveVariant() string {
	if b.Variant != "" {
		return b.Variant
	}
	return DefaultVariant(b.Type)
}

// Styles holds block-local presentational overrides. Empty strings and a nil
// FullWidth mean "unset", which falls back to theme and type defaults.
type Styles struct {
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TextColor       string `json:"textColor,omitempty"`
	PaddingTop      string `json:"paddingTop,omitempty"`
	PaddingBottom   string `json:"paddingBottom,omitempty"`
	PaddingLeft     string `json:"paddingLeft,omitempty"`
	PaddingRight    string `json:"paddingRight,omitempty"`
	TextAlign       string `json:"textAlign,omitempty"`
	ButtonColor     string `json:"buttonColor,omitempty"`
	ButtonTextColor string `json:"buttonTextColor,omitempty"`
	CustomCSS       string `json:"customCss,omitempty"`
	FullWidth       *bool  `json:"fullWidth,omitempty"`
}

// wireBlock is the serialized form of a Block.
type wireBlock struct {
	ID      string          `json:"id"`
	Type    BlockType       `json:"type"`
	Variant string          `json:"variant,omitempty"`
	Content json.RawMessage `json:"content"`
	Styles  json.RawMessage `json:"styles"`
}

// MarshalJSON implements json.Marshaler.
func (b Block) MarshalJSON() ([]byte, error) {
	content, err := marshalContent(b.Content)
	if err != nil {
		return nil, fmt.Errorf("block %q: %w", b.ID, err)
	}
	styles, err := json.Marshal(b.Styles)
	if err != nil {
		return nil, fmt.Errorf("block %q styles: %w", b.ID, err)
	}
	return json.Marshal(wireBlock{
		ID:      b.ID,
		Type:    b.Type,
		Variant: b.Variant,
		Content: content,
		Styles:  styles,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Content that does not match the
// declared type is an error here; ParseBlocks is the lenient entry point.
func (b *Block) UnmarshalJSON(data []byte) error {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	blk, err := w.toBlock()
	if err != nil {
		return err
	}
	*b = blk
	return nil
}

func (w wireBlock) toBlock() (Block, error) {
	b := Block{ID: w.ID, Type: w.Type, Variant: w.Variant}

	if !isEmptyJSON(w.Styles) {
		if err := json.Unmarshal(w.Styles, &b.Styles); err != nil {
			return b, fmt.Errorf("block %q: invalid styles: %w", w.ID, err)
		}
	}

	content, err := decodeContent(w.Type, w.Content)
	if err != nil {
		b.Content = zeroContent(w.Type)
		return b, fmt.Errorf("block %q: content does not match type %q: %w", w.ID, w.Type, err)
	}
	b.Content = content
	return b, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func marshalContent(c Content) (json.RawMessage, error) {
	switch v := c.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case UnknownContent:
		if isEmptyJSON(v.Raw) {
			return json.RawMessage("{}"), nil
		}
		return v.Raw, nil
	default:
		return json.Marshal(v)
	}
}
