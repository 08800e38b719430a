package render

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/url"
	"strings"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/catalog"
	"github.com/livetemplate/storefront/internal/security"
)

const (
	defaultGridLimit    = 8
	defaultGridColumns  = 4
	defaultInstaLimit   = 6
	defaultSpacerHeight = "48px"
	defaultMapHeight    = "360px"
)

var funcs = template.FuncMap{
	"price": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"inc":   func(i int) int { return i + 1 },
}

type placeholder struct {
	Type   storefront.BlockType
	Reason string
}

type hero struct {
	Slides   []storefront.Slide
	Autoplay bool
	Interval int
	Height   string
}

func heroView(c storefront.HeroContent) hero {
	interval := c.AutoplayInterval
	if interval <= 0 {
		interval = storefront.DefaultAutoplayInterval
	}
	return hero{
		Slides:   c.Slides,
		Autoplay: c.Autoplay && len(c.Slides) > 1,
		Interval: interval,
		Height:   c.Height,
	}
}

type text struct {
	Title string
	Body  template.HTML
}

func (r *Renderer) textView(c storefront.TextContent) text {
	v := text{Title: c.Title}
	switch {
	case c.HTML != "":
		v.Body = template.HTML(c.HTML)
	case c.Markdown != "":
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(c.Markdown), &buf); err != nil {
			log.Printf("[Render] Markdown conversion failed: %v", err)
			v.Body = template.HTML(template.HTMLEscapeString(c.Markdown))
		} else {
			v.Body = template.HTML(buf.String())
		}
	}
	return v
}

type productGrid struct {
	Title    string
	Columns  int
	Products []catalog.Product
}

func (g productGrid) refs() []string {
	ids := make([]string, len(g.Products))
	for i, p := range g.Products {
		ids[i] = p.ID
	}
	return ids
}

// productGridView selects products by collection type. Manual grids follow
// the productIds order and drop ids that no longer resolve; every other
// collection keeps the catalog order.
func productGridView(c storefront.ProductGridContent, ctx Context) productGrid {
	limit := c.Limit
	if limit <= 0 {
		limit = defaultGridLimit
	}
	cols := c.Columns
	if cols <= 0 {
		cols = defaultGridColumns
	}

	var picked []catalog.Product
	switch c.CollectionType {
	case "manual":
		byID := make(map[string]catalog.Product, len(ctx.Products))
		for _, p := range ctx.Products {
			byID[p.ID] = p
		}
		for _, id := range c.ProductIDs {
			if p, ok := byID[id]; ok {
				picked = append(picked, p)
			}
		}
	case "all":
		picked = ctx.Products
	case "category":
		for _, p := range ctx.Products {
			if c.CategoryID != "" && p.CategoryID == c.CategoryID {
				picked = append(picked, p)
			}
		}
	default:
		for _, p := range ctx.Products {
			if p.Featured {
				picked = append(picked, p)
			}
		}
	}

	if len(picked) > limit {
		picked = picked[:limit]
	}
	return productGrid{Title: c.Title, Columns: cols, Products: picked}
}

type video struct {
	storefront.VideoContent
	EmbedURL string
}

// videoView turns YouTube and Vimeo page links into embed URLs. Other URLs
// play in a native video element.
func videoView(c storefront.VideoContent) video {
	return video{VideoContent: c, EmbedURL: embedURL(c.VideoURL)}
}

func embedURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(u.Host, "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return "https://www.youtube.com/embed/" + id
		}
		if strings.HasPrefix(u.Path, "/embed/") {
			return "https://www.youtube.com" + u.Path
		}
	case "youtu.be":
		if id := strings.Trim(u.Path, "/"); id != "" {
			return "https://www.youtube.com/embed/" + id
		}
	case "vimeo.com":
		if id := strings.Trim(u.Path, "/"); id != "" {
			return "https://player.vimeo.com/video/" + id
		}
	case "player.vimeo.com":
		return u.String()
	}
	return ""
}

type columns struct {
	Gap     string
	Columns [][]Node
}

func (r *Renderer) columnsView(c storefront.ColumnsContent, ctx Context, reg region, depth int) columns {
	v := columns{Gap: c.Gap, Columns: make([][]Node, len(c.Columns))}
	if v.Gap == "" {
		v.Gap = "24px"
	}
	for i, col := range c.Columns {
		v.Columns[i] = r.renderAll(col, ctx, reg, depth)
	}
	return v
}

type spacer struct{ Height string }

func spacerView(c storefront.SpacerContent) spacer {
	if c.Height == "" {
		return spacer{Height: defaultSpacerHeight}
	}
	return spacer{Height: c.Height}
}

func instagramView(c storefront.InstagramContent) storefront.InstagramContent {
	limit := c.Limit
	if limit <= 0 {
		limit = defaultInstaLimit
	}
	if len(c.Posts) > limit {
		c.Posts = c.Posts[:limit]
	}
	c.Username = strings.TrimPrefix(c.Username, "@")
	return c
}

type mapBlock struct {
	Title    string
	Address  string
	EmbedURL string
	Height   string
}

func mapView(c storefront.MapContent) mapBlock {
	v := mapBlock{Title: c.Title, Address: c.Address, EmbedURL: c.EmbedURL, Height: c.Height}
	if v.EmbedURL != "" {
		if err := security.ValidateEmbedURL(v.EmbedURL); err != nil {
			log.Printf("[Render] Ignoring map embed URL: %v", err)
			v.EmbedURL = ""
		}
	}
	if v.EmbedURL == "" && c.Address != "" {
		v.EmbedURL = "https://maps.google.com/maps?output=embed&q=" + url.QueryEscape(c.Address)
	}
	if v.Height == "" {
		v.Height = defaultMapHeight
	}
	return v
}

type promo struct {
	storefront.PromoContent
	Image       string
	MobileImage string
	Link        string
}

// promoView resolves bannerId against the active banners. A banner that is
// missing or inactive drops the image but keeps the text.
func promoView(c storefront.PromoContent, ctx Context) promo {
	v := promo{PromoContent: c, Image: c.ImageURL, Link: c.ButtonLink}
	v.BannerID = ""
	if c.BannerID == "" {
		return v
	}
	v.Image = ""
	for _, b := range ctx.snapshot().ActiveBanners() {
		if b.ID == c.BannerID {
			v.BannerID = b.ID
			v.Image = b.ImageURL
			v.MobileImage = b.MobileURL
			if v.Link == "" {
				v.Link = b.Link
			}
			break
		}
	}
	return v
}

type brands struct {
	Title  string
	Brands []catalog.Brand
}

func brandsView(c storefront.BrandsContent, ctx Context) brands {
	picked := ctx.Brands
	if len(c.BrandIDs) > 0 {
		byID := make(map[string]catalog.Brand, len(ctx.Brands))
		for _, b := range ctx.Brands {
			byID[b.ID] = b
		}
		picked = nil
		for _, id := range c.BrandIDs {
			if b, ok := byID[id]; ok {
				picked = append(picked, b)
			}
		}
	}
	if c.Limit > 0 && len(picked) > c.Limit {
		picked = picked[:c.Limit]
	}
	return brands{Title: c.Title, Brands: picked}
}

type categories struct {
	Title        string
	ShowChildren bool
	Categories   []catalog.Category
}

func categoriesView(c storefront.CategoriesContent, ctx Context) categories {
	picked := ctx.Categories
	if len(c.CategoryIDs) > 0 {
		picked = nil
		for _, id := range c.CategoryIDs {
			if cat, ok := findCategory(ctx.Categories, id); ok {
				picked = append(picked, cat)
			}
		}
	}
	if c.Limit > 0 && len(picked) > c.Limit {
		picked = picked[:c.Limit]
	}
	return categories{Title: c.Title, ShowChildren: c.ShowChildren, Categories: picked}
}

// findCategory searches the category tree depth-first.
func findCategory(cats []catalog.Category, id string) (catalog.Category, bool) {
	for _, c := range cats {
		if c.ID == id {
			return c, true
		}
		if found, ok := findCategory(c.Children, id); ok {
			return found, true
		}
	}
	return catalog.Category{}, false
}

func newsletterView(c storefront.NewsletterContent) storefront.NewsletterContent {
	if c.Placeholder == "" {
		c.Placeholder = "Your email"
	}
	if c.ButtonText == "" {
		c.ButtonText = "Subscribe"
	}
	if c.SuccessMessage == "" {
		c.SuccessMessage = "Thanks for subscribing!"
	}
	return c
}
