// Package render turns page-builder blocks plus catalog data into HTML nodes.
// Rendering is pure: the same blocks and context always give byte-identical
// output.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/catalog"
	"github.com/livetemplate/storefront/internal/style"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Mode selects between the public storefront and the editor surface.
type Mode int

const (
	Storefront Mode = iota
	Admin
)

func (m Mode) String() string {
	if m == Admin {
		return "admin"
	}
	return "storefront"
}

// maxColumnsDepth is the deepest level at which a columns block still renders.
const maxColumnsDepth = 1

// Context is the collaborator data a render pass may resolve references
// against.
type Context struct {
	Products   []catalog.Product
	Categories []catalog.Category
	Brands     []catalog.Brand
	Menus      []catalog.Menu
	Banners    []catalog.Banner
	Theme      style.Theme
	Mode       Mode
}

// ContextFrom builds a render context from a catalog snapshot.
func ContextFrom(snap *catalog.Snapshot, theme style.Theme, mode Mode) Context {
	if snap == nil {
		snap = catalog.Empty()
	}
	return Context{
		Products:   snap.Products,
		Categories: snap.Categories,
		Brands:     snap.Brands,
		Menus:      snap.Menus,
		Banners:    snap.Banners,
		Theme:      theme,
		Mode:       mode,
	}
}

// snapshot views the context's collections as a catalog snapshot.
func (c Context) snapshot() *catalog.Snapshot {
	return &catalog.Snapshot{
		Products:   c.Products,
		Categories: c.Categories,
		Brands:     c.Brands,
		Menus:      c.Menus,
		Banners:    c.Banners,
	}
}

// Node is one rendered block.
type Node struct {
	BlockID  string
	Type     storefront.BlockType
	HTML     template.HTML
	Refs     []string
	Children []Node
}

// Options configures a Renderer.
type Options struct {
	// Markdown renders text blocks that carry markdown. Defaults to goldmark
	// with GFM.
	Markdown goldmark.Markdown
}

// Renderer holds the parsed block templates. It is safe for concurrent use.
type Renderer struct {
	tmpl *template.Template
	md   goldmark.Markdown
}

// New parses the embedded templates.
func New(opts Options) (*Renderer, error) {
	md := opts.Markdown
	if md == nil {
		md = goldmark.New(goldmark.WithExtensions(extension.GFM))
	}

	tmpl, err := template.New("blocks").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, md: md}, nil
}

// MustNew is New for package-level initialization and tests.
func MustNew(opts Options) *Renderer {
	r, err := New(opts)
	if err != nil {
		panic(err)
	}
	return r
}

// region selects the theme tokens applied to a block.
type region int

const (
	regionBody region = iota
	regionFooter
)

// RenderBlocks renders blocks in array order.
func (r *Renderer) RenderBlocks(blocks []storefront.Block, ctx Context) []Node {
	return r.renderAll(blocks, ctx, regionBody, 0)
}

// RenderFooter renders footer blocks with the footer color tokens.
func (r *Renderer) RenderFooter(blocks []storefront.Block, ctx Context) []Node {
	return r.renderAll(blocks, ctx, regionFooter, 0)
}

func (r *Renderer) renderAll(blocks []storefront.Block, ctx Context, reg region, depth int) []Node {
	nodes := make([]Node, 0, len(blocks))
	for _, b := range blocks {
		if n, ok := r.renderBlock(b, ctx, reg, depth); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// wrapper is the view passed to the "block" template around every node.
type wrapper struct {
	ID        string
	Type      storefront.BlockType
	Variant   string
	Style     template.CSS
	Container string
	Inner     template.HTML
}

func (r *Renderer) renderBlock(b storefront.Block, ctx Context, reg region, depth int) (Node, bool) {
	b = storefront.MigrateLegacyShape(b)
	node := Node{BlockID: b.ID, Type: b.Type}

	var (
		name string
		view any
	)

	switch c := b.Content.(type) {
	case storefront.HeroContent:
		name, view = "hero", heroView(c)
	case storefront.TextContent:
		name, view = "text", r.textView(c)
	case storefront.HTMLContent:
		name, view = "html", template.HTML(c.HTML)
	case storefront.ProductGridContent:
		v := productGridView(c, ctx)
		name, view, node.Refs = "product-grid", v, v.refs()
	case storefront.ImageContent:
		name, view = "image", c
	case storefront.VideoContent:
		name, view = "video", videoView(c)
	case storefront.ColumnsContent:
		if depth >= maxColumnsDepth {
			if ctx.Mode == Admin {
				name, view = "placeholder", placeholder{Type: b.Type, Reason: "Nested columns are not supported"}
				break
			}
			log.Printf("[Render] Skipping nested columns block %q", b.ID)
			return Node{}, false
		}
		v := r.columnsView(c, ctx, reg, depth+1)
		name, view = "columns", v
		for _, col := range v.Columns {
			for _, child := range col {
				node.Children = append(node.Children, child)
				node.Refs = append(node.Refs, child.Refs...)
			}
		}
	case storefront.SpacerContent:
		name, view = "spacer", spacerView(c)
	case storefront.InstagramContent:
		name, view = "instagram", instagramView(c)
	case storefront.MapContent:
		name, view = "map", mapView(c)
	case storefront.PromoContent:
		v := promoView(c, ctx)
		name, view = "promo", v
		if v.BannerID != "" {
			node.Refs = []string{v.BannerID}
		}
	case storefront.BrandsContent:
		v := brandsView(c, ctx)
		name, view = "brands", v
		for _, br := range v.Brands {
			node.Refs = append(node.Refs, br.ID)
		}
	case storefront.CategoriesContent:
		v := categoriesView(c, ctx)
		name, view = "categories", v
		for _, cat := range v.Categories {
			node.Refs = append(node.Refs, cat.ID)
		}
	case storefront.NewsletterContent:
		name, view = "newsletter", newsletterView(c)
	case storefront.UnknownContent:
		if ctx.Mode != Admin {
			log.Printf("[Render] Skipping block %q with unknown type %q", b.ID, c.Type)
			return Node{}, false
		}
		name, view = "placeholder", placeholder{Type: c.Type, Reason: "Unknown block type"}
	case nil:
		if ctx.Mode != Admin {
			log.Printf("[Render] Skipping block %q with no content", b.ID)
			return Node{}, false
		}
		name, view = "placeholder", placeholder{Type: b.Type, Reason: "Missing content"}
	default:
		log.Printf("[Render] Block %q has unhandled content %T", b.ID, c)
		return Node{}, false
	}

	var resolved style.Resolved
	if reg == regionFooter {
		resolved = style.ResolveFooter(b.Type, ctx.Theme, b.Styles)
	} else {
		resolved = style.Resolve(b.Type, ctx.Theme, b.Styles)
	}

	inner, err := r.execute(name, view)
	if err != nil {
		log.Printf("[Render] Block %q (%s): %v", b.ID, b.Type, err)
		if ctx.Mode != Admin {
			return Node{}, false
		}
		inner, _ = r.execute("placeholder", placeholder{Type: b.Type, Reason: "Render failed"})
	}

	html, err := r.execute("block", wrapper{
		ID:        b.ID,
		Type:      b.Type,
		Variant:   b.EffectiveVariant(),
		Style:     resolved.InlineStyle(),
		Container: resolved.ContainerClass(),
		Inner:     inner,
	})
	if err != nil {
		log.Printf("[Render] Block %q wrapper: %v", b.ID, err)
		return Node{}, false
	}
	node.HTML = html
	return node, true
}

func (r *Renderer) execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// RenderPage concatenates the node HTML in order.
func RenderPage(nodes []Node) template.HTML {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(string(n.HTML))
	}
	return template.HTML(b.String())
}
