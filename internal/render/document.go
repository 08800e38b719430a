package render

import (
	"html/template"
	"io"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/catalog"
)

// MainMenuID is the menu rendered in the page header.
const MainMenuID = "main"

// Document is a complete storefront page.
type Document struct {
	Title   string
	Home    []storefront.Block
	Footer  []storefront.Block
	Context Context

	// Preview marks the page as an editor render surface: it loads the
	// preview script and joins Session.
	Preview bool
	Session string
}

type documentView struct {
	Title     string
	ThemeVars template.CSS
	Mode      string
	Preview   bool
	Session   string
	Nav       *catalog.Menu
	Home      template.HTML
	Footer    template.HTML
}

// RenderDocument writes the full HTML page for doc.
func (r *Renderer) RenderDocument(w io.Writer, doc Document) error {
	view := documentView{
		Title:     doc.Title,
		ThemeVars: doc.Context.Theme.CSSVars(),
		Mode:      doc.Context.Mode.String(),
		Preview:   doc.Preview,
		Session:   doc.Session,
		Home:      RenderPage(r.RenderBlocks(doc.Home, doc.Context)),
		Footer:    RenderPage(r.RenderFooter(doc.Footer, doc.Context)),
	}
	if view.Title == "" {
		view.Title = "Storefront"
	}
	if nav, ok := doc.Context.snapshot().Menu(MainMenuID); ok {
		view.Nav = &nav
	}
	return r.tmpl.ExecuteTemplate(w, "document", view)
}
