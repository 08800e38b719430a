package storefront

import (
	"log"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Fallback copy for converted newsletter blocks whose markup lacks a field.
const (
	defaultNewsletterTitle       = "Subscribe to our newsletter"
	defaultNewsletterPlaceholder = "Your email"
	defaultNewsletterButton      = "Subscribe"
)

// ConvertNewsletterBlocks replaces text and html blocks that embed a
// newsletter signup form with structured newsletter blocks. Ids, variants and
// styles are kept. It returns the new slice and the number of converted blocks.
func ConvertNewsletterBlocks(blocks []Block) ([]Block, int) {
	out := make([]Block, len(blocks))
	converted := 0
	for i, b := range blocks {
		out[i] = b

		markup, title := blockMarkup(b)
		if markup == "" {
			if cols, ok := b.Content.(ColumnsContent); ok {
				nested := ColumnsContent{Gap: cols.Gap, Columns: make([][]Block, len(cols.Columns))}
				for j, col := range cols.Columns {
					var n int
					nested.Columns[j], n = ConvertNewsletterBlocks(col)
					converted += n
				}
				out[i].Content = nested
			}
			continue
		}

		content, ok := ExtractNewsletter(markup)
		if !ok {
			continue
		}
		if content.Title == "" {
			content.Title = title
		}
		if content.Title == "" {
			content.Title = defaultNewsletterTitle
		}

		out[i].Type = TypeNewsletter
		out[i].Content = content
		converted++
		log.Printf("[Blocks] Converted %s block %q to newsletter", b.Type, b.ID)
	}
	return out, converted
}

func blockMarkup(b Block) (markup, title string) {
	switch c := b.Content.(type) {
	case TextContent:
		return c.HTML, c.Title
	case HTMLContent:
		return c.HTML, ""
	}
	return "", ""
}

// ExtractNewsletter reads newsletter copy out of a signup form fragment. It
// reports false when the markup holds no form with an email input.
func ExtractNewsletter(markup string) (NewsletterContent, bool) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return NewsletterContent{}, false
	}

	var (
		c        NewsletterContent
		hasForm  bool
		hasEmail bool
	)

	var walk func(n *html.Node, inForm bool)
	walk = func(n *html.Node, inForm bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Form:
				hasForm = true
				inForm = true
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				if c.Title == "" {
					c.Title = textOf(n)
				}
			case atom.P:
				if c.Subtitle == "" && !inForm {
					c.Subtitle = textOf(n)
				}
			case atom.Input:
				typ := strings.ToLower(attr(n, "type"))
				name := strings.ToLower(attr(n, "name"))
				switch {
				case typ == "email" || strings.Contains(name, "email"):
					hasEmail = true
					if c.Placeholder == "" {
						c.Placeholder = strings.TrimSpace(attr(n, "placeholder"))
					}
				case typ == "submit" && c.ButtonText == "":
					c.ButtonText = strings.TrimSpace(attr(n, "value"))
				}
			case atom.Button:
				if c.ButtonText == "" {
					c.ButtonText = textOf(n)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, inForm)
		}
	}
	for _, n := range nodes {
		walk(n, false)
	}

	if !hasForm || !hasEmail {
		return NewsletterContent{}, false
	}
	if c.Placeholder == "" {
		c.Placeholder = defaultNewsletterPlaceholder
	}
	if c.ButtonText == "" {
		c.ButtonText = defaultNewsletterButton
	}
	return c, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textOf returns the whitespace-collapsed text of n and its descendants.
func textOf(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
