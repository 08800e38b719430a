package style

import (
	"html/template"
	"strings"

	"github.com/livetemplate/storefront"
)

// Layer is one partial source of style values. Empty fields defer to the
// layers beneath it.
type Layer struct {
	BackgroundColor string
	TextColor       string
	HeadingColor    string
	ButtonColor     string
	ButtonTextColor string
	PaddingTop      string
	PaddingBottom   string
	PaddingLeft     string
	PaddingRight    string
	TextAlign       string
	HeadingFont     string
	BodyFont        string
	CustomCSS       string
	FullWidth       *bool
}

// Resolved is the final set of presentational values for one block.
type Resolved struct {
	BackgroundColor string
	TextColor       string
	HeadingColor    string
	ButtonColor     string
	ButtonTextColor string
	PaddingTop      string
	PaddingBottom   string
	PaddingLeft     string
	PaddingRight    string
	TextAlign       string
	HeadingFont     string
	BodyFont        string
	CustomCSS       string
	FullWidth       bool
}

// Layers merges layers in order; a later non-empty field wins. Every
// property is resolved on its own.
func Layers(layers ...Layer) Resolved {
	var r Resolved
	for _, l := range layers {
		over(&r.BackgroundColor, l.BackgroundColor)
		over(&r.TextColor, l.TextColor)
		over(&r.HeadingColor, l.HeadingColor)
		over(&r.ButtonColor, l.ButtonColor)
		over(&r.ButtonTextColor, l.ButtonTextColor)
		over(&r.PaddingTop, l.PaddingTop)
		over(&r.PaddingBottom, l.PaddingBottom)
		over(&r.PaddingLeft, l.PaddingLeft)
		over(&r.PaddingRight, l.PaddingRight)
		over(&r.TextAlign, l.TextAlign)
		over(&r.HeadingFont, l.HeadingFont)
		over(&r.BodyFont, l.BodyFont)
		over(&r.CustomCSS, l.CustomCSS)
		if l.FullWidth != nil {
			r.FullWidth = *l.FullWidth
		}
	}
	return r
}

func over(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Resolve computes the styles of a body block: type defaults, then theme
// tokens, then the block's own overrides.
func Resolve(t storefront.BlockType, theme Theme, s storefront.Styles) Resolved {
	return Layers(TypeDefaults(t), ThemeLayer(t, theme), BlockLayer(s))
}

// ResolveFooter is Resolve for blocks placed in the footer region, where the
// footer tokens replace the page background and text colors.
func ResolveFooter(t storefront.BlockType, theme Theme, s storefront.Styles) Resolved {
	footer := ThemeLayer(t, theme)
	footer.BackgroundColor = first(theme.FooterBg, DefaultTheme().FooterBg)
	footer.TextColor = first(theme.FooterText, DefaultTheme().FooterText)
	footer.HeadingColor = footer.TextColor
	return Layers(TypeDefaults(t), footer, BlockLayer(s))
}

// imageBacked types paint their own background and ignore the page colors.
var imageBacked = map[storefront.BlockType]bool{
	storefront.TypeHero:  true,
	storefront.TypePromo: true,
}

// ThemeLayer maps store tokens onto the properties they govern for type t.
func ThemeLayer(t storefront.BlockType, theme Theme) Layer {
	l := Layer{
		HeadingFont:     theme.HeadingFont,
		BodyFont:        theme.BodyFont,
		ButtonColor:     first(theme.ButtonColor, theme.ThemeColor),
		ButtonTextColor: theme.ButtonTextColor,
	}
	if !imageBacked[t] {
		l.BackgroundColor = theme.BackgroundColor
		l.TextColor = theme.TextColor
		l.HeadingColor = theme.HeadingColor
	}
	return l
}

// BlockLayer converts block-local overrides into a layer.
func BlockLayer(s storefront.Styles) Layer {
	return Layer{
		BackgroundColor: s.BackgroundColor,
		TextColor:       s.TextColor,
		ButtonColor:     s.ButtonColor,
		ButtonTextColor: s.ButtonTextColor,
		PaddingTop:      s.PaddingTop,
		PaddingBottom:   s.PaddingBottom,
		PaddingLeft:     s.PaddingLeft,
		PaddingRight:    s.PaddingRight,
		TextAlign:       s.TextAlign,
		CustomCSS:       s.CustomCSS,
		FullWidth:       s.FullWidth,
	}
}

// TypeDefaults returns the hard-coded renderer defaults for t. FullWidth
// never changes padding here; an edge-to-edge block needs explicit "0" padding.
func TypeDefaults(t storefront.BlockType) Layer {
	d := DefaultTheme()
	l := Layer{
		BackgroundColor: d.BackgroundColor,
		TextColor:       d.TextColor,
		HeadingColor:    d.HeadingColor,
		ButtonColor:     d.ButtonColor,
		ButtonTextColor: d.ButtonTextColor,
		HeadingFont:     d.HeadingFont,
		BodyFont:        d.BodyFont,
		PaddingTop:      "48px",
		PaddingBottom:   "48px",
		PaddingLeft:     "16px",
		PaddingRight:    "16px",
		TextAlign:       "left",
		FullWidth:       boolPtr(false),
	}

	switch t {
	case storefront.TypeHero:
		l.BackgroundColor = "#111827"
		l.TextColor = "#ffffff"
		l.HeadingColor = "#ffffff"
		l.PaddingTop, l.PaddingBottom = "96px", "96px"
		l.TextAlign = "center"
		l.FullWidth = boolPtr(true)
	case storefront.TypePromo:
		l.BackgroundColor = "#f3f4f6"
		l.TextAlign = "center"
	case storefront.TypeNewsletter:
		l.BackgroundColor = "#f9fafb"
		l.TextAlign = "center"
	case storefront.TypeText, storefront.TypeHTML:
		l.PaddingTop, l.PaddingBottom = "32px", "32px"
	case storefront.TypeSpacer:
		l.PaddingTop, l.PaddingBottom, l.PaddingLeft, l.PaddingRight = "0", "0", "0", "0"
	case storefront.TypeImage, storefront.TypeVideo, storefront.TypeMap:
		l.PaddingTop, l.PaddingBottom = "24px", "24px"
	case storefront.TypeBrands, storefront.TypeCategories, storefront.TypeInstagram:
		l.TextAlign = "center"
	}
	return l
}

func boolPtr(b bool) *bool { return &b }

// InlineStyle renders r as a CSS declaration list in a fixed property order.
func (r Resolved) InlineStyle() template.CSS {
	var b strings.Builder
	decl := func(prop, val string) {
		if val == "" {
			return
		}
		b.WriteString(prop)
		b.WriteString(": ")
		b.WriteString(cssValue(val))
		b.WriteString("; ")
	}

	decl("background-color", r.BackgroundColor)
	decl("color", r.TextColor)
	decl("padding-top", r.PaddingTop)
	decl("padding-right", r.PaddingRight)
	decl("padding-bottom", r.PaddingBottom)
	decl("padding-left", r.PaddingLeft)
	decl("text-align", r.TextAlign)
	decl("font-family", r.BodyFont)
	decl("--sf-heading-color", r.HeadingColor)
	decl("--sf-heading-font", r.HeadingFont)
	decl("--sf-button-bg", r.ButtonColor)
	decl("--sf-button-color", r.ButtonTextColor)
	if css := strings.TrimSpace(r.CustomCSS); css != "" {
		b.WriteString(cssValue(css))
		if !strings.HasSuffix(css, ";") {
			b.WriteString(";")
		}
	}
	return template.CSS(strings.TrimSpace(b.String()))
}

// ContainerClass returns the width class for the block wrapper.
func (r Resolved) ContainerClass() string {
	if r.FullWidth {
		return "sf-container sf-full"
	}
	return "sf-container"
}

// cssValue strips characters that would let a stored value escape the
// declaration or the attribute holding it.
func cssValue(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '{', '}', '\\':
			return -1
		}
		return r
	}, v)
}
