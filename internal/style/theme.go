// Package style resolves the final presentational values of a block from
// three ordered layers: per-type renderer defaults, store-wide theme tokens,
// and block-local overrides.
package style

import (
	"html/template"
	"strings"
)

// Theme holds the store-wide presentational tokens.
type Theme struct {
	ThemeColor      string `json:"themeColor,omitempty" yaml:"theme_color,omitempty" bson:"themeColor,omitempty"`
	HeadingColor    string `json:"headingColor,omitempty" yaml:"heading_color,omitempty" bson:"headingColor,omitempty"`
	TextColor       string `json:"textColor,omitempty" yaml:"text_color,omitempty" bson:"textColor,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty" yaml:"background_color,omitempty" bson:"backgroundColor,omitempty"`
	FooterBg        string `json:"footerBg,omitempty" yaml:"footer_bg,omitempty" bson:"footerBg,omitempty"`
	FooterText      string `json:"footerText,omitempty" yaml:"footer_text,omitempty" bson:"footerText,omitempty"`
	ButtonColor     string `json:"buttonColor,omitempty" yaml:"button_color,omitempty" bson:"buttonColor,omitempty"`
	ButtonTextColor string `json:"buttonTextColor,omitempty" yaml:"button_text_color,omitempty" bson:"buttonTextColor,omitempty"`
	HeadingFont     string `json:"headingFont,omitempty" yaml:"heading_font,omitempty" bson:"headingFont,omitempty"`
	BodyFont        string `json:"bodyFont,omitempty" yaml:"body_font,omitempty" bson:"bodyFont,omitempty"`
}

// DefaultTheme returns the hard-coded fallback tokens.
func DefaultTheme() Theme {
	return Theme{
		ThemeColor:      "#111827",
		HeadingColor:    "#111827",
		TextColor:       "#374151",
		BackgroundColor: "#ffffff",
		FooterBg:        "#111827",
		FooterText:      "#f9fafb",
		ButtonColor:     "#111827",
		ButtonTextColor: "#ffffff",
		HeadingFont:     "Inter, sans-serif",
		BodyFont:        "Inter, sans-serif",
	}
}

// WithDefaults returns t with every empty token filled from DefaultTheme.
// ButtonColor falls back to ThemeColor before the hard-coded default.
func (t Theme) WithDefaults() Theme {
	d := DefaultTheme()
	if t.ThemeColor != "" {
		d.ButtonColor = t.ThemeColor
	}
	return Theme{
		ThemeColor:      first(t.ThemeColor, d.ThemeColor),
		HeadingColor:    first(t.HeadingColor, d.HeadingColor),
		TextColor:       first(t.TextColor, d.TextColor),
		BackgroundColor: first(t.BackgroundColor, d.BackgroundColor),
		FooterBg:        first(t.FooterBg, d.FooterBg),
		FooterText:      first(t.FooterText, d.FooterText),
		ButtonColor:     first(t.ButtonColor, d.ButtonColor),
		ButtonTextColor: first(t.ButtonTextColor, d.ButtonTextColor),
		HeadingFont:     first(t.HeadingFont, d.HeadingFont),
		BodyFont:        first(t.BodyFont, d.BodyFont),
	}
}

// Merge overlays the non-empty tokens of o onto t.
func (t Theme) Merge(o Theme) Theme {
	return Theme{
		ThemeColor:      first(o.ThemeColor, t.ThemeColor),
		HeadingColor:    first(o.HeadingColor, t.HeadingColor),
		TextColor:       first(o.TextColor, t.TextColor),
		BackgroundColor: first(o.BackgroundColor, t.BackgroundColor),
		FooterBg:        first(o.FooterBg, t.FooterBg),
		FooterText:      first(o.FooterText, t.FooterText),
		ButtonColor:     first(o.ButtonColor, t.ButtonColor),
		ButtonTextColor: first(o.ButtonTextColor, t.ButtonTextColor),
		HeadingFont:     first(o.HeadingFont, t.HeadingFont),
		BodyFont:        first(o.BodyFont, t.BodyFont),
	}
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// CSSVars renders the theme as custom property declarations for :root.
func (t Theme) CSSVars() template.CSS {
	t = t.WithDefaults()
	vars := []struct{ name, val string }{
		{"--sf-theme", t.ThemeColor},
		{"--sf-heading-color", t.HeadingColor},
		{"--sf-text", t.TextColor},
		{"--sf-bg", t.BackgroundColor},
		{"--sf-footer-bg", t.FooterBg},
		{"--sf-footer-text", t.FooterText},
		{"--sf-button-bg", t.ButtonColor},
		{"--sf-button-color", t.ButtonTextColor},
		{"--sf-heading-font", t.HeadingFont},
		{"--sf-body-font", t.BodyFont},
	}
	var b strings.Builder
	for i, v := range vars {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(v.name)
		b.WriteString(": ")
		b.WriteString(cssValue(v.val))
		b.WriteString(";")
	}
	return template.CSS(b.String())
}
