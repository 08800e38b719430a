package storefront

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ParseError is a block document that could not be decoded. Offset and
// Snippet let an editor find the bad byte in the stored JSON.
type ParseError struct {
	Source  string // record field, e.g. "store-config-draft/homeLayout"
	Offset  int64  // 1-based byte offset as reported by encoding/json, 0 if unknown
	Message string
	Snippet string // the raw document
	Hint    string
	Related string
}

func NewParseError(message string, offset int64) *ParseError {
	return &ParseError{Message: message, Offset: offset}
}

func (e *ParseError) WithSource(source string) *ParseError { e.Source = source; return e }
func (e *ParseError) WithSnippet(doc string) *ParseError   { e.Snippet = doc; return e }
func (e *ParseError) WithHint(hint string) *ParseError     { e.Hint = hint; return e }

// WithRelated attaches context such as the last good version.
func (e *ParseError) WithRelated(related string) *ParseError { e.Related = related; return e }

func (e *ParseError) Error() string { return e.Format() }

// Format renders the error for logs and the admin UI.
func (e *ParseError) Format() string {
	where := e.Source
	if where == "" {
		where = "block document"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "❌ Error in %s\n\n", where)
	if e.Offset > 0 {
		fmt.Fprintf(&b, "Offset %d: ", e.Offset)
	}
	b.WriteString(e.Message)
	b.WriteByte('\n')
	b.WriteString(e.excerpt())
	if e.Hint != "" {
		fmt.Fprintf(&b, "\n💡 Tip: %s\n", e.Hint)
	}
	if e.Related != "" {
		fmt.Fprintf(&b, "\n🔗 %s\n", e.Related)
	}
	return b.String()
}

// excerptRadius is the number of characters shown either side of the bad one.
const excerptRadius = 30

// excerpt flattens the document to one line, cuts a window around Offset
// and puts a caret under the failing character. Offset counts bytes; the
// window and caret count runes so multi-byte text is never split.
func (e *ParseError) excerpt() string {
	if e.Snippet == "" {
		return ""
	}
	flat := strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(e.Snippet)

	byteAt := min(max(int(e.Offset)-1, 0), len(flat))
	for byteAt > 0 && byteAt < len(flat) && !utf8.RuneStart(flat[byteAt]) {
		byteAt--
	}
	at := utf8.RuneCountInString(flat[:byteAt])
	runes := []rune(flat)
	from, to := max(0, at-excerptRadius), min(len(runes), at+excerptRadius)

	lead, tail := "  | ", ""
	if from > 0 {
		lead += "…"
	}
	if to < len(runes) {
		tail = "…"
	}
	pad := utf8.RuneCountInString(lead) + at - from
	return "\n" + lead + string(runes[from:to]) + tail + "\n" + strings.Repeat(" ", pad) + "^\n"
}
