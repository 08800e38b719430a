package storefront

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseErrorFormatting(t *testing.T) {
	_, err := ParseBlocks(`[{"id": "hero", "type": "hero", "content": {"title": "X",}}]`)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	errMsg := err.Error()
	t.Logf("Error message:\n%s", errMsg)

	if !strings.Contains(errMsg, "❌ Error in block document") {
		t.Errorf("Error should start with ❌ Error in")
	}
	if !strings.Contains(errMsg, "Offset") {
		t.Errorf("Error should mention the byte offset")
	}
	if !strings.Contains(errMsg, "^") {
		t.Errorf("Error should point at the failing byte")
	}
	if !strings.Contains(errMsg, "💡 Tip:") {
		t.Errorf("Error should include helpful tip")
	}
}

func TestParseErrorWithContext(t *testing.T) {
	err := NewParseError("Something went wrong", 0).
		WithSource("store-config-draft/homeLayout").
		WithHint("Try doing X instead").
		WithRelated("Last published at version 3")

	errMsg := err.Error()

	if !strings.Contains(errMsg, "❌ Error in store-config-draft/homeLayout") {
		t.Errorf("Error should mention the source")
	}
	if strings.Contains(errMsg, "Offset") {
		t.Errorf("Error without offset should not print one")
	}
	if !strings.Contains(errMsg, "💡 Tip: Try doing X instead") {
		t.Errorf("Error should include hint")
	}
	if !strings.Contains(errMsg, "🔗 Last published at version 3") {
		t.Errorf("Error should include related info")
	}
}

func TestParseErrorSnippetWindow(t *testing.T) {
	doc := strings.Repeat("a", 100) + "!" + strings.Repeat("b", 100)
	err := NewParseError("bad byte", 101).WithSnippet(doc)

	ctx := err.excerpt()
	lines := strings.Split(strings.TrimPrefix(ctx, "\n"), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected snippet and caret lines, got %q", ctx)
	}

	snippet := []rune(lines[0])
	caret := strings.Index(lines[1], "^")
	if caret < 0 || caret >= len(snippet) || snippet[caret] != '!' {
		t.Errorf("caret should sit under the failing byte:\n%s", ctx)
	}
}

func TestParseErrorSnippetWindowMultibyte(t *testing.T) {
	doc := strings.Repeat("€", 40) + "!" + strings.Repeat("é", 40)
	// 40 three-byte runes precede the bang.
	err := NewParseError("bad byte", 121).WithSnippet(doc)

	ctx := err.excerpt()
	if !utf8.ValidString(ctx) {
		t.Fatalf("excerpt split a multi-byte character: %q", ctx)
	}
	lines := strings.Split(strings.TrimPrefix(ctx, "\n"), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected snippet and caret lines, got %q", ctx)
	}

	snippet := []rune(lines[0])
	caret := strings.Index(lines[1], "^")
	if caret < 0 || caret >= len(snippet) || snippet[caret] != '!' {
		t.Errorf("caret should sit under the failing character:\n%s", ctx)
	}
}

func TestParseErrorOffsetInsideRune(t *testing.T) {
	// Byte 5 is the second byte of the second "€".
	err := NewParseError("bad byte", 5).WithSnippet("€€€")

	ctx := err.excerpt()
	if !utf8.ValidString(ctx) {
		t.Fatalf("excerpt split a multi-byte character: %q", ctx)
	}
	lines := strings.Split(strings.TrimPrefix(ctx, "\n"), "\n")
	snippet := []rune(lines[0])
	caret := strings.Index(lines[1], "^")
	if caret != 5 || snippet[caret] != '€' {
		t.Errorf("caret should sit under the second €, got column %d:\n%s", caret, ctx)
	}
}
