package storefront

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
)

// ParseIssue records an element that was dropped or degraded while parsing.
type ParseIssue struct {
	Index  int    // Position in the source array
	ID     string // Block id, if present
	Reason string
}

func (i ParseIssue) String() string {
	if i.ID != "" {
		return fmt.Sprintf("element %d (%s): %s", i.Index, i.ID, i.Reason)
	}
	return fmt.Sprintf("element %d: %s", i.Index, i.Reason)
}

// ParseResult is the detailed outcome of parsing a block document.
type ParseResult struct {
	Blocks []Block
	Issues []ParseIssue
}

// ParseBlocks parses a serialized block document. Malformed JSON or a
// non-array document returns a *ParseError; individual bad elements are
// dropped and logged. Legacy content shapes are migrated on the way out.
func ParseBlocks(raw string) ([]Block, error) {
	res, err := ParseBlocksDetailed(raw)
	if err != nil {
		return nil, err
	}
	return res.Blocks, nil
}

// ParseBlocksDetailed is ParseBlocks with the per-element issues exposed.
func ParseBlocksDetailed(raw string) (*ParseResult, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, NewParseError("block document is empty", 0).
			WithHint("store a JSON array, e.g. []")
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &elems); err != nil {
		return nil, documentError(trimmed, err)
	}

	blocks, issues := parseElements(elems)
	return &ParseResult{Blocks: blocks, Issues: issues}, nil
}

// ParseBlocksOrDefault parses raw and falls back to the given layout when the
// document cannot be parsed at all.
func ParseBlocksOrDefault(raw string, fallback []Block) []Block {
	blocks, err := ParseBlocks(raw)
	if err != nil {
		log.Printf("[Blocks] Falling back to default layout: %v", summarize(err))
		return fallback
	}
	return blocks
}

// MarshalBlocks serializes blocks into the stored document form.
func MarshalBlocks(blocks []Block) (string, error) {
	if blocks == nil {
		blocks = []Block{}
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		return "", fmt.Errorf("marshal blocks: %w", err)
	}
	return string(data), nil
}

func parseElements(elems []json.RawMessage) ([]Block, []ParseIssue) {
	blocks := make([]Block, 0, len(elems))
	var issues []ParseIssue
	seen := make(map[string]bool, len(elems))

	drop := func(issue ParseIssue) {
		issues = append(issues, issue)
		log.Printf("[Blocks] Dropped %s", issue)
	}

	for i, el := range elems {
		var w wireBlock
		if err := json.Unmarshal(el, &w); err != nil {
			drop(ParseIssue{Index: i, Reason: "not a block object"})
			continue
		}
		if w.ID == "" {
			drop(ParseIssue{Index: i, Reason: "missing id"})
			continue
		}
		if w.Type == "" {
			drop(ParseIssue{Index: i, ID: w.ID, Reason: "missing type"})
			continue
		}
		if seen[w.ID] {
			drop(ParseIssue{Index: i, ID: w.ID, Reason: "duplicate id"})
			continue
		}
		seen[w.ID] = true

		b, err := w.toBlock()
		if err != nil {
			// Keep the block with empty content; renderers are total over it.
			issue := ParseIssue{Index: i, ID: w.ID, Reason: err.Error()}
			issues = append(issues, issue)
			log.Printf("[Blocks] Degraded %s", issue)
		}
		if !b.Type.Valid() {
			issue := ParseIssue{Index: i, ID: w.ID, Reason: fmt.Sprintf("unknown block type %q", w.Type)}
			issues = append(issues, issue)
		}
		blocks = append(blocks, MigrateLegacyShape(b))
	}
	return blocks, issues
}

func documentError(doc string, err error) *ParseError {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return NewParseError("malformed block document: "+syntaxErr.Error(), syntaxErr.Offset).
			WithSnippet(doc).
			WithHint("the stored layout is not valid JSON; re-save it from the editor")
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return NewParseError(fmt.Sprintf("block document must be a JSON array, got %s", typeErr.Value), typeErr.Offset).
			WithSnippet(doc).
			WithHint("wrap the blocks in [ ... ]")
	}

	return NewParseError("malformed block document: "+err.Error(), 0).WithSnippet(doc)
}

func summarize(err error) string {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
