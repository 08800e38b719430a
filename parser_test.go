package storefront

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func sampleBlocks() []Block {
	return []Block{
		{
			ID:      "hero-main",
			Type:    TypeHero,
			Variant: "split",
			Content: HeroContent{
				Slides: []Slide{
					{ID: "slide-1", Title: "Summer", ButtonText: "Shop", ButtonLink: "/summer", Image: "/img/a.jpg"},
					{ID: "slide-2", Title: "Winter", MobileImage: "/img/b-m.jpg"},
				},
				Autoplay:         true,
				AutoplayInterval: 7000,
			},
			Styles: Styles{BackgroundColor: "#000", PaddingTop: "0", FullWidth: boolPtr(true)},
		},
		{
			ID:      "grid",
			Type:    TypeProductGrid,
			Content: ProductGridContent{Title: "Best", CollectionType: "manual", ProductIDs: []string{"p1", "p2"}, Limit: 4, Columns: 4},
			Styles:  Styles{TextAlign: "center", FullWidth: boolPtr(false)},
		},
		{
			ID:   "cols",
			Type: TypeColumns,
			Content: ColumnsContent{
				Gap: "16px",
				Columns: [][]Block{
					{{ID: "c1-text", Type: TypeText, Content: TextContent{Markdown: "**hi**"}}},
					{{ID: "c2-img", Type: TypeImage, Content: ImageContent{ImageURL: "/x.png", Alt: "x"}}},
				},
			},
		},
		{ID: "nl", Type: TypeNewsletter, Content: NewsletterContent{Title: "News", ButtonText: "Go"}},
		{ID: "gap", Type: TypeSpacer, Content: SpacerContent{Height: "40px"}},
	}
}

func TestParseBlocksRoundTrip(t *testing.T) {
	blocks := sampleBlocks()

	raw, err := MarshalBlocks(blocks)
	require.NoError(t, err)

	parsed, err := ParseBlocks(raw)
	require.NoError(t, err)
	assert.Equal(t, blocks, parsed)

	again, err := MarshalBlocks(parsed)
	require.NoError(t, err)
	assert.JSONEq(t, raw, again)
}

func TestParseBlocksMalformed(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		message string
	}{
		{"empty", "   ", "empty"},
		{"syntax", `[{"id": "a", "type": }]`, "malformed"},
		{"object", `{"id": "a"}`, "must be a JSON array"},
		{"string", `"hero"`, "must be a JSON array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks, err := ParseBlocks(tt.raw)
			require.Error(t, err)
			assert.Nil(t, blocks)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "expected *ParseError, got %T", err)
			assert.Contains(t, pe.Message, tt.message)
		})
	}
}

func TestParseBlocksDropsInvalidElements(t *testing.T) {
	raw := `[
		{"id": "ok", "type": "spacer", "content": {"height": "10px"}, "styles": {}},
		{"type": "text", "content": {}},
		{"id": "no-type", "content": {}},
		42,
		{"id": "ok", "type": "text"},
		{"id": "bad-content", "type": "product-grid", "content": {"limit": "four"}}
	]`

	res, err := ParseBlocksDetailed(raw)
	require.NoError(t, err)

	require.Len(t, res.Blocks, 2)
	assert.Equal(t, "ok", res.Blocks[0].ID)
	assert.Equal(t, "bad-content", res.Blocks[1].ID)
	assert.Equal(t, ProductGridContent{}, res.Blocks[1].Content)

	reasons := make([]string, 0, len(res.Issues))
	for _, issue := range res.Issues {
		reasons = append(reasons, issue.String())
	}
	joined := strings.Join(reasons, "\n")
	assert.Contains(t, joined, "element 1: missing id")
	assert.Contains(t, joined, "element 2 (no-type): missing type")
	assert.Contains(t, joined, "element 3: not a block object")
	assert.Contains(t, joined, "element 4 (ok): duplicate id")
	assert.Contains(t, joined, "content does not match type")
}

func TestParseBlocksDefaultsMissingFields(t *testing.T) {
	blocks, err := ParseBlocks(`[{"id": "t", "type": "text"}]`)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, TextContent{}, blocks[0].Content)
	assert.Equal(t, Styles{}, blocks[0].Styles)
	assert.Equal(t, "default", blocks[0].EffectiveVariant())
}

func TestParseBlocksKeepsUnknownTypes(t *testing.T) {
	raw := `[{"id":"x","type":"countdown","content":{"until":"2027-01-01"},"styles":{"textColor":"red"}}]`

	res, err := ParseBlocksDetailed(raw)
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)

	b := res.Blocks[0]
	assert.False(t, b.Type.Valid())
	unknown, ok := b.Content.(UnknownContent)
	require.True(t, ok)
	assert.JSONEq(t, `{"until":"2027-01-01"}`, string(unknown.Raw))
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0].Reason, "unknown block type")

	out, err := MarshalBlocks(res.Blocks)
	require.NoError(t, err)
	assert.JSONEq(t, raw, out)
}

func TestParseBlocksNestedColumnsAreLenient(t *testing.T) {
	raw := `[{"id":"cols","type":"columns","content":{"columns":[[{"id":"a","type":"text"},{"type":"text"}],[]]}}]`

	blocks, err := ParseBlocks(raw)
	require.NoError(t, err)
	cols := blocks[0].Content.(ColumnsContent)
	require.Len(t, cols.Columns, 2)
	require.Len(t, cols.Columns[0], 1)
	assert.Equal(t, "a", cols.Columns[0][0].ID)
	assert.Empty(t, cols.Columns[1])
}

func TestParseBlocksOrDefault(t *testing.T) {
	fallback := DefaultHomeLayout()

	got := ParseBlocksOrDefault("not json", fallback)
	assert.Equal(t, fallback, got)

	got = ParseBlocksOrDefault(`[]`, fallback)
	assert.Empty(t, got)
}

func TestMarshalBlocksNil(t *testing.T) {
	raw, err := MarshalBlocks(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}

func TestBlockTypes(t *testing.T) {
	types := BlockTypes()
	assert.Len(t, types, 14)
	for _, bt := range types {
		assert.True(t, bt.Valid(), bt)
	}
	assert.False(t, BlockType("carousel").Valid())
}

func TestFindBlockSearchesColumns(t *testing.T) {
	blocks := sampleBlocks()

	b, ok := FindBlock(blocks, "c2-img")
	require.True(t, ok)
	assert.Equal(t, TypeImage, b.Type)

	_, ok = FindBlock(blocks, "missing")
	assert.False(t, ok)
}

func TestNewBlockID(t *testing.T) {
	a := NewBlockID(TypeHero)
	b := NewBlockID(TypeHero)
	assert.True(t, strings.HasPrefix(a, "hero-"))
	assert.Len(t, a, len("hero-")+8)
	assert.NotEqual(t, a, b)
}
