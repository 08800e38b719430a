package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/store"
	"github.com/livetemplate/storefront/internal/style"
)

const (
	regionHome   = "home"
	regionFooter = "footer"
)

// layoutView is what get_draft and get_live return.
type layoutView struct {
	Slot      string             `json:"slot"`
	Version   int64              `json:"version"`
	UpdatedAt time.Time          `json:"updatedAt"`
	UpdatedBy string             `json:"updatedBy,omitempty"`
	Theme     style.Theme        `json:"theme"`
	Blocks    []storefront.Block `json:"blocks"`
	Footer    []storefront.Block `json:"footer"`
}

func (s *Server) registerLayoutTools() {
	s.mcp.AddTool(mcp.NewTool("get_draft",
		mcp.WithDescription("Get the draft storefront layout: home blocks, footer blocks and theme. Edits are made here and go live on publish."),
	), s.handleGetDraft)

	s.mcp.AddTool(mcp.NewTool("get_live",
		mcp.WithDescription("Get the live storefront layout that shoppers currently see"),
	), s.handleGetLive)

	s.mcp.AddTool(mcp.NewTool("list_block_types",
		mcp.WithDescription("List the block types that can be added to a layout, with their default variant"),
	), s.handleListBlockTypes)

	s.mcp.AddTool(mcp.NewTool("add_block",
		mcp.WithDescription("Add a block to the draft layout. Returns the new block with its generated id."),
		mcp.WithString("type", mcp.Description("Block type, see list_block_types"), mcp.Required()),
		mcp.WithString("content", mcp.Description("Block content as a JSON object (optional, defaults to empty content)")),
		mcp.WithNumber("position", mcp.Description("Zero-based index to insert at (optional, appends by default)")),
		mcp.WithString("region", mcp.Description("home (default) or footer")),
	), s.handleAddBlock)

	s.mcp.AddTool(mcp.NewTool("remove_block",
		mcp.WithDescription("Remove a block from the draft layout, including blocks nested in columns"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
	), s.handleRemoveBlock)

	s.mcp.AddTool(mcp.NewTool("update_block_content",
		mcp.WithDescription("Replace the content of a draft block. The content must match the block's type."),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("content", mcp.Description("New content as a JSON object"), mcp.Required()),
	), s.handleUpdateBlockContent)
}

func (s *Server) registerWorkflowTools() {
	s.mcp.AddTool(mcp.NewTool("publish",
		mcp.WithDescription("DESTRUCTIVE: Publish the draft layout and theme to the live storefront"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handlePublish)

	s.mcp.AddTool(mcp.NewTool("discard_draft",
		mcp.WithDescription("DESTRUCTIVE: Throw away unpublished draft changes and reset the draft to live"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDiscardDraft)

	s.mcp.AddTool(mcp.NewTool("store_status",
		mcp.WithDescription("Report whether the draft has unpublished changes"),
	), s.handleStoreStatus)
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleGetDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, err := s.store.GetDraft(ctx)
	if err != nil {
		return nil, err
	}
	view, err := viewOf(rec)
	if err != nil {
		return nil, err
	}
	return jsonResult(view)
}

func (s *Server) handleGetLive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, err := s.store.GetLive(ctx)
	if err != nil {
		return nil, err
	}
	view, err := viewOf(rec)
	if err != nil {
		return nil, err
	}
	return jsonResult(view)
}

func (s *Server) handleListBlockTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type blockType struct {
		Type           storefront.BlockType `json:"type"`
		DefaultVariant string               `json:"defaultVariant"`
	}
	var out []blockType
	for _, t := range storefront.BlockTypes() {
		out = append(out, blockType{Type: t, DefaultVariant: storefront.DefaultVariant(t)})
	}
	return jsonResult(out)
}

func (s *Server) handleAddBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	typ := storefront.BlockType(stringArg(args, "type"))
	if typ == "" {
		return nil, fmt.Errorf("type is required")
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown block type %q", typ)
	}

	content, err := storefront.DecodeContent(typ, json.RawMessage(stringArg(args, "content")))
	if err != nil {
		return nil, fmt.Errorf("invalid content for %s: %w", typ, err)
	}
	block := storefront.Block{ID: storefront.NewBlockID(typ), Type: typ, Content: content}

	region := stringArg(args, "region")
	if region == "" {
		region = regionHome
	}
	if region != regionHome && region != regionFooter {
		return nil, fmt.Errorf("region must be %q or %q", regionHome, regionFooter)
	}

	home, footer, err := s.draftBlocks(ctx)
	if err != nil {
		return nil, err
	}
	position := -1
	if v, ok := args["position"].(float64); ok {
		position = int(v)
	}
	if region == regionFooter {
		footer = insertAt(footer, block, position)
	} else {
		home = insertAt(home, block, position)
	}

	if err := s.saveDraft(ctx, home, footer); err != nil {
		return nil, err
	}
	log.Printf("[MCP] Added %s block %s to %s", typ, block.ID, region)
	return jsonResult(block)
}

func (s *Server) handleRemoveBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(req.GetArguments(), "blockId")
	if id == "" {
		return nil, fmt.Errorf("blockId is required")
	}

	remove := func(storefront.Block) (storefront.Block, bool, error) {
		return storefront.Block{}, false, nil
	}
	if err := s.editDraftBlock(ctx, id, remove); err != nil {
		return nil, err
	}
	log.Printf("[MCP] Removed block %s", id)
	return textResult(fmt.Sprintf("Removed block %s", id)), nil
}

func (s *Server) handleUpdateBlockContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id := stringArg(args, "blockId")
	raw := stringArg(args, "content")
	if id == "" || raw == "" {
		return nil, fmt.Errorf("blockId and content are required")
	}

	var updated storefront.Block
	update := func(b storefront.Block) (storefront.Block, bool, error) {
		content, err := storefront.DecodeContent(b.Type, json.RawMessage(raw))
		if err != nil {
			return b, true, fmt.Errorf("invalid content for %s: %w", b.Type, err)
		}
		b.Content = content
		updated = b
		return b, true, nil
	}
	if err := s.editDraftBlock(ctx, id, update); err != nil {
		return nil, err
	}
	return jsonResult(updated)
}

func (s *Server) handlePublish(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.store.Publish(ctx); err != nil {
		return nil, fmt.Errorf("%w (live is unchanged, retry is safe)", err)
	}
	return textResult("Draft published to live"), nil
}

func (s *Server) handleDiscardDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.store.DiscardDraft(ctx); err != nil {
		return nil, err
	}
	return textResult("Draft reset to live"), nil
}

func (s *Server) handleStoreStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.store.Status(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]string{"status": string(state)})
}

// ── Helpers ────────────────────────────────────────────────

func viewOf(rec *store.Record) (layoutView, error) {
	home, err := rec.HomeBlocks()
	if err != nil {
		return layoutView{}, err
	}
	footer, err := rec.FooterBlocks()
	if err != nil {
		return layoutView{}, err
	}
	return layoutView{
		Slot:      rec.Slot.String(),
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
		UpdatedBy: rec.UpdatedBy,
		Theme:     rec.Theme,
		Blocks:    home,
		Footer:    footer,
	}, nil
}

func (s *Server) draftBlocks(ctx context.Context) (home, footer []storefront.Block, err error) {
	rec, err := s.store.GetDraft(ctx)
	if err != nil {
		return nil, nil, err
	}
	if home, err = rec.HomeBlocks(); err != nil {
		return nil, nil, fmt.Errorf("draft home layout is unreadable, discard the draft to recover: %w", err)
	}
	if footer, err = rec.FooterBlocks(); err != nil {
		return nil, nil, fmt.Errorf("draft footer layout is unreadable, discard the draft to recover: %w", err)
	}
	return home, footer, nil
}

func (s *Server) saveDraft(ctx context.Context, home, footer []storefront.Block) error {
	if footer == nil {
		footer = []storefront.Block{}
	}
	_, err := s.store.SaveDraft(ctx, store.DraftInput{Blocks: home, Footer: footer})
	return err
}

// editDraftBlock applies edit to the draft block with the given id, in the
// home layout first and then the footer.
func (s *Server) editDraftBlock(ctx context.Context, id string, edit editFunc) error {
	home, footer, err := s.draftBlocks(ctx)
	if err != nil {
		return err
	}

	home, found, err := editBlocks(home, id, edit)
	if err != nil {
		return err
	}
	if !found {
		if footer, found, err = editBlocks(footer, id, edit); err != nil {
			return err
		}
	}
	if !found {
		return fmt.Errorf("block %q not found in the draft", id)
	}
	return s.saveDraft(ctx, home, footer)
}

// editFunc returns the replacement block and whether to keep it.
type editFunc func(storefront.Block) (storefront.Block, bool, error)

// editBlocks returns a copy of blocks with the first block matching id
// passed through edit. Nested columns are searched.
func editBlocks(blocks []storefront.Block, id string, edit editFunc) ([]storefront.Block, bool, error) {
	out := make([]storefront.Block, 0, len(blocks))
	found := false
	for _, b := range blocks {
		if !found && b.ID == id {
			nb, keep, err := edit(b)
			if err != nil {
				return nil, false, err
			}
			found = true
			if keep {
				out = append(out, nb)
			}
			continue
		}
		if cols, ok := b.Content.(storefront.ColumnsContent); ok && !found {
			columns := make([][]storefront.Block, len(cols.Columns))
			for i, col := range cols.Columns {
				if found {
					columns[i] = col
					continue
				}
				nc, f, err := editBlocks(col, id, edit)
				if err != nil {
					return nil, false, err
				}
				columns[i] = nc
				found = f
			}
			cols.Columns = columns
			b.Content = cols
		}
		out = append(out, b)
	}
	return out, found, nil
}

func insertAt(blocks []storefront.Block, b storefront.Block, pos int) []storefront.Block {
	if pos < 0 || pos >= len(blocks) {
		return append(blocks, b)
	}
	out := make([]storefront.Block, 0, len(blocks)+1)
	out = append(out, blocks[:pos]...)
	out = append(out, b)
	return append(out, blocks[pos:]...)
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
