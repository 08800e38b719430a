package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/preview"
	"github.com/livetemplate/storefront/internal/render"
	"github.com/livetemplate/storefront/internal/store"
	"github.com/livetemplate/storefront/internal/style"
)

// maxRequestBodySize limits the size of incoming request bodies (1MB)
const maxRequestBodySize = 1 << 20

// RecordResponse is a config record with its layouts parsed.
type RecordResponse struct {
	*store.Record
	Slot   string             `json:"slot"`
	Blocks []storefront.Block `json:"blocks"`
	Footer []storefront.Block `json:"footer"`
	Issues []string           `json:"issues,omitempty"`
}

// DraftRequest is the PUT /admin/api/draft body. Blocks replaces the whole
// home layout; Footer and Config are kept when absent.
type DraftRequest struct {
	Blocks json.RawMessage `json:"blocks"`
	Footer json.RawMessage `json:"footer,omitempty"`
	Config *style.Theme    `json:"config,omitempty"`
}

// RenderRequest is an unsaved layout to render in admin mode.
type RenderRequest struct {
	Blocks json.RawMessage `json:"blocks"`
	Footer json.RawMessage `json:"footer,omitempty"`
	Config *style.Theme    `json:"config,omitempty"`
}

// RenderResponse carries the rendered regions and the theme's CSS variables.
type RenderResponse struct {
	Home      string `json:"home"`
	Footer    string `json:"footer"`
	ThemeVars string `json:"themeVars"`
}

// SessionResponse describes a new preview session.
type SessionResponse struct {
	Session    string `json:"session"`
	PreviewURL string `json:"previewUrl"`
	WSURL      string `json:"wsUrl"`
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetDraft(r.Context())
	if err != nil {
		log.Printf("[API] Get draft failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load draft")
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec))
}

func (s *Server) handleGetLive(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetLive(r.Context())
	if err != nil {
		log.Printf("[API] Get live failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load live config")
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec))
}

func (s *Server) handlePutDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Blocks) == 0 {
		writeJSONError(w, http.StatusBadRequest, "blocks is required")
		return
	}

	blocks, issues, err := parseBody(req.Blocks)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "blocks: "+err.Error())
		return
	}
	in := store.DraftInput{Blocks: blocks, Theme: req.Config}
	if len(req.Footer) > 0 {
		footer, footerIssues, err := parseBody(req.Footer)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "footer: "+err.Error())
			return
		}
		in.Footer = footer
		issues = append(issues, footerIssues...)
	}

	rec, err := s.store.SaveDraft(r.Context(), in)
	if err != nil {
		log.Printf("[API] Save draft failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to save draft")
		return
	}
	resp := recordResponse(rec)
	resp.Issues = append(resp.Issues, issues...)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.Status(r.Context())
	if err != nil {
		log.Printf("[API] Status failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to compare draft and live")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(state)})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Publish(r.Context()); err != nil {
		if errors.Is(err, store.ErrPublishFailed) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":     err.Error(),
				"retryable": true,
			})
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(store.Clean)})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DiscardDraft(r.Context()); err != nil {
		log.Printf("[API] Discard failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to discard draft")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(store.Clean)})
}

// handleRender serves both the authenticated API route and the
// session-gated preview route.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var blocks, footer []storefront.Block
	var err error
	if len(req.Blocks) > 0 {
		if blocks, _, err = parseBody(req.Blocks); err != nil {
			writeJSONError(w, http.StatusBadRequest, "blocks: "+err.Error())
			return
		}
	}
	if len(req.Footer) > 0 {
		if footer, _, err = parseBody(req.Footer); err != nil {
			writeJSONError(w, http.StatusBadRequest, "footer: "+err.Error())
			return
		}
	}

	var theme style.Theme
	if req.Config != nil {
		theme = *req.Config
	}
	theme = s.effectiveTheme(theme)
	rc := render.ContextFrom(s.catalog.SnapshotOrEmpty(r.Context()), theme, render.Admin)

	writeJSON(w, http.StatusOK, RenderResponse{
		Home:      string(render.RenderPage(s.renderer.RenderBlocks(blocks, rc))),
		Footer:    string(render.RenderPage(s.renderer.RenderFooter(footer, rc))),
		ThemeVars: string(theme.CSSVars()),
	})
}

func (s *Server) handleConvertNewsletter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("publish")
	publish := q == "1" || strings.EqualFold(q, "true")
	if publish && !HasPermission(r, PermPublish) {
		writeJSONError(w, http.StatusForbidden, "insufficient permissions: publish required")
		return
	}

	n, err := s.store.ConvertNewsletter(r.Context(), publish)
	if err != nil {
		if errors.Is(err, store.ErrPublishFailed) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":     err.Error(),
				"retryable": true,
			})
			return
		}
		log.Printf("[API] Newsletter conversion failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "newsletter conversion failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"converted": n, "published": publish})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := preview.NewSessionID()
	s.sessions.Set(id, id, sessionTTL)
	if s.debug {
		log.Printf("[Preview] Session %s created", id)
	}
	writeJSON(w, http.StatusCreated, SessionResponse{
		Session:    id,
		PreviewURL: "/admin/preview?session=" + id,
		WSURL:      "/admin/preview/ws?session=" + id,
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	snap, err := s.catalog.Snapshot(r.Context())
	if err != nil {
		log.Printf("[API] Catalog snapshot failed: %v", err)
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBlockTypes(w http.ResponseWriter, r *http.Request) {
	type blockType struct {
		Type           storefront.BlockType `json:"type"`
		DefaultVariant string               `json:"defaultVariant,omitempty"`
	}
	types := storefront.BlockTypes()
	out := make([]blockType, len(types))
	for i, t := range types {
		out[i] = blockType{Type: t, DefaultVariant: storefront.DefaultVariant(t)}
	}
	writeJSON(w, http.StatusOK, out)
}

// recordResponse parses a record's layouts for the API. A document that
// cannot be parsed is reported as an issue with the default layout in its
// place.
func recordResponse(rec *store.Record) RecordResponse {
	resp := RecordResponse{Record: rec, Slot: rec.Slot.String()}
	var issues []string
	resp.Blocks, issues = parseStored(rec.HomeLayout, storefront.DefaultHomeLayout())
	resp.Issues = append(resp.Issues, issues...)
	resp.Footer, issues = parseStored(rec.FooterLayout, storefront.DefaultFooterLayout())
	resp.Issues = append(resp.Issues, issues...)
	return resp
}

func parseStored(doc string, fallback []storefront.Block) ([]storefront.Block, []string) {
	res, err := storefront.ParseBlocksDetailed(doc)
	if err != nil {
		return fallback, []string{err.Error()}
	}
	return res.Blocks, issueStrings(res.Issues)
}

// parseBody parses a posted block array with the same leniency as stored
// documents.
func parseBody(raw json.RawMessage) ([]storefront.Block, []string, error) {
	res, err := storefront.ParseBlocksDetailed(string(raw))
	if err != nil {
		return nil, nil, err
	}
	return res.Blocks, issueStrings(res.Issues), nil
}

func issueStrings(issues []storefront.ParseIssue) []string {
	if len(issues) == 0 {
		return nil
	}
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.String()
	}
	return out
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
