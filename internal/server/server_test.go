package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/catalog"
	"github.com/livetemplate/storefront/internal/config"
	"github.com/livetemplate/storefront/internal/preview"
	"github.com/livetemplate/storefront/internal/source"
	"github.com/livetemplate/storefront/internal/store"
)

type staticFeed struct {
	name string
	rows source.Rows
}

func (f *staticFeed) Name() string                                  { return f.name }
func (f *staticFeed) Fetch(ctx context.Context) (source.Rows, error) { return f.rows, nil }
func (f *staticFeed) Close() error                                  { return nil }

type testServer struct {
	*Server
	backend *store.MemoryBackend
	store   *store.ConfigStore
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	registry, err := source.NewRegistry(config.CatalogConfig{})
	require.NoError(t, err)
	registry.Register(&staticFeed{name: catalog.FeedProducts, rows: source.Rows{
		{"id": "p1", "name": "Ceramic Mug", "price": 12.5, "featured": true},
		{"id": "p2", "name": "Linen Apron", "price": 30.0},
	}})
	registry.Register(&staticFeed{name: catalog.FeedMenus, rows: source.Rows{
		{"id": "main", "items": []any{map[string]any{"label": "Shop", "url": "/products", "order": 1}}},
	}})

	backend := store.NewMemoryBackend()
	cs := store.New(backend, store.Options{})
	srv, err := New(Options{Config: cfg, Store: cs, Registry: registry})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		registry.Close()
		cs.Close()
	})
	return &testServer{Server: srv, backend: backend, store: cs}
}

func (ts *testServer) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	r.RemoteAddr = "192.0.2.1:4000"
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

const heroDraft = `{"blocks":[{"id":"hero-main","type":"hero","content":{"slides":[{"id":"s1","title":"Autumn sale"}]}}]}`

func TestHomeServesSeededLiveLayout(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, body, `data-block-id="hero-main"`)
	assert.Contains(t, body, "Welcome to our store")
	assert.Contains(t, body, `data-product-id="p1"`, "featured products resolve against the catalog")
	assert.NotContains(t, body, `data-product-id="p2"`)
	assert.Contains(t, body, "Shop")
	assert.NotContains(t, body, "preview.js")
}

func TestHomeFallsBackOnCorruptLayout(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	live, err := ts.store.GetLive(ctx)
	require.NoError(t, err)
	live.HomeLayout = `{"not":"an array"}`
	live.Version++
	require.NoError(t, ts.backend.Save(ctx, live))

	w := ts.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Welcome to our store")
}

func TestDraftPublishWorkflow(t *testing.T) {
	ts := newTestServer(t, nil)

	assert.Contains(t, ts.do(t, http.MethodGet, "/", "").Body.String(), "Welcome to our store")

	w := ts.do(t, http.MethodPut, "/admin/api/draft", heroDraft)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	draft := decode[RecordResponse](t, w)
	assert.Equal(t, "draft", draft.Slot)
	require.Len(t, draft.Blocks, 1)
	assert.Equal(t, "hero-main", draft.Blocks[0].ID)
	assert.NotEmpty(t, draft.Footer, "footer is kept when not sent")

	status := decode[map[string]string](t, ts.do(t, http.MethodGet, "/admin/api/status", ""))
	assert.Equal(t, "dirty", status["status"])

	// The storefront keeps serving live until publish.
	assert.NotContains(t, ts.do(t, http.MethodGet, "/", "").Body.String(), "Autumn sale")

	w = ts.do(t, http.MethodPost, "/admin/api/publish", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	status = decode[map[string]string](t, ts.do(t, http.MethodGet, "/admin/api/status", ""))
	assert.Equal(t, "clean", status["status"])

	home := ts.do(t, http.MethodGet, "/", "").Body.String()
	assert.Contains(t, home, "Autumn sale")
	assert.NotContains(t, home, "featured-products")

	live := decode[RecordResponse](t, ts.do(t, http.MethodGet, "/admin/api/live", ""))
	assert.Equal(t, "live", live.Slot)
	assert.Len(t, live.Blocks, 1)
}

func TestPutDraftValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"blocks":`},
		{"missing blocks", `{"config":{"themeColor":"#ff0000"}}`},
		{"blocks not an array", `{"blocks":{"id":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPut, "/admin/api/draft", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestPutDraftReportsDroppedElements(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPut, "/admin/api/draft",
		`{"blocks":[{"type":"spacer","content":{}},{"id":"gap","type":"spacer","content":{"height":"24px"}}],"config":{"themeColor":"#ff0000"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[RecordResponse](t, w)
	require.Len(t, resp.Blocks, 1)
	assert.Equal(t, "gap", resp.Blocks[0].ID)
	assert.Len(t, resp.Issues, 1)
	assert.Equal(t, "#ff0000", resp.Theme.ThemeColor)
}

func TestPublishFailureIsRetryable(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/admin/api/draft", heroDraft).Code)

	ts.backend.FailCopy(errors.New("disk full"))
	w := ts.do(t, http.MethodPost, "/admin/api/publish", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, true, body["retryable"])
	assert.Contains(t, body["error"], "disk full")

	assert.NotContains(t, ts.do(t, http.MethodGet, "/", "").Body.String(), "Autumn sale")

	ts.backend.FailCopy(nil)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/admin/api/publish", "").Code)
	assert.Contains(t, ts.do(t, http.MethodGet, "/", "").Body.String(), "Autumn sale")
}

func TestDiscardRestoresLive(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/admin/api/draft", heroDraft).Code)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/admin/api/discard", "").Code)
	draft := decode[RecordResponse](t, ts.do(t, http.MethodGet, "/admin/api/draft", ""))
	assert.Equal(t, "featured-products", draft.Blocks[1].ID)
	status := decode[map[string]string](t, ts.do(t, http.MethodGet, "/admin/api/status", ""))
	assert.Equal(t, "clean", status["status"])
}

func TestRenderAPI(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/admin/api/render",
		`{"blocks":[{"id":"grid","type":"product-grid","content":{"collectionType":"all"}},{"id":"x","type":"carousel-3d","content":{}}],"config":{"themeColor":"#123456"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[RenderResponse](t, w)
	assert.Contains(t, resp.Home, `data-product-id="p2"`)
	assert.Contains(t, resp.Home, "Unknown block type", "admin mode shows a placeholder")
	assert.Empty(t, resp.Footer)
	assert.Contains(t, resp.ThemeVars, "#123456")

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/admin/api/render", `{"blocks":"nope"}`).Code)
}

func TestNewsletterConvert(t *testing.T) {
	ts := newTestServer(t, nil)
	legacy := `<form><input type="email" placeholder="Email"><button>Join</button></form>`
	body, err := json.Marshal(map[string]any{"blocks": []storefront.Block{
		{ID: "signup", Type: storefront.TypeHTML, Content: storefront.HTMLContent{HTML: legacy}},
	}})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/admin/api/draft", string(body)).Code)

	w := ts.do(t, http.MethodPost, "/admin/api/newsletter/convert?publish=1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[map[string]any](t, w)
	assert.EqualValues(t, 1, resp["converted"])
	assert.Equal(t, true, resp["published"])

	live := decode[RecordResponse](t, ts.do(t, http.MethodGet, "/admin/api/live", ""))
	require.Len(t, live.Blocks, 1)
	assert.Equal(t, storefront.TypeNewsletter, live.Blocks[0].Type)
}

func TestCatalogAndBlockTypes(t *testing.T) {
	ts := newTestServer(t, nil)

	snap := decode[catalog.Snapshot](t, ts.do(t, http.MethodGet, "/admin/api/catalog", ""))
	assert.Len(t, snap.Products, 2)
	assert.Empty(t, snap.Banners)

	types := decode[[]map[string]string](t, ts.do(t, http.MethodGet, "/admin/api/block-types", ""))
	assert.Len(t, types, len(storefront.BlockTypes()))
}

func TestAssetsAreServed(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, name := range []string{"storefront.css", "preview.js"} {
		w := ts.do(t, http.MethodGet, "/assets/"+name, "")
		assert.Equal(t, http.StatusOK, w.Code, name)
		assert.NotEmpty(t, w.Body.String(), name)
	}
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/assets/missing.js", "").Code)
}

func authConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.API = &config.APIConfig{Auth: &config.AuthConfig{APIKeys: map[string]*config.APIKeyConfig{
		"editor": {Key: "editor-key", Permissions: []string{PermRead, PermWrite}},
		"owner":  {Key: "owner-key"},
	}}}
	return cfg
}

func TestAdminAPIRequiresKeys(t *testing.T) {
	ts := newTestServer(t, authConfig())

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/admin/api/draft", "").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/admin/api/draft", "", "X-API-Key", "editor-key").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/admin/api/draft", heroDraft, "X-API-Key", "editor-key").Code)

	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/admin/api/publish", "", "X-API-Key", "editor-key").Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/admin/api/discard", "", "X-API-Key", "editor-key").Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/admin/api/newsletter/convert?publish=1", "", "X-API-Key", "editor-key").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/admin/api/newsletter/convert", "", "X-API-Key", "editor-key").Code)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/admin/api/publish", "", "X-API-Key", "owner-key").Code)

	// The public storefront is never gated.
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/", "").Code)
}

func TestPreviewRoutesAreSessionGated(t *testing.T) {
	ts := newTestServer(t, authConfig())

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/admin/preview", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/admin/preview?session=guess", "").Code)

	w := ts.do(t, http.MethodPost, "/admin/api/preview/session", "", "X-API-Key", "editor-key")
	require.Equal(t, http.StatusCreated, w.Code)
	sess := decode[SessionResponse](t, w)
	require.NotEmpty(t, sess.Session)
	assert.Equal(t, "/admin/preview?session="+sess.Session, sess.PreviewURL)

	w = ts.do(t, http.MethodGet, sess.PreviewURL, "")
	require.Equal(t, http.StatusOK, w.Code)
	page := w.Body.String()
	assert.Contains(t, page, "/assets/preview.js")
	assert.Contains(t, page, sess.Session)
	assert.Contains(t, page, "sf-mode-admin")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	// The framed surface renders without an API key.
	w = ts.do(t, http.MethodPost, "/admin/preview/render?session="+sess.Session, heroDraft)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode[RenderResponse](t, w).Home, "Autumn sale")
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/admin/preview/render?session=guess", heroDraft).Code)
}

func TestPreviewRelayThroughServer(t *testing.T) {
	ts := newTestServer(t, nil)
	hs := httptest.NewServer(ts.Handler())
	defer hs.Close()

	sess := decode[SessionResponse](t, ts.do(t, http.MethodPost, "/admin/api/preview/session", ""))
	ctx := context.Background()

	_, err := preview.DialEditor(ctx, hs.URL+"/admin/preview/ws?session=unknown")
	require.Error(t, err)

	ch, err := preview.DialEditor(ctx, hs.URL+sess.WSURL)
	require.NoError(t, err)
	defer ch.Close()
	assert.Eventually(t, func() bool { return ts.hub.Sessions() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestCatalogWatchInvalidatesPages(t *testing.T) {
	ts := newTestServer(t, nil)
	dir := t.TempDir()
	require.NoError(t, ts.EnableWatch(dir))

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/", "").Code)
	require.Equal(t, 1, ts.pages.Len())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.json"), []byte(`[]`), 0644))
	assert.Eventually(t, func() bool { return ts.pages.Len() == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestShutdownWithoutListen(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, ts.Shutdown(ctx))
	// A second shutdown from cleanup is harmless.
	assert.NoError(t, ts.Shutdown(ctx))
}
