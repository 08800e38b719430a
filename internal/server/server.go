// Package server serves the live storefront, the editor's preview surface
// and the admin API over the config store.
package server

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/assets"
	"github.com/livetemplate/storefront/internal/cache"
	"github.com/livetemplate/storefront/internal/catalog"
	"github.com/livetemplate/storefront/internal/config"
	"github.com/livetemplate/storefront/internal/preview"
	"github.com/livetemplate/storefront/internal/render"
	"github.com/livetemplate/storefront/internal/source"
	"github.com/livetemplate/storefront/internal/store"
	"github.com/livetemplate/storefront/internal/style"
)

const (
	// pageTTL bounds how long a rendered home page is reused. Store and
	// catalog changes invalidate earlier.
	pageTTL = 5 * time.Minute

	sessionTTL = 12 * time.Hour
	// maxSessions bounds open preview sessions; the oldest is dropped first.
	maxSessions = 1000

	// maxClients caps the rate limiter's per-IP table.
	maxClients = 10000
)

// Options configures a Server. Store is required; a nil Registry means no
// catalog feeds and a nil Renderer uses the default templates.
type Options struct {
	Config   *config.Config
	Store    *store.ConfigStore
	Registry *source.Registry
	Renderer *render.Renderer
}

// Server is the storefront HTTP server.
type Server struct {
	cfg      *config.Config
	store    *store.ConfigStore
	registry *source.Registry
	catalog  *catalog.Provider
	renderer *render.Renderer
	hub      *preview.Hub
	debug    bool

	pages    *cache.MemoryCache[[]byte]
	sessions *cache.MemoryCache[string]

	handler       http.Handler
	watcher       *Watcher
	stopRateLimit func()
	httpServer    *http.Server
}

// New wires the routes and middleware.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("server: a config store is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	registry := opts.Registry
	if registry == nil {
		var err error
		if registry, err = source.NewRegistry(config.CatalogConfig{}); err != nil {
			return nil, err
		}
	}

	renderer := opts.Renderer
	if renderer == nil {
		var err error
		if renderer, err = render.New(render.Options{}); err != nil {
			return nil, err
		}
	}

	debug := cfg.Server.Debug || config.IsDebug()
	s := &Server{
		cfg:      cfg,
		store:    opts.Store,
		registry: registry,
		catalog:  catalog.NewProvider(registry),
		renderer: renderer,
		hub:      preview.NewHub(debug),
		debug:    debug,
		pages:    cache.NewMemoryCache[[]byte](),
		sessions: cache.New[string](cache.Options{MaxEntries: maxSessions}),
	}

	s.store.OnChange(func(slot store.Slot) {
		if slot == store.Live {
			s.pages.InvalidateAll()
			if s.debug {
				log.Printf("[Server] Live config changed, page cache cleared")
			}
		}
	})

	s.handler = s.routes()
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /admin/api/draft", s.handleGetDraft)
	api.HandleFunc("PUT /admin/api/draft", s.handlePutDraft)
	api.HandleFunc("GET /admin/api/live", s.handleGetLive)
	api.HandleFunc("GET /admin/api/status", s.handleStatus)
	api.HandleFunc("POST /admin/api/publish", RequirePermission(PermPublish, s.handlePublish))
	api.HandleFunc("POST /admin/api/discard", RequirePermission(PermPublish, s.handleDiscard))
	api.HandleFunc("POST /admin/api/render", s.handleRender)
	api.HandleFunc("POST /admin/api/newsletter/convert", s.handleConvertNewsletter)
	api.HandleFunc("POST /admin/api/preview/session", s.handleCreateSession)
	api.HandleFunc("GET /admin/api/catalog", s.handleCatalog)
	api.HandleFunc("GET /admin/api/block-types", s.handleBlockTypes)

	apiCfg := s.cfg.API
	rateLimit, stop := RateLimitMiddleware(apiCfg.GetRateLimitRPS(), apiCfg.GetRateLimitBurst(), maxClients)
	s.stopRateLimit = stop

	var authCfg *config.AuthConfig
	if apiCfg != nil {
		authCfg = apiCfg.Auth
	}
	var apiHandler http.Handler = api
	apiHandler = MethodPermissionMiddleware()(apiHandler)
	apiHandler = AuthMiddleware(authCfg)(apiHandler)
	apiHandler = CORSMiddleware(apiCfg.GetCORSOrigins(), authCfg.GetHeaderName())(apiHandler)
	apiHandler = rateLimit(apiHandler)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServerFS(assets.ClientFS())))
	mux.HandleFunc("GET /admin/preview", s.withSession(s.handlePreviewPage))
	mux.HandleFunc("GET /admin/preview/ws", s.withSession(s.hub.ServeHTTP))
	mux.HandleFunc("POST /admin/preview/render", s.withSession(s.handleRender))
	mux.Handle("/admin/api/", apiHandler)

	return SecurityHeadersMiddleware()(WithCompression(mux))
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
}

// ListenAndServe blocks until the server stops. It returns nil after a
// graceful Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	log.Printf("[Server] Listening on http://%s", ln.Addr())
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes preview connections and stops
// background work. The store and registry belong to the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.hub.Close()
	if werr := s.StopWatch(); werr != nil {
		log.Printf("[Watch] Stop failed: %v", werr)
	}
	s.stopRateLimit()
	s.pages.Stop()
	s.sessions.Stop()
	log.Printf("[Server] Stopped")
	return err
}

// EnableWatch reloads catalog feeds and drops cached pages when files under
// dir change.
func (s *Server) EnableWatch(dir string) error {
	w, err := NewWatcher(dir, s.catalogChanged, s.debug)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	s.watcher = w
	s.watcher.Start()
	log.Printf("[Watch] Catalog watcher started for %s", dir)
	return nil
}

// StopWatch stops the catalog watcher if it is running.
func (s *Server) StopWatch() error {
	if s.watcher != nil {
		return s.watcher.Stop()
	}
	return nil
}

func (s *Server) catalogChanged(path string) {
	log.Printf("[Watch] Catalog file changed: %s", path)
	s.registry.InvalidateAll()
	s.pages.InvalidateAll()
}

// withSession rejects requests whose ?session is not a live preview session.
func (s *Server) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("session")
		if _, ok, _ := s.sessions.Get(id); id == "" || !ok {
			http.NotFound(w, r)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	live, err := s.store.GetLive(r.Context())
	if err != nil {
		log.Printf("[Server] Failed to load live config: %v", err)
		http.Error(w, "storefront unavailable", http.StatusInternalServerError)
		return
	}

	key := "home:v" + strconv.FormatInt(live.Version, 10)
	if body, ok, _ := s.pages.Get(key); ok {
		writeHTML(w, body)
		return
	}

	body, err := s.renderRecord(r.Context(), live, render.Storefront, "")
	if err != nil {
		log.Printf("[Render] Home page failed: %v", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	s.pages.Set(key, body, pageTTL)
	writeHTML(w, body)
}

// handlePreviewPage serves the render surface the editor frames. It starts
// from the saved draft and follows the editor once the relay delivers init.
func (s *Server) handlePreviewPage(w http.ResponseWriter, r *http.Request) {
	draft, err := s.store.GetDraft(r.Context())
	if err != nil {
		log.Printf("[Preview] Failed to load draft: %v", err)
		http.Error(w, "draft unavailable", http.StatusInternalServerError)
		return
	}
	body, err := s.renderRecord(r.Context(), draft, render.Admin, r.URL.Query().Get("session"))
	if err != nil {
		log.Printf("[Render] Preview page failed: %v", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeHTML(w, body)
}

// renderRecord renders a stored record as a full page. A non-empty session
// marks the page as a preview surface.
func (s *Server) renderRecord(ctx context.Context, rec *store.Record, mode render.Mode, session string) ([]byte, error) {
	home := storefront.ParseBlocksOrDefault(rec.HomeLayout, storefront.DefaultHomeLayout())
	footer := storefront.ParseBlocksOrDefault(rec.FooterLayout, storefront.DefaultFooterLayout())
	theme := s.effectiveTheme(rec.Theme)

	var buf bytes.Buffer
	err := s.renderer.RenderDocument(&buf, render.Document{
		Title:   s.cfg.Title,
		Home:    home,
		Footer:  footer,
		Context: render.ContextFrom(s.catalog.SnapshotOrEmpty(ctx), theme, mode),
		Preview: session != "",
		Session: session,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// effectiveTheme layers the configured seed theme and t over the defaults.
func (s *Server) effectiveTheme(t style.Theme) style.Theme {
	return style.DefaultTheme().Merge(s.cfg.Theme).Merge(t).WithDefaults()
}

func writeHTML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(body)
}
