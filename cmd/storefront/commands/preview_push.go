package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/catalog"
	"github.com/livetemplate/storefront/internal/config"
	"github.com/livetemplate/storefront/internal/preview"
	"github.com/livetemplate/storefront/internal/server"
	"github.com/livetemplate/storefront/internal/style"
)

type pushOptions struct {
	baseURL string
	session string
	file    string
	timeout time.Duration
	watch   bool
}

func (a *app) previewPushCmd() *cobra.Command {
	var opts pushOptions
	cmd := &cobra.Command{
		Use:   "preview-push",
		Short: "Push a layout file into a preview session as a headless editor",
		Long: `Preview-push joins a preview session as the editor and sends the layout in
--file to the render surface once it reports ready. The file is either a
JSON block array or an object {"blocks": [...], "footer": [...], "config": {...}}.

Without --session a new session is created and its preview URL printed; open
it in a browser to see the layout. Clicks on blocks in the preview are
printed. With --watch, edits to the file are pushed as throttled updates.`,
		Example: `  storefront preview-push --file layout.json
  storefront preview-push --url https://shop.example --key $ADMIN_KEY --file layout.json --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.previewPush(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "url", "http://localhost:8080", "storefront server URL")
	f.StringVar(&opts.session, "session", "", "preview session id (default: create one)")
	f.StringVarP(&opts.file, "file", "f", "", "layout file to push")
	f.String("key", "", "admin API key")
	f.DurationVar(&opts.timeout, "timeout", 0, "give up if the surface is not ready in time (0 waits until interrupted)")
	f.BoolVarP(&opts.watch, "watch", "w", false, "push file changes as updates")
	cmd.MarkFlagRequired("file")
	a.bind(keyAPIKey, f.Lookup("key"))
	return cmd
}

func (a *app) previewPush(ctx context.Context, w io.Writer, cfg *config.Config, opts pushOptions) error {
	out := &syncWriter{w: w}
	layout, err := readLayoutFile(opts.file)
	if err != nil {
		return err
	}
	for _, issue := range layout.Issues {
		fmt.Fprintf(out, "⚠️  %s: %s\n", opts.file, issue)
	}

	var auth *config.AuthConfig
	if cfg.API != nil {
		auth = cfg.API.Auth
	}
	client := &adminClient{
		base:   strings.TrimRight(opts.baseURL, "/"),
		header: auth.GetHeaderName(),
		key:    a.v.GetString(keyAPIKey),
		http:   &http.Client{Timeout: 10 * time.Second},
	}

	session := opts.session
	if session == "" {
		sess, err := client.createSession(ctx)
		if err != nil {
			return err
		}
		session = sess.Session
		fmt.Fprintf(out, "🔗 Preview: %s%s\n", client.base, sess.PreviewURL)
	}

	snap, err := client.catalog(ctx)
	if err != nil {
		fmt.Fprintf(out, "⚠️  Catalog unavailable, previewing without it: %v\n", err)
		snap = catalog.Empty()
	}

	ch, err := preview.DialEditor(ctx, client.base+"/admin/preview/ws?session="+url.QueryEscape(session))
	if err != nil {
		return err
	}
	editor := preview.NewEditor(ch)
	defer editor.Close()
	editor.OnBlockClick(func(id string) {
		fmt.Fprintf(out, "👆 Block selected: %s\n", id)
	})
	editor.OnSectionClick(func(name string) {
		fmt.Fprintf(out, "👆 Section selected: %s\n", name)
	})

	if err := editor.SetInitial(ctx, layout.init(snap)); err != nil {
		return err
	}
	fmt.Fprintf(out, "⏳ Waiting for the preview surface in session %s\n", session)
	if err := waitForInit(ctx, editor, ch.Done(), opts.timeout); err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Pushed %d blocks, %d footer blocks\n", len(layout.Blocks), len(layout.Footer))

	var changes <-chan struct{}
	if opts.watch {
		throttler := preview.NewThrottler(editor, cfg.Preview.GetUpdatesPerSecond(), cfg.Preview.GetBurst())
		defer throttler.Stop()

		fileChanges, stopWatch, err := watchFile(opts.file)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", opts.file, err)
		}
		defer stopWatch()
		changes = fileChanges
		fmt.Fprintf(out, "👀 Watching %s\n", opts.file)

		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			throttler.Flush(flushCtx)
		}()
		go func() {
			for range changes {
				next, err := readLayoutFile(opts.file)
				if err != nil {
					fmt.Fprintf(out, "⚠️  Keeping previous layout: %v\n", err)
					continue
				}
				throttler.Update(next.update())
				fmt.Fprintf(out, "🔄 Updated %d blocks\n", len(next.Blocks))
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case <-ch.Done():
		return fmt.Errorf("preview connection closed by the server")
	}
}

// waitForInit blocks until the editor has sent its init. A zero timeout
// waits until ctx ends.
func waitForInit(ctx context.Context, e *preview.Editor, closed <-chan struct{}, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for !e.InitSent() {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("preview surface did not report ready within %s", timeout)
			}
			return ctx.Err()
		case <-closed:
			return fmt.Errorf("preview connection closed before the surface was ready")
		case <-tick.C:
		}
	}
	return nil
}

// layoutFile is a parsed --file.
type layoutFile struct {
	Blocks []storefront.Block
	Footer []storefront.Block
	Theme  style.Theme
	Issues []storefront.ParseIssue
}

func readLayoutFile(path string) (*layoutFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout file: %w", err)
	}

	var doc struct {
		Blocks json.RawMessage `json:"blocks"`
		Footer json.RawMessage `json:"footer"`
		Config *style.Theme    `json:"config"`
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		doc.Blocks = trimmed
	} else if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%s: expected a block array or {blocks, footer, config}: %w", path, err)
	}

	home, err := storefront.ParseBlocksDetailed(string(doc.Blocks))
	if err != nil {
		return nil, fmt.Errorf("%s: blocks: %w", path, err)
	}
	lf := &layoutFile{
		Blocks: home.Blocks,
		Footer: storefront.DefaultFooterLayout(),
		Theme:  style.DefaultTheme(),
		Issues: home.Issues,
	}
	if len(doc.Footer) > 0 {
		footer, err := storefront.ParseBlocksDetailed(string(doc.Footer))
		if err != nil {
			return nil, fmt.Errorf("%s: footer: %w", path, err)
		}
		lf.Footer = footer.Blocks
		lf.Issues = append(lf.Issues, footer.Issues...)
	}
	if doc.Config != nil {
		lf.Theme = lf.Theme.Merge(*doc.Config)
	}
	lf.Theme = lf.Theme.WithDefaults()
	return lf, nil
}

func (lf *layoutFile) init(snap *catalog.Snapshot) preview.InitPayload {
	return preview.InitPayload{
		Config:     lf.Theme,
		Blocks:     lf.Blocks,
		Footer:     lf.Footer,
		ActivePage: "home",
		Products:   snap.Products,
		Categories: snap.Categories,
		Brands:     snap.Brands,
		Menus:      snap.Menus,
		Banners:    snap.Banners,
	}
}

func (lf *layoutFile) update() preview.UpdatePayload {
	theme, blocks, footer := lf.Theme, lf.Blocks, lf.Footer
	return preview.UpdatePayload{Config: &theme, Blocks: &blocks, Footer: &footer}
}

// watchFile reports writes to path. The parent directory is watched so
// editors that save by rename are still seen.
func watchFile(path string) (<-chan struct{}, func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, nil, err
	}

	changes := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(changes)
		for {
			select {
			case <-done:
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				select {
				case changes <- struct{}{}:
				default:
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				fmt.Fprintf(os.Stderr, "[Watch] Error: %v\n", err)
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			fw.Close()
		})
	}
	return changes, stop, nil
}

// adminClient calls the admin API of a running server.
type adminClient struct {
	base   string
	header string
	key    string
	http   *http.Client
}

func (c *adminClient) createSession(ctx context.Context) (*server.SessionResponse, error) {
	var sess server.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/admin/api/preview/session", &sess); err != nil {
		return nil, fmt.Errorf("failed to create preview session: %w", err)
	}
	return &sess, nil
}

func (c *adminClient) catalog(ctx context.Context) (*catalog.Snapshot, error) {
	var snap catalog.Snapshot
	if err := c.do(ctx, http.MethodGet, "/admin/api/catalog", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *adminClient) do(ctx context.Context, method, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.key != "" {
		key := c.key
		if strings.EqualFold(c.header, "Authorization") {
			key = "Bearer " + key
		}
		req.Header.Set(c.header, key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// syncWriter serializes writes from click handlers and the watch loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
