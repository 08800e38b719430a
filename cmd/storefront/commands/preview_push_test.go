package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/config"
	"github.com/livetemplate/storefront/internal/preview"
	"github.com/livetemplate/storefront/internal/server"
	"github.com/livetemplate/storefront/internal/store"
)

// lockedBuffer is a bytes.Buffer safe to read while a command writes to it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestReadLayoutFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("bare array", func(t *testing.T) {
		path := filepath.Join(dir, "array.json")
		writeFile(t, path, `[{"id":"gap","type":"spacer","content":{"height":"24px"}}]`)
		lf, err := readLayoutFile(path)
		require.NoError(t, err)
		require.Len(t, lf.Blocks, 1)
		assert.Equal(t, storefront.DefaultFooterLayout(), lf.Footer)
		assert.NotEmpty(t, lf.Theme.ThemeColor)
	})

	t.Run("document with footer and config", func(t *testing.T) {
		path := filepath.Join(dir, "doc.json")
		writeFile(t, path, `{
			"blocks": [{"id":"a","type":"spacer","content":{}}, {"type":"spacer"}],
			"footer": [{"id":"f","type":"text","content":{"title":"Hi"}}],
			"config": {"themeColor":"#ff0000"}
		}`)
		lf, err := readLayoutFile(path)
		require.NoError(t, err)
		assert.Len(t, lf.Blocks, 1)
		require.Len(t, lf.Footer, 1)
		assert.Equal(t, "f", lf.Footer[0].ID)
		assert.Equal(t, "#ff0000", lf.Theme.ThemeColor)
		assert.Len(t, lf.Issues, 1)
	})

	t.Run("errors", func(t *testing.T) {
		for name, content := range map[string]string{
			"malformed": `{"blocks": [`,
			"no blocks": `{"footer": []}`,
			"not array": `{"blocks": {"id": "x"}}`,
		} {
			path := filepath.Join(dir, name+".json")
			writeFile(t, path, content)
			_, err := readLayoutFile(path)
			assert.Error(t, err, name)
		}
		_, err := readLayoutFile(filepath.Join(dir, "missing.json"))
		assert.Error(t, err)
	})
}

// startServer runs a storefront server over an in-memory store.
func startServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	cs := store.New(store.NewMemoryBackend(), store.Options{})
	t.Cleanup(func() { cs.Close() })
	srv, err := server.New(server.Options{Config: cfg, Store: cs})
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return hs
}

func TestWaitForInit(t *testing.T) {
	editorEnd, surfaceEnd := preview.NewMemoryPair()
	editor := preview.NewEditor(editorEnd)
	require.NoError(t, editor.SetInitial(context.Background(), preview.InitPayload{}))

	err := waitForInit(context.Background(), editor, nil, 100*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not report ready")

	surface := preview.NewSurface(surfaceEnd, nil)
	require.NoError(t, surface.Mount(context.Background()))
	assert.NoError(t, waitForInit(context.Background(), editor, nil, time.Second))

	closed := make(chan struct{})
	close(closed)
	lonely, _ := preview.NewMemoryPair()
	fresh := preview.NewEditor(lonely)
	assert.Error(t, waitForInit(context.Background(), fresh, closed, 0))
}

func TestPreviewPushEndToEnd(t *testing.T) {
	hs := startServer(t, nil)

	resp, err := http.Post(hs.URL+"/admin/api/preview/session", "application/json", nil)
	require.NoError(t, err)
	var sess server.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	resp.Body.Close()

	layoutPath := filepath.Join(t.TempDir(), "layout.json")
	writeFile(t, layoutPath, `{"blocks":[{"id":"promo","type":"text","content":{"title":"Autumn sale"}}],"config":{"themeColor":"#123456"}}`)

	a := &app{v: viper.New()}
	cfg := config.DefaultConfig()
	cfg.Preview.UpdatesPerSecond = 50
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out lockedBuffer
	errc := make(chan error, 1)
	go func() {
		errc <- a.previewPush(ctx, &out, cfg, pushOptions{
			baseURL: hs.URL,
			session: sess.Session,
			file:    layoutPath,
			timeout: 5 * time.Second,
			watch:   true,
		})
	}()

	// Join as the browser surface would.
	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http") + sess.WSURL + "&role=" + preview.RoleSurface
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	ch := preview.NewWSChannel(conn)
	defer ch.Close()
	surface := preview.NewSurface(ch, nil)
	require.NoError(t, surface.Mount(ctx))

	// Ready is dropped if the editor has not joined yet, so keep announcing.
	require.Eventually(t, func() bool {
		if surface.State().Initialized {
			return true
		}
		ch.Send(ctx, preview.Envelope{Type: preview.TypeReady})
		return false
	}, 5*time.Second, 50*time.Millisecond)

	state := surface.State()
	require.Len(t, state.Blocks, 1)
	assert.Equal(t, "promo", state.Blocks[0].ID)
	assert.Equal(t, "#123456", state.Config.ThemeColor)
	assert.Equal(t, "home", state.ActivePage)
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "Pushed 1 blocks") }, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, surface.ClickBlock(ctx, "promo"))
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "Block selected: promo") }, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Watching") }, 2*time.Second, 20*time.Millisecond)
	writeFile(t, layoutPath, `[{"id":"promo","type":"text","content":{"title":"Winter sale"}},{"id":"gap","type":"spacer","content":{}}]`)
	assert.Eventually(t, func() bool {
		s := surface.State()
		return len(s.Blocks) == 2 && s.Blocks[1].ID == "gap"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("preview-push did not return after cancel")
	}
}

func TestPreviewPushCreatesSession(t *testing.T) {
	hs := startServer(t, nil)

	layoutPath := filepath.Join(t.TempDir(), "layout.json")
	writeFile(t, layoutPath, `[]`)

	a := &app{v: viper.New()}
	var out lockedBuffer
	err := a.previewPush(context.Background(), &out, config.DefaultConfig(), pushOptions{
		baseURL: hs.URL,
		file:    layoutPath,
		timeout: 200 * time.Millisecond,
	})
	require.Error(t, err, "no surface ever joins")
	assert.Contains(t, out.String(), "Preview: "+hs.URL+"/admin/preview?session=")
}

func TestPreviewPushRequiresKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API = &config.APIConfig{Auth: &config.AuthConfig{APIKey: "secret"}}
	hs := startServer(t, cfg)

	layoutPath := filepath.Join(t.TempDir(), "layout.json")
	writeFile(t, layoutPath, `[]`)

	a := &app{v: viper.New()}
	err := a.previewPush(context.Background(), &lockedBuffer{}, cfg, pushOptions{baseURL: hs.URL, file: layoutPath})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preview session")

	a.v.Set(keyAPIKey, "secret")
	err = a.previewPush(context.Background(), &lockedBuffer{}, cfg, pushOptions{
		baseURL: hs.URL, file: layoutPath, timeout: 100 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not report ready", "authorized, so it got as far as waiting")
}
