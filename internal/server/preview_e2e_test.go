//go:build !ci

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/storefront"
	"github.com/livetemplate/storefront/internal/preview"
	"github.com/livetemplate/storefront/internal/style"
)

// TestPreviewSurfaceInBrowser drives the real preview page: the editor
// connects over the relay, the browser renders init and updates, and a click
// on a block comes back to the editor as its id.
func TestPreviewSurfaceInBrowser(t *testing.T) {
	ts := newTestServer(t, nil)
	hs := httptest.NewServer(ts.Handler())
	defer hs.Close()

	w := ts.do(t, http.MethodPost, "/admin/api/preview/session", "")
	require.Equal(t, http.StatusCreated, w.Code)
	sess := decode[SessionResponse](t, w)

	ctx := context.Background()
	ch, err := preview.DialEditor(ctx, hs.URL+sess.WSURL)
	require.NoError(t, err)
	editor := preview.NewEditor(ch)
	defer editor.Close()

	clicks := make(chan string, 4)
	editor.OnBlockClick(func(id string) { clicks <- id })

	theme := style.DefaultTheme()
	theme.ThemeColor = "#0f766e"
	require.NoError(t, editor.SetInitial(ctx, preview.InitPayload{
		Config: theme,
		Blocks: []storefront.Block{
			{ID: "promo", Type: storefront.TypeText, Content: storefront.TextContent{Title: "Autumn sale"}},
		},
		Footer:     storefront.DefaultFooterLayout(),
		ActivePage: "home",
	}))

	browser, cleanup := setupDockerChrome(t, 60*time.Second)
	defer cleanup()

	var (
		mu       sync.Mutex
		jsErrors []string
	)
	chromedp.ListenTarget(browser, func(ev interface{}) {
		mu.Lock()
		defer mu.Unlock()
		switch ev := ev.(type) {
		case *runtime.EventExceptionThrown:
			jsErrors = append(jsErrors, ev.ExceptionDetails.Text)
		case *runtime.EventConsoleAPICalled:
			if ev.Type == runtime.APITypeError {
				jsErrors = append(jsErrors, "console error")
			}
		}
	})

	var heading, selected string
	err = chromedp.Run(browser,
		chromedp.Navigate(chromeURL(hs.URL)+sess.PreviewURL),
		chromedp.WaitVisible(`[data-block-id="promo"]`, chromedp.ByQuery),
		chromedp.Text(`[data-block-id="promo"]`, &heading, chromedp.ByQuery),
		chromedp.Click(`[data-block-id="promo"]`, chromedp.ByQuery),
		chromedp.AttributeValue(`[data-block-id="promo"]`, "class", &selected, nil, chromedp.ByQuery),
	)
	require.NoError(t, err)
	assert.True(t, editor.InitSent())
	assert.Contains(t, heading, "Autumn sale")
	assert.Contains(t, selected, "sf-selected")

	select {
	case id := <-clicks:
		assert.Equal(t, "promo", id)
	case <-time.After(5 * time.Second):
		t.Fatal("block click never reached the editor")
	}

	blocks := []storefront.Block{
		{ID: "winter", Type: storefront.TypeText, Content: storefront.TextContent{Title: "Winter sale"}},
	}
	require.NoError(t, editor.Update(ctx, preview.UpdatePayload{Blocks: &blocks}))

	var text string
	err = chromedp.Run(browser,
		chromedp.WaitVisible(`[data-block-id="winter"]`, chromedp.ByQuery),
		chromedp.Text(`#sf-home`, &text, chromedp.ByQuery),
	)
	require.NoError(t, err)
	assert.Contains(t, text, "Winter sale")
	assert.False(t, strings.Contains(text, "Autumn sale"))
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, jsErrors)
}
