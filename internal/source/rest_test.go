package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/storefront/internal/config"
)

func noRetry() config.SourceConfig {
	return config.SourceConfig{Retry: &config.RetryConfig{MaxRetries: 0}}
}

func serveJSON(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRestSourceRequiresURL(t *testing.T) {
	_, err := NewRestSource("products", "")
	var fe *FeedError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindConfig, fe.Kind)
	assert.Equal(t, "invalid url", fe.Op)
}

func TestRestSourceFetchShapes(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		resultPath string
		wantIDs    []any
	}{
		{"array", `[{"id":"p1"},{"id":"p2"}]`, "", []any{"p1", "p2"}},
		{"data wrapper", `{"data":[{"id":"p1"}]}`, "", []any{"p1"}},
		{"results wrapper", `{"results":[{"id":"p1"}]}`, "", []any{"p1"}},
		{"single object", `{"id":"p1"}`, "", []any{"p1"}},
		{"result path", `{"payload":{"items":[{"id":"p9"}]}}`, "payload.items", []any{"p9"}},
		{"empty", ``, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serveJSON(t, http.StatusOK, tt.body)
			cfg := noRetry()
			cfg.ResultPath = tt.resultPath

			src, err := NewRestSourceWithConfig("products", srv.URL, cfg)
			require.NoError(t, err)

			rows, err := src.Fetch(context.Background())
			require.NoError(t, err)
			var ids []any
			for _, r := range rows {
				ids = append(ids, r["id"])
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestRestSourceHTTPErrors(t *testing.T) {
	srv := serveJSON(t, http.StatusNotFound, `not here`)
	src, err := NewRestSourceWithConfig("products", srv.URL, noRetry())
	require.NoError(t, err)

	_, err = src.Fetch(context.Background())
	var fe *FeedError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindHTTP, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.EqualError(t, err, `catalog feed "products": HTTP 404: not here`)
}

func TestRestSourceRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"id":"p1"}]`))
	}))
	defer srv.Close()

	cfg := config.SourceConfig{Retry: &config.RetryConfig{MaxRetries: 3, BaseDelay: "1ms", MaxDelay: "5ms"}}
	src, err := NewRestSourceWithConfig("products", srv.URL, cfg)
	require.NoError(t, err)

	rows, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRestSourceInvalidJSON(t *testing.T) {
	srv := serveJSON(t, http.StatusOK, `{not json`)
	src, err := NewRestSourceWithConfig("products", srv.URL, noRetry())
	require.NoError(t, err)

	_, err = src.Fetch(context.Background())
	var fe *FeedError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindData, fe.Kind)
}

func TestRestSourceHeadersAndEnv(t *testing.T) {
	t.Setenv("CATALOG_TOKEN", "secret-token")

	var gotAuth, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("X-API-Key")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	cfg := noRetry()
	cfg.Headers = map[string]string{"Authorization": "Bearer ${CATALOG_TOKEN}"}
	cfg.Options = map[string]string{"api_key": "k-1"}
	src, err := NewRestSourceWithConfig("products", srv.URL, cfg)
	require.NoError(t, err)

	_, err = src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "k-1", gotKey)
	assert.NoError(t, src.Close())
}
