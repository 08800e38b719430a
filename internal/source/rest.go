package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/livetemplate/storefront/internal/config"
)

// maxResponseSize caps how much of a feed response is read.
const maxResponseSize = 10 * 1024 * 1024

// RestSource fetches a catalog feed from an HTTP JSON endpoint
type RestSource struct {
	name           string
	url            string
	resultPath     string
	headers        map[string]string
	client         *http.Client
	backoff        Backoff
	breaker        *Breaker
}

// NewRestSource creates a REST feed with default timeout and retry settings
func NewRestSource(name, url string) (*RestSource, error) {
	return NewRestSourceWithConfig(name, url, config.SourceConfig{})
}

// NewRestSourceWithConfig creates a REST feed. Environment variables are
// expanded in the URL and header values.
func NewRestSourceWithConfig(name, url string, cfg config.SourceConfig) (*RestSource, error) {
	if url == "" {
		return nil, configError(name, "url", "url is required")
	}

	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = os.ExpandEnv(v)
	}
	if apiKey := cfg.Options["api_key"]; apiKey != "" {
		headers["X-API-Key"] = os.ExpandEnv(apiKey)
	}

	return &RestSource{
		name:           name,
		url:            os.ExpandEnv(url),
		resultPath:     cfg.ResultPath,
		headers:        headers,
		backoff:        BackoffFor(cfg),
		breaker:        NewBreaker(name, DefaultBreakerConfig()),
		client: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
	}, nil
}

// Name returns the source identifier
func (s *RestSource) Name() string {
	return s.name
}

// Fetch makes the request through the breaker, retrying transient failures.
// A fully retried failure counts as one outage.
func (s *RestSource) Fetch(ctx context.Context) (Rows, error) {
	return s.breaker.Do(ctx, func(ctx context.Context) (Rows, error) {
		return s.backoff.Do(ctx, s.name, s.doFetch)
	})
}

func (s *RestSource) doFetch(ctx context.Context) (Rows, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, configError(s.name, "url", err.Error())
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fetchError(s.name, "request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fe := &FeedError{Feed: s.name, Kind: KindHTTP, Status: resp.StatusCode}
		if body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)); len(bytes.TrimSpace(body)) > 0 {
			fe.Err = errors.New(string(bytes.TrimSpace(body)))
		}
		return nil, fe
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fetchError(s.name, "read response", err)
	}

	return decodeRows(s.name, body, s.resultPath)
}

// Close is a no-op for REST sources
func (s *RestSource) Close() error {
	return nil
}
