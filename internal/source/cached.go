package source

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/livetemplate/storefront/internal/cache"
	"github.com/livetemplate/storefront/internal/config"
)

// refreshTimeout bounds a background stale-while-revalidate fetch.
const refreshTimeout = 30 * time.Second

// CachedSource serves a feed's rows from a shared cache. Concurrent misses
// and background refreshes for the same feed share one upstream fetch.
type CachedSource struct {
	inner  Source
	rows   cache.Cache[Rows]
	key    string
	ttl    time.Duration
	swr    bool
	flight singleflight.Group

	life context.Context
	end  context.CancelFunc
}

func NewCachedSource(inner Source, c cache.Cache[Rows], cfg config.SourceConfig) *CachedSource {
	life, end := context.WithCancel(context.Background())
	return &CachedSource{
		inner: inner,
		rows:  c,
		key:   "source:" + inner.Name(),
		ttl:   cfg.GetCacheTTL(),
		swr:   cfg.IsStaleWhileRevalidate(),
		life:  life,
		end:   end,
	}
}

func (s *CachedSource) Name() string { return s.inner.Name() }

// Fetch returns cached rows when present. With stale-while-revalidate a
// stale hit is served as is while a refresh runs in the background.
func (s *CachedSource) Fetch(ctx context.Context) (Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rows, found, stale := s.rows.Get(s.key); found {
		if stale && s.swr {
			go s.refresh()
		}
		return rows, nil
	}
	return s.load(ctx)
}

func (s *CachedSource) load(ctx context.Context) (Rows, error) {
	v, err, _ := s.flight.Do(s.key, func() (any, error) {
		rows, err := s.inner.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		if s.swr {
			// Fresh for the first half of the TTL, servable for all of it.
			s.rows.SetWithStale(s.key, rows, s.ttl/2, s.ttl)
		} else {
			s.rows.Set(s.key, rows, s.ttl)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Rows), nil
}

func (s *CachedSource) refresh() {
	ctx, cancel := context.WithTimeout(s.life, refreshTimeout)
	defer cancel()
	if _, err := s.load(ctx); err != nil && s.life.Err() == nil {
		log.Printf("[Catalog] Background refresh of %s failed: %v", s.Name(), err)
	}
}

// Invalidate drops the cached rows so the next Fetch goes upstream.
func (s *CachedSource) Invalidate() {
	s.rows.Invalidate(s.key)
}

// Close stops background refreshes and closes the wrapped feed.
func (s *CachedSource) Close() error {
	s.end()
	return s.inner.Close()
}
