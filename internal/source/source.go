// Package source provides the read-only catalog feeds (products, categories,
// brands, menus, banners) that the storefront renderer resolves block
// references against.
package source

import (
	"context"
	"fmt"
	"sort"

	"github.com/livetemplate/storefront/internal/cache"
	"github.com/livetemplate/storefront/internal/config"
)

// Rows is the untyped result of a feed fetch.
type Rows = []map[string]any

// Source is the interface for feed providers.
type Source interface {
	// Name returns the feed identifier
	Name() string

	// Fetch retrieves every row of the feed.
	Fetch(ctx context.Context) (Rows, error)

	// Close releases any resources held by the source
	Close() error
}

// Registry holds the configured feeds, keyed by name.
type Registry struct {
	sources map[string]Source
	cache   *cache.MemoryCache[Rows]
}

// NewRegistry creates a feed registry from the catalog config. Relative
// file and sqlite paths resolve against cfg.GetDir().
func NewRegistry(cfg config.CatalogConfig) (*Registry, error) {
	memCache := cache.NewMemoryCache[Rows]()
	r := &Registry{
		sources: make(map[string]Source),
		cache:   memCache,
	}

	for name, srcCfg := range cfg.Sources {
		src, err := createSource(name, srcCfg, cfg.GetDir())
		if err != nil {
			r.Close()
			return nil, err
		}

		if srcCfg.IsCacheEnabled() {
			src = NewCachedSource(src, r.cache, srcCfg)
		}
		r.sources[name] = src
	}

	return r, nil
}

// Register adds or replaces a feed. It is how tests and embedders plug in
// sources that are not described by config.
func (r *Registry) Register(src Source) {
	if old, ok := r.sources[src.Name()]; ok {
		old.Close()
	}
	r.sources[src.Name()] = src
}

// Get returns a source by name
func (r *Registry) Get(name string) (Source, bool) {
	src, ok := r.sources[name]
	return src, ok
}

// Names returns the registered feed names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases all sources and stops the cache
func (r *Registry) Close() error {
	r.cache.Stop()

	var firstErr error
	for _, src := range r.sources {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// InvalidateCache drops the cached rows of one feed.
func (r *Registry) InvalidateCache(name string) {
	if cs, ok := r.sources[name].(*CachedSource); ok {
		cs.Invalidate()
	}
}

// InvalidateAll drops every cached feed.
func (r *Registry) InvalidateAll() {
	r.cache.InvalidateAll()
}

func createSource(name string, cfg config.SourceConfig, dir string) (Source, error) {
	switch cfg.Type {
	case "json":
		return NewJSONFileSource(name, cfg.File, dir)
	case "sqlite":
		return NewSQLiteSource(name, cfg.DB, cfg.Table, dir)
	case "pg":
		return NewSQLSource(name, "postgres", cfg.DB, cfg.Query, cfg)
	case "mysql":
		return NewSQLSource(name, "mysql", cfg.DB, cfg.Query, cfg)
	case "mongo":
		return NewMongoSource(name, cfg)
	case "rest":
		return NewRestSourceWithConfig(name, cfg.URL, cfg)
	default:
		return nil, configError(name, "type", fmt.Sprintf("unsupported source type %q", cfg.Type))
	}
}
