package store

import (
	"context"
	"fmt"

	"github.com/livetemplate/storefront/internal/config"
)

// Open creates the backend selected by cfg.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Backend, error) {
	switch driver := cfg.GetDriver(); driver {
	case "sqlite":
		return OpenSQL(DialectSQLite, cfg.GetDSN())
	case "postgres":
		return OpenSQL(DialectPostgres, cfg.GetDSN())
	case "mysql":
		return OpenSQL(DialectMySQL, cfg.GetDSN())
	case "mongo":
		return OpenMongo(ctx, cfg.GetDSN(), cfg.Database)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
