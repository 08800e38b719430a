package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "modernc.org/sqlite"             // Pure Go SQLite driver
)

// Dialect selects the SQL flavour of an SQLBackend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// SQLBackend stores both records as rows of the store_config table.
type SQLBackend struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL opens and migrates an SQL backend. For sqlite the DSN is a file
// path whose directory is created if needed.
func OpenSQL(dialect Dialect, dsn string) (*SQLBackend, error) {
	var (
		db  *sql.DB
		err error
	)

	switch dialect {
	case DialectSQLite:
		if dsn == "" {
			dsn = "storefront.db"
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		db, err = sql.Open("sqlite", dsn+sep+"_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite only supports one writer
		db.SetMaxOpenConns(1)
	case DialectPostgres, DialectMySQL:
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		if dsn == "" {
			return nil, fmt.Errorf("%s config store: dsn required (set database.dsn or DATABASE_URL)", dialect)
		}
		db, err = sql.Open(string(dialect), dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", dialect, err)
		}
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", dialect, err)
	}

	b, err := NewSQLBackend(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// NewSQLBackend wraps an open database and runs the migrations.
func NewSQLBackend(db *sql.DB, dialect Dialect) (*SQLBackend, error) {
	b := &SQLBackend{db: db, dialect: dialect}
	if err := b.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

// DB returns the underlying connection.
func (b *SQLBackend) DB() *sql.DB {
	return b.db
}

func (b *SQLBackend) migrate() error {
	var migrations []string
	switch b.dialect {
	case DialectMySQL:
		migrations = []string{
			`CREATE TABLE IF NOT EXISTS store_config (
				id VARCHAR(64) PRIMARY KEY,
				theme_json TEXT NOT NULL,
				home_layout LONGTEXT NOT NULL,
				footer_layout LONGTEXT NOT NULL,
				settings_json TEXT NOT NULL,
				version BIGINT NOT NULL DEFAULT 0,
				updated_at BIGINT NOT NULL DEFAULT 0
			)`,
			`ALTER TABLE store_config ADD COLUMN updated_by VARCHAR(255) NOT NULL DEFAULT ''`,
		}
	default:
		migrations = []string{
			`CREATE TABLE IF NOT EXISTS store_config (
				id TEXT PRIMARY KEY,
				theme_json TEXT NOT NULL DEFAULT '{}',
				home_layout TEXT NOT NULL DEFAULT '[]',
				footer_layout TEXT NOT NULL DEFAULT '[]',
				settings_json TEXT NOT NULL DEFAULT '{}',
				version BIGINT NOT NULL DEFAULT 0,
				updated_at BIGINT NOT NULL DEFAULT 0
			)`,
			`ALTER TABLE store_config ADD COLUMN updated_by TEXT NOT NULL DEFAULT ''`,
		}
	}

	for _, m := range migrations {
		if _, err := b.db.Exec(m); err != nil {
			// ALTER TABLE fails if column already exists, safe to ignore
			msg := strings.ToLower(err.Error())
			if strings.Contains(m, "ALTER TABLE") &&
				(strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")) {
				continue
			}
			return fmt.Errorf("migration failed: %s: %w", m[:40], err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders for dialects that need positional ones.
func (b *SQLBackend) rebind(query string) string {
	if b.dialect != DialectPostgres {
		return query
	}
	var out strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			out.WriteString("$" + strconv.Itoa(n))
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

// Load implements Backend.
func (b *SQLBackend) Load(ctx context.Context, slot Slot) (*Record, error) {
	row := b.db.QueryRowContext(ctx, b.rebind(
		`SELECT theme_json, home_layout, footer_layout, settings_json, version, updated_at, updated_by
		 FROM store_config WHERE id = ?`), slot.Key())

	var (
		themeJSON, settingsJSON string
		updatedAt               int64
		rec                     = &Record{Slot: slot, ID: slot.Key()}
	)
	err := row.Scan(&themeJSON, &rec.HomeLayout, &rec.FooterLayout, &settingsJSON, &rec.Version, &updatedAt, &rec.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", slot.Key(), err)
	}

	if err := json.Unmarshal([]byte(themeJSON), &rec.Theme); err != nil {
		return nil, fmt.Errorf("load %s: decode theme: %w", slot.Key(), err)
	}
	if settingsJSON != "" {
		if err := json.Unmarshal([]byte(settingsJSON), &rec.Settings); err != nil {
			return nil, fmt.Errorf("load %s: decode settings: %w", slot.Key(), err)
		}
	}
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return rec, nil
}

// Save implements Backend.
func (b *SQLBackend) Save(ctx context.Context, rec *Record) error {
	themeJSON, err := json.Marshal(rec.Theme)
	if err != nil {
		return fmt.Errorf("encode theme: %w", err)
	}
	settings := rec.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	query := `INSERT INTO store_config
		(id, theme_json, home_layout, footer_layout, settings_json, version, updated_at, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) `
	if b.dialect == DialectMySQL {
		query += `ON DUPLICATE KEY UPDATE
			theme_json = VALUES(theme_json), home_layout = VALUES(home_layout),
			footer_layout = VALUES(footer_layout), settings_json = VALUES(settings_json),
			version = VALUES(version), updated_at = VALUES(updated_at), updated_by = VALUES(updated_by)`
	} else {
		query += `ON CONFLICT (id) DO UPDATE SET
			theme_json = excluded.theme_json, home_layout = excluded.home_layout,
			footer_layout = excluded.footer_layout, settings_json = excluded.settings_json,
			version = excluded.version, updated_at = excluded.updated_at, updated_by = excluded.updated_by`
	}

	_, err = b.db.ExecContext(ctx, b.rebind(query),
		rec.Slot.Key(), string(themeJSON), rec.HomeLayout, rec.FooterLayout, string(settingsJSON),
		rec.Version, rec.UpdatedAt.UnixMilli(), rec.UpdatedBy)
	if err != nil {
		return fmt.Errorf("save %s: %w", rec.Slot.Key(), err)
	}
	return nil
}

// Copy implements Backend inside a single transaction.
func (b *SQLBackend) Copy(ctx context.Context, from, to Slot, by string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var themeJSON, home, footer string
	err = tx.QueryRowContext(ctx, b.rebind(
		`SELECT theme_json, home_layout, footer_layout FROM store_config WHERE id = ?`), from.Key()).
		Scan(&themeJSON, &home, &footer)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("copy from %s: %w", from.Key(), ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("copy from %s: %w", from.Key(), err)
	}

	now := time.Now().UTC().UnixMilli()
	res, err := tx.ExecContext(ctx, b.rebind(
		`UPDATE store_config
		 SET theme_json = ?, home_layout = ?, footer_layout = ?, version = version + 1, updated_at = ?, updated_by = ?
		 WHERE id = ?`),
		themeJSON, home, footer, now, by, to.Key())
	if err != nil {
		return fmt.Errorf("copy to %s: %w", to.Key(), err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		_, err = tx.ExecContext(ctx, b.rebind(
			`INSERT INTO store_config
			 (id, theme_json, home_layout, footer_layout, settings_json, version, updated_at, updated_by)
			 VALUES (?, ?, ?, ?, '{}', 1, ?, ?)`),
			to.Key(), themeJSON, home, footer, now, by)
		if err != nil {
			return fmt.Errorf("copy to %s: %w", to.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit copy: %w", err)
	}
	return nil
}

// Close implements Backend.
func (b *SQLBackend) Close() error {
	return b.db.Close()
}
