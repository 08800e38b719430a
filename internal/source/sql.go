package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "modernc.org/sqlite"             // Pure Go SQLite driver

	"github.com/livetemplate/storefront/internal/config"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSource runs a read query against a SQL database.
type SQLSource struct {
	name    string
	driver  string
	query   string
	db      *sql.DB
	timeout time.Duration
}

// NewSQLSource opens a pg ("postgres") or mysql feed. An empty dsn falls
// back to $DATABASE_URL.
func NewSQLSource(name, driver, dsn, query string, cfg config.SourceConfig) (*SQLSource, error) {
	if query == "" {
		return nil, configError(name, "query", "query is required")
	}

	dsn = os.ExpandEnv(dsn)
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, configError(name, "db", "connection string required (set db or DATABASE_URL)")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, configError(name, "db", err.Error())
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, connectError(name, driver, err)
	}

	return &SQLSource{name: name, driver: driver, query: query, db: db, timeout: cfg.GetTimeout()}, nil
}

// NewSQLiteSource reads every row of table from a SQLite file. A relative
// path resolves against baseDir.
func NewSQLiteSource(name, dbPath, table, baseDir string) (*SQLSource, error) {
	if table == "" {
		return nil, configError(name, "table", "table name is required")
	}
	if !identifierRe.MatchString(table) {
		return nil, configError(name, "table", fmt.Sprintf("%q is not a plain identifier", table))
	}
	if dbPath == "" {
		dbPath = "catalog.db"
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(baseDir, dbPath)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, configError(name, "db", err.Error())
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, connectError(name, dbPath, err)
	}

	return &SQLSource{
		name:    name,
		driver:  "sqlite",
		query:   "SELECT * FROM " + table,
		db:      db,
		timeout: 10 * time.Second,
	}, nil
}

// Name returns the source identifier
func (s *SQLSource) Name() string {
	return s.name
}

// Fetch executes the query and returns one map per row
func (s *SQLSource) Fetch(ctx context.Context) (Rows, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(queryCtx, s.query)
	if err != nil {
		if queryCtx.Err() == context.DeadlineExceeded {
			return nil, &FeedError{Feed: s.name, Kind: KindTimeout, Op: "query", Err: fmt.Errorf("no answer within %s", s.timeout)}
		}
		return nil, fetchError(s.name, "query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fetchError(s.name, "columns", err)
	}

	results := Rows{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fetchError(s.name, "scan", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			val := values[i]
			// Text columns come back as []byte from pq and mysql
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			row[col] = val
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fetchError(s.name, "iterate", err)
	}
	return results, nil
}

// Close releases the database connection
func (s *SQLSource) Close() error {
	return s.db.Close()
}
