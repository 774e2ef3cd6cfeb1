package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names the SQL flavour behind a *sql.DB.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// BackendFactory opens a database for a URL whose scheme it was registered
// under.
type BackendFactory func(ctx context.Context, databaseURL string) (*sql.DB, Dialect, error)

var backendRegistry = struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}{
	factories: map[string]BackendFactory{},
}

func init() {
	RegisterBackend("postgres", openPostgres)
	RegisterBackend("postgresql", openPostgres)
	RegisterBackend("sqlite", openSQLite)
	RegisterBackend("sqlite3", openSQLite)
	RegisterBackend("file", openSQLite)
}

func RegisterBackend(scheme string, factory BackendFactory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	backendRegistry.mu.Lock()
	defer backendRegistry.mu.Unlock()
	backendRegistry.factories[scheme] = factory
}

func lookupBackend(scheme string) (BackendFactory, bool) {
	scheme = normalizeScheme(scheme)
	backendRegistry.mu.RLock()
	defer backendRegistry.mu.RUnlock()
	factory, ok := backendRegistry.factories[scheme]
	return factory, ok
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

func schemeOf(databaseURL string) string {
	i := strings.Index(databaseURL, ":")
	if i <= 0 {
		return ""
	}
	return databaseURL[:i]
}

// Open connects to databaseURL through the backend registered for its scheme.
func Open(ctx context.Context, databaseURL string) (*sql.DB, Dialect, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	factory, ok := lookupBackend(schemeOf(databaseURL))
	if !ok {
		return nil, "", fmt.Errorf("open db: unsupported database url scheme %q", schemeOf(databaseURL))
	}
	return factory(ctx, databaseURL)
}

func openPostgres(ctx context.Context, databaseURL string) (*sql.DB, Dialect, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping db: %w", err)
	}
	return db, DialectPostgres, nil
}

func openSQLite(ctx context.Context, databaseURL string) (*sql.DB, Dialect, error) {
	dsn := sqliteDSN(databaseURL)
	if path := sqlitePath(dsn); path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, "", fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open db: %w", err)
	}
	// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping db: %w", err)
	}
	return db, DialectSQLite, nil
}

// sqliteDSN turns sqlite://path and sqlite3://path into a go-sqlite3 file
// DSN with a busy timeout. file: URLs pass through.
func sqliteDSN(databaseURL string) string {
	dsn := databaseURL
	for _, prefix := range []string{"sqlite3://", "sqlite://"} {
		if strings.HasPrefix(strings.ToLower(dsn), prefix) {
			dsn = "file:" + dsn[len(prefix):]
			break
		}
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	return dsn
}

func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	return path
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $N placeholders for the dialect. sqlite accepts ?N with
// the same numbering.
func rebind(d Dialect, query string) string {
	if d != DialectSQLite {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?$1")
}
