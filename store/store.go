// Package store persists articles and crawl state in SQLite or PostgreSQL
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/scipunch/backlog/fetcher/types"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Store is the database behind the source registry and the article sink
type Store struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time

	insertArticle string
	finishCrawl   string
}

// Stats contains table counts
type Stats struct {
	Sources        int `db:"sources"`
	CrawledSources int `db:"crawled_sources"`
	Articles       int `db:"articles"`
}

// DriverFor picks the database driver from a connection string. URLs with a
// postgres scheme go to lib/pq, anything else is a SQLite path or DSN.
func DriverFor(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open connects to the database and verifies the connection
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver := DriverFor(dsn)
	if driver == DriverSQLite && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database with %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s database with %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows one writer; concurrent sessions queue on the pool
		// instead of failing with SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	return New(db, driver), nil
}

// New wraps an existing connection pool
func New(db *sqlx.DB, driver string) *Store {
	return &Store{
		db:     db,
		driver: driver,
		now:    time.Now,
		insertArticle: db.Rebind(`
			INSERT INTO articles (name, picture, description, created, feed_id, link)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (feed_id, link) DO NOTHING`),
		finishCrawl: db.Rebind(`UPDATE crawl_jobs SET last_crawled_at = ? WHERE id = ?`),
	}
}

// DB exposes the pool for the source registry
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Driver() string {
	return s.driver
}

// Migrate creates missing tables
func (s *Store) Migrate(ctx context.Context) error {
	ddl := sqliteSchema
	if s.driver == DriverPostgres {
		ddl = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to execute DDL with %w", err)
	}
	return nil
}

// Stats returns table counts
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM crawl_jobs) AS sources,
			(SELECT COUNT(*) FROM crawl_jobs WHERE last_crawled_at IS NOT NULL) AS crawled_sources,
			(SELECT COUNT(*) FROM articles) AS articles`)
	if err != nil {
		return stats, fmt.Errorf("failed to read store stats with %w", err)
	}
	return stats, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Session acquires a dedicated connection for one source. The caller must
// Close it.
func (s *Store) Session(ctx context.Context) (*Session, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection with %w", err)
	}
	return &Session{conn: conn, store: s}, nil
}

// ErrSourceNotFound is returned when finalizing an id missing from crawl_jobs
var ErrSourceNotFound = errors.New("source not found")

// PersistError reports the articles of one source that could not be stored.
// Articles stored before or after a failure stay stored.
type PersistError struct {
	SourceID int64
	Failed   int
	Total    int
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %d of %d articles for source %d failed with %s", e.Failed, e.Total, e.SourceID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Session writes the articles of a single source over one connection
type Session struct {
	conn  *sqlx.Conn
	store *Store
}

// Persist inserts every article as its own statement. Articles already
// present for the source are ignored. Returns the number of new rows.
func (s *Session) Persist(ctx context.Context, articles []types.Article, sourceID int64) (int, error) {
	var (
		inserted int
		errs     []error
	)
	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := s.conn.ExecContext(ctx, s.store.insertArticle,
			a.Name, toNullString(a.Image), a.Description, a.Created, sourceID, a.Link)
		if err != nil {
			errs = append(errs, fmt.Errorf("insert '%s' with %w", a.Link, err))
			continue
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if len(errs) > 0 {
		return inserted, &PersistError{SourceID: sourceID, Failed: len(errs), Total: len(articles), Err: errors.Join(errs...)}
	}
	return inserted, nil
}

// Finalize records a successful crawl of the source. Calling it twice is
// harmless.
func (s *Session) Finalize(ctx context.Context, sourceID int64) error {
	res, err := s.conn.ExecContext(ctx, s.store.finishCrawl, s.store.now().UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to finish crawl of source %d with %w", sourceID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("failed to finish crawl of source %d: %w", sourceID, ErrSourceNotFound)
	}
	return nil
}

// Close returns the connection to the pool
func (s *Session) Close() error {
	return s.conn.Close()
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
