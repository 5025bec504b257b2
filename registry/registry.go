// Package registry reads the sources due for crawling
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/scipunch/backlog/fetcher/types"
)

// SQL lists sources from the crawl_jobs table
type SQL struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *SQL {
	return &SQL{db: db}
}

type sourceRow struct {
	ID     int64          `db:"id"`
	URL    string         `db:"url"`
	Format sql.NullString `db:"format"`
}

// List returns every enabled source ordered by id. The format of each source
// is resolved here, so parsing never has to inspect the URL.
func (r *SQL) List(ctx context.Context) ([]types.Source, error) {
	var rows []sourceRow
	err := r.db.SelectContext(ctx, &rows, `SELECT id, url, format FROM crawl_jobs WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl jobs with %w", err)
	}

	sources := make([]types.Source, 0, len(rows))
	for _, row := range rows {
		url := strings.TrimSpace(row.URL)
		sources = append(sources, types.Source{
			ID:     row.ID,
			URL:    url,
			Format: types.ResolveFormat(row.Format.String, url),
		})
	}
	return sources, nil
}

// Add registers a source, or updates the format of an existing one, and
// returns its id. An empty format is stored as NULL and detected on read.
func (r *SQL) Add(ctx context.Context, url string, format types.Format) (int64, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return 0, fmt.Errorf("source url is empty")
	}
	if format != "" && !types.IsKnownFormat(format) {
		return 0, fmt.Errorf("unknown feed format: %s", format)
	}

	var id int64
	err := r.db.GetContext(ctx, &id, r.db.Rebind(`
		INSERT INTO crawl_jobs (url, format) VALUES (?, ?)
		ON CONFLICT (url) DO UPDATE SET format = excluded.format
		RETURNING id`), url, sql.NullString{String: format, Valid: format != ""})
	if err != nil {
		return 0, fmt.Errorf("failed to add source '%s' with %w", url, err)
	}
	return id, nil
}
