package snapshot

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/amq-trainer/services/trainer/internal/store"
)

const catalogTable = "catalog_media"

// Postgres keeps the snapshot in a single table that is replaced on every
// refresh.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const q = `CREATE TABLE IF NOT EXISTS catalog_media (
	             id          INTEGER PRIMARY KEY,
	             title       TEXT    NOT NULL,
	             popularity  INTEGER NOT NULL,
	             season_year INTEGER,
	             season      TEXT    NOT NULL DEFAULT '',
	             genres      TEXT[]  NOT NULL DEFAULT '{}',
	             tags        TEXT[]  NOT NULL DEFAULT '{}',
	             refreshed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	           )`
	_, err := p.pool.Exec(ctx, q)
	return err
}

// Load reads every row. An empty table means no snapshot was saved.
func (p *Postgres) Load(ctx context.Context) ([]store.Media, error) {
	const q = `SELECT id, title, popularity, season_year, season, genres, tags
	           FROM catalog_media ORDER BY id`
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Media
	for rows.Next() {
		var (
			m      store.Media
			season string
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Popularity, &m.Year, &season, &m.Genres, &m.Tags); err != nil {
			return nil, err
		}
		m.Season = store.Season(season)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("table %s: %w", catalogTable, ErrNoSnapshot)
	}
	return out, nil
}

// Save replaces the table contents in one transaction using COPY.
func (p *Postgres) Save(ctx context.Context, entries []store.Media) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM catalog_media`); err != nil {
		return err
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{catalogTable},
		[]string{"id", "title", "popularity", "season_year", "season", "genres", "tags"},
		pgx.CopyFromRows(rowsOf(entries)),
	)
	if err != nil {
		return fmt.Errorf("copy catalog: %w", err)
	}
	return tx.Commit(ctx)
}

func rowsOf(entries []store.Media) [][]any {
	seen := make(map[int]struct{}, len(entries))
	rows := make([][]any, 0, len(entries))
	for _, m := range entries {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		genres, tags := m.Genres, m.Tags
		if genres == nil {
			genres = []string{}
		}
		if tags == nil {
			tags = []string{}
		}
		rows = append(rows, []any{m.ID, m.Title, m.Popularity, m.Year, string(m.Season), genres, tags})
	}
	return rows
}
