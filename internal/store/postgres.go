package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/winery-catalog/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS wineries (
	id              BIGSERIAL PRIMARY KEY,
	name            TEXT NOT NULL,
	slug            TEXT NOT NULL UNIQUE,
	shop_url        TEXT NOT NULL DEFAULT '',
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	last_scraped_at TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS wines (
	id            BIGSERIAL PRIMARY KEY,
	winery_id     BIGINT NOT NULL REFERENCES wineries(id) ON DELETE CASCADE,
	name          TEXT NOT NULL,
	variety       TEXT NOT NULL DEFAULT '',
	vintage       TEXT NOT NULL DEFAULT '',
	price         NUMERIC(10,2),
	description   TEXT NOT NULL DEFAULT '',
	product_url   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'pending',
	is_available  BOOLEAN NOT NULL DEFAULT TRUE,
	review_flags  TEXT[] NOT NULL DEFAULT '{}',
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	winery_id   BIGINT NOT NULL REFERENCES wineries(id) ON DELETE CASCADE,
	status      TEXT NOT NULL DEFAULT 'running',
	found       INTEGER NOT NULL DEFAULT 0,
	inserted    INTEGER NOT NULL DEFAULT 0,
	updated     INTEGER NOT NULL DEFAULT 0,
	unchanged   INTEGER NOT NULL DEFAULT 0,
	retired     INTEGER NOT NULL DEFAULT 0,
	flagged     INTEGER NOT NULL DEFAULT 0,
	errors      TEXT[] NOT NULL DEFAULT '{}',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_wines_winery ON wines(winery_id);
CREATE INDEX IF NOT EXISTS idx_wines_status ON wines(status, is_available);
CREATE INDEX IF NOT EXISTS idx_wines_variety ON wines(variety);
CREATE INDEX IF NOT EXISTS idx_wines_vintage ON wines(vintage);
CREATE INDEX IF NOT EXISTS idx_scrape_runs_winery ON scrape_runs(winery_id, started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Wineries

const pgWineryColumns = `id, name, slug, shop_url, is_active, last_scraped_at, created_at, updated_at`

func (s *PostgresStore) CreateWinery(ctx context.Context, w *model.Winery) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO wineries (name, slug, shop_url, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		w.Name, w.Slug, w.ShopURL, w.IsActive, now, now,
	).Scan(&w.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert winery %q", w.Name)
	}
	w.CreatedAt = now
	w.UpdatedAt = now
	return nil
}

func (s *PostgresStore) GetWinery(ctx context.Context, id int64) (*model.Winery, error) {
	w, err := scanPgWinery(s.pool.QueryRow(ctx, `SELECT `+pgWineryColumns+` FROM wineries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "winery %d", id)
	}
	return w, eris.Wrapf(err, "postgres: get winery %d", id)
}

func (s *PostgresStore) GetWineryBySlug(ctx context.Context, slug string) (*model.Winery, error) {
	w, err := scanPgWinery(s.pool.QueryRow(ctx, `SELECT `+pgWineryColumns+` FROM wineries WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "winery %q", slug)
	}
	return w, eris.Wrapf(err, "postgres: get winery %q", slug)
}

func (s *PostgresStore) WineryExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wineries WHERE name = $1)`, name).Scan(&exists)
	return exists, eris.Wrap(err, "postgres: winery exists")
}

func (s *PostgresStore) ListWineries(ctx context.Context, activeOnly bool) ([]model.Winery, error) {
	query := `SELECT ` + pgWineryColumns + ` FROM wineries`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list wineries")
	}
	defer rows.Close()

	var out []model.Winery
	for rows.Next() {
		w, err := scanPgWinery(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan winery")
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list wineries iterate")
}

func (s *PostgresStore) DeleteWinery(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM wineries WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete winery %d", id)
	}
	return checkTag(tag, "winery", id)
}

// Wines

const pgWineColumns = `id, winery_id, name, variety, vintage, price::text, description, product_url,
	status, is_available, review_flags, first_seen_at, last_seen_at, created_at, updated_at`

const pgInsertWine = `INSERT INTO wines (winery_id, name, variety, vintage, price, description, product_url,
	status, is_available, review_flags, first_seen_at, last_seen_at, created_at, updated_at)
 VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`

// queryRower is satisfied by Pool and pgx.Tx.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) CreateWine(ctx context.Context, w *model.Wine) error {
	return insertPgWine(ctx, s.pool, w)
}

func insertPgWine(ctx context.Context, q queryRower, w *model.Wine) error {
	now := time.Now().UTC()
	if w.FirstSeenAt.IsZero() {
		w.FirstSeenAt = now
	}
	if w.LastSeenAt.IsZero() {
		w.LastSeenAt = w.FirstSeenAt
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = w.CreatedAt
	if w.Status == "" {
		w.Status = model.WineStatusPending
	}

	err := q.QueryRow(ctx, pgInsertWine,
		w.WineryID, w.Name, w.Variety, w.Vintage, priceValue(w.Price), w.Description, w.ProductURL,
		string(w.Status), w.IsAvailable, textArray(w.ReviewFlags), w.FirstSeenAt, w.LastSeenAt,
		w.CreatedAt, w.UpdatedAt,
	).Scan(&w.ID)
	return eris.Wrapf(err, "postgres: insert wine %q", w.Name)
}

func (s *PostgresStore) GetWine(ctx context.Context, id int64) (*model.Wine, error) {
	w, err := scanPgWine(s.pool.QueryRow(ctx, `SELECT `+pgWineColumns+` FROM wines WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "wine %d", id)
	}
	return w, eris.Wrapf(err, "postgres: get wine %d", id)
}

func (s *PostgresStore) ListWinesByWinery(ctx context.Context, wineryID int64) ([]model.Wine, error) {
	return s.queryWines(ctx, `SELECT `+pgWineColumns+` FROM wines WHERE winery_id = $1 ORDER BY id ASC`, wineryID)
}

func (s *PostgresStore) ListWines(ctx context.Context, f model.WineFilter) ([]model.Wine, int, error) {
	where := wineWhere(postgresDialect, f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM wines`+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count wines")
	}

	page, args := winePage(postgresDialect, f, append([]any{}, where.args...))
	wines, err := s.queryWines(ctx, `SELECT `+pgWineColumns+` FROM wines`+where.String()+page, args...)
	if err != nil {
		return nil, 0, err
	}
	return wines, total, nil
}

func (s *PostgresStore) queryWines(ctx context.Context, query string, args ...any) ([]model.Wine, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list wines")
	}
	defer rows.Close()

	var out []model.Wine
	for rows.Next() {
		w, err := scanPgWine(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan wine")
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list wines iterate")
}

func (s *PostgresStore) UpdateWineName(ctx context.Context, id int64, name string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE wines SET name = $1, updated_at = $2 WHERE id = $3`,
		name, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update wine name %d", id)
	}
	return checkTag(tag, "wine", id)
}

func (s *PostgresStore) SetWineStatus(ctx context.Context, id int64, status model.WineStatus) error {
	if !status.Valid() {
		return eris.Errorf("postgres: invalid status %q", status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE wines SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set wine status %d", id)
	}
	return checkTag(tag, "wine", id)
}

func (s *PostgresStore) DeleteWine(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM wines WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete wine %d", id)
	}
	return checkTag(tag, "wine", id)
}

// Aggregates

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.WineStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM wines GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()
	return scanStatusCounts(rows)
}

func (s *PostgresStore) VarietyCounts(ctx context.Context) ([]model.Count, error) {
	return s.counts(ctx, `SELECT variety, COUNT(*) FROM wines
		WHERE status = 'live' AND is_available AND variety <> ''
		GROUP BY variety ORDER BY variety ASC`)
}

func (s *PostgresStore) VintageCounts(ctx context.Context) ([]model.Count, error) {
	return s.counts(ctx, `SELECT vintage, COUNT(*) FROM wines
		WHERE status = 'live' AND is_available AND vintage <> ''
		GROUP BY vintage ORDER BY vintage DESC`)
}

func (s *PostgresStore) counts(ctx context.Context, query string) ([]model.Count, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: counts")
	}
	defer rows.Close()

	var out []model.Count
	for rows.Next() {
		var c model.Count
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: counts iterate")
}

// Reconciliation

func (s *PostgresStore) ApplyChanges(ctx context.Context, cs *model.ChangeSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin apply")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range cs.Inserts {
		if err := insertPgWine(ctx, tx, &cs.Inserts[i]); err != nil {
			return err
		}
	}

	for _, u := range cs.Updates {
		tag, err := tx.Exec(ctx,
			`UPDATE wines SET price = $1::text::numeric, product_url = $2, is_available = TRUE,
				review_flags = $3, last_seen_at = $4, updated_at = $4
			 WHERE id = $5 AND winery_id = $6`,
			priceValue(u.NewPrice), u.ProductURL, textArray(u.ReviewFlags), cs.SeenAt, u.WineID, cs.WineryID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update wine %d", u.WineID)
		}
		if err := checkTag(tag, "wine", u.WineID); err != nil {
			return err
		}
	}

	if len(cs.Retired) > 0 {
		ids := make([]int64, len(cs.Retired))
		for i, w := range cs.Retired {
			ids[i] = w.ID
		}
		if _, err := tx.Exec(ctx,
			`UPDATE wines SET is_available = FALSE, updated_at = $1 WHERE winery_id = $2 AND id = ANY($3)`,
			cs.SeenAt, cs.WineryID, ids,
		); err != nil {
			return eris.Wrapf(err, "postgres: retire %d wines", len(ids))
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE wineries SET last_scraped_at = $1, updated_at = $1 WHERE id = $2`,
		cs.SeenAt, cs.WineryID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: stamp winery %d", cs.WineryID)
	}
	if err := checkTag(tag, "winery", cs.WineryID); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit apply")
}

// Scrape runs

func (s *PostgresStore) CreateScrapeRun(ctx context.Context, run *model.ScrapeRun) error {
	prepareRun(run)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_runs (id, winery_id, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.WineryID, string(run.Status), run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: insert scrape run for winery %d", run.WineryID)
}

func (s *PostgresStore) CompleteScrapeRun(ctx context.Context, run *model.ScrapeRun) error {
	finishRun(run)
	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_runs SET status = $1, found = $2, inserted = $3, updated = $4, unchanged = $5,
			retired = $6, flagged = $7, errors = $8, finished_at = $9
		 WHERE id = $10`,
		string(run.Status), run.Found, run.Inserted, run.Updated, run.Unchanged,
		run.Retired, run.Flagged, textArray(run.Errors), *run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete scrape run %s", run.ID)
	}
	return checkTag(tag, "scrape run", run.ID)
}

func (s *PostgresStore) ListScrapeRuns(ctx context.Context, wineryID int64, limit int) ([]model.ScrapeRun, error) {
	query := `SELECT id, winery_id, status, found, inserted, updated, unchanged, retired, flagged,
		errors, started_at, finished_at FROM scrape_runs`
	args := []any{}
	if wineryID > 0 {
		args = append(args, wineryID)
		query += fmt.Sprintf(` WHERE winery_id = $%d`, len(args))
	}
	args = append(args, runLimit(limit))
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scrape runs")
	}
	defer rows.Close()

	var out []model.ScrapeRun
	for rows.Next() {
		var r model.ScrapeRun
		var status string
		if err := rows.Scan(&r.ID, &r.WineryID, &status, &r.Found, &r.Inserted, &r.Updated,
			&r.Unchanged, &r.Retired, &r.Flagged, &r.Errors, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scrape run")
		}
		r.Status = model.RunStatus(status)
		if len(r.Errors) == 0 {
			r.Errors = nil
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list scrape runs iterate")
}

// helpers

func checkTag(tag pgconn.CommandTag, entity string, id any) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s %v", entity, id)
	}
	return nil
}

// textArray returns ss as a non-nil slice; pgx encodes nil slices as NULL.
func textArray(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func scanPgWinery(row pgx.Row) (*model.Winery, error) {
	var w model.Winery
	err := row.Scan(&w.ID, &w.Name, &w.Slug, &w.ShopURL, &w.IsActive, &w.LastScrapedAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanPgWine(row pgx.Row) (*model.Wine, error) {
	var w model.Wine
	var price *string
	var status string
	err := row.Scan(&w.ID, &w.WineryID, &w.Name, &w.Variety, &w.Vintage, &price, &w.Description,
		&w.ProductURL, &status, &w.IsAvailable, &w.ReviewFlags, &w.FirstSeenAt, &w.LastSeenAt,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Price = parsePrice(price)
	w.Status = model.WineStatus(status)
	if len(w.ReviewFlags) == 0 {
		w.ReviewFlags = nil
	}
	return &w, nil
}
