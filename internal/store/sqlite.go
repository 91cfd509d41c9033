package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/winery-catalog/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied to every pooled connection through the DSN.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// NewSQLite opens a SQLite database at the given path with foreign keys
// enforced and WAL mode enabled.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Serialise writers; scrapes of different wineries commit concurrently.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

func sqliteDSN(dsn string) string {
	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS wineries (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL,
	slug            TEXT NOT NULL UNIQUE,
	shop_url        TEXT NOT NULL DEFAULT '',
	is_active       INTEGER NOT NULL DEFAULT 1,
	last_scraped_at DATETIME,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS wines (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	winery_id     INTEGER NOT NULL REFERENCES wineries(id) ON DELETE CASCADE,
	name          TEXT NOT NULL,
	variety       TEXT NOT NULL DEFAULT '',
	vintage       TEXT NOT NULL DEFAULT '',
	price         TEXT,
	description   TEXT NOT NULL DEFAULT '',
	product_url   TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'pending',
	is_available  INTEGER NOT NULL DEFAULT 1,
	review_flags  TEXT NOT NULL DEFAULT '[]',
	first_seen_at DATETIME NOT NULL,
	last_seen_at  DATETIME NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id          TEXT PRIMARY KEY,
	winery_id   INTEGER NOT NULL REFERENCES wineries(id) ON DELETE CASCADE,
	status      TEXT NOT NULL DEFAULT 'running',
	found       INTEGER NOT NULL DEFAULT 0,
	inserted    INTEGER NOT NULL DEFAULT 0,
	updated     INTEGER NOT NULL DEFAULT 0,
	unchanged   INTEGER NOT NULL DEFAULT 0,
	retired     INTEGER NOT NULL DEFAULT 0,
	flagged     INTEGER NOT NULL DEFAULT 0,
	errors      TEXT NOT NULL DEFAULT '[]',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_wines_winery ON wines(winery_id);
CREATE INDEX IF NOT EXISTS idx_wines_status ON wines(status, is_available);
CREATE INDEX IF NOT EXISTS idx_wines_variety ON wines(variety);
CREATE INDEX IF NOT EXISTS idx_wines_vintage ON wines(vintage);
CREATE INDEX IF NOT EXISTS idx_scrape_runs_winery ON scrape_runs(winery_id, started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Wineries

const sqliteWineryColumns = `id, name, slug, shop_url, is_active, last_scraped_at, created_at, updated_at`

func (s *SQLiteStore) CreateWinery(ctx context.Context, w *model.Winery) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO wineries (name, slug, shop_url, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		w.Name, w.Slug, w.ShopURL, w.IsActive, now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert winery %q", w.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: winery id")
	}
	w.ID = id
	w.CreatedAt = now
	w.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetWinery(ctx context.Context, id int64) (*model.Winery, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteWineryColumns+` FROM wineries WHERE id = ?`, id)
	w, err := scanSQLiteWinery(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "winery %d", id)
	}
	return w, eris.Wrap(err, "sqlite: get winery")
}

func (s *SQLiteStore) GetWineryBySlug(ctx context.Context, slug string) (*model.Winery, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteWineryColumns+` FROM wineries WHERE slug = ?`, slug)
	w, err := scanSQLiteWinery(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "winery %q", slug)
	}
	return w, eris.Wrap(err, "sqlite: get winery by slug")
}

func (s *SQLiteStore) WineryExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wineries WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: winery exists")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListWineries(ctx context.Context, activeOnly bool) ([]model.Winery, error) {
	query := `SELECT ` + sqliteWineryColumns + ` FROM wineries`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list wineries")
	}
	defer rows.Close()

	var out []model.Winery
	for rows.Next() {
		w, err := scanSQLiteWinery(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan winery")
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list wineries iterate")
}

func (s *SQLiteStore) DeleteWinery(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wineries WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete winery %d", id)
	}
	return checkRowsAffected(res, "winery", id)
}

// Wines

const sqliteWineColumns = `id, winery_id, name, variety, vintage, price, description, product_url,
	status, is_available, review_flags, first_seen_at, last_seen_at, created_at, updated_at`

func (s *SQLiteStore) CreateWine(ctx context.Context, w *model.Wine) error {
	return insertSQLiteWine(ctx, s.db, w)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSQLiteWine(ctx context.Context, db execer, w *model.Wine) error {
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

	flags, err := marshalStrings(w.ReviewFlags)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO wines (winery_id, name, variety, vintage, price, description, product_url,
			status, is_available, review_flags, first_seen_at, last_seen_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.WineryID, w.Name, w.Variety, w.Vintage, priceValue(w.Price), w.Description, w.ProductURL,
		string(w.Status), w.IsAvailable, flags, w.FirstSeenAt, w.LastSeenAt, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert wine %q", w.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: wine id")
	}
	w.ID = id
	return nil
}

func (s *SQLiteStore) GetWine(ctx context.Context, id int64) (*model.Wine, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteWineColumns+` FROM wines WHERE id = ?`, id)
	w, err := scanSQLiteWine(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "wine %d", id)
	}
	return w, eris.Wrap(err, "sqlite: get wine")
}

func (s *SQLiteStore) ListWinesByWinery(ctx context.Context, wineryID int64) ([]model.Wine, error) {
	return s.queryWines(ctx, `SELECT `+sqliteWineColumns+` FROM wines WHERE winery_id = ? ORDER BY id ASC`, wineryID)
}

func (s *SQLiteStore) ListWines(ctx context.Context, f model.WineFilter) ([]model.Wine, int, error) {
	where := wineWhere(sqliteDialect, f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wines`+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count wines")
	}

	page, args := winePage(sqliteDialect, f, append([]any{}, where.args...))
	wines, err := s.queryWines(ctx, `SELECT `+sqliteWineColumns+` FROM wines`+where.String()+page, args...)
	if err != nil {
		return nil, 0, err
	}
	return wines, total, nil
}

func (s *SQLiteStore) queryWines(ctx context.Context, query string, args ...any) ([]model.Wine, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list wines")
	}
	defer rows.Close()

	var out []model.Wine
	for rows.Next() {
		w, err := scanSQLiteWine(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan wine")
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list wines iterate")
}

func (s *SQLiteStore) UpdateWineName(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE wines SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update wine name %d", id)
	}
	return checkRowsAffected(res, "wine", id)
}

func (s *SQLiteStore) SetWineStatus(ctx context.Context, id int64, status model.WineStatus) error {
	if !status.Valid() {
		return eris.Errorf("sqlite: invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE wines SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set wine status %d", id)
	}
	return checkRowsAffected(res, "wine", id)
}

func (s *SQLiteStore) DeleteWine(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wines WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete wine %d", id)
	}
	return checkRowsAffected(res, "wine", id)
}

// Aggregates

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.WineStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM wines GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()
	return scanStatusCounts(rows)
}

func (s *SQLiteStore) VarietyCounts(ctx context.Context) ([]model.Count, error) {
	return s.counts(ctx, `SELECT variety, COUNT(*) FROM wines
		WHERE status = 'live' AND is_available = 1 AND variety != ''
		GROUP BY variety ORDER BY variety ASC`)
}

func (s *SQLiteStore) VintageCounts(ctx context.Context) ([]model.Count, error) {
	return s.counts(ctx, `SELECT vintage, COUNT(*) FROM wines
		WHERE status = 'live' AND is_available = 1 AND vintage != ''
		GROUP BY vintage ORDER BY vintage DESC`)
}

func (s *SQLiteStore) counts(ctx context.Context, query string) ([]model.Count, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: counts")
	}
	defer rows.Close()

	var out []model.Count
	for rows.Next() {
		var c model.Count
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: counts iterate")
}

// Reconciliation

func (s *SQLiteStore) ApplyChanges(ctx context.Context, cs *model.ChangeSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin apply")
	}
	defer func() { _ = tx.Rollback() }()

	for i := range cs.Inserts {
		if err := insertSQLiteWine(ctx, tx, &cs.Inserts[i]); err != nil {
			return err
		}
	}

	for _, u := range cs.Updates {
		flags, err := marshalStrings(u.ReviewFlags)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE wines SET price = ?, product_url = ?, is_available = 1, review_flags = ?,
				last_seen_at = ?, updated_at = ?
			 WHERE id = ? AND winery_id = ?`,
			priceValue(u.NewPrice), u.ProductURL, flags, cs.SeenAt, cs.SeenAt, u.WineID, cs.WineryID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update wine %d", u.WineID)
		}
		if err := checkRowsAffected(res, "wine", u.WineID); err != nil {
			return err
		}
	}

	for _, w := range cs.Retired {
		if _, err := tx.ExecContext(ctx,
			`UPDATE wines SET is_available = 0, updated_at = ? WHERE id = ? AND winery_id = ?`,
			cs.SeenAt, w.ID, cs.WineryID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: retire wine %d", w.ID)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE wineries SET last_scraped_at = ?, updated_at = ? WHERE id = ?`,
		cs.SeenAt, cs.SeenAt, cs.WineryID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: stamp winery %d", cs.WineryID)
	}
	if err := checkRowsAffected(res, "winery", cs.WineryID); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit apply")
}

// Scrape runs

const sqliteRunColumns = `id, winery_id, status, found, inserted, updated, unchanged, retired, flagged, errors, started_at, finished_at`

func (s *SQLiteStore) CreateScrapeRun(ctx context.Context, run *model.ScrapeRun) error {
	prepareRun(run)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_runs (id, winery_id, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.WineryID, string(run.Status), run.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: insert scrape run for winery %d", run.WineryID)
}

func (s *SQLiteStore) CompleteScrapeRun(ctx context.Context, run *model.ScrapeRun) error {
	finishRun(run)
	errs, err := marshalStrings(run.Errors)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_runs SET status = ?, found = ?, inserted = ?, updated = ?, unchanged = ?,
			retired = ?, flagged = ?, errors = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status), run.Found, run.Inserted, run.Updated, run.Unchanged,
		run.Retired, run.Flagged, errs, *run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete scrape run %s", run.ID)
	}
	return checkRowsAffected(res, "scrape run", run.ID)
}

func (s *SQLiteStore) ListScrapeRuns(ctx context.Context, wineryID int64, limit int) ([]model.ScrapeRun, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM scrape_runs`
	var args []any
	if wineryID > 0 {
		query += ` WHERE winery_id = ?`
		args = append(args, wineryID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, runLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scrape runs")
	}
	defer rows.Close()

	var out []model.ScrapeRun
	for rows.Next() {
		var r model.ScrapeRun
		var errs string
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.WineryID, &r.Status, &r.Found, &r.Inserted, &r.Updated,
			&r.Unchanged, &r.Retired, &r.Flagged, &errs, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scrape run")
		}
		if err := json.Unmarshal([]byte(errs), &r.Errors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run errors")
		}
		if len(r.Errors) == 0 {
			r.Errors = nil
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list scrape runs iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteWinery(row scannable) (*model.Winery, error) {
	var w model.Winery
	var last sql.NullTime
	if err := row.Scan(&w.ID, &w.Name, &w.Slug, &w.ShopURL, &w.IsActive, &last, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if last.Valid {
		t := last.Time
		w.LastScrapedAt = &t
	}
	return &w, nil
}

func scanSQLiteWine(row scannable) (*model.Wine, error) {
	var w model.Wine
	var price sql.NullString
	var flags string
	err := row.Scan(&w.ID, &w.WineryID, &w.Name, &w.Variety, &w.Vintage, &price, &w.Description,
		&w.ProductURL, &w.Status, &w.IsAvailable, &flags, &w.FirstSeenAt, &w.LastSeenAt,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		w.Price = parsePrice(&price.String)
	}
	if err := json.Unmarshal([]byte(flags), &w.ReviewFlags); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal review flags")
	}
	if len(w.ReviewFlags) == 0 {
		w.ReviewFlags = nil
	}
	return &w, nil
}

func marshalStrings(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal strings")
	}
	return string(b), nil
}
