package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/winery-catalog/internal/config"
	"github.com/sells-group/winery-catalog/internal/model"
)

// ErrNotFound is returned (wrapped) when a winery, wine or run does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for the winery catalog.
type Store interface {
	// Wineries
	CreateWinery(ctx context.Context, w *model.Winery) error
	GetWinery(ctx context.Context, id int64) (*model.Winery, error)
	GetWineryBySlug(ctx context.Context, slug string) (*model.Winery, error)
	WineryExists(ctx context.Context, name string) (bool, error)
	ListWineries(ctx context.Context, activeOnly bool) ([]model.Winery, error)
	// DeleteWinery removes a winery together with its wines and runs.
	DeleteWinery(ctx context.Context, id int64) error

	// Wines
	CreateWine(ctx context.Context, w *model.Wine) error
	GetWine(ctx context.Context, id int64) (*model.Wine, error)
	ListWinesByWinery(ctx context.Context, wineryID int64) ([]model.Wine, error)
	// ListWines returns one page of wines matching f plus the total match count.
	ListWines(ctx context.Context, f model.WineFilter) ([]model.Wine, int, error)
	UpdateWineName(ctx context.Context, id int64, name string) error
	SetWineStatus(ctx context.Context, id int64, status model.WineStatus) error
	DeleteWine(ctx context.Context, id int64) error

	// Aggregates. Variety and vintage counts cover the public catalog only.
	CountByStatus(ctx context.Context) (map[model.WineStatus]int, error)
	VarietyCounts(ctx context.Context) ([]model.Count, error)
	VintageCounts(ctx context.Context) ([]model.Count, error)

	// ApplyChanges writes a reconciliation change set and stamps the
	// winery's last_scraped_at in one transaction. Inserted wines get
	// their ids filled in.
	ApplyChanges(ctx context.Context, cs *model.ChangeSet) error

	// Scrape runs
	CreateScrapeRun(ctx context.Context, run *model.ScrapeRun) error
	CompleteScrapeRun(ctx context.Context, run *model.ScrapeRun) error
	ListScrapeRuns(ctx context.Context, wineryID int64, limit int) ([]model.ScrapeRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func checkRowsAffected(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %v", entity, id)
	}
	return nil
}

// prepareRun fills the id, status and start time of a new run.
func prepareRun(run *model.ScrapeRun) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
}

// finishRun stamps the finish time of a run that has none.
func finishRun(run *model.ScrapeRun) {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
}

func runLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

// rowScanner is satisfied by *sql.Rows and pgx.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanStatusCounts(rows rowScanner) (map[model.WineStatus]int, error) {
	out := make(map[model.WineStatus]int, 3)
	for _, st := range model.AllWineStatuses() {
		out[st] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "store: scan status count")
		}
		out[model.WineStatus(status)] = n
	}
	return out, eris.Wrap(rows.Err(), "store: status counts iterate")
}
