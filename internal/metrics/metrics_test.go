package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/winery-catalog/internal/model"
)

func TestObserveRun(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry(), "test")

	start := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	m.ObserveRun(&model.ScrapeRun{
		Status:     model.RunStatusComplete,
		Found:      12,
		Flagged:    2,
		Errors:     []string{"a", "b", "c"},
		StartedAt:  start,
		FinishedAt: &end,
	})
	m.ObserveRun(&model.ScrapeRun{Status: model.RunStatusFailed, Errors: []string{"timeout"}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapeRuns.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScrapeRuns.WithLabelValues("failed")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.WinesScraped))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ScrapeErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WinesFlagged))
}

func TestObserveChanges(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry(), "test")

	m.ObserveChanges(&model.ChangeSet{
		Inserts: []model.Wine{{Name: "a"}, {Name: "b"}},
		Retired: []model.Wine{{ID: 1}},
		Updates: []model.WineUpdate{
			{WineID: 2, PriceChanged: true, WasAvailable: true},
			{WineID: 3, WasAvailable: false},
			{WineID: 4, WasAvailable: true},
		},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReconcileRows.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileRows.WithLabelValues("retired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileRows.WithLabelValues("price_changed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileRows.WithLabelValues("restored")))
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun(&model.ScrapeRun{Status: model.RunStatusComplete})
		m.ObserveChanges(&model.ChangeSet{})
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry(), "")
	m.WinesScraped.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "winery_wines_scraped_total 3")
}
