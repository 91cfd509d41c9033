package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/winery-catalog/internal/model"
)

// Metrics holds the scrape and reconciliation collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	ScrapeRuns     *prometheus.CounterVec
	WinesScraped   prometheus.Counter
	ScrapeErrors   prometheus.Counter
	WinesFlagged   prometheus.Counter
	ReconcileRows  *prometheus.CounterVec
	ScrapeDuration prometheus.Histogram
}

// New registers the collectors on reg with every name prefixed by prefix.
func New(reg *prometheus.Registry, prefix string) *Metrics {
	if prefix == "" {
		prefix = "winery"
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		ScrapeRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_scrape_runs_total",
				Help: "Total number of winery scrape runs by outcome",
			},
			[]string{"outcome"},
		),

		WinesScraped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_wines_scraped_total",
				Help: "Total number of valid wine records scraped",
			},
		),

		ScrapeErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_scrape_errors_total",
				Help: "Total number of page load and product errors recorded",
			},
		),

		WinesFlagged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_wines_flagged_total",
				Help: "Total number of scraped records flagged for review",
			},
		),

		ReconcileRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_reconcile_changes_total",
				Help: "Total number of catalog rows changed by reconciliation",
			},
			[]string{"change"},
		),

		ScrapeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    prefix + "_scrape_duration_seconds",
				Help:    "Duration of winery scrape-and-save runs in seconds",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
		),
	}
}

// ObserveRun records the outcome of one finished scrape run.
func (m *Metrics) ObserveRun(run *model.ScrapeRun) {
	if m == nil || run == nil {
		return
	}
	m.ScrapeRuns.WithLabelValues(string(run.Status)).Inc()
	m.WinesScraped.Add(float64(run.Found))
	m.ScrapeErrors.Add(float64(len(run.Errors)))
	m.WinesFlagged.Add(float64(run.Flagged))
	if d := run.Duration(); d > 0 {
		m.ScrapeDuration.Observe(d.Seconds())
	}
}

// ObserveChanges records the rows touched by an applied change set.
func (m *Metrics) ObserveChanges(cs *model.ChangeSet) {
	if m == nil || cs == nil {
		return
	}
	m.ReconcileRows.WithLabelValues("inserted").Add(float64(len(cs.Inserts)))
	m.ReconcileRows.WithLabelValues("retired").Add(float64(len(cs.Retired)))
	m.ReconcileRows.WithLabelValues("price_changed").Add(float64(cs.PriceChanges()))
	restored := 0
	for _, u := range cs.Updates {
		if !u.WasAvailable {
			restored++
		}
	}
	m.ReconcileRows.WithLabelValues("restored").Add(float64(restored))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

