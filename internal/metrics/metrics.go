package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of one run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FetchRequests     *prometheus.CounterVec
	FetchRetries      prometheus.Counter
	CrawlPages        *prometheus.CounterVec
	ExtractRecords    *prometheus.CounterVec
	ExtractItemErrors prometheus.Counter
	ExtractRejected   prometheus.Counter
	FilterStage       *prometheus.GaugeVec
}

// New registers every collector on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingsmith_fetch_requests_total",
			Help: "Page fetches by final outcome",
		}, []string{"outcome"}), // ok, failed, disallowed by robots.txt
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listingsmith_fetch_retries_total",
			Help: "Fetch attempts repeated after a transient failure",
		}),
		CrawlPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingsmith_crawl_pages_total",
			Help: "Pages visited by the crawler",
		}, []string{"result"}),
		ExtractRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingsmith_extract_records_total",
			Help: "Records extracted by extraction mode",
		}, []string{"mode"}),
		ExtractItemErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listingsmith_extract_item_errors_total",
			Help: "Candidate items skipped after a parse failure",
		}),
		ExtractRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listingsmith_extract_rejected_total",
			Help: "Candidate items that failed the validity gate",
		}),
		FilterStage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "listingsmith_filter_stage_records",
			Help: "Records surviving each filter stage in the last run",
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		m.FetchRequests,
		m.FetchRetries,
		m.CrawlPages,
		m.ExtractRecords,
		m.ExtractItemErrors,
		m.ExtractRejected,
		m.FilterStage,
	)
	return m
}

// Registry exposes the registry for the HTTP handler and tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncFetch(outcome string) {
	if m == nil {
		return
	}
	m.FetchRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.FetchRetries.Inc()
}

func (m *Metrics) IncPage(result string) {
	if m == nil {
		return
	}
	m.CrawlPages.WithLabelValues(result).Inc()
}

func (m *Metrics) AddRecords(mode string, n int) {
	if m == nil {
		return
	}
	m.ExtractRecords.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) IncItemError() {
	if m == nil {
		return
	}
	m.ExtractItemErrors.Inc()
}

func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	m.ExtractRejected.Inc()
}

func (m *Metrics) SetStage(stage string, n int) {
	if m == nil {
		return
	}
	m.FilterStage.WithLabelValues(stage).Set(float64(n))
}
