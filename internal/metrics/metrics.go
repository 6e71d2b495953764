package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IngestCycles counts completed ingestion cycles by result.
	IngestCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertlens_ingest_cycles_total",
		Help: "Ingestion cycles by kind (initial, incremental) and result (ok, error, skipped).",
	}, []string{"kind", "result"})

	// IssuesStored counts successful issue upserts.
	IssuesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertlens_issues_stored_total",
		Help: "Issues upserted into the store.",
	})

	// IssuesFailed counts tickets dropped by extraction or storage.
	IssuesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertlens_issues_failed_total",
		Help: "Tickets that failed extraction or storage.",
	})

	// TrackerPages counts fetched search result pages.
	TrackerPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertlens_tracker_pages_total",
		Help: "Search result pages fetched from the tracker.",
	})

	// NameLookups counts name resolution calls by outcome.
	NameLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertlens_name_lookups_total",
		Help: "Name resolutions by outcome (hit, miss, error, passthrough).",
	}, []string{"outcome"})

	// HTTPRequests counts API requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertlens_http_requests_total",
		Help: "API requests by route and status class.",
	}, []string{"route", "status"})
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
