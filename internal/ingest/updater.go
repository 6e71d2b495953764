package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"alertlens/internal/logger"
	"alertlens/internal/metrics"
	"alertlens/internal/store"
	"alertlens/internal/tracker"
	"alertlens/pkg/models"
)

// ErrUpdateInProgress is returned when an ingestion cycle is requested
// while another is already running.
var ErrUpdateInProgress = errors.New("ingest: update already in progress")

// Fetcher is the tracker surface the updater needs. Satisfied by
// *tracker.Client.
type Fetcher interface {
	TestConnection() error
	SearchAll(scope tracker.Scope) ([]models.RawIssue, error)
}

// Status is a snapshot of the updater for the status endpoint.
type Status struct {
	Running     bool   `json:"running"`
	LastKind    string `json:"lastKind,omitempty"`
	LastStarted string `json:"lastStarted,omitempty"`
	LastEnded   string `json:"lastEnded,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	LastStored  int    `json:"lastStored"`
	LastFailed  int    `json:"lastFailed"`
}

// Updater runs ingestion cycles: fetch raw tickets per project scope,
// extract, upsert. At most one cycle runs at a time; a cycle requested
// while another runs is rejected, never queued.
type Updater struct {
	store     *store.Store
	fetcher   Fetcher
	extractor *Extractor
	projects  []string

	running atomic.Bool

	mu   sync.Mutex
	last Status
}

// NewUpdater creates an updater. fetcher may be nil when tracker
// credentials are not configured; cycles then fail fast.
func NewUpdater(st *store.Store, fetcher Fetcher, extractor *Extractor, projects []string) *Updater {
	return &Updater{
		store:     st,
		fetcher:   fetcher,
		extractor: extractor,
		projects:  projects,
	}
}

// Running reports whether a cycle is in flight.
func (u *Updater) Running() bool {
	return u.running.Load()
}

// Ready reports whether a tracker client is configured. When false the
// service serves analytics over stored data only.
func (u *Updater) Ready() bool {
	return u.fetcher != nil
}

// Status returns a snapshot for the status endpoint.
func (u *Updater) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()
	s := u.last
	s.Running = u.running.Load()
	return s
}

// FetchInitial runs a full backfill cycle over the last daysBack days
// and returns the number of issues stored.
func (u *Updater) FetchInitial(ctx context.Context, daysBack int) (int, error) {
	if daysBack <= 0 {
		daysBack = 30
	}
	end := time.Now()
	start := end.AddDate(0, 0, -daysBack)
	return u.runCycle(ctx, "initial", start, end)
}

// FetchIncremental runs a catch-up cycle from just past the newest
// stored issue to now and returns the number of issues stored. An empty
// store falls back to a 30-day window.
func (u *Updater) FetchIncremental(ctx context.Context) (int, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)

	latest, err := u.store.MaxCreated(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest: reading high-water mark: %w", err)
	}
	if latest != "" {
		stamp := strings.TrimSuffix(latest, " UTC")
		if t, err := time.Parse("2006-01-02 15:04:05", stamp); err == nil {
			// One second past the newest row, so the boundary issue is
			// not fetched again every cycle.
			start = t.Add(time.Second)
		} else {
			logger.Warnf("ingest: unparsable high-water mark %q, using 30-day window", latest)
		}
	}

	return u.runCycle(ctx, "incremental", start, end)
}

// runCycle holds the single ingestion slot for the duration of one
// cycle. Per-ticket failures are counted and skipped; per-project fetch
// failures abort the remaining projects.
func (u *Updater) runCycle(ctx context.Context, kind string, start, end time.Time) (int, error) {
	if !u.running.CompareAndSwap(false, true) {
		metrics.IngestCycles.WithLabelValues(kind, "skipped").Inc()
		return 0, ErrUpdateInProgress
	}
	defer u.running.Store(false)

	u.mu.Lock()
	u.last = Status{
		LastKind:    kind,
		LastStarted: time.Now().UTC().Format(time.RFC3339),
	}
	u.mu.Unlock()

	stored, err := u.cycle(ctx, kind, start, end)

	u.mu.Lock()
	u.last.LastEnded = time.Now().UTC().Format(time.RFC3339)
	if err != nil {
		u.last.LastError = err.Error()
	}
	u.mu.Unlock()

	if err != nil {
		metrics.IngestCycles.WithLabelValues(kind, "error").Inc()
		return stored, err
	}
	metrics.IngestCycles.WithLabelValues(kind, "ok").Inc()
	return stored, nil
}

func (u *Updater) cycle(ctx context.Context, kind string, start, end time.Time) (int, error) {
	if u.fetcher == nil {
		return 0, fmt.Errorf("ingest: tracker not configured")
	}
	if err := u.fetcher.TestConnection(); err != nil {
		return 0, fmt.Errorf("ingest: connectivity check: %w", err)
	}

	logger.Infof("ingest: %s cycle: window %s .. %s, projects %v",
		kind, start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04"), u.projects)

	stored, failed := 0, 0
	for _, project := range u.projects {
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		scope := tracker.Scope{Project: project, Start: start, End: end}
		raws, err := u.fetcher.SearchAll(scope)
		if err != nil {
			u.recordCounts(stored, failed)
			return stored, fmt.Errorf("ingest: fetching %s: %w", project, err)
		}

		for i := range raws {
			issue := u.extractor.Extract(ctx, &raws[i])
			if err := u.store.UpsertIssue(ctx, issue); err != nil {
				logger.Errorf("ingest: storing %s: %v", issue.ID, err)
				metrics.IssuesFailed.Inc()
				failed++
				continue
			}
			metrics.IssuesStored.Inc()
			stored++
			if stored%50 == 0 {
				logger.Infof("ingest: %s cycle: %d issues stored so far", kind, stored)
			}
		}
	}

	u.recordCounts(stored, failed)
	logger.Infof("ingest: %s cycle done: %d stored, %d failed", kind, stored, failed)
	return stored, nil
}

func (u *Updater) recordCounts(stored, failed int) {
	u.mu.Lock()
	u.last.LastStored = stored
	u.last.LastFailed = failed
	u.mu.Unlock()
}
