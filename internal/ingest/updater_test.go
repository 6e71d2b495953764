package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"alertlens/internal/store"
	"alertlens/internal/tracker"
	"alertlens/pkg/models"
)

type fakeFetcher struct {
	mu      sync.Mutex
	scopes  []tracker.Scope
	issues  []models.RawIssue
	block   chan struct{}
	failOn  string
	connErr error
}

func (f *fakeFetcher) TestConnection() error { return f.connErr }

func (f *fakeFetcher) SearchAll(scope tracker.Scope) ([]models.RawIssue, error) {
	f.mu.Lock()
	f.scopes = append(f.scopes, scope)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.failOn == scope.Project {
		return nil, errors.New("boom")
	}
	return f.issues, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestFetchInitialStoresIssues(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{issues: []models.RawIssue{
		{Key: "O11Y-1", Summary: "Alert: a", Description: "firing", Created: "2025-03-01T10:00:00Z"},
		{Key: "O11Y-2", Summary: "Alert: b", Description: "firing", Created: "2025-03-02T10:00:00Z"},
	}}

	u := NewUpdater(st, fetcher, NewExtractor(nil), []string{"O11Y"})
	stored, err := u.FetchInitial(context.Background(), 30)
	if err != nil {
		t.Fatalf("FetchInitial: %v", err)
	}
	if stored != 2 {
		t.Errorf("stored = %d, want 2", stored)
	}

	count, err := st.IssueCount(context.Background())
	if err != nil {
		t.Fatalf("IssueCount: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 issues, got %d", count)
	}

	status := u.Status()
	if status.LastStored != 2 || status.LastFailed != 0 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestFetchIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{issues: []models.RawIssue{
		{Key: "O11Y-1", Summary: "Alert: a", Description: "firing", Created: "2025-03-01T10:00:00Z"},
	}}

	u := NewUpdater(st, fetcher, NewExtractor(nil), []string{"O11Y"})
	for i := 0; i < 3; i++ {
		if _, err := u.FetchInitial(context.Background(), 30); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	count, err := st.IssueCount(context.Background())
	if err != nil {
		t.Fatalf("IssueCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 issue after re-ingest, got %d", count)
	}
}

func TestConcurrentCycleRejected(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{block: make(chan struct{})}
	u := NewUpdater(st, fetcher, NewExtractor(nil), []string{"O11Y"})

	done := make(chan error, 1)
	go func() {
		_, err := u.FetchInitial(context.Background(), 7)
		done <- err
	}()

	// Wait until the first cycle holds the slot.
	deadline := time.After(2 * time.Second)
	for !u.Running() {
		select {
		case <-deadline:
			t.Fatal("first cycle never started")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if _, err := u.FetchIncremental(context.Background()); !errors.Is(err, ErrUpdateInProgress) {
		t.Errorf("expected ErrUpdateInProgress, got %v", err)
	}

	close(fetcher.block)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if u.Running() {
		t.Error("slot not released after cycle")
	}
}

func TestIncrementalWindowStartsPastHighWaterMark(t *testing.T) {
	st := newTestStore(t)
	if err := st.UpsertIssue(context.Background(), &models.Issue{
		ID: "O11Y-1", Created: "2025-03-01 10:00:00 UTC",
	}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	fetcher := &fakeFetcher{}
	u := NewUpdater(st, fetcher, NewExtractor(nil), []string{"O11Y"})
	if _, err := u.FetchIncremental(context.Background()); err != nil {
		t.Fatalf("FetchIncremental: %v", err)
	}

	if len(fetcher.scopes) != 1 {
		t.Fatalf("expected one scope, got %d", len(fetcher.scopes))
	}
	want := time.Date(2025, 3, 1, 10, 0, 1, 0, time.UTC)
	if !fetcher.scopes[0].Start.Equal(want) {
		t.Errorf("window start = %v, want %v", fetcher.scopes[0].Start, want)
	}
}

func TestCycleWithoutFetcherFails(t *testing.T) {
	st := newTestStore(t)
	u := NewUpdater(st, nil, NewExtractor(nil), []string{"O11Y"})
	if _, err := u.FetchIncremental(context.Background()); err == nil {
		t.Fatal("expected error without a fetcher")
	}
	if u.Running() {
		t.Error("slot not released after failed cycle")
	}
}

func TestCycleChecksConnectivityFirst(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{connErr: errors.New("auth rejected")}
	u := NewUpdater(st, fetcher, NewExtractor(nil), []string{"O11Y"})

	if _, err := u.FetchInitial(context.Background(), 7); err == nil {
		t.Fatal("expected connectivity failure to fail the cycle")
	}
	if len(fetcher.scopes) != 0 {
		t.Errorf("expected no searches after failed connectivity check, saw %d", len(fetcher.scopes))
	}
	if u.Running() {
		t.Error("slot not released after failed cycle")
	}
}

func TestProjectFailureAbortsCycle(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{failOn: "O11Y"}
	u := NewUpdater(st, fetcher, NewExtractor(nil), []string{"O11Y", "O11YDEV"})

	if _, err := u.FetchInitial(context.Background(), 7); err == nil {
		t.Fatal("expected fetch failure to propagate")
	}
	if len(fetcher.scopes) != 1 {
		t.Errorf("expected remaining projects skipped, saw %d scopes", len(fetcher.scopes))
	}
}
