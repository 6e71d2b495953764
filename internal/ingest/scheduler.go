package ingest

import (
	"context"
	"errors"
	"time"

	"alertlens/internal/logger"
)

// Scheduler runs incremental ingestion on a fixed interval. A tick that
// lands while a cycle is still in flight is skipped, not queued.
type Scheduler struct {
	updater  *Updater
	interval time.Duration
}

// NewScheduler creates a scheduler. Intervals below one minute are
// clamped to one minute.
func NewScheduler(u *Updater, interval time.Duration) *Scheduler {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Scheduler{updater: u, interval: interval}
}

// Run blocks until ctx is cancelled, firing incremental cycles on the
// interval.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Infof("ingest: scheduler started, interval %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("ingest: scheduler stopped")
			return
		case <-ticker.C:
			stored, err := s.updater.FetchIncremental(ctx)
			switch {
			case errors.Is(err, ErrUpdateInProgress):
				logger.Infof("ingest: tick skipped, cycle still running")
			case err != nil:
				logger.Errorf("ingest: scheduled cycle failed: %v", err)
			default:
				logger.Debugf("ingest: scheduled cycle stored %d issues", stored)
			}
		}
	}
}
