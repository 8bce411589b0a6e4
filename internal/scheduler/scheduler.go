// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Purger removes expired entries and reports how many were dropped.
// The in-memory cache implements it; the Redis backend expires keys on
// its own and needs no sweeping.
type Purger interface {
	PurgeExpired() int
}

// Scheduler owns the cron runner for background maintenance.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a scheduler with the cache sweep job registered. purger may
// be nil, in which case no job is added and Start is a no-op.
func New(purger Purger, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}

	if purger != nil {
		// Expired entries are also dropped lazily on access; the sweep
		// keeps idle keys from pinning memory between requests.
		if _, err := s.cron.AddFunc("@every 10m", func() {
			if n := purger.PurgeExpired(); n > 0 {
				logger.Debug("cache sweep", "purged", n)
			}
		}); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop halts the runner and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
