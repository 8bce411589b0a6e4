// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service implements the four exposed operations. Each invocation
// runs plan -> cache -> fetch -> normalize -> filter -> store -> return;
// the cache is the only shared mutable resource.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/olegiv/indiq/internal/cache"
	"github.com/olegiv/indiq/internal/config"
	"github.com/olegiv/indiq/internal/indico"
	"github.com/olegiv/indiq/internal/logging"
	"github.com/olegiv/indiq/internal/metrics"
	"github.com/olegiv/indiq/internal/model"
	"github.com/olegiv/indiq/internal/normalize"
	"github.com/olegiv/indiq/internal/query"
	"github.com/olegiv/indiq/internal/version"
)

// SearchRequest carries the parameters of the search_events operation.
type SearchRequest struct {
	Keyword    string
	Limit      int
	CategoryID int64
	DaysAhead  *int
	FromDate   string
	ToDate     string
}

// UpcomingRequest carries the parameters of the upcoming_public operation.
type UpcomingRequest struct {
	Days       *int
	Limit      int
	CategoryID int64
	FromDate   string
	ToDate     string
}

// Service is the tool dispatcher. Construct with New; all collaborators
// are injected once and never swapped at runtime.
type Service struct {
	cfg        *config.Config
	client     *indico.Client
	normalizer *normalize.Normalizer
	backend    cache.Cacher // nil when caching is disabled
	lists      *cache.TypedCache[[]model.EventRecord]
	events     *cache.TypedCache[model.EventRecord]
	group      singleflight.Group
	metrics    *metrics.Metrics
	ring       *logging.RingHandler
	info       version.Info
	logger     *slog.Logger

	now func() time.Time
}

// New creates the dispatcher. backend may be nil to disable caching;
// ring may be nil when no status log ring is wired.
func New(cfg *config.Config, client *indico.Client, backend cache.Cacher, m *metrics.Metrics, ring *logging.RingHandler, info version.Info, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}

	s := &Service{
		cfg:        cfg,
		client:     client,
		normalizer: normalize.New(),
		backend:    backend,
		metrics:    m,
		ring:       ring,
		info:       info,
		logger:     logger,
		now:        time.Now,
	}
	if backend != nil {
		ttl := cfg.CacheTTLDuration()
		s.lists = cache.NewTypedCache[[]model.EventRecord](backend, ttl)
		s.events = cache.NewTypedCache[model.EventRecord](backend, ttl)
	}
	return s
}

// SearchEvents searches upcoming public events by keyword.
func (s *Service) SearchEvents(ctx context.Context, req SearchRequest) ([]model.EventRecord, error) {
	if req.Keyword == "" {
		err := &query.ValidationError{Field: "keyword", Reason: "must be a non-empty string"}
		s.metrics.ToolCalls.WithLabelValues("search_events", "error").Inc()
		return nil, err
	}

	plan, err := query.Plan(query.Params{
		Keyword:    req.Keyword,
		Limit:      req.Limit,
		CategoryID: req.CategoryID,
		DaysAhead:  req.DaysAhead,
		FromDate:   req.FromDate,
		ToDate:     req.ToDate,
	}, s.now(), query.DefaultSearchDays)
	if err != nil {
		s.metrics.ToolCalls.WithLabelValues("search_events", "error").Inc()
		return nil, err
	}
	if plan.Keyword == "" {
		err := &query.ValidationError{Field: "keyword", Reason: "must not be blank"}
		s.metrics.ToolCalls.WithLabelValues("search_events", "error").Inc()
		return nil, err
	}

	return s.listQuery(ctx, "search_events", plan)
}

// UpcomingPublic lists near-term public events. It is search_events with
// an empty keyword and a shorter default lookahead.
func (s *Service) UpcomingPublic(ctx context.Context, req UpcomingRequest) ([]model.EventRecord, error) {
	plan, err := query.Plan(query.Params{
		Limit:      req.Limit,
		CategoryID: req.CategoryID,
		DaysAhead:  req.Days,
		FromDate:   req.FromDate,
		ToDate:     req.ToDate,
	}, s.now(), query.DefaultUpcomingDays)
	if err != nil {
		s.metrics.ToolCalls.WithLabelValues("upcoming_public", "error").Inc()
		return nil, err
	}

	return s.listQuery(ctx, "upcoming_public", plan)
}

// GetEventDetails fetches one event by identifier.
func (s *Service) GetEventDetails(ctx context.Context, eventID int64) (*model.EventRecord, error) {
	if err := query.ValidateEventID(eventID); err != nil {
		s.metrics.ToolCalls.WithLabelValues("get_event_details", "error").Inc()
		return nil, err
	}

	key := query.EventKey(eventID)
	if s.events != nil {
		if record, ok := s.events.Get(ctx, key); ok {
			s.metrics.CacheHits.Inc()
			s.metrics.ToolCalls.WithLabelValues("get_event_details", "success").Inc()
			return record, nil
		}
		s.metrics.CacheMisses.Inc()
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		raw, err := s.client.FetchEvent(ctx, eventID)
		if err != nil {
			return nil, err
		}

		// No partial result exists for a single lookup, so a malformed
		// payload is an error here, unlike in list operations.
		record, err := s.normalizer.Normalize(raw)
		if err != nil {
			return nil, err
		}

		if s.events != nil {
			if err := s.events.Set(ctx, key, &record); err != nil {
				s.logger.Warn("cache store failed", "key", key, "error", err)
			}
		}
		return &record, nil
	})
	if err != nil {
		s.metrics.ToolCalls.WithLabelValues("get_event_details", "error").Inc()
		return nil, err
	}

	s.metrics.ToolCalls.WithLabelValues("get_event_details", "success").Inc()
	return result.(*model.EventRecord), nil
}

// Status reports a point-in-time service snapshot. It never touches the
// network or the upstream adapter.
func (s *Service) Status(_ context.Context) model.ServiceStatus {
	status := model.ServiceStatus{
		Version:          s.info.String(),
		BaseURL:          s.cfg.BaseURL,
		PublicOnly:       true,
		DefaultLimit:     query.DefaultLimit,
		MaxLimit:         query.MaxLimit,
		UpstreamRequests: s.FetchCount(),
		Cache: model.CacheStatus{
			Enabled: s.backend != nil,
			TTL:     s.cfg.CacheTTL,
		},
	}
	switch {
	case !status.Cache.Enabled:
		// no backend, no backend detail
	case s.cfg.UseRedisCache():
		// the entry capacity is a memory-backend limit; Redis manages
		// its own eviction
		status.Cache.Backend = "redis"
	default:
		status.Cache.Backend = "memory"
		status.Cache.Capacity = s.cfg.CacheMaxSize
	}

	if sp, ok := s.backend.(cache.StatsProvider); ok {
		stats := sp.Stats()
		status.Cache.Items = stats.Items
		status.Cache.Hits = stats.Hits
		status.Cache.Misses = stats.Misses
		status.Cache.Sets = stats.Sets
		status.Cache.HitRate = stats.HitRate
		s.metrics.CacheItems.Set(float64(stats.Items))
	}

	if s.ring != nil {
		status.RecentIssues = s.ring.Recent()
	}

	s.metrics.ToolCalls.WithLabelValues("server_status", "success").Inc()
	return status
}

// listQuery runs the shared pipeline for sequence-returning operations.
// Cached entries hold the full filtered set, so the limit is re-applied
// on every return, hit or miss.
func (s *Service) listQuery(ctx context.Context, tool string, plan query.Request) ([]model.EventRecord, error) {
	callID := uuid.NewString()
	key := plan.CacheKey()

	if s.lists != nil {
		if records, ok := s.lists.Get(ctx, key); ok {
			s.metrics.CacheHits.Inc()
			s.metrics.ToolCalls.WithLabelValues(tool, "success").Inc()
			s.logger.Debug("cache hit", "tool", tool, "call_id", callID, "key", key)
			return plan.Truncate(*records), nil
		}
		s.metrics.CacheMisses.Inc()
	}

	// Concurrent identical misses share one upstream fetch.
	result, err, shared := s.group.Do(key, func() (any, error) {
		records, err := s.fetchFiltered(ctx, plan)
		if err != nil {
			return nil, err
		}
		if s.lists != nil {
			if err := s.lists.Set(ctx, key, &records); err != nil {
				s.logger.Warn("cache store failed", "key", key, "error", err)
			}
		}
		return records, nil
	})
	if err != nil {
		s.metrics.ToolCalls.WithLabelValues(tool, "error").Inc()
		return nil, err
	}

	s.metrics.ToolCalls.WithLabelValues(tool, "success").Inc()

	records := result.([]model.EventRecord)
	s.logger.Info("query served",
		"tool", tool,
		"call_id", callID,
		"matches", len(records),
		"shared_fetch", shared,
	)
	return plan.Truncate(records), nil
}

// fetchFiltered pulls upstream pages until the filtered result satisfies
// the limit or no more pages exist, bounded by query.MaxPages. The
// returned set is filtered and sorted but not truncated.
func (s *Service) fetchFiltered(ctx context.Context, plan query.Request) ([]model.EventRecord, error) {
	fetchSize := plan.FetchSize()

	var collected []model.EventRecord
	skippedTotal := 0
	for page := 0; page < query.MaxPages; page++ {
		raws, err := s.client.FetchEvents(ctx, plan.CategoryID, plan.From, plan.To, fetchSize, page*fetchSize)
		if err != nil {
			return nil, err
		}

		records, skipped := s.normalizer.NormalizeList(raws)
		skippedTotal += skipped
		collected = append(collected, records...)

		filtered := plan.Filter(collected)
		if len(filtered) >= plan.Limit || len(raws) < fetchSize {
			break
		}
	}

	if skippedTotal > 0 {
		s.logger.Warn("skipped malformed upstream records", "count", skippedTotal)
	}

	filtered := plan.Filter(collected)
	query.Sort(filtered)
	return filtered, nil
}

// FetchCount exposes the adapter's HTTP attempt counter. Intended for
// status reporting and tests.
func (s *Service) FetchCount() int64 {
	return s.client.Requests()
}

// String identifies the service in logs.
func (s *Service) String() string {
	return fmt.Sprintf("indiq %s (%s)", s.info.String(), s.cfg.BaseURL)
}
