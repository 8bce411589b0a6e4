// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/indiq/internal/cache"
	"github.com/olegiv/indiq/internal/config"
	"github.com/olegiv/indiq/internal/indico"
	"github.com/olegiv/indiq/internal/model"
	"github.com/olegiv/indiq/internal/normalize"
	"github.com/olegiv/indiq/internal/query"
	"github.com/olegiv/indiq/internal/version"
)

var fixedNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

// upstream is a scriptable stand-in for the export API.
type upstream struct {
	srv *httptest.Server

	listCalls  atomic.Int64
	eventCalls atomic.Int64

	listResults []map[string]any
	eventResult map[string]any // nil serves an empty envelope
	delay       time.Duration  // per-request latency
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()

	u := &upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u.delay > 0 {
			time.Sleep(u.delay)
		}

		var results []map[string]any
		switch {
		case strings.HasPrefix(r.URL.Path, "/export/categ/"):
			u.listCalls.Add(1)
			results = u.listResults
		case strings.HasPrefix(r.URL.Path, "/export/event/"):
			u.eventCalls.Add(1)
			if u.eventResult != nil {
				results = []map[string]any{u.eventResult}
			}
		default:
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]any{
			"count":   len(results),
			"results": results,
		})
		if err != nil {
			t.Errorf("encoding fixture response: %v", err)
		}
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func eventPayload(id int, title, date string) map[string]any {
	return map[string]any{
		"id":          id,
		"title":       title,
		"startDate":   map[string]string{"date": date, "time": "09:00:00", "tz": "UTC"},
		"endDate":     map[string]string{"date": date, "time": "10:00:00", "tz": "UTC"},
		"categoryId":  1,
		"url":         fmt.Sprintf("https://events.example/event/%d", id),
		"description": "general colloquium on applied physics",
	}
}

func newTestService(t *testing.T, u *upstream, withCache bool) *Service {
	t.Helper()

	cfg := &config.Config{
		BaseURL:        u.srv.URL,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     0,
		RetryBackoff:   10 * time.Millisecond,
		RateLimit:      1000,
		CacheEnabled:   withCache,
		CacheTTL:       300,
		CacheMaxSize:   64,
	}

	client := indico.New(indico.Options{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
		RateLimit:  cfg.RateLimit,
		UserAgent:  "indiq-test",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	var backend cache.Cacher
	if withCache {
		backend = cache.NewMemoryCache(cache.MemoryCacheOptions{
			DefaultTTL: cfg.CacheTTLDuration(),
			MaxSize:    cfg.CacheMaxSize,
		})
		t.Cleanup(func() { _ = backend.Close() })
	}

	svc := New(cfg, client, backend, nil, nil, version.Info{Version: "v0.0.0-test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestSearchEventsServedFromCacheWithinTTL(t *testing.T) {
	u := newUpstream(t)
	u.listResults = []map[string]any{
		eventPayload(1, "Physics Colloquium", "2026-09-03"),
		eventPayload(2, "Biology Lecture", "2026-09-04"),
	}
	svc := newTestService(t, u, true)

	first, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 10})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, int64(1), first[0].ID)
	assert.Equal(t, int64(1), u.listCalls.Load())

	second, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), u.listCalls.Load(), "repeat call within TTL must not refetch")
}

func TestSearchEventsRefetchesAfterTTL(t *testing.T) {
	u := newUpstream(t)
	u.listResults = []map[string]any{eventPayload(1, "Physics Colloquium", "2026-09-03")}
	svc := newTestService(t, u, true)

	// Shrink the TTL below what the config allows so expiry is observable.
	svc.lists = cache.NewTypedCache[[]model.EventRecord](svc.backend, 40*time.Millisecond)

	_, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), u.listCalls.Load())

	time.Sleep(60 * time.Millisecond)

	_, err = svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.listCalls.Load(), "expired entry must trigger exactly one refetch")
}

func TestSearchEventsConcurrentMissesShareFetch(t *testing.T) {
	u := newUpstream(t)
	u.delay = 80 * time.Millisecond
	u.listResults = []map[string]any{eventPayload(1, "Physics Colloquium", "2026-09-03")}
	svc := newTestService(t, u, true)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 10})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int64(1), u.listCalls.Load(), "concurrent identical misses must share one fetch")
}

func TestSearchEventsLimitReappliedOnCacheHit(t *testing.T) {
	u := newUpstream(t)
	u.listResults = []map[string]any{
		eventPayload(1, "physics a", "2026-09-03"),
		eventPayload(2, "physics b", "2026-09-04"),
		eventPayload(3, "physics c", "2026-09-05"),
	}
	svc := newTestService(t, u, true)

	wide, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 10})
	require.NoError(t, err)
	require.Len(t, wide, 3)

	// Same query at a narrower limit hits the entry stored above; the
	// limit must be re-applied on the way out.
	narrow, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 1})
	require.NoError(t, err)
	require.Len(t, narrow, 1)
	assert.Equal(t, wide[0], narrow[0])
	assert.Equal(t, int64(1), u.listCalls.Load(), "limit variants share one cache entry")
}

func TestSearchEventsValidationBeforeNetwork(t *testing.T) {
	u := newUpstream(t)
	svc := newTestService(t, u, true)

	cases := []struct {
		name string
		req  SearchRequest
	}{
		{"empty keyword", SearchRequest{Keyword: "", Limit: 10}},
		{"blank keyword", SearchRequest{Keyword: "   ", Limit: 10}},
		{"zero limit", SearchRequest{Keyword: "physics", Limit: 0}},
		{"negative limit", SearchRequest{Keyword: "physics", Limit: -5}},
		{"inverted window", SearchRequest{Keyword: "physics", Limit: 10, FromDate: "2026-09-10", ToDate: "2026-09-01"}},
		{"bad date", SearchRequest{Keyword: "physics", Limit: 10, FromDate: "September 1st"}},
		{"negative category", SearchRequest{Keyword: "physics", Limit: 10, CategoryID: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SearchEvents(context.Background(), tc.req)
			require.Error(t, err)

			var ve *query.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}

	assert.Equal(t, int64(0), u.listCalls.Load(), "validation failures must not reach the upstream")
}

func TestSearchEventsKeywordCaseInsensitive(t *testing.T) {
	u := newUpstream(t)
	u.listResults = []map[string]any{
		eventPayload(1, "PHYSICS workshop", "2026-09-03"),
		eventPayload(2, "chemistry seminar", "2026-09-04"),
	}
	svc := newTestService(t, u, true)

	lower, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 10})
	require.NoError(t, err)
	mixed, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "pHySiCs", Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, lower, mixed)
	require.Len(t, lower, 1)
	assert.Equal(t, int64(1), lower[0].ID)
	assert.Equal(t, int64(1), u.listCalls.Load(), "case variants must share one cache entry")
}

func TestSearchEventsMatchesDescription(t *testing.T) {
	u := newUpstream(t)
	u.listResults = []map[string]any{
		eventPayload(1, "Morning Session", "2026-09-03"),
		{
			"id":          2,
			"title":       "Afternoon Session",
			"startDate":   map[string]string{"date": "2026-09-03", "time": "14:00:00", "tz": "UTC"},
			"categoryId":  1,
			"description": "Hands-on neutrino detector tutorial",
		},
	}
	svc := newTestService(t, u, true)

	records, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "neutrino", Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].ID)
}

func TestSearchEventsOrdering(t *testing.T) {
	u := newUpstream(t)
	u.listResults = []map[string]any{
		eventPayload(9, "physics c", "2026-09-05"),
		eventPayload(3, "physics a", "2026-09-02"),
		eventPayload(7, "physics tie-high", "2026-09-04"),
		eventPayload(2, "physics tie-low", "2026-09-04"),
	}
	svc := newTestService(t, u, true)

	records, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 4)

	var ids []int64
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{3, 2, 7, 9}, ids, "ascending start, ties by ascending id")
}

func TestSearchEventsLimitClampedNotRejected(t *testing.T) {
	u := newUpstream(t)
	u.listResults = []map[string]any{eventPayload(1, "physics", "2026-09-03")}
	svc := newTestService(t, u, true)

	records, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 5000})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSearchEventsSkipsMalformedRecords(t *testing.T) {
	u := newUpstream(t)
	u.listResults = []map[string]any{
		eventPayload(1, "physics a", "2026-09-03"),
		{"id": 2, "startDate": map[string]string{"date": "2026-09-03"}}, // no title
		{"id": 3, "title": "physics b"},                                // no start
		eventPayload(4, "physics c", "2026-09-04"),
	}
	svc := newTestService(t, u, true)

	records, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 10})
	require.NoError(t, err, "malformed list items are skipped, not fatal")
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].ID)
	assert.Equal(t, int64(4), records[1].ID)
}

func TestUpcomingPublicWindowAndLimit(t *testing.T) {
	u := newUpstream(t)
	for i := 1; i <= 25; i++ {
		day := (i-1)%5 + 2 // five events per day, Sep 2-6
		u.listResults = append(u.listResults,
			eventPayload(i, fmt.Sprintf("event %d", i), fmt.Sprintf("2026-09-%02d", day)))
	}
	svc := newTestService(t, u, true)

	days := 14
	records, err := svc.UpcomingPublic(context.Background(), UpcomingRequest{Days: &days, Limit: 20})
	require.NoError(t, err)
	require.Len(t, records, 20, "limit truncates the in-window set")

	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1], records[i]
		ordered := prev.Start.Before(cur.Start) ||
			(prev.Start.Equal(cur.Start) && prev.ID < cur.ID)
		assert.True(t, ordered, "records %d and %d out of order", i-1, i)
	}
}

func TestUpcomingPublicExcludesEventsOutsideWindow(t *testing.T) {
	u := newUpstream(t)
	u.listResults = []map[string]any{
		eventPayload(1, "soon", "2026-09-03"),
		eventPayload(2, "late", "2026-10-15"),
	}
	svc := newTestService(t, u, true)

	records, err := svc.UpcomingPublic(context.Background(), UpcomingRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1, "default 7-day window excludes the later event")
	assert.Equal(t, int64(1), records[0].ID)
}

func TestGetEventDetails(t *testing.T) {
	u := newUpstream(t)
	u.eventResult = eventPayload(42, "Detector Review", "2026-09-05")
	svc := newTestService(t, u, true)

	record, err := svc.GetEventDetails(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), record.ID)
	assert.Equal(t, "Detector Review", record.Title)
	require.Equal(t, int64(1), u.eventCalls.Load())

	// Second lookup is a cache hit.
	_, err = svc.GetEventDetails(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.eventCalls.Load())
}

func TestGetEventDetailsNotFound(t *testing.T) {
	u := newUpstream(t)
	u.eventResult = nil
	svc := newTestService(t, u, true)

	_, err := svc.GetEventDetails(context.Background(), 99999)
	require.Error(t, err)
	assert.True(t, indico.IsNotFound(err))

	kind, _ := Classify(err)
	assert.Equal(t, KindNotFound, kind)
}

func TestGetEventDetailsInvalidID(t *testing.T) {
	u := newUpstream(t)
	svc := newTestService(t, u, true)

	for _, id := range []int64{0, -7} {
		_, err := svc.GetEventDetails(context.Background(), id)
		require.Error(t, err)

		var ve *query.ValidationError
		assert.ErrorAs(t, err, &ve)
	}
	assert.Equal(t, int64(0), u.eventCalls.Load())
}

func TestGetEventDetailsMalformedPropagates(t *testing.T) {
	u := newUpstream(t)
	u.eventResult = map[string]any{"id": 7} // no title, no start
	svc := newTestService(t, u, true)

	_, err := svc.GetEventDetails(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, normalize.ErrMalformedRecord))

	kind, _ := Classify(err)
	assert.Equal(t, KindMalformedRecord, kind)
}

func TestCacheDisabledAlwaysFetches(t *testing.T) {
	u := newUpstream(t)
	u.listResults = []map[string]any{eventPayload(1, "physics", "2026-09-03")}
	svc := newTestService(t, u, false)

	for i := 0; i < 2; i++ {
		_, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 10})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), u.listCalls.Load())
}

func TestStatusNeverContactsUpstream(t *testing.T) {
	u := newUpstream(t)
	u.listResults = []map[string]any{eventPayload(1, "physics", "2026-09-03")}
	svc := newTestService(t, u, true)

	status := svc.Status(context.Background())
	assert.Equal(t, u.srv.URL, status.BaseURL)
	assert.True(t, status.PublicOnly)
	assert.Equal(t, query.DefaultLimit, status.DefaultLimit)
	assert.Equal(t, query.MaxLimit, status.MaxLimit)
	assert.Zero(t, status.UpstreamRequests)
	assert.True(t, status.Cache.Enabled)
	assert.Equal(t, "memory", status.Cache.Backend)
	assert.Equal(t, 64, status.Cache.Capacity)
	assert.Equal(t, 0, status.Cache.Items)

	_, err := svc.SearchEvents(context.Background(), SearchRequest{Keyword: "physics", Limit: 10})
	require.NoError(t, err)

	status = svc.Status(context.Background())
	assert.Equal(t, 1, status.Cache.Items, "one cached list entry after one search")
	assert.Equal(t, int64(1), status.UpstreamRequests, "one HTTP attempt so far")
	assert.Equal(t, int64(1), u.listCalls.Load(), "status must not fetch")
	assert.Equal(t, int64(0), u.eventCalls.Load())
}

func TestStatusRedisBackendOmitsCapacity(t *testing.T) {
	u := newUpstream(t)
	svc := newTestService(t, u, true)
	svc.cfg.RedisURL = "redis://localhost:6379/0"

	status := svc.Status(context.Background())
	assert.Equal(t, "redis", status.Cache.Backend)
	assert.Zero(t, status.Cache.Capacity, "entry capacity is a memory-backend limit")
}

func TestStatusWithCacheDisabled(t *testing.T) {
	u := newUpstream(t)
	svc := newTestService(t, u, false)

	status := svc.Status(context.Background())
	assert.False(t, status.Cache.Enabled)
	assert.Empty(t, status.Cache.Backend)
}
