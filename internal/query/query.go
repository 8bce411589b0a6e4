// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package query turns caller parameters into validated query requests,
// upstream request sizing and client-side post-filters.
package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/olegiv/indiq/internal/model"
)

const (
	// DefaultLimit is the result limit when the caller does not supply one.
	DefaultLimit = 10

	// MaxLimit caps the result limit; larger requests are clamped, not rejected.
	MaxLimit = 500

	// DefaultSearchDays is the lookahead window for keyword search.
	DefaultSearchDays = 30

	// DefaultUpcomingDays is the lookahead window for the upcoming listing.
	DefaultUpcomingDays = 7

	// MaxWindowDays bounds any date window, relative or explicit.
	MaxWindowDays = 365

	// MaxKeywordLen bounds the search keyword.
	MaxKeywordLen = 200

	// MaxPages bounds upstream re-fetching when client-side filtering
	// leaves the result short.
	MaxPages = 3

	fetchMultiplier = 3
	minFetchSize    = 100

	dateLayout = "2006-01-02"
)

// ValidationError reports the first caller-supplied parameter that
// violates a documented constraint. It is never retried and is returned
// before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Params is raw caller intent, prior to validation.
// A nil DaysAhead means the caller did not supply a relative window.
type Params struct {
	Keyword    string
	Limit      int
	CategoryID int64
	DaysAhead  *int
	FromDate   string
	ToDate     string
}

// Request is a validated, immutable query. Construct only via Plan.
type Request struct {
	Keyword    string
	From       time.Time // inclusive, UTC midnight
	To         time.Time // inclusive date, UTC midnight
	CategoryID int64
	Limit      int
}

// Plan validates caller parameters and builds the canonical Request.
// defaultDays is the relative lookahead applied when the caller supplies
// neither an explicit window nor days ahead. The explicit window always
// wins over a relative one.
func Plan(p Params, now time.Time, defaultDays int) (Request, error) {
	if p.Limit <= 0 {
		return Request{}, &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be at least 1, got %d", p.Limit)}
	}
	limit := p.Limit
	if limit > MaxLimit {
		limit = MaxLimit
	}

	keyword := strings.TrimSpace(p.Keyword)
	if len(keyword) > MaxKeywordLen {
		return Request{}, &ValidationError{Field: "keyword", Reason: fmt.Sprintf("too long (max %d chars), got %d", MaxKeywordLen, len(keyword))}
	}

	if p.CategoryID < 0 {
		return Request{}, &ValidationError{Field: "category_id", Reason: fmt.Sprintf("must be non-negative, got %d", p.CategoryID)}
	}

	from := now.UTC().Truncate(24 * time.Hour)
	if p.FromDate != "" {
		t, err := time.Parse(dateLayout, p.FromDate)
		if err != nil {
			return Request{}, &ValidationError{Field: "from_date", Reason: fmt.Sprintf("invalid date %q, use YYYY-MM-DD", p.FromDate)}
		}
		from = t
	}

	var to time.Time
	switch {
	case p.ToDate != "":
		// An explicit end date always wins; days_ahead is ignored entirely.
		t, err := time.Parse(dateLayout, p.ToDate)
		if err != nil {
			return Request{}, &ValidationError{Field: "to_date", Reason: fmt.Sprintf("invalid date %q, use YYYY-MM-DD", p.ToDate)}
		}
		to = t
	case p.DaysAhead != nil:
		days := *p.DaysAhead
		if days < 0 {
			return Request{}, &ValidationError{Field: "days_ahead", Reason: fmt.Sprintf("must be non-negative, got %d", days)}
		}
		if days > MaxWindowDays {
			return Request{}, &ValidationError{Field: "days_ahead", Reason: fmt.Sprintf("cannot exceed %d, got %d", MaxWindowDays, days)}
		}
		to = from.AddDate(0, 0, days)
	default:
		to = from.AddDate(0, 0, defaultDays)
	}

	if to.Before(from) {
		return Request{}, &ValidationError{
			Field:  "to_date",
			Reason: fmt.Sprintf("end date %s is before start date %s", to.Format(dateLayout), from.Format(dateLayout)),
		}
	}
	if to.Sub(from) > MaxWindowDays*24*time.Hour {
		return Request{}, &ValidationError{
			Field:  "to_date",
			Reason: fmt.Sprintf("date range cannot exceed %d days", MaxWindowDays),
		}
	}

	return Request{
		Keyword:    keyword,
		From:       from,
		To:         to,
		CategoryID: p.CategoryID,
		Limit:      limit,
	}, nil
}

// ValidateEventID checks a single-event identifier.
func ValidateEventID(id int64) error {
	if id <= 0 {
		return &ValidationError{Field: "event_id", Reason: fmt.Sprintf("must be positive, got %d", id)}
	}
	return nil
}

// CacheKey returns the canonical cache key for this request. The limit is
// deliberately excluded: queries differing only in limit share one cached
// entry holding the full filtered set, truncated per call on the way out.
func (r Request) CacheKey() string {
	return fmt.Sprintf("events:v1:cat=%d:from=%s:to=%s:kw=%s",
		r.CategoryID,
		r.From.Format(dateLayout),
		r.To.Format(dateLayout),
		fold(r.Keyword),
	)
}

// EventKey returns the cache key for a single-event lookup. It lives in a
// separate namespace from list queries.
func EventKey(id int64) string {
	return fmt.Sprintf("event:v1:%d", id)
}

// FetchSize returns the upstream page size for a requested limit,
// over-fetching to absorb client-side filter attrition.
func (r Request) FetchSize() int {
	size := r.Limit * fetchMultiplier
	if size < minFetchSize {
		size = minFetchSize
	}
	if size > MaxLimit {
		size = MaxLimit
	}
	return size
}

// Filter applies the client-side post-filters: date window, exact
// category and case-insensitive keyword match against title and
// description. It runs after normalization and before limiting.
func (r Request) Filter(records []model.EventRecord) []model.EventRecord {
	windowEnd := r.To.AddDate(0, 0, 1) // To is an inclusive date
	keyword := fold(r.Keyword)

	out := make([]model.EventRecord, 0, len(records))
	for _, rec := range records {
		if rec.Start.Before(r.From) || !rec.Start.Before(windowEnd) {
			continue
		}
		if r.CategoryID != 0 && rec.CategoryID != r.CategoryID {
			continue
		}
		if keyword != "" &&
			!strings.Contains(fold(rec.Title), keyword) &&
			!strings.Contains(fold(rec.Description), keyword) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Sort orders records ascending by start time, ties broken by ascending
// identifier, so output is deterministic.
func Sort(records []model.EventRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Start.Equal(records[j].Start) {
			return records[i].Start.Before(records[j].Start)
		}
		return records[i].ID < records[j].ID
	})
}

// Truncate applies the result limit by truncation, after filtering and
// sorting.
func (r Request) Truncate(records []model.EventRecord) []model.EventRecord {
	if len(records) > r.Limit {
		return records[:r.Limit]
	}
	return records
}

// fold lower-cases with full Unicode case folding, so keyword matching is
// case-insensitive beyond ASCII.
func fold(s string) string {
	return cases.Fold().String(s)
}
