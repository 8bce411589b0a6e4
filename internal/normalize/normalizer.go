// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package normalize maps heterogeneous raw upstream payloads into the
// canonical EventRecord shape. Normalization is pure: no I/O, no state.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/indiq/internal/model"
)

// MaxDescriptionLen bounds normalized description text (in runes) so
// response payload sizes stay predictable.
const MaxDescriptionLen = 1000

// ErrMalformedRecord marks payloads whose required fields (identifier,
// title, start time) are absent or unparsable.
var ErrMalformedRecord = errors.New("malformed record")

// flexInt64 decodes upstream identifiers that arrive either as JSON
// numbers or as quoted strings. Unparsable values decode to zero, which
// the validation in Normalize then rejects where the field is required.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt64(n)
	return nil
}

// rawDate is the upstream timestamp shape: a date, an optional wall-clock
// time, and an optional IANA timezone.
type rawDate struct {
	Date string `json:"date"`
	Time string `json:"time"`
	Tz   string `json:"tz"`
}

// rawEvent covers the upstream payload fields the canonical record is
// built from. Everything else in the payload is ignored.
type rawEvent struct {
	ID           flexInt64 `json:"id"`
	Title        string    `json:"title"`
	StartDate    *rawDate  `json:"startDate"`
	EndDate      *rawDate  `json:"endDate"`
	CategoryID   flexInt64 `json:"categoryId"`
	Category     flexInt64 `json:"category"` // older payloads use this name
	RoomFullname string    `json:"roomFullname"`
	Location     string    `json:"location"`
	URL          string    `json:"url"`
	Description  string    `json:"description"`
}

// Normalizer converts raw upstream payloads into EventRecord values.
type Normalizer struct {
	sanitizer *bluemonday.Policy
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Normalize converts one raw payload into a canonical EventRecord.
// Timestamps are converted to UTC, optional fields default to empty
// strings, and descriptions are stripped of HTML and length-bounded.
func (n *Normalizer) Normalize(raw json.RawMessage) (model.EventRecord, error) {
	var ev rawEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return model.EventRecord{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	if ev.ID <= 0 {
		return model.EventRecord{}, fmt.Errorf("%w: missing or invalid identifier", ErrMalformedRecord)
	}
	if strings.TrimSpace(ev.Title) == "" {
		return model.EventRecord{}, fmt.Errorf("%w: missing title", ErrMalformedRecord)
	}

	start, err := parseDate(ev.StartDate)
	if err != nil {
		return model.EventRecord{}, fmt.Errorf("%w: start time: %v", ErrMalformedRecord, err)
	}

	// A missing or unparsable end collapses to the start instant; the end
	// is optional upstream and downstream consumers never branch on absence.
	end, err := parseDate(ev.EndDate)
	if err != nil {
		end = start
	}

	categoryID := int64(ev.CategoryID)
	if categoryID == 0 {
		categoryID = int64(ev.Category)
	}

	return model.EventRecord{
		ID:          int64(ev.ID),
		Title:       strings.TrimSpace(ev.Title),
		Start:       start,
		End:         end,
		CategoryID:  categoryID,
		Location:    pickLocation(ev),
		URL:         ev.URL,
		Description: n.cleanDescription(ev.Description),
	}, nil
}

// NormalizeList converts a batch, skipping malformed items.
// Returns the normalized records and the number of items skipped.
func (n *Normalizer) NormalizeList(raws []json.RawMessage) ([]model.EventRecord, int) {
	records := make([]model.EventRecord, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		record, err := n.Normalize(raw)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, record)
	}
	return records, skipped
}

// parseDate converts the upstream timestamp shape into a UTC instant.
func parseDate(d *rawDate) (time.Time, error) {
	if d == nil || d.Date == "" {
		return time.Time{}, errors.New("missing date")
	}

	loc := time.UTC
	if d.Tz != "" {
		l, err := time.LoadLocation(d.Tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown timezone %q", d.Tz)
		}
		loc = l
	}

	if d.Time == "" {
		t, err := time.ParseInLocation("2006-01-02", d.Date, loc)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}

	t, err := time.ParseInLocation("2006-01-02 15:04:05", d.Date+" "+d.Time, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// pickLocation prefers the specific room over the generic venue.
func pickLocation(ev rawEvent) string {
	if ev.RoomFullname != "" {
		return ev.RoomFullname
	}
	return ev.Location
}

// cleanDescription strips HTML markup, unescapes entities, collapses
// whitespace runs and truncates to MaxDescriptionLen runes.
func (n *Normalizer) cleanDescription(s string) string {
	if s == "" {
		return ""
	}

	text := html.UnescapeString(n.sanitizer.Sanitize(s))
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) > MaxDescriptionLen {
		text = string(runes[:MaxDescriptionLen])
	}
	return text
}
