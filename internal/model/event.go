// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the canonical record shapes shared across the service.
package model

import "time"

// EventRecord is the canonical, normalized representation of a single event.
// It is produced only by the normalizer and never mutated afterwards.
// Start and End always carry an explicit UTC offset; optional fields are
// empty strings, never absent.
type EventRecord struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	CategoryID  int64     `json:"category_id"`
	Location    string    `json:"location"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
}
