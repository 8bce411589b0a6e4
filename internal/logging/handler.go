// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a custom slog handler that keeps a bounded
// in-memory ring of WARN and ERROR records, so the latest problems can be
// reported by the status operation without any persistent storage.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// RingHandler is a slog.Handler that wraps another handler and retains the
// most recent records at or above a threshold level.
type RingHandler struct {
	inner slog.Handler
	level slog.Level

	mu      sync.Mutex
	entries []string
	next    int
	full    bool
}

// NewRingHandler creates a RingHandler keeping the last size records at
// WARN level and above.
func NewRingHandler(inner slog.Handler, size int) *RingHandler {
	if size <= 0 {
		size = 16
	}
	return &RingHandler{
		inner:   inner,
		level:   slog.LevelWarn,
		entries: make([]string, size),
	}
}

// Enabled implements slog.Handler.
func (h *RingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RingHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level {
		h.record(r)
	}
	return nil
}

// WithAttrs implements slog.Handler. The ring is shared with the derived
// handler so status reporting sees all records.
func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &derivedHandler{inner: h.inner.WithAttrs(attrs), ring: h}
}

// WithGroup implements slog.Handler.
func (h *RingHandler) WithGroup(name string) slog.Handler {
	return &derivedHandler{inner: h.inner.WithGroup(name), ring: h}
}

// Recent returns the retained records, oldest first.
func (h *RingHandler) Recent() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []string
	if h.full {
		out = append(out, h.entries[h.next:]...)
	}
	out = append(out, h.entries[:h.next]...)

	result := make([]string, 0, len(out))
	for _, e := range out {
		if e != "" {
			result = append(result, e)
		}
	}
	return result
}

func (h *RingHandler) record(r slog.Record) {
	var sb strings.Builder
	sb.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05Z"))
	sb.WriteString(" ")
	sb.WriteString(r.Level.String())
	sb.WriteString(" ")
	sb.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		sb.WriteString(fmt.Sprintf(" %s=%v", a.Key, a.Value.Any()))
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.next] = sb.String()
	h.next++
	if h.next == len(h.entries) {
		h.next = 0
		h.full = true
	}
}

// derivedHandler forwards to a derived inner handler while recording into
// the parent's ring.
type derivedHandler struct {
	inner slog.Handler
	ring  *RingHandler
}

func (d *derivedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return d.inner.Enabled(ctx, level)
}

func (d *derivedHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := d.inner.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level >= d.ring.level {
		d.ring.record(r)
	}
	return nil
}

func (d *derivedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &derivedHandler{inner: d.inner.WithAttrs(attrs), ring: d.ring}
}

func (d *derivedHandler) WithGroup(name string) slog.Handler {
	return &derivedHandler{inner: d.inner.WithGroup(name), ring: d.ring}
}

// ParseLevel converts a configuration string into a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
