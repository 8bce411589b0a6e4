// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(size int) (*slog.Logger, *RingHandler) {
	inner := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})
	ring := NewRingHandler(inner, size)
	return slog.New(ring), ring
}

func TestRingHandlerRetainsWarnings(t *testing.T) {
	logger, ring := newTestLogger(8)

	logger.Info("routine message")
	logger.Warn("cache backend slow", "latency_ms", 250)
	logger.Error("upstream failed", "status", 502)

	recent := ring.Recent()
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2 (INFO excluded)", len(recent))
	}
	if !strings.Contains(recent[0], "cache backend slow") || !strings.Contains(recent[0], "latency_ms=250") {
		t.Errorf("entry = %q", recent[0])
	}
	if !strings.Contains(recent[1], "upstream failed") {
		t.Errorf("entry = %q", recent[1])
	}
}

func TestRingHandlerWrapsAround(t *testing.T) {
	logger, ring := newTestLogger(3)

	for i := 0; i < 5; i++ {
		logger.Warn("issue", "n", i)
	}

	recent := ring.Recent()
	if len(recent) != 3 {
		t.Fatalf("got %d entries, want 3", len(recent))
	}
	// Oldest retained is n=2.
	if !strings.Contains(recent[0], "n=2") || !strings.Contains(recent[2], "n=4") {
		t.Errorf("unexpected order: %v", recent)
	}
}

func TestRingHandlerDerivedSharesRing(t *testing.T) {
	logger, ring := newTestLogger(4)

	logger.With("component", "cache").Warn("evicting")
	logger.WithGroup("upstream").Warn("retrying")

	if got := len(ring.Recent()); got != 2 {
		t.Errorf("got %d entries, want 2 from derived handlers", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
