// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package indico

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable failure category. It is the only part
// of an upstream failure that crosses the tool-call boundary.
type Kind string

const (
	// KindTimeout means the request deadline elapsed, retries included.
	KindTimeout Kind = "timeout"

	// KindUnavailable means the upstream could not be reached at all.
	KindUnavailable Kind = "upstream_unavailable"

	// KindUpstream means the upstream answered with a non-success status.
	KindUpstream Kind = "upstream_error"

	// KindNotFound means the upstream reported that the resource does not exist.
	KindNotFound Kind = "not_found"
)

// Error is a categorized upstream failure.
type Error struct {
	Kind    Kind
	Status  int // HTTP status, 0 for transport failures
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, allowing errors.Is/As chaining.
func (e *Error) Unwrap() error {
	return e.Cause
}

// retryable reports whether a failure of this kind may succeed on retry.
// Client errors are the caller's fault and are never retried; 408 and 429
// are the transient exceptions, like 5xx.
func (e *Error) retryable() bool {
	switch e.Kind {
	case KindTimeout, KindUnavailable:
		return true
	case KindUpstream:
		return e.Status >= 500 || e.Status == 408 || e.Status == 429
	default:
		return false
	}
}

// IsNotFound reports whether err is an upstream not-found failure.
func IsNotFound(err error) bool {
	var ue *Error
	return errors.As(err, &ue) && ue.Kind == KindNotFound
}

// KindOf extracts the failure kind from err, or "" if err is not an
// upstream failure.
func KindOf(err error) Kind {
	var ue *Error
	if !errors.As(err, &ue) {
		return ""
	}
	return ue.Kind
}
