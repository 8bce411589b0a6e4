// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"errors"
	"fmt"

	"github.com/olegiv/indiq/internal/indico"
	"github.com/olegiv/indiq/internal/normalize"
	"github.com/olegiv/indiq/internal/query"
)

// Error kinds crossing the tool-call boundary. Every failure carries a
// stable kind tag and a human-readable message; raw transport detail
// stays inside the service.
const (
	KindValidation      = "validation_error"
	KindTimeout         = "timeout"
	KindUnavailable     = "upstream_unavailable"
	KindUpstream        = "upstream_error"
	KindNotFound        = "not_found"
	KindMalformedRecord = "malformed_record"
	KindInternal        = "internal_error"
)

// Classify maps an internal error to its boundary kind and message.
func Classify(err error) (kind, message string) {
	var ve *query.ValidationError
	if errors.As(err, &ve) {
		return KindValidation, ve.Error()
	}

	if errors.Is(err, normalize.ErrMalformedRecord) {
		return KindMalformedRecord, "event payload could not be normalized"
	}

	var ue *indico.Error
	if errors.As(err, &ue) {
		switch ue.Kind {
		case indico.KindTimeout:
			return KindTimeout, "upstream request timed out"
		case indico.KindUnavailable:
			return KindUnavailable, "upstream service is unreachable"
		case indico.KindNotFound:
			return KindNotFound, ue.Message
		default:
			return KindUpstream, fmt.Sprintf("upstream error (HTTP %d)", ue.Status)
		}
	}

	return KindInternal, "internal error"
}
