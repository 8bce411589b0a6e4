// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package version

import "testing"

func TestInfoString(t *testing.T) {
	info := Info{Version: "v1.0.0", GitCommit: "abc1234", BuildTime: "2025-01-30T12:00:00Z"}
	if got := info.String(); got != "v1.0.0 (abc1234)" {
		t.Errorf("String() = %q", got)
	}
}

func TestInfoStringZeroValue(t *testing.T) {
	var info Info
	if got := info.String(); got != "dev" {
		t.Errorf("zero value String() = %q, want dev", got)
	}
}
