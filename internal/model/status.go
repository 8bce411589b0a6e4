// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// CacheStatus is a point-in-time snapshot of the response cache.
type CacheStatus struct {
	Enabled  bool    `json:"enabled"`
	Backend  string  `json:"backend"` // "memory" or "redis"
	Items    int     `json:"items"`
	Capacity int     `json:"capacity"`
	TTL      int     `json:"ttl_seconds"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Sets     int64   `json:"sets"`
	HitRate  float64 `json:"hit_rate"`
}

// ServiceStatus is the payload of the server_status operation.
// It is computed on demand and never stored.
type ServiceStatus struct {
	Version          string      `json:"version"`
	BaseURL          string      `json:"base_url"`
	PublicOnly       bool        `json:"public_only"`
	DefaultLimit     int         `json:"default_limit"`
	MaxLimit         int         `json:"max_limit"`
	UpstreamRequests int64       `json:"upstream_requests"` // HTTP attempts since start
	Cache            CacheStatus `json:"cache"`
	RecentIssues []string    `json:"recent_issues,omitempty"` // last WARN+ log lines
}
