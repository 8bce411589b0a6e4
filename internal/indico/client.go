// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package indico is the HTTP adapter for the upstream event-management API.
// It is purely transport plus failure classification: it never caches,
// normalizes or filters, and it returns raw payload items untouched.
package indico

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxResponseLen = 10 << 20 // 10MB cap on upstream response bodies
	rateBurst      = 10
)

// Client issues requests against an Indico-compatible export API.
// Only public data is ever requested; the client carries no credentials.
type Client struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
	userAgent  string
	observe    func(outcome string)
	logger     *slog.Logger

	requests atomic.Int64 // total HTTP attempts, for status reporting
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration // per-attempt deadline
	MaxRetries int           // retries after the first attempt, transient failures only
	Backoff    time.Duration // initial backoff, doubled per retry
	RateLimit  float64       // upstream requests per second
	UserAgent  string
	Logger     *slog.Logger

	// ObserveRequest, when set, is called once per HTTP attempt with the
	// outcome label "success" or "error". Retries count individually.
	ObserveRequest func(outcome string)
}

// New creates a Client with a tuned shared transport.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: opts.BaseURL,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), rateBurst),
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		timeout:    opts.Timeout,
		userAgent:  opts.UserAgent,
		observe:    opts.ObserveRequest,
		logger:     logger,
	}
}

// listEnvelope is the upstream wrapper around result payloads.
type listEnvelope struct {
	Count   int               `json:"count"`
	Results []json.RawMessage `json:"results"`
}

// Requests returns the total number of HTTP attempts made so far.
func (c *Client) Requests() int64 {
	return c.requests.Load()
}

// FetchEvents retrieves one page of raw event payloads for a category and
// date window. A zero category queries all categories. The from/to bounds
// are inclusive dates; limit and offset page through the upstream result.
func (c *Client) FetchEvents(ctx context.Context, categoryID int64, from, to time.Time, limit, offset int) ([]json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/export/categ/%d.json", c.baseURL, categoryID)
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("order", "start")
	params.Set("onlypublic", "yes")
	if offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", offset))
	}

	body, err := c.doRequest(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var envelope listEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &Error{Kind: KindUpstream, Message: "unparsable upstream payload", Cause: err}
	}

	c.logger.Debug("fetched events page",
		"category_id", categoryID,
		"from", params.Get("from"),
		"to", params.Get("to"),
		"offset", offset,
		"count", len(envelope.Results),
	)
	return envelope.Results, nil
}

// FetchEvent retrieves the raw payload of a single event.
// Returns a KindNotFound error if the upstream has no such public event.
func (c *Client) FetchEvent(ctx context.Context, eventID int64) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/export/event/%d.json", c.baseURL, eventID)
	params := url.Values{}
	params.Set("onlypublic", "yes")
	params.Set("detail", "events")

	body, err := c.doRequest(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var envelope listEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &Error{Kind: KindUpstream, Message: "unparsable upstream payload", Cause: err}
	}
	if len(envelope.Results) == 0 {
		return nil, &Error{Kind: KindNotFound, Message: fmt.Sprintf("no public event with id %d", eventID)}
	}

	return envelope.Results[0], nil
}

// doRequest performs a GET with bounded retries and exponential backoff.
// Only transient failures are retried; the per-attempt deadline never
// affects sibling requests.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindTimeout, Message: "rate limiter wait aborted", Cause: err}
	}

	fullURL := endpoint + "?" + params.Encode()

	var lastErr *Error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &Error{Kind: KindTimeout, Message: "aborted while waiting to retry", Cause: ctx.Err()}
			}
			c.logger.Debug("retrying upstream request", "url", endpoint, "attempt", attempt+1)
		}

		body, err := c.attempt(ctx, fullURL)
		if err == nil {
			return body, nil
		}

		lastErr = err
		if !err.retryable() {
			break
		}
	}

	c.logger.Warn("upstream request failed",
		"url", endpoint,
		"kind", string(lastErr.Kind),
		"status", lastErr.Status,
	)
	return nil, lastErr
}

// attempt performs a single HTTP GET under its own deadline and classifies
// the outcome.
func (c *Client) attempt(ctx context.Context, fullURL string) ([]byte, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: "building request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.requests.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		c.observeOutcome("error")
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &Error{Kind: KindTimeout, Message: "request deadline exceeded", Cause: err}
		}
		return nil, &Error{Kind: KindUnavailable, Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observeOutcome("error")
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseLen))
		if resp.StatusCode == http.StatusNotFound {
			return nil, &Error{Kind: KindNotFound, Status: resp.StatusCode, Message: "resource not found"}
		}
		return nil, &Error{
			Kind:    KindUpstream,
			Status:  resp.StatusCode,
			Message: http.StatusText(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	if err != nil {
		c.observeOutcome("error")
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &Error{Kind: KindTimeout, Message: "reading response", Cause: err}
		}
		return nil, &Error{Kind: KindUnavailable, Message: "reading response", Cause: err}
	}
	c.observeOutcome("success")
	return body, nil
}

// observeOutcome reports one HTTP attempt to the configured observer.
func (c *Client) observeOutcome(outcome string) {
	if c.observe != nil {
		c.observe(outcome)
	}
}

// isTimeout reports whether err is a network-level timeout.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
