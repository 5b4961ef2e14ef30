// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package esi is the gateway client for the EVE Swagger Interface.
//
// Every call goes through a response cache keyed by (character, endpoint):
// a stored Expires in the future short-circuits without a network call, and
// a stored ETag turns the request conditional. Transport failures and
// 502/503/504 retry with exponential backoff; when retries run out a
// cooldown entry is written so every poller sharing the cache backs off
// without coordination. A circuit breaker guards the upstream connection
// itself.
package esi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/arkonor/fleetglass/internal/cache"
	"github.com/arkonor/fleetglass/internal/config"
	"github.com/arkonor/fleetglass/internal/logging"
	"github.com/arkonor/fleetglass/internal/metrics"
)

const (
	// maxResponseBytes bounds upstream response bodies.
	maxResponseBytes = 8 << 20

	// metaTTL keeps ETags usable long after the short Expires window; a
	// conditional request with a week-old ETag still saves bandwidth.
	metaTTL = 24 * time.Hour
)

// cacheEntry is the persisted (etag, expires, body) triple for one
// (character, endpoint) pair.
type cacheEntry struct {
	ETag    string          `json:"etag,omitempty"`
	Expires time.Time       `json:"expires,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
}

// Response is the outcome of a Call.
type Response struct {
	Status int
	Data   []byte

	// Cached means the call was answered from the expiry cache without
	// touching the network. Data may be nil if only a cooldown entry
	// existed.
	Cached bool

	// NotModified means upstream answered 304; Data holds the previously
	// cached body.
	NotModified bool
}

// Client is the authenticated, caching, rate-limited ESI gateway.
type Client struct {
	cfg      config.ESIConfig
	http     *http.Client
	cache    cache.Store
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	limiter  *rate.Limiter
	notifier RateLimitNotifier
}

// New creates a gateway client. notifier may be nil.
func New(cfg config.ESIConfig, store cache.Store, notifier RateLimitNotifier) *Client {
	const cbName = "esi-gateway"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", breakerStateString(from)).
				Str("to", breakerStateString(to)).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, breakerStateString(from), breakerStateString(to)).Inc()
		},
	})

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		cache:    store,
		breaker:  breaker,
		limiter:  limiter,
		notifier: notifier,
	}
}

// Call executes one logical ESI request for a character.
//
// endpoint is the logical endpoint name used as the cache key and metric
// label; url is the full request URL. body, if non-nil, is JSON-encoded.
func (c *Client) Call(ctx context.Context, cred Credential, endpoint, method, url string, body any, forceRefresh bool) (*Response, error) {
	key := fmt.Sprintf("esi:cache:%d:%s", cred.CharacterID(), endpoint)
	entry := c.loadEntry(key)

	if !forceRefresh && entry != nil && time.Now().Before(entry.Expires) {
		metrics.ESICacheHits.WithLabelValues(endpoint).Inc()
		return &Response{Status: http.StatusOK, Data: entry.Body, Cached: true}, nil
	}

	token, err := cred.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body for %s: %w", endpoint, err)
		}
	}

	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.ESIRetries.WithLabelValues(endpoint).Inc()
			if err := sleepContext(ctx, c.cfg.RetryBaseDelay<<(attempt-1)); err != nil {
				return nil, err
			}
		}

		resp, retryable, err := c.attempt(ctx, cred, key, entry, endpoint, method, url, token, bodyBytes, forceRefresh)
		if err == nil {
			return resp, nil
		}
		if !retryable {
			// A terminal 5xx (e.g. a hard 500) still gets the cooldown so
			// concurrent pollers back off instead of re-hitting it each cycle.
			if errors.Is(err, ErrServer) {
				c.applyCooldown(key, entry)
			}
			return nil, err
		}
		lastErr = err
	}

	// Retries exhausted. Write a cooldown so other pollers sharing the cache
	// stop hammering this endpoint for a while.
	c.applyCooldown(key, entry)
	return nil, lastErr
}

// attempt performs one request/response round trip. retryable reports whether
// the failure class (transport, 502/503/504) is worth another attempt.
func (c *Client) attempt(ctx context.Context, cred Credential, key string, entry *cacheEntry, endpoint, method, url, token string, bodyBytes []byte, forceRefresh bool) (resp *Response, retryable bool, err error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, false, err
		}
	}

	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	} else {
		reader = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, false, fmt.Errorf("create request for %s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if entry != nil && entry.ETag != "" && !forceRefresh {
		req.Header.Set("If-None-Match", entry.ETag)
	}

	start := time.Now()
	httpResp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.http.Do(req)
	})
	metrics.ESIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, false, fmt.Errorf("%w: circuit open for %s", ErrServer, endpoint)
		}
		return nil, true, fmt.Errorf("%w: %s: %v", ErrTransport, endpoint, err)
	}

	data, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	_ = httpResp.Body.Close()

	c.forwardRateLimit(cred.AccountID(), httpResp.Header)
	metrics.ESIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(httpResp.StatusCode)).Inc()

	switch httpResp.StatusCode {
	case http.StatusOK:
		if readErr != nil {
			return nil, true, fmt.Errorf("%w: read %s response: %v", ErrTransport, endpoint, readErr)
		}
		c.storeEntry(key, httpResp.Header, data)
		return &Response{Status: http.StatusOK, Data: data}, false, nil

	case http.StatusNotModified:
		metrics.ESINotModified.WithLabelValues(endpoint).Inc()
		var cachedBody []byte
		if entry != nil {
			cachedBody = entry.Body
			c.storeEntry(key, httpResp.Header, entry.Body)
		}
		return &Response{Status: http.StatusOK, Data: cachedBody, NotModified: true}, false, nil

	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, true, &StatusError{Status: httpResp.StatusCode, Endpoint: endpoint}

	default:
		return nil, false, &StatusError{Status: httpResp.StatusCode, Endpoint: endpoint}
	}
}

func (c *Client) loadEntry(key string) *cacheEntry {
	raw, ok := c.cache.Get(key)
	if !ok {
		return nil
	}
	entry := &cacheEntry{}
	if err := json.Unmarshal(raw, entry); err != nil {
		c.cache.Delete(key)
		return nil
	}
	return entry
}

// storeEntry persists the response's ETag/Expires headers (and body, for 304
// replay) back into the cache, overwriting prior values.
func (c *Client) storeEntry(key string, h http.Header, body []byte) {
	entry := cacheEntry{
		ETag: h.Get("ETag"),
		Body: body,
	}
	if expires := h.Get("Expires"); expires != "" {
		if t, err := http.ParseTime(expires); err == nil {
			entry.Expires = t
		}
	}
	c.putEntry(key, &entry)
}

// applyCooldown pushes the entry's expiry into the near future after an
// upstream outage. Subsequent Calls short-circuit on the expiry check until
// the cooldown lapses, which backs off every poller sharing the cache with
// no extra coordination. Any known ETag and body are preserved.
func (c *Client) applyCooldown(key string, entry *cacheEntry) {
	cooled := cacheEntry{Expires: time.Now().Add(c.cfg.ServerErrorCooldown)}
	if entry != nil {
		cooled.ETag = entry.ETag
		cooled.Body = entry.Body
	}
	c.putEntry(key, &cooled)
}

func (c *Client) putEntry(key string, entry *cacheEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("encode cache entry failed")
		return
	}
	c.cache.Set(key, raw, metaTTL)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
