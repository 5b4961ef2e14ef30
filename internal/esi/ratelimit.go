// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package esi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RateLimitState is the per-response view of the upstream rate budget. It is
// derived from headers, never persisted, and only forwarded (throttled) to
// the owning user.
type RateLimitState struct {
	Bucket    string `json:"bucket"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	Window    string `json:"window"`
}

// RateLimitNotifier delivers a rate-limit notice to one dashboard user.
type RateLimitNotifier interface {
	NotifyRateLimit(accountID int64, state RateLimitState)
}

// NopNotifier discards notices. Used when no broadcaster is wired (tests,
// one-shot tools).
type NopNotifier struct{}

func (NopNotifier) NotifyRateLimit(int64, RateLimitState) {}

// parseRateLimit extracts rate-budget headers from a response. Two families
// exist upstream: per-group X-RateLimit-* headers and the global error
// budget (X-ESI-Error-Limit-Remain / X-ESI-Error-Limit-Reset).
func parseRateLimit(h http.Header) (RateLimitState, bool) {
	if remain := h.Get("X-RateLimit-Remaining"); remain != "" {
		state := RateLimitState{
			Bucket: h.Get("X-RateLimit-Group"),
			Window: h.Get("X-RateLimit-Window"),
		}
		if state.Bucket == "" {
			state.Bucket = "default"
		}
		state.Remaining, _ = strconv.Atoi(remain)
		state.Limit, _ = strconv.Atoi(h.Get("X-RateLimit-Limit"))
		return state, true
	}

	if remain := h.Get("X-ESI-Error-Limit-Remain"); remain != "" {
		state := RateLimitState{Bucket: "error-limit", Limit: 100}
		state.Remaining, _ = strconv.Atoi(remain)
		if reset := h.Get("X-ESI-Error-Limit-Reset"); reset != "" {
			if secs, err := strconv.Atoi(reset); err == nil {
				state.Window = (time.Duration(secs) * time.Second).String()
			}
		}
		return state, true
	}

	return RateLimitState{}, false
}

// forwardRateLimit pushes parsed rate headers to the owning user, at most
// once per throttle window. The throttle lives in the cache store rather than
// process memory so it holds across multiple workers; it is advisory, and a
// lost race means one extra notice, nothing worse.
func (c *Client) forwardRateLimit(accountID int64, h http.Header) {
	state, ok := parseRateLimit(h)
	if !ok || c.notifier == nil {
		return
	}

	key := fmt.Sprintf("esi:ratelimit-notice:%d", accountID)
	if _, throttled := c.cache.Get(key); throttled {
		return
	}
	c.cache.Set(key, []byte{1}, c.cfg.RateLimitNotifyThrottle)

	c.notifier.NotifyRateLimit(accountID, state)
}
