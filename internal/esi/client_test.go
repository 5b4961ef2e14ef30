// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package esi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arkonor/fleetglass/internal/cache"
	"github.com/arkonor/fleetglass/internal/config"
)

var testCred = StaticCredential{Character: 90001, Account: 7, Bearer: "test-token"}

func testESIConfig() config.ESIConfig {
	return config.ESIConfig{
		BaseURL:                 "http://unused",
		UserAgent:               "fleetglass-test",
		Timeout:                 5 * time.Second,
		MaxRetries:              3,
		RetryBaseDelay:          time.Millisecond,
		ServerErrorCooldown:     time.Minute,
		RateLimitNotifyThrottle: 2 * time.Second,
	}
}

type recordNotifier struct {
	notices []RateLimitState
}

func (r *recordNotifier) NotifyRateLimit(_ int64, state RateLimitState) {
	r.notices = append(r.notices, state)
}

func TestCallServesFromExpiryCache(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(testESIConfig(), cache.NewMemory(), nil)
	ctx := context.Background()

	first, err := c.Call(ctx, testCred, "test_endpoint", http.MethodGet, srv.URL, nil, false)
	if err != nil {
		t.Fatalf("first Call failed: %v", err)
	}
	if first.Cached {
		t.Error("first call reported cached")
	}

	second, err := c.Call(ctx, testCred, "test_endpoint", http.MethodGet, srv.URL, nil, false)
	if err != nil {
		t.Fatalf("second Call failed: %v", err)
	}
	if !second.Cached {
		t.Error("second call within the expiry window was not served from cache")
	}
	if string(second.Data) != `{"ok":true}` {
		t.Errorf("cached body = %s", second.Data)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("upstream saw %d requests, want 1", n)
	}
}

func TestCallConditionalRequestOn304(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		if n == 1 {
			w.Header().Set("ETag", `"v1"`)
			// Already expired: next call must revalidate.
			w.Header().Set("Expires", time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat))
			w.Write([]byte(`[1,2,3]`))
			return
		}
		if got := r.Header.Get("If-None-Match"); got != `"v1"` {
			t.Errorf("If-None-Match = %q, want stored etag", got)
		}
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c := New(testESIConfig(), cache.NewMemory(), nil)
	ctx := context.Background()

	if _, err := c.Call(ctx, testCred, "test_endpoint", http.MethodGet, srv.URL, nil, false); err != nil {
		t.Fatalf("first Call failed: %v", err)
	}

	second, err := c.Call(ctx, testCred, "test_endpoint", http.MethodGet, srv.URL, nil, false)
	if err != nil {
		t.Fatalf("second Call failed: %v", err)
	}
	if !second.NotModified {
		t.Error("304 response not reported as NotModified")
	}
	if string(second.Data) != `[1,2,3]` {
		t.Errorf("304 replayed body = %s, want cached body", second.Data)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("upstream saw %d requests, want 2", n)
	}
}

func TestCallRetriesServerErrors(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(testESIConfig(), cache.NewMemory(), nil)
	resp, err := c.Call(context.Background(), testCred, "test_endpoint", http.MethodGet, srv.URL, nil, false)
	if err != nil {
		t.Fatalf("Call failed after retries: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.Status)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("upstream saw %d requests, want 3", n)
	}
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusForbidden, ErrScope},
		{http.StatusNotFound, ErrNotFound},
	}

	for _, tt := range tests {
		var requests atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			requests.Add(1)
			w.WriteHeader(tt.status)
		}))

		c := New(testESIConfig(), cache.NewMemory(), nil)
		_, err := c.Call(context.Background(), testCred, "test_endpoint", http.MethodGet, srv.URL, nil, false)
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: error = %v, want %v", tt.status, err, tt.want)
		}
		if n := requests.Load(); n != 1 {
			t.Errorf("status %d: upstream saw %d requests, want 1 (no retry)", tt.status, n)
		}
		srv.Close()
	}
}

func TestCallWritesCooldownWhenRetriesExhausted(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testESIConfig()
	cfg.MaxRetries = 2
	c := New(cfg, cache.NewMemory(), nil)
	ctx := context.Background()

	_, err := c.Call(ctx, testCred, "test_endpoint", http.MethodGet, srv.URL, nil, false)
	if !errors.Is(err, ErrServer) {
		t.Fatalf("error = %v, want ErrServer", err)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("upstream saw %d requests, want 2", n)
	}

	// The written cooldown must short-circuit the next call entirely.
	resp, err := c.Call(ctx, testCred, "test_endpoint", http.MethodGet, srv.URL, nil, false)
	if err != nil {
		t.Fatalf("call during cooldown failed: %v", err)
	}
	if !resp.Cached {
		t.Error("call during cooldown was not served from cache")
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("cooldown did not prevent upstream traffic: %d requests", n)
	}
}

func TestCallWritesCooldownOnTerminalServerError(t *testing.T) {
	// A plain 500 is not retried, but it must still write the cooldown so
	// concurrent pollers back off instead of re-hitting it every cycle.
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(testESIConfig(), cache.NewMemory(), nil)
	ctx := context.Background()

	_, err := c.Call(ctx, testCred, "test_endpoint", http.MethodGet, srv.URL, nil, false)
	if !errors.Is(err, ErrServer) {
		t.Fatalf("error = %v, want ErrServer", err)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("upstream saw %d requests, want 1 (500 is not retried)", n)
	}

	resp, err := c.Call(ctx, testCred, "test_endpoint", http.MethodGet, srv.URL, nil, false)
	if err != nil {
		t.Fatalf("call during cooldown failed: %v", err)
	}
	if !resp.Cached {
		t.Error("call during cooldown was not served from cache")
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("cooldown did not prevent upstream traffic: %d requests", n)
	}
}

func TestRateLimitNoticesThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-ESI-Error-Limit-Remain", "12")
		w.Header().Set("X-ESI-Error-Limit-Reset", "30")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	notifier := &recordNotifier{}
	c := New(testESIConfig(), cache.NewMemory(), notifier)
	ctx := context.Background()

	// No Expires header, so each call hits upstream. Notices must still be
	// collapsed by the throttle window.
	for i := 0; i < 3; i++ {
		if _, err := c.Call(ctx, testCred, "test_endpoint", http.MethodGet, srv.URL, nil, false); err != nil {
			t.Fatalf("Call %d failed: %v", i, err)
		}
	}

	if len(notifier.notices) != 1 {
		t.Fatalf("got %d rate-limit notices, want 1 (throttled)", len(notifier.notices))
	}
	notice := notifier.notices[0]
	if notice.Bucket != "error-limit" || notice.Remaining != 12 || notice.Limit != 100 {
		t.Errorf("notice = %+v", notice)
	}
	if notice.Window != "30s" {
		t.Errorf("window = %q, want 30s", notice.Window)
	}
}

func TestParseRateLimitHeaderFamilies(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "40")
	h.Set("X-RateLimit-Limit", "60")
	h.Set("X-RateLimit-Group", "fleet")
	h.Set("X-RateLimit-Window", "60s")

	state, ok := parseRateLimit(h)
	if !ok {
		t.Fatal("parseRateLimit missed X-RateLimit headers")
	}
	if state.Bucket != "fleet" || state.Remaining != 40 || state.Limit != 60 || state.Window != "60s" {
		t.Errorf("state = %+v", state)
	}

	if _, ok := parseRateLimit(http.Header{}); ok {
		t.Error("parseRateLimit reported state for empty headers")
	}
}
