// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package cache provides the TTL key/value store backing ETag caching, fleet
// snapshots, and the soft-lock throttles (rate-limit notices, server-error
// cooldowns).
//
// The store is advisory: concurrent pollers may interleave reads and writes
// and last writer wins. Nothing built on it assumes read-modify-write
// atomicity; see the snapshot and gateway packages for why that is safe.
package cache

import (
	"fmt"
	"time"

	"github.com/arkonor/fleetglass/internal/config"
)

// Store is a TTL key/value store usable from many concurrent pollers.
type Store interface {
	// Get returns the value for key, or false if absent or expired.
	Get(key string) ([]byte, bool)

	// Set stores value under key with the given TTL. A zero TTL means the
	// entry never expires.
	Set(key string, value []byte, ttl time.Duration)

	// Delete removes key. No-op if absent.
	Delete(key string)

	// Close releases backend resources.
	Close() error
}

// Open constructs the configured store backend.
func Open(cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "badger":
		return OpenBadger(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
