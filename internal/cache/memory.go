// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package cache

import (
	"sync"
	"time"

	"github.com/arkonor/fleetglass/internal/metrics"
)

const memoryCleanupInterval = 5 * time.Minute

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// Memory is a thread-safe in-memory Store with per-entry TTL.
//
// Entries survive only for the process lifetime, so this backend is suited to
// tests and single-node deployments where losing the ETag/snapshot cache on
// restart is acceptable. Production deployments use the badger backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	stop    chan struct{}
	once    sync.Once
}

// NewMemory creates an in-memory store with a background cleanup goroutine.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Get returns the value for key if present and not expired.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	entry, exists := m.entries[key]
	m.mu.RUnlock()

	if !exists {
		metrics.CacheOperations.WithLabelValues("memory", "miss").Inc()
		return nil, false
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		metrics.CacheOperations.WithLabelValues("memory", "miss").Inc()
		return nil, false
	}

	metrics.CacheOperations.WithLabelValues("memory", "hit").Inc()
	return entry.data, true
}

// Set stores value under key. A zero TTL keeps the entry until overwritten.
func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	entry := memoryEntry{data: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	metrics.CacheOperations.WithLabelValues("memory", "set").Inc()
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	metrics.CacheOperations.WithLabelValues("memory", "delete").Inc()
}

// Close stops the cleanup goroutine.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(memoryCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Memory) cleanup() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entry := range m.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(m.entries, key)
		}
	}
}
