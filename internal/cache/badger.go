// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package cache

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/arkonor/fleetglass/internal/logging"
	"github.com/arkonor/fleetglass/internal/metrics"
)

// Badger is a Store persisted with BadgerDB. Entries use Badger's native TTL,
// so a snapshot written before a crash is still diffable after a redeploy
// within its TTL window. Without that, every restart would look like the
// whole fleet joining at once.
type Badger struct {
	db   *badger.DB
	stop chan struct{}
}

// OpenBadger opens (or creates) the store at dir.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache at %s: %w", dir, err)
	}

	b := &Badger{db: db, stop: make(chan struct{})}
	go b.gcLoop()
	return b, nil
}

// Get returns the value for key if present and not expired.
func (b *Badger) Get(key string) ([]byte, bool) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.Warn().Err(err).Str("key", key).Msg("badger cache read failed")
		}
		metrics.CacheOperations.WithLabelValues("badger", "miss").Inc()
		return nil, false
	}

	metrics.CacheOperations.WithLabelValues("badger", "hit").Inc()
	return value, true
}

// Set stores value under key with the given TTL.
func (b *Badger) Set(key string, value []byte, ttl time.Duration) {
	err := b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("badger cache write failed")
		return
	}
	metrics.CacheOperations.WithLabelValues("badger", "set").Inc()
}

// Delete removes key.
func (b *Badger) Delete(key string) {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("badger cache delete failed")
		return
	}
	metrics.CacheOperations.WithLabelValues("badger", "delete").Inc()
}

// Close stops value-log GC and closes the database.
func (b *Badger) Close() error {
	close(b.stop)
	return b.db.Close()
}

// gcLoop runs Badger's value-log garbage collection periodically. Badger
// requires the caller to drive GC; ErrNoRewrite just means nothing to do.
func (b *Badger) gcLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			for {
				if err := b.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		}
	}
}
