// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package snapshot stores the last-known member state per fleet, the diff
// baseline for reconciliation.
//
// Snapshots are replaced wholesale on every successful poll. Concurrent
// pollers of the same fleet race on the key and the last writer wins; that is
// safe because diffing identical data is a no-op, so a lost write costs at
// most one duplicated event window, never lost members.
package snapshot

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/arkonor/fleetglass/internal/cache"
	"github.com/arkonor/fleetglass/internal/esi"
	"github.com/arkonor/fleetglass/internal/logging"
)

// MemberState is the per-pilot slice of a snapshot.
type MemberState struct {
	CharacterID int64  `json:"character_id"`
	Role        string `json:"role"`
	WingID      int64  `json:"wing_id"`
	SquadID     int64  `json:"squad_id"`
	ShipTypeID  int32  `json:"ship_type_id"`
}

// Snapshot maps character ID to member state for one fleet.
type Snapshot map[int64]MemberState

// FromMembers builds a snapshot from an ESI roster.
func FromMembers(members []esi.Member) Snapshot {
	snap := make(Snapshot, len(members))
	for _, m := range members {
		snap[m.CharacterID] = MemberState{
			CharacterID: m.CharacterID,
			Role:        m.Role,
			WingID:      m.WingID,
			SquadID:     m.SquadID,
			ShipTypeID:  m.ShipTypeID,
		}
	}
	return snap
}

// Store persists snapshots in the cache store with a TTL.
type Store struct {
	cache cache.Store
	ttl   time.Duration
}

// NewStore creates a snapshot store. ttl bounds how long a snapshot stays
// diffable after polling stops (24h in production).
func NewStore(store cache.Store, ttl time.Duration) *Store {
	return &Store{cache: store, ttl: ttl}
}

// Get returns the stored snapshot for a fleet, or false if none.
func (s *Store) Get(fleetID int64) (Snapshot, bool) {
	raw, ok := s.cache.Get(snapshotKey(fleetID))
	if !ok {
		return nil, false
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		logging.Warn().Err(err).Int64("fleet_id", fleetID).Msg("discarding corrupt fleet snapshot")
		s.cache.Delete(snapshotKey(fleetID))
		return nil, false
	}
	return snap, true
}

// Put replaces the stored snapshot for a fleet.
func (s *Store) Put(fleetID int64, snap Snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		logging.Warn().Err(err).Int64("fleet_id", fleetID).Msg("encode fleet snapshot failed")
		return
	}
	s.cache.Set(snapshotKey(fleetID), raw, s.ttl)
}

// Delete drops the stored snapshot for a fleet.
func (s *Store) Delete(fleetID int64) {
	s.cache.Delete(snapshotKey(fleetID))
}

// snapshotKey must stay stable across releases: a redeploy that changed the
// key format would orphan live snapshots and make every fleet look like a
// mass join.
func snapshotKey(fleetID int64) string {
	return fmt.Sprintf("fleet:snapshot:%d", fleetID)
}
