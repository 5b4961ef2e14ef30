// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package activity persists the append-only fleet activity log, the pilot
// registry, and pending waitlist entries. Entries are immutable once written;
// ordering by timestamp is the audit truth.
package activity

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Action categorizes a fleet activity log entry.
type Action string

const (
	ActionESIJoin    Action = "esi_join"
	ActionLeftFleet  Action = "left_fleet"
	ActionShipChange Action = "ship_change"
	ActionMoved      Action = "moved"
	ActionPromoted   Action = "promoted"
	ActionDemoted    Action = "demoted"
	ActionKicked     Action = "kicked"
	ActionXUp        Action = "x_up"
	ActionApproved   Action = "approved"
	ActionDenied     Action = "denied"
	ActionInvited    Action = "invited"
)

// Entry is one immutable fleet activity log record.
type Entry struct {
	// ID is a UUID assigned at write time.
	ID string `json:"id"`

	FleetID     int64  `json:"fleet_id"`
	CharacterID int64  `json:"character_id"`
	Character   string `json:"character"`

	// ActorID is who caused the event when it was not the pilot themselves
	// (a kick, an invite). Zero when not applicable.
	ActorID int64 `json:"actor_id,omitempty"`

	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`

	ShipName string `json:"ship_name,omitempty"`
	HullID   int32  `json:"hull_id,omitempty"`
	Details  string `json:"details,omitempty"`

	// FitSnapshot holds the pilot's fitted modules when a waitlist entry was
	// cleared, for later doctrine review. Optional.
	FitSnapshot json.RawMessage `json:"fit_snapshot,omitempty"`
}

// Store is the persistence interface for the activity log and its adjacent
// lookup tables.
type Store interface {
	// Insert appends one entry. Entries are never updated or deleted.
	Insert(ctx context.Context, entry *Entry) error

	// HasPrior reports whether the pilot has any prior entry for this fleet,
	// used only to pick a friendlier join message.
	HasPrior(ctx context.Context, fleetID, characterID int64) (bool, error)

	// History returns entries for a fleet, newest first.
	History(ctx context.Context, fleetID int64, limit, offset int) ([]Entry, error)

	// KnownCharacters maps the given IDs to display names for pilots with a
	// local profile record. IDs without a row are absent from the result.
	KnownCharacters(ctx context.Context, ids []int64) (map[int64]string, error)

	// ReplayAsc streams all entries in timestamp order for stats backfill.
	ReplayAsc(ctx context.Context, fn func(Entry) error) error
}

// PendingStore looks up and clears pending waitlist entries. The waitlist
// CRUD views that create these rows are an external collaborator.
type PendingStore interface {
	// TakePending deletes the pending entry for (fleet, character) and
	// reports whether one existed.
	TakePending(ctx context.Context, fleetID, characterID int64) (bool, error)
}
