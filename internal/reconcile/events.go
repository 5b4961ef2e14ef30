// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package reconcile turns two successive fleet snapshots into semantic
// events: joins, leaves, reships, moves, promotions, and demotions.
package reconcile

import (
	"context"
	"time"
)

// Kind categorizes a reconciliation event.
type Kind string

const (
	KindJoin       Kind = "join"
	KindLeave      Kind = "leave"
	KindShipChange Kind = "ship_change"
	KindMoved      Kind = "moved"
	KindPromoted   Kind = "promoted"
	KindDemoted    Kind = "demoted"
)

// Event is one semantic change between two snapshots of a fleet.
type Event struct {
	Kind        Kind
	CharacterID int64
	Character   string
	HullID      int32
	HullName    string

	// Detail is the human-readable change description, e.g.
	// "Drake -> Basilisk" or "1st Wing / Sniper 1 -> 1st Wing / Sniper 2".
	Detail string

	// FromWaitlist marks a join that cleared a pending waitlist entry.
	FromWaitlist bool

	// Returning marks a join by a pilot with prior activity in this fleet.
	// Message flavor only; correctness does not depend on it.
	Returning bool

	Timestamp time.Time
}

// FitResolver is the doctrine-fit collaborator, consumed as a black box.
type FitResolver interface {
	// BestFitName resolves a display name for a hull and module list.
	BestFitName(ctx context.Context, hullID int32, modules []int32) (string, error)

	// CheckSkills reports whether the pilot can fly the hull properly.
	CheckSkills(ctx context.Context, characterID int64, hullID int32) (bool, error)
}

// NopFitResolver is the default when no fit service is wired.
type NopFitResolver struct{}

func (NopFitResolver) BestFitName(context.Context, int32, []int32) (string, error) {
	return "", nil
}

func (NopFitResolver) CheckSkills(context.Context, int64, int32) (bool, error) {
	return true, nil
}
