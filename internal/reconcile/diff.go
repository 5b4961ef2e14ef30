// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package reconcile

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/arkonor/fleetglass/internal/activity"
	"github.com/arkonor/fleetglass/internal/catalog"
	"github.com/arkonor/fleetglass/internal/logging"
	"github.com/arkonor/fleetglass/internal/metrics"
	"github.com/arkonor/fleetglass/internal/snapshot"
)

// HistoryChecker is the slice of the activity store the engine needs.
type HistoryChecker interface {
	HasPrior(ctx context.Context, fleetID, characterID int64) (bool, error)
}

// Engine computes typed diffs between fleet snapshots.
type Engine struct {
	catalog *catalog.Catalog
	pending activity.PendingStore
	history HistoryChecker
	fits    FitResolver
}

// NewEngine creates a reconciliation engine. pending and history may be nil
// when waitlist clearing and return detection are not wanted (tests); fits
// defaults to NopFitResolver.
func NewEngine(cat *catalog.Catalog, pending activity.PendingStore, history HistoryChecker, fits FitResolver) *Engine {
	if fits == nil {
		fits = NopFitResolver{}
	}
	return &Engine{catalog: cat, pending: pending, history: history, fits: fits}
}

// Diff compares the previous and current snapshots of a fleet.
//
// A nil previous snapshot is the first poll ever: it seeds the baseline and
// produces no events, deliberately, so a restart or a freshly linked fleet
// does not flood the log with synthetic joins.
//
// Pilots absent from known (no local profile record) are skipped entirely:
// they count toward displayed member totals but generate no events or stats.
func (e *Engine) Diff(ctx context.Context, fleetID int64, prev, cur snapshot.Snapshot, names PositionNames, known map[int64]string, now time.Time) []Event {
	if prev == nil {
		return nil
	}

	var events []Event

	for _, id := range sortedKeys(cur) {
		if _, existed := prev[id]; existed {
			continue
		}
		name, ok := known[id]
		if !ok {
			continue
		}
		events = append(events, e.joinEvent(ctx, fleetID, id, name, cur[id], now))
	}

	for _, id := range sortedKeys(prev) {
		if _, present := cur[id]; present {
			continue
		}
		name, ok := known[id]
		if !ok {
			continue
		}
		old := prev[id]
		events = append(events, Event{
			Kind:        KindLeave,
			CharacterID: id,
			Character:   name,
			HullID:      old.ShipTypeID,
			HullName:    e.catalog.Name(old.ShipTypeID),
			Timestamp:   now,
		})
	}

	for _, id := range sortedKeys(cur) {
		old, existed := prev[id]
		if !existed {
			continue
		}
		name, ok := known[id]
		if !ok {
			continue
		}
		events = append(events, e.memberChanges(old, cur[id], name, names, now)...)
	}

	for _, ev := range events {
		metrics.FleetEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	}
	return events
}

func (e *Engine) joinEvent(ctx context.Context, fleetID, characterID int64, name string, state snapshot.MemberState, now time.Time) Event {
	ev := Event{
		Kind:        KindJoin,
		CharacterID: characterID,
		Character:   name,
		HullID:      state.ShipTypeID,
		HullName:    e.catalog.Name(state.ShipTypeID),
		Timestamp:   now,
	}

	if e.pending != nil {
		cleared, err := e.pending.TakePending(ctx, fleetID, characterID)
		if err != nil {
			logging.Warn().Err(err).Int64("character_id", characterID).Msg("pending waitlist lookup failed")
		}
		ev.FromWaitlist = cleared
	}

	if !ev.FromWaitlist && e.history != nil {
		returning, err := e.history.HasPrior(ctx, fleetID, characterID)
		if err != nil {
			logging.Warn().Err(err).Int64("character_id", characterID).Msg("prior activity lookup failed")
		}
		ev.Returning = returning
	}

	return ev
}

// memberChanges emits one event per changed field, so a reship and a move in
// the same poll cycle produce two entries.
func (e *Engine) memberChanges(old, cur snapshot.MemberState, name string, names PositionNames, now time.Time) []Event {
	var events []Event

	if old.ShipTypeID != cur.ShipTypeID {
		events = append(events, Event{
			Kind:        KindShipChange,
			CharacterID: cur.CharacterID,
			Character:   name,
			HullID:      cur.ShipTypeID,
			HullName:    e.catalog.Name(cur.ShipTypeID),
			Detail:      e.catalog.Name(old.ShipTypeID) + " -> " + e.catalog.Name(cur.ShipTypeID),
			Timestamp:   now,
		})
	}

	if old.WingID != cur.WingID || old.SquadID != cur.SquadID {
		events = append(events, Event{
			Kind:        KindMoved,
			CharacterID: cur.CharacterID,
			Character:   name,
			HullID:      cur.ShipTypeID,
			HullName:    e.catalog.Name(cur.ShipTypeID),
			Detail:      names.Render(old.WingID, old.SquadID) + " -> " + names.Render(cur.WingID, cur.SquadID),
			Timestamp:   now,
		})
	}

	if old.Role != cur.Role {
		events = append(events, Event{
			Kind:        classifyRoleChange(old.Role, cur.Role),
			CharacterID: cur.CharacterID,
			Character:   name,
			HullID:      cur.ShipTypeID,
			HullName:    e.catalog.Name(cur.ShipTypeID),
			Detail:      old.Role + " -> " + cur.Role,
			Timestamp:   now,
		})
	}

	return events
}

// classifyRoleChange maps a role transition to promoted/demoted. Transitions
// that are neither commander-gained nor commander-lost-to-member fall through
// to "promoted"; that default is inherited behavior kept pending product
// clarification, not an oversight.
func classifyRoleChange(oldRole, newRole string) Kind {
	oldCommander := strings.Contains(oldRole, "commander")
	newCommander := strings.Contains(newRole, "commander")

	switch {
	case newCommander && !oldCommander:
		return KindPromoted
	case strings.Contains(newRole, "member") && oldCommander:
		return KindDemoted
	default:
		return KindPromoted
	}
}

func sortedKeys(snap snapshot.Snapshot) []int64 {
	keys := make([]int64, 0, len(snap))
	for id := range snap {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
