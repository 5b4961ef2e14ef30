// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/arkonor/fleetglass/internal/catalog"
	"github.com/arkonor/fleetglass/internal/esi"
	"github.com/arkonor/fleetglass/internal/snapshot"
)

const (
	hullRifter   = 587
	hullDrake    = 24698
	hullBasilisk = 11985
)

// fakePending records TakePending calls and answers from a fixed set.
type fakePending struct {
	pending map[int64]bool
	taken   []int64
}

func (f *fakePending) TakePending(_ context.Context, _ int64, characterID int64) (bool, error) {
	f.taken = append(f.taken, characterID)
	if f.pending[characterID] {
		delete(f.pending, characterID)
		return true, nil
	}
	return false, nil
}

// fakeHistory answers HasPrior from a fixed set.
type fakeHistory struct {
	prior map[int64]bool
}

func (f *fakeHistory) HasPrior(_ context.Context, _ int64, characterID int64) (bool, error) {
	return f.prior[characterID], nil
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load() failed: %v", err)
	}
	return NewEngine(cat, nil, nil, nil)
}

func member(id int64, hull int32, role string, wing, squad int64) snapshot.MemberState {
	return snapshot.MemberState{
		CharacterID: id,
		Role:        role,
		WingID:      wing,
		SquadID:     squad,
		ShipTypeID:  hull,
	}
}

func knownNames(ids ...int64) map[int64]string {
	known := make(map[int64]string, len(ids))
	for _, id := range ids {
		known[id] = "Pilot " + string(rune('A'+len(known)))
	}
	return known
}

func TestDiffFirstPollProducesNoEvents(t *testing.T) {
	e := testEngine(t)
	cur := snapshot.Snapshot{
		1001: member(1001, hullRifter, esi.RoleSquadMember, 1, 10),
		1002: member(1002, hullDrake, esi.RoleFleetCommander, 0, 0),
	}

	events := e.Diff(context.Background(), 42, nil, cur, BuildPositionNames(nil), knownNames(1001, 1002), time.Now())
	if len(events) != 0 {
		t.Errorf("first poll produced %d events, want 0", len(events))
	}
}

func TestDiffIdenticalSnapshotsProduceNoEvents(t *testing.T) {
	e := testEngine(t)
	snap := snapshot.Snapshot{
		1001: member(1001, hullRifter, esi.RoleSquadMember, 1, 10),
		1002: member(1002, hullDrake, esi.RoleWingCommander, 1, 0),
	}

	events := e.Diff(context.Background(), 42, snap, snap, BuildPositionNames(nil), knownNames(1001, 1002), time.Now())
	if len(events) != 0 {
		t.Errorf("identical snapshots produced %d events, want 0", len(events))
	}
}

func TestDiffJoinAndLeave(t *testing.T) {
	e := testEngine(t)
	known := map[int64]string{1001: "Alice", 1002: "Bob"}
	prev := snapshot.Snapshot{
		1001: member(1001, hullRifter, esi.RoleSquadMember, 1, 10),
	}
	cur := snapshot.Snapshot{
		1002: member(1002, hullDrake, esi.RoleSquadMember, 1, 10),
	}

	events := e.Diff(context.Background(), 42, prev, cur, BuildPositionNames(nil), known, time.Now())
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}

	join := events[0]
	if join.Kind != KindJoin || join.CharacterID != 1002 {
		t.Errorf("event 0 = %s for %d, want join for 1002", join.Kind, join.CharacterID)
	}
	if join.Character != "Bob" {
		t.Errorf("join character = %q, want Bob", join.Character)
	}
	if join.HullName != "Drake" {
		t.Errorf("join hull = %q, want Drake", join.HullName)
	}

	leave := events[1]
	if leave.Kind != KindLeave || leave.CharacterID != 1001 {
		t.Errorf("event 1 = %s for %d, want leave for 1001", leave.Kind, leave.CharacterID)
	}
	if leave.HullName != "Rifter" {
		t.Errorf("leave hull = %q, want Rifter", leave.HullName)
	}
}

func TestDiffShipChange(t *testing.T) {
	e := testEngine(t)
	known := map[int64]string{1001: "Alice"}
	prev := snapshot.Snapshot{1001: member(1001, hullDrake, esi.RoleSquadMember, 1, 10)}
	cur := snapshot.Snapshot{1001: member(1001, hullBasilisk, esi.RoleSquadMember, 1, 10)}

	events := e.Diff(context.Background(), 42, prev, cur, BuildPositionNames(nil), known, time.Now())
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(events), events)
	}
	if events[0].Kind != KindShipChange {
		t.Errorf("kind = %s, want %s", events[0].Kind, KindShipChange)
	}
	if events[0].Detail != "Drake -> Basilisk" {
		t.Errorf("detail = %q, want \"Drake -> Basilisk\"", events[0].Detail)
	}
}

func TestDiffMove(t *testing.T) {
	e := testEngine(t)
	wings := []esi.Wing{
		{ID: 1, Name: "1st Wing", Squads: []esi.Squad{
			{ID: 10, Name: "Sniper 1"},
			{ID: 11, Name: "Sniper 2"},
		}},
	}
	known := map[int64]string{1001: "Alice"}
	prev := snapshot.Snapshot{1001: member(1001, hullDrake, esi.RoleSquadMember, 1, 10)}
	cur := snapshot.Snapshot{1001: member(1001, hullDrake, esi.RoleSquadMember, 1, 11)}

	events := e.Diff(context.Background(), 42, prev, cur, BuildPositionNames(wings), known, time.Now())
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(events), events)
	}
	if events[0].Kind != KindMoved {
		t.Errorf("kind = %s, want %s", events[0].Kind, KindMoved)
	}
	want := "1st Wing / Sniper 1 -> 1st Wing / Sniper 2"
	if events[0].Detail != want {
		t.Errorf("detail = %q, want %q", events[0].Detail, want)
	}
}

func TestDiffReshipAndMoveSameCycle(t *testing.T) {
	e := testEngine(t)
	known := map[int64]string{1001: "Alice"}
	prev := snapshot.Snapshot{1001: member(1001, hullDrake, esi.RoleSquadMember, 1, 10)}
	cur := snapshot.Snapshot{1001: member(1001, hullBasilisk, esi.RoleSquadMember, 2, 20)}

	events := e.Diff(context.Background(), 42, prev, cur, BuildPositionNames(nil), known, time.Now())
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].Kind != KindShipChange || events[1].Kind != KindMoved {
		t.Errorf("kinds = %s, %s, want ship_change then moved", events[0].Kind, events[1].Kind)
	}
}

func TestDiffUnknownPilotsSkipped(t *testing.T) {
	e := testEngine(t)
	// 9999 has no profile record: no events for its join, leave, or reship.
	known := map[int64]string{1001: "Alice"}
	prev := snapshot.Snapshot{
		1001: member(1001, hullDrake, esi.RoleSquadMember, 1, 10),
		9999: member(9999, hullRifter, esi.RoleSquadMember, 1, 10),
	}
	cur := snapshot.Snapshot{
		1001: member(1001, hullDrake, esi.RoleSquadMember, 1, 10),
		9998: member(9998, hullRifter, esi.RoleSquadMember, 1, 10),
	}

	events := e.Diff(context.Background(), 42, prev, cur, BuildPositionNames(nil), known, time.Now())
	if len(events) != 0 {
		t.Errorf("unregistered pilots produced %d events, want 0: %+v", len(events), events)
	}
}

func TestDiffRoleClassification(t *testing.T) {
	tests := []struct {
		name    string
		oldRole string
		newRole string
		want    Kind
	}{
		{"member to squad commander", esi.RoleSquadMember, esi.RoleSquadCommander, KindPromoted},
		{"member to fleet commander", esi.RoleSquadMember, esi.RoleFleetCommander, KindPromoted},
		{"wing commander to member", esi.RoleWingCommander, esi.RoleSquadMember, KindDemoted},
		{"fleet commander to member", esi.RoleFleetCommander, esi.RoleSquadMember, KindDemoted},
		// Lateral commander moves keep the inherited promoted default.
		{"wing commander to squad commander", esi.RoleWingCommander, esi.RoleSquadCommander, KindPromoted},
	}

	e := testEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			known := map[int64]string{1001: "Alice"}
			prev := snapshot.Snapshot{1001: member(1001, hullDrake, tt.oldRole, 1, 10)}
			cur := snapshot.Snapshot{1001: member(1001, hullDrake, tt.newRole, 1, 10)}

			events := e.Diff(context.Background(), 42, prev, cur, BuildPositionNames(nil), known, time.Now())
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			if events[0].Kind != tt.want {
				t.Errorf("kind = %s, want %s", events[0].Kind, tt.want)
			}
		})
	}
}

func TestDiffJoinFromWaitlist(t *testing.T) {
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load() failed: %v", err)
	}
	pending := &fakePending{pending: map[int64]bool{1002: true}}
	history := &fakeHistory{prior: map[int64]bool{1003: true}}
	e := NewEngine(cat, pending, history, nil)

	known := map[int64]string{1002: "Bob", 1003: "Carol"}
	prev := snapshot.Snapshot{}
	cur := snapshot.Snapshot{
		1002: member(1002, hullDrake, esi.RoleSquadMember, 1, 10),
		1003: member(1003, hullRifter, esi.RoleSquadMember, 1, 10),
	}

	events := e.Diff(context.Background(), 42, prev, cur, BuildPositionNames(nil), known, time.Now())
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	if !events[0].FromWaitlist {
		t.Error("waitlisted pilot's join not marked FromWaitlist")
	}
	if events[0].Returning {
		t.Error("waitlist join must not also be marked Returning")
	}
	if events[1].FromWaitlist {
		t.Error("walk-in pilot's join wrongly marked FromWaitlist")
	}
	if !events[1].Returning {
		t.Error("pilot with prior activity not marked Returning")
	}
}

func TestDiffConservation(t *testing.T) {
	// Join and leave counts must reconcile with the member count delta.
	e := testEngine(t)
	known := map[int64]string{1001: "A", 1002: "B", 1003: "C", 1004: "D"}
	prev := snapshot.Snapshot{
		1001: member(1001, hullDrake, esi.RoleSquadMember, 1, 10),
		1002: member(1002, hullDrake, esi.RoleSquadMember, 1, 10),
	}
	cur := snapshot.Snapshot{
		1002: member(1002, hullDrake, esi.RoleSquadMember, 1, 10),
		1003: member(1003, hullRifter, esi.RoleSquadMember, 1, 10),
		1004: member(1004, hullRifter, esi.RoleSquadMember, 1, 10),
	}

	var joins, leaves int
	for _, ev := range e.Diff(context.Background(), 42, prev, cur, BuildPositionNames(nil), known, time.Now()) {
		switch ev.Kind {
		case KindJoin:
			joins++
		case KindLeave:
			leaves++
		}
	}

	if delta := len(cur) - len(prev); joins-leaves != delta {
		t.Errorf("joins-leaves = %d, want member delta %d", joins-leaves, delta)
	}
	if joins != 2 || leaves != 1 {
		t.Errorf("joins = %d, leaves = %d, want 2 and 1", joins, leaves)
	}
}

func TestRenderPositions(t *testing.T) {
	wings := []esi.Wing{
		{ID: 1, Name: "Main", Squads: []esi.Squad{{ID: 10, Name: "Alpha"}}},
	}
	names := BuildPositionNames(wings)

	tests := []struct {
		wing, squad int64
		want        string
	}{
		{0, 0, "Fleet Command"},
		{-1, -1, "Fleet Command"},
		{1, 0, "Main"},
		{1, 10, "Main / Alpha"},
		{1, 99, "Main / Squad 99"},
		{7, 70, "Wing 7 / Squad 70"},
	}
	for _, tt := range tests {
		if got := names.Render(tt.wing, tt.squad); got != tt.want {
			t.Errorf("Render(%d, %d) = %q, want %q", tt.wing, tt.squad, got, tt.want)
		}
	}
}
