// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package sessions

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

const foldCap = 24 * time.Hour

func TestJoinLeaveAccumulates(t *testing.T) {
	s := NewStats(1001)
	s.Join("Drake", t0, foldCap)
	if !s.Active() {
		t.Fatal("pilot not active after join")
	}
	s.Leave(t0.Add(90 * time.Minute))

	if s.Active() {
		t.Error("pilot still active after leave")
	}
	if s.TotalSeconds != 5400 {
		t.Errorf("TotalSeconds = %d, want 5400", s.TotalSeconds)
	}
	if s.HullSeconds["Drake"] != 5400 {
		t.Errorf("HullSeconds[Drake] = %d, want 5400", s.HullSeconds["Drake"])
	}
}

func TestLeaveWhileIdleIsNoop(t *testing.T) {
	s := NewStats(1001)
	s.Leave(t0)
	if s.TotalSeconds != 0 || s.Active() {
		t.Errorf("leave while idle mutated stats: %+v", s)
	}
}

func TestReshipContinuity(t *testing.T) {
	// In-fleet time is continuous across a reship; only the hull bucket
	// restarts.
	s := NewStats(1001)
	s.Join("Drake", t0, foldCap)
	s.Reship("Basilisk", t0.Add(30*time.Minute))
	s.Leave(t0.Add(100 * time.Minute))

	if s.TotalSeconds != 6000 {
		t.Errorf("TotalSeconds = %d, want 6000", s.TotalSeconds)
	}
	if s.HullSeconds["Drake"] != 1800 {
		t.Errorf("HullSeconds[Drake] = %d, want 1800", s.HullSeconds["Drake"])
	}
	if s.HullSeconds["Basilisk"] != 4200 {
		t.Errorf("HullSeconds[Basilisk] = %d, want 4200", s.HullSeconds["Basilisk"])
	}
}

func TestReshipWhileIdleOpensSession(t *testing.T) {
	s := NewStats(1001)
	s.Reship("Drake", t0)
	if !s.Active() {
		t.Fatal("reship while idle did not open a session")
	}
	if s.ActiveHull != "Drake" {
		t.Errorf("ActiveHull = %q, want Drake", s.ActiveHull)
	}
	if s.TotalSeconds != 0 {
		t.Errorf("TotalSeconds = %d, want 0", s.TotalSeconds)
	}
}

func TestJoinFoldsStaleSession(t *testing.T) {
	// A join over an open session means the leave was missed; the elapsed
	// time is plausible here and folds in.
	s := NewStats(1001)
	s.Join("Drake", t0, foldCap)
	s.Join("Rifter", t0.Add(2*time.Hour), foldCap)

	if s.TotalSeconds != 7200 {
		t.Errorf("TotalSeconds = %d, want 7200", s.TotalSeconds)
	}
	if s.HullSeconds["Drake"] != 7200 {
		t.Errorf("HullSeconds[Drake] = %d, want 7200", s.HullSeconds["Drake"])
	}
	if s.ActiveHull != "Rifter" {
		t.Errorf("ActiveHull = %q, want Rifter", s.ActiveHull)
	}
}

func TestJoinDiscardsImplausibleStaleSession(t *testing.T) {
	// A session supposedly open for 100000 seconds beyond a day is corrupt
	// state, not real time in fleet; it must be dropped, not folded.
	s := NewStats(1001)
	s.Join("Drake", t0, foldCap)
	s.Join("Rifter", t0.Add(100000*time.Second), foldCap)

	if s.TotalSeconds != 0 {
		t.Errorf("TotalSeconds = %d, want 0 (implausible delta discarded)", s.TotalSeconds)
	}
	if !s.Active() || s.ActiveHull != "Rifter" {
		t.Errorf("new session not opened cleanly: %+v", s)
	}
}

func TestJoinDiscardsNegativeDelta(t *testing.T) {
	s := NewStats(1001)
	s.Join("Drake", t0, foldCap)
	s.Join("Rifter", t0.Add(-time.Hour), foldCap)

	if s.TotalSeconds != 0 {
		t.Errorf("TotalSeconds = %d, want 0 (negative delta discarded)", s.TotalSeconds)
	}
}

func TestTotalsNeverDecrease(t *testing.T) {
	s := NewStats(1001)
	var last int64
	step := func(fn func()) {
		fn()
		if s.TotalSeconds < last {
			t.Fatalf("TotalSeconds decreased from %d to %d", last, s.TotalSeconds)
		}
		last = s.TotalSeconds
	}

	step(func() { s.Join("Drake", t0, foldCap) })
	step(func() { s.Reship("Basilisk", t0.Add(10*time.Minute)) })
	step(func() { s.Leave(t0.Add(5 * time.Minute)) }) // clock skew, delta < 0
	step(func() { s.Join("Rifter", t0.Add(20*time.Minute), foldCap) })
	step(func() { s.Leave(t0.Add(45 * time.Minute)) })
}
