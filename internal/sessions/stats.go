// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package sessions accounts per-pilot time in fleet. Each pilot is a small
// state machine: Idle (no open session) or Active (session started at a
// timestamp under one hull). Joins, leaves, and reships drive transitions;
// totals only ever grow.
package sessions

import "time"

// Stats is the accumulated record for one pilot.
type Stats struct {
	CharacterID int64 `json:"character_id"`

	// TotalSeconds is the pilot's lifetime time in fleet. Monotonic.
	TotalSeconds int64 `json:"total_seconds"`

	// HullSeconds buckets time by hull display name.
	HullSeconds map[string]int64 `json:"hull_seconds"`

	// ActiveStart is non-nil iff the pilot is currently in a fleet session.
	ActiveStart *time.Time `json:"active_session_start"`

	// ActiveHull is the hull of the open session. Empty when idle.
	ActiveHull string `json:"active_hull"`
}

// NewStats returns an empty Idle record for a pilot.
func NewStats(characterID int64) *Stats {
	return &Stats{
		CharacterID: characterID,
		HullSeconds: make(map[string]int64),
	}
}

// Active reports whether a session is open.
func (s *Stats) Active() bool {
	return s.ActiveStart != nil
}

// Join opens a session under hull at time t. A session already open at that
// point is stale state from a missed leave: its elapsed time is folded in if
// plausible (0 < delta < foldCap) and discarded as corrupt otherwise.
func (s *Stats) Join(hull string, t time.Time, foldCap time.Duration) {
	if s.ActiveStart != nil {
		delta := t.Sub(*s.ActiveStart)
		if delta > 0 && delta < foldCap {
			s.fold(delta)
		}
	}
	start := t
	s.ActiveStart = &start
	s.ActiveHull = hull
}

// Leave closes the open session at time t. No-op when idle.
func (s *Stats) Leave(t time.Time) {
	if s.ActiveStart == nil {
		return
	}
	if delta := t.Sub(*s.ActiveStart); delta > 0 {
		s.fold(delta)
	}
	s.ActiveStart = nil
	s.ActiveHull = ""
}

// Reship folds the time flown under the current hull and continues the
// session under newHull. The pilot's in-fleet time is continuous across the
// swap; only the per-hull bucket restarts. A reship while idle opens a
// session, since the pilot is evidently in fleet.
func (s *Stats) Reship(newHull string, t time.Time) {
	if s.ActiveStart != nil {
		if delta := t.Sub(*s.ActiveStart); delta > 0 {
			s.fold(delta)
		}
	}
	start := t
	s.ActiveStart = &start
	s.ActiveHull = newHull
}

func (s *Stats) fold(delta time.Duration) {
	secs := int64(delta.Seconds())
	s.TotalSeconds += secs
	if s.HullSeconds == nil {
		s.HullSeconds = make(map[string]int64)
	}
	if s.ActiveHull != "" {
		s.HullSeconds[s.ActiveHull] += secs
	}
}
