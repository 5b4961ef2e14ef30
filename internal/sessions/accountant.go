// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/arkonor/fleetglass/internal/activity"
	"github.com/arkonor/fleetglass/internal/config"
	"github.com/arkonor/fleetglass/internal/logging"
	"github.com/arkonor/fleetglass/internal/reconcile"
)

// Store persists per-pilot stats rows.
type Store interface {
	// Get returns the pilot's row, or nil if none exists yet.
	Get(ctx context.Context, characterID int64) (*Stats, error)

	// Put creates or replaces the pilot's row.
	Put(ctx context.Context, stats *Stats) error

	// Reset drops all rows. Used by full backfill only.
	Reset(ctx context.Context) error
}

// Accountant applies reconciliation events to persisted session stats.
type Accountant struct {
	store Store
	cfg   config.SessionsConfig
}

// NewAccountant creates an accountant with the configured thresholds.
func NewAccountant(store Store, cfg config.SessionsConfig) *Accountant {
	return &Accountant{store: store, cfg: cfg}
}

// Apply folds one reconciliation event into the pilot's stats row. Rows are
// created lazily on first event. Event kinds without a time dimension
// (moves, promotions, demotions) are ignored.
func (a *Accountant) Apply(ctx context.Context, ev reconcile.Event) error {
	var mutate func(*Stats)
	switch ev.Kind {
	case reconcile.KindJoin:
		mutate = func(s *Stats) { s.Join(ev.HullName, ev.Timestamp, a.cfg.FoldCap) }
	case reconcile.KindLeave:
		mutate = func(s *Stats) { s.Leave(ev.Timestamp) }
	case reconcile.KindShipChange:
		mutate = func(s *Stats) { s.Reship(ev.HullName, ev.Timestamp) }
	default:
		return nil
	}

	stats, err := a.store.Get(ctx, ev.CharacterID)
	if err != nil {
		return fmt.Errorf("load stats for %d: %w", ev.CharacterID, err)
	}
	if stats == nil {
		stats = NewStats(ev.CharacterID)
	}

	// A session left open from a missed leave is resolved by the event
	// itself: Join folds the stale span when plausible and discards it past
	// the fold cap. The stale-threshold auto-close applies only to Rebuild,
	// where dangling sessions have no follow-up event to settle them.
	mutate(stats)

	if err := a.store.Put(ctx, stats); err != nil {
		return fmt.Errorf("save stats for %d: %w", ev.CharacterID, err)
	}
	return nil
}

// Rebuild recomputes every stats row from the full activity log. The replay
// walks entries in timestamp order through the same state machine as live
// accounting, then auto-closes any session still open whose age exceeds the
// stale threshold, so an abandoned session folds in rather than dangling
// forever.
func (a *Accountant) Rebuild(ctx context.Context, log activity.Store) error {
	if err := a.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset stats: %w", err)
	}

	rebuilt := make(map[int64]*Stats)
	get := func(id int64) *Stats {
		s, ok := rebuilt[id]
		if !ok {
			s = NewStats(id)
			rebuilt[id] = s
		}
		return s
	}

	err := log.ReplayAsc(ctx, func(entry activity.Entry) error {
		s := get(entry.CharacterID)
		switch entry.Action {
		case activity.ActionESIJoin:
			s.Join(entry.ShipName, entry.Timestamp, a.cfg.FoldCap)
		case activity.ActionLeftFleet, activity.ActionKicked:
			s.Leave(entry.Timestamp)
		case activity.ActionShipChange:
			s.Reship(entry.ShipName, entry.Timestamp)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replay activity log: %w", err)
	}

	now := time.Now().UTC()
	for _, s := range rebuilt {
		if s.ActiveStart != nil && now.Sub(*s.ActiveStart) > a.cfg.StaleThreshold {
			s.Leave(s.ActiveStart.Add(a.cfg.StaleThreshold))
		}
		if err := a.store.Put(ctx, s); err != nil {
			return fmt.Errorf("save rebuilt stats for %d: %w", s.CharacterID, err)
		}
	}

	logging.Info().Int("pilots", len(rebuilt)).Msg("session stats rebuilt from activity log")
	return nil
}
