// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package poller drives the reconciliation loop for one tracked fleet. A
// poller is started when a viewer connects and lives exactly as long as the
// viewer's connection context.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/arkonor/fleetglass/internal/activity"
	"github.com/arkonor/fleetglass/internal/bus"
	"github.com/arkonor/fleetglass/internal/catalog"
	"github.com/arkonor/fleetglass/internal/config"
	"github.com/arkonor/fleetglass/internal/esi"
	"github.com/arkonor/fleetglass/internal/logging"
	"github.com/arkonor/fleetglass/internal/metrics"
	"github.com/arkonor/fleetglass/internal/reconcile"
	"github.com/arkonor/fleetglass/internal/sessions"
	"github.com/arkonor/fleetglass/internal/snapshot"
)

// Poll cycle results, used as the metric label.
const (
	ResultOK        = "ok"
	ResultUnchanged = "unchanged"
	ResultFleetGone = "fleet_gone"
	ResultError     = "error"
)

// Gateway is the slice of the ESI client the poller needs. Narrowed to an
// interface so cycle tests can run against a fake instead of httptest.
type Gateway interface {
	FleetMembers(ctx context.Context, cred esi.Credential, fleetID int64) ([]esi.Member, bool, error)
	FleetWings(ctx context.Context, cred esi.Credential, fleetID int64) ([]esi.Wing, error)
	CharacterFleet(ctx context.Context, cred esi.Credential) (int64, error)
}

// Poller reconciles one fleet on a fixed cadence and publishes the results.
type Poller struct {
	cfg   config.PollerConfig
	gw    Gateway
	cred  esi.Credential
	boss  int64 // commander character id, for log context
	fleet int64 // 0 until discovered via CharacterFleet

	snapshots  *snapshot.Store
	engine     *reconcile.Engine
	accountant *sessions.Accountant
	log        activity.Store
	catalog    *catalog.Catalog
	broadcast  *bus.Broadcaster

	// onFleetChange fires whenever the tracked fleet changes, before any
	// frame is published for the new fleet. Viewers use it to follow the
	// fleet topic across discovery and fleet-gone resets.
	onFleetChange func(oldID, newID int64)
}

// New builds a poller for the commander behind cred. fleetID may be zero, in
// which case the first cycle discovers the fleet from the commander's
// character.
func New(
	cfg config.PollerConfig,
	gw Gateway,
	cred esi.Credential,
	fleetID int64,
	snapshots *snapshot.Store,
	engine *reconcile.Engine,
	accountant *sessions.Accountant,
	log activity.Store,
	cat *catalog.Catalog,
	broadcast *bus.Broadcaster,
) *Poller {
	return &Poller{
		cfg:        cfg,
		gw:         gw,
		cred:       cred,
		boss:       cred.CharacterID(),
		fleet:      fleetID,
		snapshots:  snapshots,
		engine:     engine,
		accountant: accountant,
		log:        log,
		catalog:    cat,
		broadcast:  broadcast,
	}
}

// FleetID returns the currently tracked fleet, 0 if none resolved yet.
func (p *Poller) FleetID() int64 {
	return p.fleet
}

// OnFleetChange registers the fleet-change hook. Call before Run.
func (p *Poller) OnFleetChange(fn func(oldID, newID int64)) {
	p.onFleetChange = fn
}

// setFleet updates the tracked fleet and fires the change hook.
func (p *Poller) setFleet(fleetID int64) {
	old := p.fleet
	if old == fleetID {
		return
	}
	p.fleet = fleetID
	if p.onFleetChange != nil {
		p.onFleetChange(old, fleetID)
	}
}

// Run polls until ctx is canceled. Cycles that fail back off to the error
// interval; a fleet that disbanded keeps being re-probed at the error
// interval so tracking resumes when the commander forms again.
func (p *Poller) Run(ctx context.Context) error {
	metrics.ActivePollers.Inc()
	defer metrics.ActivePollers.Dec()

	logging.Info().
		Int64("character_id", p.boss).
		Int64("fleet_id", p.fleet).
		Msg("poller started")

	for {
		result := p.cycle(ctx)
		metrics.PollCycles.WithLabelValues(result).Inc()

		interval := p.cfg.Interval
		if result == ResultError || result == ResultFleetGone {
			interval = p.cfg.ErrorInterval
		}

		select {
		case <-ctx.Done():
			logging.Info().
				Int64("character_id", p.boss).
				Int64("fleet_id", p.fleet).
				Msg("poller stopped")
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// cycle runs one reconciliation pass and returns its result label.
func (p *Poller) cycle(ctx context.Context) string {
	if p.fleet == 0 {
		fleetID, err := p.gw.CharacterFleet(ctx, p.cred)
		if err != nil {
			if errors.Is(err, esi.ErrNotFound) {
				p.broadcast.FleetError(0, "commander is not in a fleet")
				return ResultFleetGone
			}
			logging.Warn().Err(err).Int64("character_id", p.boss).Msg("fleet discovery failed")
			return ResultError
		}
		p.setFleet(fleetID)
		logging.Info().Int64("character_id", p.boss).Int64("fleet_id", fleetID).Msg("fleet discovered")
	}

	members, cached, err := p.gw.FleetMembers(ctx, p.cred, p.fleet)
	if err != nil {
		return p.memberFetchFailed(err)
	}
	if cached {
		// Upstream reported no change since the last fetch. Nothing to
		// diff and nothing to push.
		return ResultUnchanged
	}

	wings := p.fetchWings(ctx)
	names := reconcile.BuildPositionNames(wings)
	cur := snapshot.FromMembers(members)

	var prev snapshot.Snapshot
	if stored, ok := p.snapshots.Get(p.fleet); ok {
		prev = stored
	}

	known, err := p.log.KnownCharacters(ctx, unionIDs(prev, cur))
	if err != nil {
		logging.Error().Err(err).Int64("fleet_id", p.fleet).Msg("character lookup failed")
		return ResultError
	}

	now := time.Now().UTC()
	events := p.engine.Diff(ctx, p.fleet, prev, cur, names, known, now)
	for _, ev := range events {
		p.applyEvent(ctx, ev)
	}

	p.broadcast.FleetOverview(p.buildOverview(cur, wings, known))
	p.snapshots.Put(p.fleet, cur)
	return ResultOK
}

// memberFetchFailed maps a member fetch error to a cycle result and informs
// the fleet's viewers. A 404 means the fleet disbanded or the commander lost
// the boss role; the fleet link is dropped so the next cycle re-discovers,
// and the stored snapshot stays put so history survives a brief handover.
func (p *Poller) memberFetchFailed(err error) string {
	switch {
	case errors.Is(err, esi.ErrNotFound):
		logging.Info().Int64("fleet_id", p.fleet).Msg("fleet no longer visible")
		p.broadcast.FleetError(p.fleet, "fleet disbanded or boss changed")
		p.setFleet(0)
		return ResultFleetGone
	case errors.Is(err, esi.ErrAuth), errors.Is(err, esi.ErrScope):
		p.broadcast.FleetError(p.fleet, "ESI authorization rejected")
		logging.Warn().Err(err).Int64("fleet_id", p.fleet).Msg("fleet members fetch unauthorized")
		return ResultError
	default:
		logging.Warn().Err(err).Int64("fleet_id", p.fleet).Msg("fleet members fetch failed")
		return ResultError
	}
}

// fetchWings fetches the wing and squad structure. Failure degrades move
// descriptions and the hierarchy to numeric placeholders, it does not fail
// the cycle.
func (p *Poller) fetchWings(ctx context.Context) []esi.Wing {
	wings, err := p.gw.FleetWings(ctx, p.cred, p.fleet)
	if err != nil {
		logging.Warn().Err(err).Int64("fleet_id", p.fleet).Msg("fleet wings fetch failed")
		return nil
	}
	return wings
}

// applyEvent fans one reconciliation event into the session accountant, the
// activity log, and the viewer feed. Persistence errors are logged, not
// fatal; the snapshot advances regardless so the engine never replays a
// change it already observed.
func (p *Poller) applyEvent(ctx context.Context, ev reconcile.Event) {
	if err := p.accountant.Apply(ctx, ev); err != nil {
		logging.Error().Err(err).
			Int64("character_id", ev.CharacterID).
			Str("kind", string(ev.Kind)).
			Msg("session accounting failed")
	}

	entry := &activity.Entry{
		FleetID:     p.fleet,
		CharacterID: ev.CharacterID,
		Character:   ev.Character,
		Action:      actionForKind(ev.Kind),
		Timestamp:   ev.Timestamp,
		ShipName:    ev.HullName,
		HullID:      ev.HullID,
		Details:     ev.Detail,
	}
	if err := p.log.Insert(ctx, entry); err != nil {
		logging.Error().Err(err).
			Int64("character_id", ev.CharacterID).
			Str("kind", string(ev.Kind)).
			Msg("activity insert failed")
	}

	p.broadcast.LogLine(p.fleet, "info", formatEvent(ev))
}

// actionForKind maps engine event kinds to activity log actions.
func actionForKind(kind reconcile.Kind) activity.Action {
	switch kind {
	case reconcile.KindJoin:
		return activity.ActionESIJoin
	case reconcile.KindLeave:
		return activity.ActionLeftFleet
	case reconcile.KindShipChange:
		return activity.ActionShipChange
	case reconcile.KindMoved:
		return activity.ActionMoved
	case reconcile.KindPromoted:
		return activity.ActionPromoted
	case reconcile.KindDemoted:
		return activity.ActionDemoted
	default:
		return activity.Action(kind)
	}
}

// formatEvent renders one feed line for the dashboard activity log.
func formatEvent(ev reconcile.Event) string {
	switch ev.Kind {
	case reconcile.KindJoin:
		suffix := ""
		if ev.FromWaitlist {
			suffix = " (from waitlist)"
		} else if ev.Returning {
			suffix = " (returning)"
		}
		return fmt.Sprintf("%s joined the fleet in a %s%s", ev.Character, ev.HullName, suffix)
	case reconcile.KindLeave:
		return fmt.Sprintf("%s left the fleet", ev.Character)
	case reconcile.KindShipChange:
		return fmt.Sprintf("%s switched ships: %s", ev.Character, ev.Detail)
	case reconcile.KindMoved:
		return fmt.Sprintf("%s moved: %s", ev.Character, ev.Detail)
	case reconcile.KindPromoted:
		return fmt.Sprintf("%s was promoted: %s", ev.Character, ev.Detail)
	case reconcile.KindDemoted:
		return fmt.Sprintf("%s was demoted: %s", ev.Character, ev.Detail)
	default:
		return fmt.Sprintf("%s: %s", ev.Character, ev.Detail)
	}
}

// unionIDs collects every character id present in either snapshot.
func unionIDs(prev, cur snapshot.Snapshot) []int64 {
	seen := make(map[int64]bool, len(prev)+len(cur))
	for id := range prev {
		seen[id] = true
	}
	for id := range cur {
		seen[id] = true
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
