// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package reconcile

import (
	"fmt"

	"github.com/arkonor/fleetglass/internal/esi"
)

// PositionNames renders wing/squad IDs as display names. It is rebuilt from
// the fleet's wing structure on every poll and never persisted.
type PositionNames struct {
	wings  map[int64]string
	squads map[int64]string
}

// BuildPositionNames indexes a fleet's wing/squad structure.
func BuildPositionNames(wings []esi.Wing) PositionNames {
	p := PositionNames{
		wings:  make(map[int64]string, len(wings)),
		squads: make(map[int64]string),
	}
	for _, w := range wings {
		p.wings[w.ID] = w.Name
		for _, s := range w.Squads {
			p.squads[s.ID] = s.Name
		}
	}
	return p
}

// Render formats a fleet position. A non-positive wing is the fleet command
// position; a non-positive squad renders as the wing alone.
func (p PositionNames) Render(wingID, squadID int64) string {
	if wingID <= 0 {
		return "Fleet Command"
	}
	wing := p.wings[wingID]
	if wing == "" {
		wing = fmt.Sprintf("Wing %d", wingID)
	}
	if squadID <= 0 {
		return wing
	}
	squad := p.squads[squadID]
	if squad == "" {
		squad = fmt.Sprintf("Squad %d", squadID)
	}
	return wing + " / " + squad
}
