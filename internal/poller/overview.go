// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package poller

import (
	"fmt"
	"sort"

	"github.com/arkonor/fleetglass/internal/bus"
	"github.com/arkonor/fleetglass/internal/esi"
	"github.com/arkonor/fleetglass/internal/snapshot"
)

// buildOverview renders the full-state frame pushed to viewers: member
// count, a ship class summary, and the wing/squad hierarchy with every
// pilot's placement. Pilots whose wing is unknown (fleet boss, or a wing the
// structure fetch missed) are grouped under synthesized labels.
func (p *Poller) buildOverview(cur snapshot.Snapshot, wings []esi.Wing, known map[int64]string) bus.FleetOverview {
	overview := bus.FleetOverview{
		FleetID:     p.fleet,
		MemberCount: len(cur),
		Summary:     make(map[string]int, 8),
	}

	// Placement buckets keyed by wing then squad id.
	buckets := make(map[int64]*bucket)

	for id, state := range cur {
		overview.Summary[p.catalog.Group(state.ShipTypeID)]++

		member := bus.MemberOverview{
			CharacterID: id,
			Character:   displayName(known, id),
			Ship:        p.catalog.Name(state.ShipTypeID),
			Role:        state.Role,
		}

		b := buckets[state.WingID]
		if b == nil {
			b = &bucket{squads: make(map[int64][]bus.MemberOverview)}
			buckets[state.WingID] = b
		}
		if state.SquadID > 0 {
			b.squads[state.SquadID] = append(b.squads[state.SquadID], member)
		} else {
			b.wingLevel = append(b.wingLevel, member)
		}
	}

	// Known structure first, in wing order, including empty wings so the
	// dashboard shows the commander's full layout.
	seen := make(map[int64]bool, len(wings))
	for _, wing := range wings {
		seen[wing.ID] = true
		overview.Hierarchy = append(overview.Hierarchy, renderWing(wing.Name, wing.Squads, buckets[wing.ID]))
	}

	// Then anything the structure fetch did not cover: the boss slot
	// (wing id 0 or below) and wings created since the wings call.
	extra := make([]int64, 0, len(buckets))
	for wingID := range buckets {
		if !seen[wingID] {
			extra = append(extra, wingID)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, wingID := range extra {
		name := fmt.Sprintf("Wing %d", wingID)
		if wingID <= 0 {
			name = "Fleet Command"
		}
		overview.Hierarchy = append(overview.Hierarchy, renderWing(name, nil, buckets[wingID]))
	}

	return overview
}

// renderWing assembles one wing's overview from its known squads plus any
// squads observed only through member placement.
func renderWing(name string, squads []esi.Squad, b *bucket) bus.WingOverview {
	wing := bus.WingOverview{Name: name}
	if b == nil {
		b = &bucket{}
	}
	wing.Members = sortMembers(b.wingLevel)

	seen := make(map[int64]bool, len(squads))
	for _, squad := range squads {
		seen[squad.ID] = true
		wing.Squads = append(wing.Squads, bus.SquadOverview{
			Name:    squad.Name,
			Members: sortMembers(b.squads[squad.ID]),
		})
	}

	extra := make([]int64, 0, len(b.squads))
	for squadID := range b.squads {
		if !seen[squadID] {
			extra = append(extra, squadID)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, squadID := range extra {
		wing.Squads = append(wing.Squads, bus.SquadOverview{
			Name:    fmt.Sprintf("Squad %d", squadID),
			Members: sortMembers(b.squads[squadID]),
		})
	}

	return wing
}

// bucket holds one wing's member placements before rendering.
type bucket struct {
	wingLevel []bus.MemberOverview
	squads    map[int64][]bus.MemberOverview
}

func sortMembers(members []bus.MemberOverview) []bus.MemberOverview {
	sort.Slice(members, func(i, j int) bool {
		if members[i].Character != members[j].Character {
			return members[i].Character < members[j].Character
		}
		return members[i].CharacterID < members[j].CharacterID
	})
	return members
}

// displayName resolves a pilot's name from the registry, with a synthetic
// placeholder for pilots never registered through the waitlist.
func displayName(known map[int64]string, id int64) string {
	if name, ok := known[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("Pilot %d", id)
}
