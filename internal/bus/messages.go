// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package bus

// Message type discriminators. Every payload carries one of these in its
// "type" field so the dashboard can dispatch without sniffing the shape.
const (
	TypeFleetOverview = "fleet_overview"
	TypeFleetError    = "fleet_error"
	TypeLog           = "log"
	TypeRateLimit     = "ratelimit"
)

// FleetOverview is the full composition pushed after a poll cycle that
// observed a change. It replaces, never patches, the viewer's state.
type FleetOverview struct {
	Type        string         `json:"type"`
	FleetID     int64          `json:"fleet_id"`
	MemberCount int            `json:"member_count"`
	Summary     map[string]int `json:"summary"`
	Hierarchy   []WingOverview `json:"hierarchy"`
}

// WingOverview is one wing of the rendered fleet hierarchy.
type WingOverview struct {
	Name    string           `json:"name"`
	Members []MemberOverview `json:"members,omitempty"`
	Squads  []SquadOverview  `json:"squads,omitempty"`
}

// SquadOverview is one squad within a wing.
type SquadOverview struct {
	Name    string           `json:"name"`
	Members []MemberOverview `json:"members"`
}

// MemberOverview is one pilot's placement in the hierarchy.
type MemberOverview struct {
	CharacterID int64  `json:"character_id"`
	Character   string `json:"character"`
	Ship        string `json:"ship"`
	Role        string `json:"role"`
}

// FleetError tells viewers the mirror cannot currently track the fleet.
type FleetError struct {
	Type    string `json:"type"`
	FleetID int64  `json:"fleet_id"`
	Error   string `json:"error"`
}

// LogLine is a human-readable activity line shown in the dashboard feed.
type LogLine struct {
	Type    string `json:"type"`
	FleetID int64  `json:"fleet_id"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// RateLimitNotice is a private warning that the user's ESI budget is
// running low.
type RateLimitNotice struct {
	Type      string `json:"type"`
	Bucket    string `json:"bucket"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	Window    string `json:"window"`
}
