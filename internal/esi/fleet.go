// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package esi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Role tokens as ESI reports them on fleet members.
const (
	RoleFleetCommander = "fleet_commander"
	RoleWingCommander  = "wing_commander"
	RoleSquadCommander = "squad_commander"
	RoleSquadMember    = "squad_member"
)

// Member is one row of GET /fleets/{fleet_id}/members/.
type Member struct {
	CharacterID    int64     `json:"character_id"`
	JoinTime       time.Time `json:"join_time"`
	Role           string    `json:"role"`
	ShipTypeID     int32     `json:"ship_type_id"`
	SolarSystemID  int64     `json:"solar_system_id"`
	SquadID        int64     `json:"squad_id"`
	TakesFleetWarp bool      `json:"takes_fleet_warp"`
	WingID         int64     `json:"wing_id"`
}

// Wing is one row of GET /fleets/{fleet_id}/wings/.
type Wing struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Squads []Squad `json:"squads"`
}

// Squad is a squad within a wing.
type Squad struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FleetMembers fetches the fleet roster. cached reports that the expiry
// window is still valid (or upstream said 304), meaning the roster cannot
// have changed since the caller last saw it.
func (c *Client) FleetMembers(ctx context.Context, cred Credential, fleetID int64) (members []Member, cached bool, err error) {
	url := fmt.Sprintf("%s/fleets/%d/members/", c.cfg.BaseURL, fleetID)
	resp, err := c.Call(ctx, cred, "fleet_members", http.MethodGet, url, nil, false)
	if err != nil {
		return nil, false, err
	}
	if resp.Cached || resp.NotModified {
		return nil, true, nil
	}
	if err := json.Unmarshal(resp.Data, &members); err != nil {
		return nil, false, fmt.Errorf("decode fleet members: %w", err)
	}
	return members, false, nil
}

// FleetWings fetches the wing/squad structure used for position names.
func (c *Client) FleetWings(ctx context.Context, cred Credential, fleetID int64) ([]Wing, error) {
	url := fmt.Sprintf("%s/fleets/%d/wings/", c.cfg.BaseURL, fleetID)
	resp, err := c.Call(ctx, cred, "fleet_wings", http.MethodGet, url, nil, false)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, nil
	}
	var wings []Wing
	if err := json.Unmarshal(resp.Data, &wings); err != nil {
		return nil, fmt.Errorf("decode fleet wings: %w", err)
	}
	return wings, nil
}

// CharacterFleet probes which fleet a character is currently in. ErrNotFound
// means the character is not in any fleet.
func (c *Client) CharacterFleet(ctx context.Context, cred Credential) (int64, error) {
	url := fmt.Sprintf("%s/characters/%d/fleet/", c.cfg.BaseURL, cred.CharacterID())
	resp, err := c.Call(ctx, cred, "character_fleet", http.MethodGet, url, nil, true)
	if err != nil {
		return 0, err
	}
	var probe struct {
		FleetID int64 `json:"fleet_id"`
	}
	if err := json.Unmarshal(resp.Data, &probe); err != nil {
		return 0, fmt.Errorf("decode fleet probe: %w", err)
	}
	return probe.FleetID, nil
}
