// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package catalog resolves ship type IDs to display names and groups from an
// embedded static-data extract. The extract covers the hulls that show up in
// doctrine fleets; anything outside it renders as "Unknown Ship" so a missing
// row never fails a poll cycle.
package catalog

import (
	_ "embed"
	"fmt"

	"github.com/goccy/go-json"
)

// UnknownShip is the display name for type IDs absent from the extract.
const UnknownShip = "Unknown Ship"

// UnknownGroup is the category for type IDs absent from the extract.
const UnknownGroup = "Other"

//go:embed ships.json
var shipData []byte

// ShipType is one row of the static-data extract.
type ShipType struct {
	TypeID int32  `json:"type_id"`
	Name   string `json:"name"`
	Group  string `json:"group"`
}

// Catalog is an immutable type-ID lookup table.
type Catalog struct {
	byID map[int32]ShipType
}

// Load parses the embedded extract. It fails only on a corrupt build.
func Load() (*Catalog, error) {
	var ships []ShipType
	if err := json.Unmarshal(shipData, &ships); err != nil {
		return nil, fmt.Errorf("parse embedded ship data: %w", err)
	}

	byID := make(map[int32]ShipType, len(ships))
	for _, s := range ships {
		byID[s.TypeID] = s
	}
	return &Catalog{byID: byID}, nil
}

// Name returns the hull display name, or UnknownShip.
func (c *Catalog) Name(typeID int32) string {
	if s, ok := c.byID[typeID]; ok {
		return s.Name
	}
	return UnknownShip
}

// Group returns the hull category, or UnknownGroup.
func (c *Catalog) Group(typeID int32) string {
	if s, ok := c.byID[typeID]; ok {
		return s.Group
	}
	return UnknownGroup
}

// Lookup returns the full row for a type ID.
func (c *Catalog) Lookup(typeID int32) (ShipType, bool) {
	s, ok := c.byID[typeID]
	return s, ok
}

// Len returns the number of known hulls.
func (c *Catalog) Len() int {
	return len(c.byID)
}
