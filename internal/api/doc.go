// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package api is the HTTP surface: the websocket viewer endpoint, the
// activity history and session stats queries, and the operational routes
// (health, metrics). Routing is chi with the cors and httprate middleware
// from its ecosystem. Viewers authenticate with a signed token minted by the
// commander's auth frontend; this service only verifies it.
package api
