// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package websocket fans bus messages out to dashboard viewers.
//
// The hub keeps a topic-keyed registry of connected clients. When the first
// viewer of a topic registers, the hub opens a bus subscription for that
// topic and pumps its messages to every registered client; when the last
// viewer leaves, the subscription is canceled. A client whose send buffer is
// full is disconnected rather than allowed to stall the fleet's other
// viewers. Viewers receive full-state frames, so a dropped message is
// superseded by the next one and never needs replay.
package websocket
