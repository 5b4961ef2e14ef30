// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package bus

import (
	"github.com/arkonor/fleetglass/internal/esi"
	"github.com/arkonor/fleetglass/internal/logging"
)

// Broadcaster turns engine outputs into bus messages. Publish failures are
// logged and swallowed: a viewer missing one frame recovers on the next
// poll cycle, whereas failing the poll would stall every viewer.
type Broadcaster struct {
	bus Bus
}

// NewBroadcaster wraps a bus for one-line publishing from the pollers.
func NewBroadcaster(b Bus) *Broadcaster {
	return &Broadcaster{bus: b}
}

// FleetOverview pushes the full composition to all viewers of the fleet.
func (br *Broadcaster) FleetOverview(overview FleetOverview) {
	overview.Type = TypeFleetOverview
	br.publish(FleetTopic(overview.FleetID), overview)
}

// FleetError tells the fleet's viewers that tracking is interrupted.
func (br *Broadcaster) FleetError(fleetID int64, msg string) {
	br.publish(FleetTopic(fleetID), FleetError{
		Type:    TypeFleetError,
		FleetID: fleetID,
		Error:   msg,
	})
}

// LogLine pushes one activity feed line to the fleet's viewers.
func (br *Broadcaster) LogLine(fleetID int64, level, msg string) {
	br.publish(FleetTopic(fleetID), LogLine{
		Type:    TypeLog,
		FleetID: fleetID,
		Level:   level,
		Message: msg,
	})
}

// NotifyRateLimit implements esi.RateLimitNotifier by warning the affected
// user on their private topic.
func (br *Broadcaster) NotifyRateLimit(accountID int64, state esi.RateLimitState) {
	br.publish(UserTopic(accountID), RateLimitNotice{
		Type:      TypeRateLimit,
		Bucket:    state.Bucket,
		Remaining: state.Remaining,
		Limit:     state.Limit,
		Window:    state.Window,
	})
}

func (br *Broadcaster) publish(topic string, payload any) {
	if err := br.bus.Publish(topic, payload); err != nil {
		logging.Warn().Err(err).Str("topic", topic).Msg("Dropped bus message")
	}
}
