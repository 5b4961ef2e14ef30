// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

// Package bus is the in-process message bus between the poll orchestrators
// and the websocket layer. Topics are fleet-scoped (all viewers of one
// fleet) or user-scoped (private notices). Delivery is at-most-once with no
// backlog: a viewer who connects mid-session sees state from that point on.
package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/arkonor/fleetglass/internal/logging"
	"github.com/arkonor/fleetglass/internal/metrics"
	"github.com/goccy/go-json"
)

// Bus is the publish/subscribe surface injected into components. It is an
// explicit dependency, not a process-wide singleton, so tests can run against
// their own instance.
type Bus interface {
	// Publish JSON-encodes payload and sends it to topic.
	Publish(topic string, payload any) error

	// Subscribe returns a channel of raw messages for topic. The channel
	// closes when ctx is canceled.
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)

	// Close shuts the bus down; outstanding subscriptions end.
	Close() error
}

// FleetTopic addresses all viewers of one fleet.
func FleetTopic(fleetID int64) string {
	return fmt.Sprintf("fleet.%d", fleetID)
}

// UserTopic addresses one dashboard user's private channel.
func UserTopic(accountID int64) string {
	return fmt.Sprintf("user.%d", accountID)
}

// topicClass reduces a topic to its metric label ("fleet" or "user").
func topicClass(topic string) string {
	class, _, _ := strings.Cut(topic, ".")
	return class
}

// GoChannelBus implements Bus on Watermill's in-process GoChannel transport.
type GoChannelBus struct {
	pubSub *gochannel.GoChannel
}

// NewGoChannel creates an in-process bus. Slow subscribers do not block
// publishers; the output buffer absorbs bursts and the websocket layer drops
// beyond that.
func NewGoChannel() *GoChannelBus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermillLogger{})
	return &GoChannelBus{pubSub: pubSub}
}

// Publish JSON-encodes payload and sends it to topic.
func (b *GoChannelBus) Publish(topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode bus payload for %s: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), raw)
	if err := b.pubSub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	metrics.BusPublished.WithLabelValues(topicClass(topic)).Inc()
	return nil
}

// Subscribe returns the message stream for topic.
func (b *GoChannelBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubSub.Subscribe(ctx, topic)
}

// Close shuts down the transport.
func (b *GoChannelBus) Close() error {
	return b.pubSub.Close()
}

// watermillLogger bridges Watermill's logging into zerolog.
type watermillLogger struct {
	fields watermill.LogFields
}

func (w watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.event(logging.Error().Err(err), fields).Msg(msg)
}

func (w watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.event(logging.Debug(), fields).Msg(msg)
}

func (w watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.event(logging.Debug(), fields).Msg(msg)
}

func (w watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.event(logging.Debug(), fields).Msg(msg)
}

func (w watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{fields: w.fields.Add(fields)}
}

func (w watermillLogger) event(event *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for key, value := range w.fields {
		event = event.Interface(key, value)
	}
	for key, value := range fields {
		event = event.Interface(key, value)
	}
	return event
}
