// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/arkonor/fleetglass/internal/bus"
	"github.com/arkonor/fleetglass/internal/logging"
	"github.com/arkonor/fleetglass/internal/metrics"
)

// envelope is one frame addressed to every client of a topic. Payload is the
// already-encoded JSON from the bus and is written to the wire unchanged.
type envelope struct {
	topic   string
	payload []byte
}

// Hub maintains the set of active clients and fans bus messages out to them.
// Clients register with the topics they want; the hub opens one bus
// subscription per live topic and closes it when the last client leaves.
type Hub struct {
	bus bus.Bus

	clients map[*Client]bool
	topics  map[string]map[*Client]bool
	// cancels holds the per-topic subscription cancel funcs, keyed by topic.
	cancels map[string]context.CancelFunc

	broadcast  chan envelope
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	// runCtx is the context Serve was started with; per-topic subscriptions
	// derive from it so they all end at shutdown.
	runCtx context.Context
}

// NewHub creates a hub over the given bus. Call Serve before registering
// clients.
func NewHub(b bus.Bus) *Hub {
	return &Hub{
		bus:        b,
		clients:    make(map[*Client]bool),
		topics:     make(map[string]map[*Client]bool),
		cancels:    make(map[string]context.CancelFunc),
		broadcast:  make(chan envelope, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Serve runs the hub until ctx is canceled. Designed for suture supervision.
//
// Uses priority-based selection so behavior is predictable when multiple
// channels are ready at once:
//   - Priority 1: context cancellation (shutdown)
//   - Priority 2: client lifecycle events (Register/Unregister)
//   - Priority 3: broadcast frames
//
// Client state is therefore always settled before a frame is delivered.
func (h *Hub) Serve(ctx context.Context) error {
	h.runCtx = ctx

	for {
		// Priority 1: shutdown check, non-blocking.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: lifecycle events, non-blocking.
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: frames, blocking wait for any event.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	for _, topic := range client.topics {
		set := h.topics[topic]
		if set == nil {
			set = make(map[*Client]bool)
			h.topics[topic] = set
			h.subscribe(topic)
		}
		set[client] = true
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketClients.Set(float64(total))
	logging.Info().
		Int("total_clients", total).
		Strs("topics", client.topics).
		Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.dropFromTopics(client)
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// dropFromTopics removes the client from every topic set and cancels the
// bus subscription for topics left with no viewers. Caller holds h.mu.
func (h *Hub) dropFromTopics(client *Client) {
	for _, topic := range client.topics {
		set := h.topics[topic]
		if set == nil {
			continue
		}
		delete(set, client)
		if len(set) == 0 {
			delete(h.topics, topic)
			if cancel := h.cancels[topic]; cancel != nil {
				cancel()
				delete(h.cancels, topic)
			}
		}
	}
}

// subscribe opens the bus subscription for topic and pumps its messages into
// the broadcast channel. Caller holds h.mu.
func (h *Hub) subscribe(topic string) {
	ctx, cancel := context.WithCancel(h.runCtx)
	ch, err := h.bus.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		logging.Error().Err(err).Str("topic", topic).Msg("bus subscription failed")
		return
	}
	h.cancels[topic] = cancel

	go func() {
		for msg := range ch {
			msg.Ack()
			select {
			case h.broadcast <- envelope{topic: topic, payload: msg.Payload}:
			default:
				metrics.WebsocketDrops.Inc()
				logging.Warn().Str("topic", topic).Msg("broadcast channel full, dropping frame")
			}
		}
	}()
}

// deliver sends one frame to every client of its topic in a deterministic
// order. Clients are sorted by ID so delivery order is reproducible; a client
// with a full send buffer is removed rather than blocked on.
func (h *Hub) deliver(env envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.topics[env.topic]
	if len(set) == 0 {
		return
	}

	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- env.payload:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		metrics.WebsocketDrops.Inc()
		close(client.send)
		delete(h.clients, client)
		h.dropFromTopics(client)
		logging.Warn().Str("topic", env.topic).Msg("client send buffer full, disconnecting")
	}
	metrics.WebsocketClients.Set(float64(len(h.clients)))
}

// Retopic moves a registered client from one topic to another, keeping the
// per-topic subscription accounting intact. Used when a viewer's tracked
// fleet is discovered or lost, so their frames follow the fleet. No-op for
// unregistered clients or identical topics.
func (h *Hub) Retopic(client *Client, from, to string) {
	if from == to {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return
	}
	for i, topic := range client.topics {
		if topic == from {
			client.topics[i] = to
		}
	}

	if set := h.topics[from]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.topics, from)
			if cancel := h.cancels[from]; cancel != nil {
				cancel()
				delete(h.cancels, from)
			}
		}
	}

	set := h.topics[to]
	if set == nil {
		set = make(map[*Client]bool)
		h.topics[to] = set
		h.subscribe(to)
	}
	set[client] = true

	logging.Info().Str("from", from).Str("to", to).Msg("websocket client moved topics")
}

// shutdown closes all clients and logs the reason. Context cancellation is
// expected behavior here and is not logged as an error.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	for topic, cancel := range h.cancels {
		cancel()
		delete(h.cancels, topic)
	}
	h.topics = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	metrics.WebsocketClients.Set(0)

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TopicClientCount returns the number of clients registered for one topic.
func (h *Hub) TopicClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
