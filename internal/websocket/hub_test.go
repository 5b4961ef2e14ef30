// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
)

// fakeBus is an in-memory bus.Bus that records how many subscriptions are
// open per topic, so tests can assert the hub opens one per live topic and
// tears it down when the last viewer leaves.
type fakeBus struct {
	mu       sync.Mutex
	channels map[string][]chan *message.Message
	active   map[string]int
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		channels: make(map[string][]chan *message.Message),
		active:   make(map[string]int),
	}
}

func (b *fakeBus) Publish(topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.channels[topic] {
		ch <- message.NewMessage(watermill.NewUUID(), raw)
	}
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message, 8)
	b.mu.Lock()
	b.channels[topic] = append(b.channels[topic], ch)
	b.active[topic]++
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.active[topic]--
		b.mu.Unlock()
	}()
	return ch, nil
}

func (b *fakeBus) Close() error { return nil }

func (b *fakeBus) activeSubs(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active[topic]
}

// waitFor polls cond until it holds or the test deadline budget runs out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startHub(t *testing.T, b *fakeBus) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(b)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, cancel
}

func TestHubRegisterUnregister(t *testing.T) {
	b := newFakeBus()
	hub, _ := startHub(t, b)

	c1 := NewClient(hub, nil, []string{"fleet.42", "user.7"})
	c2 := NewClient(hub, nil, []string{"fleet.42"})
	hub.Register <- c1
	hub.Register <- c2

	waitFor(t, "both clients registered", func() bool { return hub.ClientCount() == 2 })
	if got := hub.TopicClientCount("fleet.42"); got != 2 {
		t.Errorf("fleet.42 client count = %d, want 2", got)
	}
	if got := hub.TopicClientCount("user.7"); got != 1 {
		t.Errorf("user.7 client count = %d, want 1", got)
	}
	// Two viewers of the same topic share one bus subscription.
	if got := b.activeSubs("fleet.42"); got != 1 {
		t.Errorf("fleet.42 subscriptions = %d, want 1", got)
	}

	hub.Unregister <- c2
	waitFor(t, "c2 unregistered", func() bool { return hub.ClientCount() == 1 })
	if got := b.activeSubs("fleet.42"); got != 1 {
		t.Errorf("fleet.42 subscriptions after first leave = %d, want 1", got)
	}

	hub.Unregister <- c1
	waitFor(t, "c1 unregistered", func() bool { return hub.ClientCount() == 0 })
	waitFor(t, "fleet.42 subscription canceled", func() bool { return b.activeSubs("fleet.42") == 0 })
	waitFor(t, "user.7 subscription canceled", func() bool { return b.activeSubs("user.7") == 0 })
}

func TestHubDeliversToTopicClients(t *testing.T) {
	b := newFakeBus()
	hub, _ := startHub(t, b)

	c1 := NewClient(hub, nil, []string{"fleet.42"})
	c2 := NewClient(hub, nil, []string{"fleet.42"})
	other := NewClient(hub, nil, []string{"fleet.99"})
	hub.Register <- c1
	hub.Register <- c2
	hub.Register <- other
	waitFor(t, "clients registered", func() bool { return hub.ClientCount() == 3 })

	if err := b.Publish("fleet.42", map[string]string{"type": "log"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, c := range []*Client{c1, c2} {
		select {
		case payload := <-c.send:
			var frame struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(payload, &frame); err != nil {
				t.Fatalf("decode frame: %v", err)
			}
			if frame.Type != "log" {
				t.Errorf("frame type = %q, want log", frame.Type)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("client %d received no frame", c.ID())
		}
	}

	select {
	case <-other.send:
		t.Error("client on fleet.99 received a fleet.42 frame")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRetopicFollowsFleet(t *testing.T) {
	b := newFakeBus()
	hub, _ := startHub(t, b)

	// A discovery viewer starts on the unresolved fleet topic.
	client := NewClient(hub, nil, []string{"fleet.0", "user.7"})
	hub.Register <- client
	waitFor(t, "client registered", func() bool { return hub.ClientCount() == 1 })

	hub.Retopic(client, "fleet.0", "fleet.77")

	if got := hub.TopicClientCount("fleet.0"); got != 0 {
		t.Errorf("fleet.0 client count = %d, want 0 after move", got)
	}
	if got := hub.TopicClientCount("fleet.77"); got != 1 {
		t.Errorf("fleet.77 client count = %d, want 1 after move", got)
	}
	waitFor(t, "fleet.0 subscription canceled", func() bool { return b.activeSubs("fleet.0") == 0 })
	if got := b.activeSubs("fleet.77"); got != 1 {
		t.Errorf("fleet.77 subscriptions = %d, want 1", got)
	}

	// Frames for the discovered fleet now reach the viewer.
	if err := b.Publish("fleet.77", map[string]string{"type": "fleet_overview"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case payload := <-client.send:
		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame.Type != "fleet_overview" {
			t.Errorf("frame type = %q, want fleet_overview", frame.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received on discovered fleet topic")
	}

	// Unregistering tears down the moved topic, not the original.
	hub.Unregister <- client
	waitFor(t, "client unregistered", func() bool { return hub.ClientCount() == 0 })
	waitFor(t, "fleet.77 subscription canceled", func() bool { return b.activeSubs("fleet.77") == 0 })
}

func TestHubDisconnectsSlowClient(t *testing.T) {
	b := newFakeBus()
	hub, _ := startHub(t, b)

	slow := NewClient(hub, nil, []string{"fleet.42"})
	hub.Register <- slow
	waitFor(t, "client registered", func() bool { return hub.ClientCount() == 1 })

	// Nothing drains slow.send, so filling the buffer and publishing once
	// more forces the overflow path.
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- []byte(`{}`)
	}
	if err := b.Publish("fleet.42", map[string]string{"type": "log"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, "slow client disconnected", func() bool { return hub.ClientCount() == 0 })
	if got := hub.TopicClientCount("fleet.42"); got != 0 {
		t.Errorf("fleet.42 client count = %d, want 0 after disconnect", got)
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	b := newFakeBus()
	hub := NewHub(b)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.Serve(ctx) }()

	client := NewClient(hub, nil, []string{"fleet.42"})
	hub.Register <- client
	waitFor(t, "client registered", func() bool { return hub.ClientCount() == 1 })

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}

	// The send channel is closed during shutdown; the write pump would see
	// that as the signal to close the connection.
	waitFor(t, "send channel closed", func() bool {
		select {
		case _, ok := <-client.send:
			return !ok
		default:
			return false
		}
	})
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("client count after shutdown = %d, want 0", got)
	}
	waitFor(t, "subscription canceled", func() bool { return b.activeSubs("fleet.42") == 0 })
}
