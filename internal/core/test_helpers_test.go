package core

import (
	"sync"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent drains ch and fails if an event of kind is queued.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event %v: %+v", kind, ev)
			}
		default:
			return
		}
	}
}

// countEvents drains ch and counts events of kind.
func countEvents(ch <-chan *Event, kind EventKind) int {
	n := 0
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				n++
			}
		default:
			return n
		}
	}
}

type mapDirectory struct {
	mu   sync.RWMutex
	byID map[string]Identity
}

func newDirectory(ids ...string) *mapDirectory {
	d := &mapDirectory{byID: make(map[string]Identity)}
	for _, id := range ids {
		d.byID[id] = Identity{ID: id, DisplayName: id + " name"}
	}
	return d
}

func (d *mapDirectory) Lookup(id string) (Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ident, ok := d.byID[id]
	return ident, ok
}

func newTestHub(t testing.TB, ids ...string) *Hub {
	t.Helper()
	return NewHub(newDirectory(ids...), nil, Options{})
}

// connect registers a connection for identity.
func connect(h *Hub, connID, identity string) *Client {
	c := NewClient(connID, identity, 256)
	h.RegisterClient(c)
	return c
}

func joinRoom(t testing.TB, h *Hub, c *Client, room string) {
	t.Helper()
	if err := h.Handle(c, &Command{Kind: CommandJoinRoom, Identity: c.Identity, Room: room}); err != nil {
		t.Fatalf("join %s as %s: %v", room, c.Identity, err)
	}
}

func say(t testing.TB, h *Hub, c *Client, room, text string) {
	t.Helper()
	if err := h.Handle(c, &Command{Kind: CommandSendRoomMessage, Identity: c.Identity, Room: room, Text: text}); err != nil {
		t.Fatalf("send to %s as %s: %v", room, c.Identity, err)
	}
}
