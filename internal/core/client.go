package core

import (
	"sort"
	"sync"
)

const defaultEventBuffer = 64

// Client is one live connection as seen by the core layer.
// A single identity may own several clients (multi-device).
type Client struct {
	// ID is the connection reference, unique per connection.
	ID string
	// Identity is the verified identity id from the session, empty when unauthenticated.
	Identity string
	Events   chan *Event

	mu    sync.Mutex
	rooms map[string]struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// NewClient constructs a client with an initialized event channel.
func NewClient(id, identity string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Client{
		ID:       id,
		Identity: identity,
		Events:   make(chan *Event, buffer),
		rooms:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Authenticated reports whether the connection carries a verified identity.
func (c *Client) Authenticated() bool {
	return c.Identity != ""
}

// Done is closed once the hub asks the transport to drop this connection.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Kick asks the transport to close the connection. Safe to call more than once.
func (c *Client) Kick() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Rooms returns the ids of rooms the connection is joined to, ascending.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Client) addRoom(id string) {
	c.mu.Lock()
	c.rooms[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(id string) {
	c.mu.Lock()
	delete(c.rooms, id)
	c.mu.Unlock()
}

// send queues an event without blocking. Returns false if the event was dropped.
func (c *Client) send(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		// Drop if slow consumer.
		return false
	}
}
