package core

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Presence maps identities to the connections currently joined to at least one room.
// It is only written as a side effect of a room mutation; reads may lag across rooms.
type Presence struct {
	mu sync.RWMutex
	// identity -> connection -> number of rooms that connection is joined to
	conns map[string]map[*Client]int
}

// NewPresence constructs an empty index.
func NewPresence() *Presence {
	return &Presence{conns: make(map[string]map[*Client]int)}
}

func (p *Presence) add(identity string, c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byConn, ok := p.conns[identity]
	if !ok {
		byConn = make(map[*Client]int)
		p.conns[identity] = byConn
	}
	byConn[c]++
}

func (p *Presence) remove(identity string, c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byConn, ok := p.conns[identity]
	if !ok {
		return
	}
	if byConn[c] <= 1 {
		delete(byConn, c)
	} else {
		byConn[c]--
	}
	if len(byConn) == 0 {
		delete(p.conns, identity)
	}
}

// Resolve returns the live connections of identity. Empty when the identity is offline.
func (p *Presence) Resolve(identity string) []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := lo.Keys(p.conns[identity])
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnlineSnapshot lists identities with at least one joined connection, ascending.
func (p *Presence) OnlineSnapshot() []string {
	p.mu.RLock()
	ids := lo.Keys(p.conns)
	p.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
