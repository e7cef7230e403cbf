package core

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

const privateRoomPrefix = "private_"

// PrivateRoomID derives the id of the private room between two identities.
// The result does not depend on argument order.
func PrivateRoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return privateRoomPrefix + a + "_" + b
}

// Participant is a membership record: one connection of one identity in a room.
type Participant struct {
	IdentityID   string
	ConnectionID string
	DisplayName  string
	JoinedAt     time.Time
}

type membership struct {
	client *Client
	Participant
}

// Room groups the connections, message ledger and live call of one named scope.
// Every mutation of a room happens with mu held.
type Room struct {
	ID        string
	Private   bool
	Members   []string // the two identities of a private room
	CreatedAt time.Time

	mu     sync.Mutex
	closed bool
	conns  []*membership
	ledger *ledger
	call   *Call
}

// NewRoom constructs a room with no clients.
func NewRoom(id string, private bool, members []string, now func() time.Time) *Room {
	return &Room{
		ID:        id,
		Private:   private,
		Members:   members,
		CreatedAt: now(),
		ledger:    newLedger(id, now),
	}
}

// admits reports whether identity may join. Public rooms admit everyone.
func (r *Room) admits(identity string) bool {
	return !r.Private || lo.Contains(r.Members, identity)
}

// addLocked registers a connection. first is true when the identity had no
// other connection in the room; added is false if the connection was already present.
func (r *Room) addLocked(c *Client, ident Identity, now time.Time) (first, added bool) {
	if r.indexLocked(c) >= 0 {
		return false, false
	}
	first = !r.hasIdentityLocked(ident.ID)
	r.conns = append(r.conns, &membership{
		client: c,
		Participant: Participant{
			IdentityID:   ident.ID,
			ConnectionID: c.ID,
			DisplayName:  ident.Name(),
			JoinedAt:     now,
		},
	})
	return first, true
}

// removeLocked drops exactly one connection. last is true when the identity
// has no connection left in the room.
func (r *Room) removeLocked(c *Client) (p Participant, removed, last bool) {
	idx := r.indexLocked(c)
	if idx < 0 {
		return Participant{}, false, false
	}
	p = r.conns[idx].Participant
	r.conns = append(r.conns[:idx], r.conns[idx+1:]...)
	return p, true, !r.hasIdentityLocked(p.IdentityID)
}

func (r *Room) indexLocked(c *Client) int {
	for i, m := range r.conns {
		if m.client == c {
			return i
		}
	}
	return -1
}

func (r *Room) hasIdentityLocked(identity string) bool {
	return lo.ContainsBy(r.conns, func(m *membership) bool { return m.IdentityID == identity })
}

func (r *Room) emptyLocked() bool {
	return len(r.conns) == 0
}

func (r *Room) participantsLocked() []Participant {
	return lo.Map(r.conns, func(m *membership, _ int) Participant { return m.Participant })
}

// targetsLocked lists the connections an event for this room fans out to.
func (r *Room) targetsLocked() []*Client {
	return lo.Map(r.conns, func(m *membership, _ int) *Client { return m.client })
}

// othersLocked lists connections whose identity differs from identity.
func (r *Room) othersLocked(identity string) []*membership {
	return lo.Filter(r.conns, func(m *membership, _ int) bool { return m.IdentityID != identity })
}
