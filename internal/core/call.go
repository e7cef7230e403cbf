package core

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

// CallKind is the media type of a call.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

// ParseCallKind validates a wire value.
func ParseCallKind(s string) (CallKind, error) {
	switch CallKind(strings.ToLower(strings.TrimSpace(s))) {
	case CallAudio:
		return CallAudio, nil
	case CallVideo:
		return CallVideo, nil
	default:
		return "", ErrInvalidEnum
	}
}

// CallState tracks the lifecycle of a room call.
type CallState int

const (
	CallRinging CallState = iota
	CallActive
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallRinging:
		return "ringing"
	case CallActive:
		return "active"
	case CallEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// SystemMarker is reported as the ending party when no identity ended the call.
const SystemMarker = "system"

// Call is the single live call of a room.
type Call struct {
	Room         string
	CallerID     string
	Kind         CallKind
	Participants []string
	StartedAt    time.Time
	State        CallState
}

func (c *Call) hasParticipant(identity string) bool {
	return lo.Contains(c.Participants, identity)
}

func (c *Call) snapshot() Call {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	return cp
}

// callIndex maps identities to rooms whose call they participate in,
// so disconnect cleanup does not have to scan every room.
type callIndex struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

func newCallIndex() *callIndex {
	return &callIndex{rooms: make(map[string]map[string]struct{})}
}

func (x *callIndex) add(identity, room string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	set, ok := x.rooms[identity]
	if !ok {
		set = make(map[string]struct{})
		x.rooms[identity] = set
	}
	set[room] = struct{}{}
}

func (x *callIndex) remove(identity, room string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	set := x.rooms[identity]
	delete(set, room)
	if len(set) == 0 {
		delete(x.rooms, identity)
	}
}

// of returns the rooms of identity in ascending order.
func (x *callIndex) of(identity string) []string {
	x.mu.Lock()
	ids := lo.Keys(x.rooms[identity])
	x.mu.Unlock()

	sort.Strings(ids)
	return ids
}
