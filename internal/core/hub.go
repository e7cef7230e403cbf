package core

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	defaultGlobalRoom    = "global"
	defaultHistoryLimit  = 100
	defaultPreviewLength = 50
)

// Options tunes the Hub. Zero values fall back to defaults.
type Options struct {
	GlobalRoom    string
	HistoryLimit  int
	PreviewLength int
	// RingTimeout ends calls still ringing after this long. Zero disables the sweeper.
	RingTimeout time.Duration
	// OnDrop is called for every event that could not be queued to a slow client.
	OnDrop func(c *Client, ev *Event)
	Now    func() time.Time
}

func (o *Options) applyDefaults() {
	if o.GlobalRoom == "" {
		o.GlobalRoom = defaultGlobalRoom
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = defaultHistoryLimit
	}
	if o.PreviewLength <= 0 {
		o.PreviewLength = defaultPreviewLength
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Hub coordinates rooms, presence, message ledgers and calls.
// Each room serializes its own mutations; the hub-wide maps below are leaf
// locks that are only ever taken briefly, possibly under one room lock.
type Hub struct {
	dir  Directory
	log  *zerolog.Logger
	opts Options

	roomsMu sync.RWMutex
	rooms   map[string]*Room

	msgMu   sync.RWMutex
	msgRoom map[string]string // message id -> room id

	sessMu   sync.Mutex
	sessions map[string]map[*Client]struct{} // identity -> live connections

	presence *Presence
	calls    *callIndex
}

// NewHub constructs a Hub and creates the global room.
func NewHub(dir Directory, logger *zerolog.Logger, opts Options) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	opts.applyDefaults()

	h := &Hub{
		dir:      dir,
		log:      logger,
		opts:     opts,
		rooms:    make(map[string]*Room),
		msgRoom:  make(map[string]string),
		sessions: make(map[string]map[*Client]struct{}),
		presence: NewPresence(),
		calls:    newCallIndex(),
	}
	h.rooms[opts.GlobalRoom] = NewRoom(opts.GlobalRoom, false, nil, opts.Now)
	return h
}

// GlobalRoom returns the id of the room that is never deleted.
func (h *Hub) GlobalRoom() string {
	return h.opts.GlobalRoom
}

// Presence exposes the presence index for read-only queries.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Run drives background maintenance until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.opts.RingTimeout <= 0 {
		<-ctx.Done()
		return
	}

	interval := h.opts.RingTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweepRinging(h.opts.Now())
		}
	}
}

// RegisterClient records a new live connection. The first connection of an
// identity is announced to every connection as online.
func (h *Hub) RegisterClient(c *Client) {
	if !c.Authenticated() {
		h.log.Debug().Str("client_id", c.ID).Msg("unauthenticated client connected")
		return
	}

	h.sessMu.Lock()
	defer h.sessMu.Unlock()

	conns, ok := h.sessions[c.Identity]
	if !ok {
		conns = make(map[*Client]struct{})
		h.sessions[c.Identity] = conns
	}
	conns[c] = struct{}{}

	h.log.Info().Str("client_id", c.ID).Str("identity", c.Identity).Msg("client connected")
	if len(conns) == 1 {
		h.broadcastAllLocked(&Event{Kind: EventUserOnline, User: c.Identity, DisplayName: h.displayName(c.Identity)})
	}
}

// UnregisterClient removes a connection from every room it joined, in ascending
// room order and under each room's own lock. If it was the identity's last
// connection, the identity goes offline and every call it takes part in ends.
func (h *Hub) UnregisterClient(c *Client) {
	for _, roomID := range c.Rooms() {
		room := h.lookupRoom(roomID)
		if room == nil {
			continue
		}
		room.mu.Lock()
		if !room.closed {
			_ = h.leaveLocked(room, c)
		}
		room.mu.Unlock()
	}

	if !c.Authenticated() {
		return
	}

	h.sessMu.Lock()
	conns := h.sessions[c.Identity]
	_, known := conns[c]
	delete(conns, c)
	last := known && len(conns) == 0
	if last {
		delete(h.sessions, c.Identity)
		h.broadcastAllLocked(&Event{Kind: EventUserOffline, User: c.Identity, DisplayName: h.displayName(c.Identity)})
	}
	h.sessMu.Unlock()

	h.log.Info().Str("client_id", c.ID).Str("identity", c.Identity).Bool("last", last).Msg("client disconnected")
	if !last {
		return
	}

	by := h.identity(c.Identity)
	for _, roomID := range h.calls.of(c.Identity) {
		room := h.lookupRoom(roomID)
		if room == nil {
			continue
		}
		room.mu.Lock()
		if !room.closed && room.call != nil && room.call.hasParticipant(c.Identity) {
			h.endCallLocked(room, &by)
		}
		room.mu.Unlock()
	}
}

// Logout closes every live connection of identity. The transport runs the
// regular disconnect path for each of them. Returns the number of connections kicked.
func (h *Hub) Logout(identity string) int {
	h.sessMu.Lock()
	conns := lo.Keys(h.sessions[identity])
	h.sessMu.Unlock()

	for _, c := range conns {
		c.Kick()
	}
	return len(conns)
}

// Handle validates and applies one inbound command from c.
// Every returned error means the command was dropped without side effects.
func (h *Hub) Handle(c *Client, cmd *Command) error {
	if cmd == nil {
		return ErrBadRequest
	}
	ident, err := h.authorize(c, cmd)
	if err != nil {
		return err
	}

	switch cmd.Kind {
	case CommandJoinRoom:
		return h.join(c, ident, cmd)
	case CommandLeaveRoom:
		return h.leave(c, cmd.Room)
	case CommandSendRoomMessage:
		return h.sendMessage(ident, cmd)
	case CommandTyping:
		return h.typing(c, ident, cmd)
	case CommandStartCall:
		return h.startCall(ident, cmd)
	case CommandAnswerCall:
		return h.answerCall(ident, cmd)
	case CommandEndCall:
		return h.endCall(ident, cmd.Room)
	case CommandSignal:
		return h.signal(ident, cmd)
	default:
		return ErrBadRequest
	}
}

// authorize checks the claimed identity against the connection's session.
func (h *Hub) authorize(c *Client, cmd *Command) (Identity, error) {
	if c == nil || !c.Authenticated() {
		return Identity{}, ErrUnauthenticated
	}
	claimed := strings.TrimSpace(cmd.Identity)
	if claimed == "" && cmd.Kind != CommandSignal {
		return Identity{}, ErrUnauthenticated
	}
	if claimed != "" && claimed != c.Identity {
		return Identity{}, ErrUnauthenticated
	}
	ident, ok := h.lookupIdentity(c.Identity)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return ident, nil
}

func (h *Hub) join(c *Client, ident Identity, cmd *Command) error {
	roomID := strings.TrimSpace(cmd.Room)
	if roomID == "" {
		return ErrBadRequest
	}

	for {
		room, err := h.ensureRoom(roomID, ident.ID, cmd.Private, strings.TrimSpace(cmd.Other))
		if err != nil {
			return err
		}

		room.mu.Lock()
		if room.closed {
			// Purged between lookup and lock; recreate.
			room.mu.Unlock()
			continue
		}
		if !room.admits(ident.ID) {
			room.mu.Unlock()
			return ErrForbidden
		}

		first, added := room.addLocked(c, ident, h.opts.Now())
		if added {
			c.addRoom(room.ID)
			h.presence.add(ident.ID, c)
		}
		h.deliver(c, &Event{Kind: EventRoomUsers, Room: room.ID, Participants: room.participantsLocked()})
		h.deliver(c, &Event{Kind: EventHistory, Room: room.ID, Messages: room.ledger.history(h.opts.HistoryLimit)})
		if first {
			h.broadcastLocked(room, &Event{Kind: EventUserJoined, Room: room.ID, User: ident.ID, DisplayName: ident.Name()}, nil)
		}
		room.mu.Unlock()

		h.log.Debug().Str("room", room.ID).Str("identity", ident.ID).Str("client_id", c.ID).Bool("first", first).Msg("joined room")
		return nil
	}
}

// ensureRoom returns the room with id, creating it when missing.
// A private room can only be created under the id derived from its two identities.
func (h *Hub) ensureRoom(id, identity string, private bool, other string) (*Room, error) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if room, ok := h.rooms[id]; ok {
		return room, nil
	}

	if !private && !strings.HasPrefix(id, privateRoomPrefix) {
		room := NewRoom(id, false, nil, h.opts.Now)
		h.rooms[id] = room
		h.log.Info().Str("room", id).Msg("room created")
		return room, nil
	}

	if other == "" {
		return nil, ErrRoomNotFound
	}
	if other == identity {
		return nil, ErrBadRequest
	}
	if _, ok := h.lookupIdentity(other); !ok {
		return nil, ErrNotFound
	}
	if PrivateRoomID(identity, other) != id {
		return nil, ErrBadRequest
	}

	members := []string{identity, other}
	sort.Strings(members)
	room := NewRoom(id, true, members, h.opts.Now)
	h.rooms[id] = room
	h.log.Info().Str("room", id).Strs("members", members).Msg("private room created")
	return room, nil
}

func (h *Hub) leave(c *Client, roomID string) error {
	room := h.lookupRoom(strings.TrimSpace(roomID))
	if room == nil {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return ErrRoomNotFound
	}
	return h.leaveLocked(room, c)
}

// leaveLocked removes exactly one connection from room. Must hold room.mu.
func (h *Hub) leaveLocked(room *Room, c *Client) error {
	p, removed, last := room.removeLocked(c)
	if !removed {
		return ErrNotInRoom
	}
	c.removeRoom(room.ID)
	h.presence.remove(p.IdentityID, c)

	if last {
		h.broadcastLocked(room, &Event{Kind: EventUserLeft, Room: room.ID, User: p.IdentityID, DisplayName: p.DisplayName}, nil)
	}
	if room.Private && room.emptyLocked() {
		h.purgeLocked(room)
	}
	return nil
}

// purgeLocked deletes an empty private room with its call and message index. Must hold room.mu.
func (h *Hub) purgeLocked(room *Room) {
	if room.call != nil {
		h.endCallLocked(room, nil)
	}
	room.closed = true

	h.roomsMu.Lock()
	if h.rooms[room.ID] == room {
		delete(h.rooms, room.ID)
	}
	h.roomsMu.Unlock()

	h.msgMu.Lock()
	for _, id := range room.ledger.ids() {
		delete(h.msgRoom, id)
	}
	h.msgMu.Unlock()

	h.log.Info().Str("room", room.ID).Msg("private room purged")
}

func (h *Hub) typing(c *Client, ident Identity, cmd *Command) error {
	room, err := h.lockMember(cmd.Room, ident.ID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	h.broadcastLocked(room, &Event{
		Kind:        EventUserTyping,
		Room:        room.ID,
		User:        ident.ID,
		DisplayName: ident.Name(),
		Typing:      cmd.Typing,
	}, c)
	return nil
}

func (h *Hub) signal(ident Identity, cmd *Command) error {
	to := strings.TrimSpace(cmd.To)
	if to == "" || !hasPayload(cmd.Signal) {
		return ErrBadRequest
	}
	if _, ok := h.lookupIdentity(to); !ok {
		return ErrNotFound
	}

	targets := h.presence.Resolve(to)
	if len(targets) == 0 {
		return nil
	}
	ev := &Event{
		Kind:        EventRTCSignal,
		User:        ident.ID,
		DisplayName: ident.Name(),
		Signal: &Signal{
			From:    ident.ID,
			Type:    cmd.SignalType,
			Payload: cmd.Signal,
		},
	}
	for _, t := range targets {
		h.deliver(t, ev)
	}
	return nil
}

func hasPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// BroadcastTarget returns the connections a room-scoped event fans out to.
func (h *Hub) BroadcastTarget(roomID string) []*Client {
	room := h.lookupRoom(roomID)
	if room == nil {
		return nil
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return nil
	}
	return room.targetsLocked()
}

// Participants returns the membership records of a room.
func (h *Hub) Participants(roomID string) ([]Participant, error) {
	room := h.lookupRoom(roomID)
	if room == nil {
		return nil, ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return nil, ErrRoomNotFound
	}
	return room.participantsLocked(), nil
}

// OnlineSnapshot returns the identities joined to at least one room.
func (h *Hub) OnlineSnapshot() []Identity {
	return lo.FilterMap(h.presence.OnlineSnapshot(), func(id string, _ int) (Identity, bool) {
		return h.lookupIdentity(id)
	})
}

// PrivateRoom summarizes a live private room from one member's point of view.
type PrivateRoom struct {
	Room        string
	Other       string
	LastMessage *Message
}

// PrivateRooms lists the live private rooms identity belongs to, ascending by id.
func (h *Hub) PrivateRooms(identity string) []PrivateRoom {
	h.roomsMu.RLock()
	rooms := lo.Filter(lo.Values(h.rooms), func(r *Room, _ int) bool {
		return r.Private && lo.Contains(r.Members, identity)
	})
	h.roomsMu.RUnlock()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

	out := make([]PrivateRoom, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			continue
		}
		pr := PrivateRoom{Room: room.ID}
		pr.Other, _ = lo.Find(room.Members, func(m string) bool { return m != identity })
		if msg, ok := room.ledger.last(); ok {
			pr.LastMessage = &msg
		}
		room.mu.Unlock()
		out = append(out, pr)
	}
	return out
}

func (h *Hub) lookupRoom(id string) *Room {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return h.rooms[id]
}

// lockMember returns the room locked, provided identity has a connection in it.
func (h *Hub) lockMember(roomID, identity string) (*Room, error) {
	room := h.lookupRoom(strings.TrimSpace(roomID))
	if room == nil {
		return nil, ErrRoomNotFound
	}
	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	if !room.hasIdentityLocked(identity) {
		room.mu.Unlock()
		return nil, ErrNotInRoom
	}
	return room, nil
}

func (h *Hub) lookupIdentity(id string) (Identity, bool) {
	if h.dir == nil || id == "" {
		return Identity{}, false
	}
	return h.dir.Lookup(id)
}

// identity resolves id, falling back to a bare identity when the directory no longer knows it.
func (h *Hub) identity(id string) Identity {
	if ident, ok := h.lookupIdentity(id); ok {
		return ident
	}
	return Identity{ID: id}
}

func (h *Hub) displayName(id string) string {
	return h.identity(id).Name()
}

// broadcastLocked sends ev to every connection of room except skip. Must hold room.mu.
func (h *Hub) broadcastLocked(room *Room, ev *Event, skip *Client) {
	for _, c := range room.targetsLocked() {
		if c == skip {
			continue
		}
		h.deliver(c, ev)
	}
}

// broadcastAllLocked sends ev to every authenticated connection. Must hold sessMu.
func (h *Hub) broadcastAllLocked(ev *Event) {
	for _, conns := range h.sessions {
		for c := range conns {
			h.deliver(c, ev)
		}
	}
}

func (h *Hub) deliver(c *Client, ev *Event) {
	if c.send(ev) {
		return
	}
	h.log.Warn().Str("client_id", c.ID).Str("identity", c.Identity).Str("event", ev.Kind.String()).Msg("dropping event for slow client")
	if h.opts.OnDrop != nil {
		h.opts.OnDrop(c, ev)
	}
}
