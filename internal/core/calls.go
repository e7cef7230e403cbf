package core

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

func (h *Hub) startCall(ident Identity, cmd *Command) error {
	kind, err := ParseCallKind(cmd.CallKind)
	if err != nil {
		return err
	}

	room, err := h.lockMember(cmd.Room, ident.ID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	if room.call != nil {
		return ErrCallInProgress
	}

	call := &Call{
		Room:         room.ID,
		CallerID:     ident.ID,
		Kind:         kind,
		Participants: []string{ident.ID},
		StartedAt:    h.opts.Now(),
		State:        CallRinging,
	}
	room.call = call
	h.calls.add(ident.ID, room.ID)

	ev := &Event{
		Kind:        EventIncomingCall,
		Room:        room.ID,
		User:        ident.ID,
		DisplayName: ident.Name(),
		Call:        h.callEvent(call, ""),
	}
	for _, m := range room.othersLocked(ident.ID) {
		h.deliver(m.client, ev)
	}

	h.log.Info().Str("room", room.ID).Str("caller", ident.ID).Str("kind", string(kind)).Msg("call started")
	return nil
}

func (h *Hub) answerCall(ident Identity, cmd *Command) error {
	room, err := h.lockMember(cmd.Room, ident.ID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	call := room.call
	if call == nil {
		return ErrNoCall
	}
	if ident.ID == call.CallerID {
		return ErrBadRequest
	}

	if cmd.Accept {
		if !call.hasParticipant(ident.ID) {
			call.Participants = append(call.Participants, ident.ID)
			h.calls.add(ident.ID, room.ID)
		}
		call.State = CallActive
		h.broadcastLocked(room, &Event{
			Kind:        EventCallAccepted,
			Room:        room.ID,
			User:        ident.ID,
			DisplayName: ident.Name(),
			Call:        h.callEvent(call, ""),
		}, nil)
		return nil
	}

	// A participant that declines after accepting leaves the call.
	if call.hasParticipant(ident.ID) {
		call.Participants = lo.Without(call.Participants, ident.ID)
		h.calls.remove(ident.ID, room.ID)
	}
	h.broadcastLocked(room, &Event{
		Kind:        EventCallRejected,
		Room:        room.ID,
		User:        ident.ID,
		DisplayName: ident.Name(),
		Call:        h.callEvent(call, ""),
	}, nil)
	if len(call.Participants) == 1 && call.Participants[0] == call.CallerID {
		h.endCallLocked(room, nil)
	}
	return nil
}

// endCall ends the room's live call. Ending when no call is live is a no-op.
func (h *Hub) endCall(ident Identity, roomID string) error {
	room := h.lookupRoom(strings.TrimSpace(roomID))
	if room == nil {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || room.call == nil {
		return nil
	}
	if !room.hasIdentityLocked(ident.ID) && !room.call.hasParticipant(ident.ID) {
		return ErrNotInRoom
	}
	h.endCallLocked(room, &ident)
	return nil
}

// CallSnapshot returns a copy of the live call in a room.
func (h *Hub) CallSnapshot(roomID string) (Call, bool) {
	room := h.lookupRoom(roomID)
	if room == nil {
		return Call{}, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed || room.call == nil {
		return Call{}, false
	}
	return room.call.snapshot(), true
}

// endCallLocked is the only place a call terminates. A nil by reports the
// system as the ending party. Must hold room.mu.
func (h *Hub) endCallLocked(room *Room, by *Identity) {
	call := room.call
	if call == nil {
		return
	}
	room.call = nil
	call.State = CallEnded
	for _, p := range call.Participants {
		h.calls.remove(p, room.ID)
	}

	endedBy := SystemMarker
	ev := &Event{Kind: EventCallEnded, Room: room.ID, User: SystemMarker, DisplayName: SystemMarker}
	if by != nil {
		endedBy = by.ID
		ev.User = by.ID
		ev.DisplayName = by.Name()
	}
	ev.Call = h.callEvent(call, endedBy)
	ev.Call.Duration = h.opts.Now().Sub(call.StartedAt)
	h.broadcastLocked(room, ev, nil)

	h.log.Info().Str("room", room.ID).Str("ended_by", endedBy).Dur("duration", ev.Call.Duration).Msg("call ended")
}

// sweepRinging ends calls that kept ringing past the ring timeout.
func (h *Hub) sweepRinging(now time.Time) {
	h.roomsMu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.roomsMu.RUnlock()

	for _, room := range rooms {
		room.mu.Lock()
		if !room.closed && room.call != nil && room.call.State == CallRinging &&
			now.Sub(room.call.StartedAt) >= h.opts.RingTimeout {
			h.endCallLocked(room, nil)
		}
		room.mu.Unlock()
	}
}

func (h *Hub) callEvent(call *Call, endedBy string) *CallEvent {
	return &CallEvent{
		Caller:       call.CallerID,
		CallerName:   h.displayName(call.CallerID),
		Kind:         call.Kind,
		State:        call.State,
		Participants: append([]string(nil), call.Participants...),
		EndedBy:      endedBy,
	}
}
