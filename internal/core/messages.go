package core

import "strings"

func (h *Hub) sendMessage(ident Identity, cmd *Command) error {
	kind, err := ParseMessageKind(cmd.MessageKind)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cmd.Text) == "" {
		return ErrEmptyMessage
	}

	room, err := h.lockMember(cmd.Room, ident.ID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	msg, err := room.ledger.append(ident, cmd.Text, kind, strings.TrimSpace(cmd.ReplyTo))
	if err != nil {
		return err
	}

	h.msgMu.Lock()
	h.msgRoom[msg.ID] = room.ID
	h.msgMu.Unlock()

	h.broadcastLocked(room, &Event{
		Kind:        EventNewMessage,
		Room:        room.ID,
		User:        ident.ID,
		DisplayName: ident.Name(),
		Message:     msg,
	}, nil)

	note := &Event{
		Kind:        EventNotification,
		Room:        room.ID,
		User:        ident.ID,
		DisplayName: ident.Name(),
		Notification: &Notification{
			Title: "New message",
			Body:  preview(msg.Text, h.opts.PreviewLength),
			From:  ident.Name(),
		},
	}
	for _, m := range room.othersLocked(ident.ID) {
		h.deliver(m.client, note)
	}
	return nil
}

// EditMessage replaces the text of a message authored by requester and
// notifies the message's room.
func (h *Hub) EditMessage(requester, messageID, text string) (Message, error) {
	if requester == "" {
		return Message{}, ErrUnauthenticated
	}
	room, err := h.lockMessageRoom(messageID)
	if err != nil {
		return Message{}, err
	}
	defer room.mu.Unlock()

	msg, err := room.ledger.edit(messageID, requester, text)
	if err != nil {
		return Message{}, err
	}
	h.broadcastLocked(room, &Event{
		Kind:        EventMessageEdited,
		Room:        room.ID,
		User:        requester,
		DisplayName: msg.DisplayName,
		Message:     msg,
	}, nil)
	return msg, nil
}

// DeleteMessage tombstones a message authored by requester. Deleting an
// already deleted message succeeds without a second notification.
func (h *Hub) DeleteMessage(requester, messageID string) (Message, error) {
	if requester == "" {
		return Message{}, ErrUnauthenticated
	}
	room, err := h.lockMessageRoom(messageID)
	if err != nil {
		return Message{}, err
	}
	defer room.mu.Unlock()

	msg, changed, err := room.ledger.softDelete(messageID, requester)
	if err != nil {
		return Message{}, err
	}
	if changed {
		h.broadcastLocked(room, &Event{
			Kind:        EventMessageDeleted,
			Room:        room.ID,
			User:        requester,
			DisplayName: msg.DisplayName,
			Message:     msg,
		}, nil)
	}
	return msg, nil
}

// History returns the newest messages of a room, tombstones included.
// Private rooms are only readable by their two identities.
func (h *Hub) History(identity, roomID string, limit int) ([]Message, error) {
	if identity == "" {
		return nil, ErrUnauthenticated
	}
	room := h.lookupRoom(roomID)
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if !room.admits(identity) {
		return nil, ErrForbidden
	}
	if limit <= 0 || limit > h.opts.HistoryLimit {
		limit = h.opts.HistoryLimit
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return nil, ErrRoomNotFound
	}
	return room.ledger.history(limit), nil
}

// lockMessageRoom finds the room that owns messageID and returns it locked.
func (h *Hub) lockMessageRoom(messageID string) (*Room, error) {
	h.msgMu.RLock()
	roomID, ok := h.msgRoom[messageID]
	h.msgMu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	room := h.lookupRoom(roomID)
	if room == nil {
		return nil, ErrNotFound
	}
	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return nil, ErrNotFound
	}
	if _, ok := room.ledger.get(messageID); !ok {
		room.mu.Unlock()
		return nil, ErrNotFound
	}
	return room, nil
}

// preview cuts text to n runes, marking truncation with "...".
func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
