package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ledger is the ordered message log of a single room.
// It is not safe for concurrent use; the owning room's lock serializes access.
type ledger struct {
	room    string
	seq     uint64
	entries []*Message
	byID    map[string]*Message
	now     func() time.Time
}

func newLedger(room string, now func() time.Time) *ledger {
	return &ledger{
		room: room,
		byID: make(map[string]*Message),
		now:  now,
	}
}

// append stores a new message. The append point defines the room's total order:
// Seq increases by one per message and CreatedAt never goes backwards.
func (l *ledger) append(author Identity, text string, kind MessageKind, replyTo string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if kind == "" {
		kind = MessageText
	}
	if replyTo != "" {
		if _, ok := l.byID[replyTo]; !ok {
			return Message{}, ErrNotFound
		}
	}

	now := l.now()
	if n := len(l.entries); n > 0 && now.Before(l.entries[n-1].CreatedAt) {
		now = l.entries[n-1].CreatedAt
	}

	l.seq++
	msg := &Message{
		ID:          uuid.NewString(),
		Seq:         l.seq,
		Room:        l.room,
		AuthorID:    author.ID,
		DisplayName: author.Name(),
		Text:        text,
		Kind:        kind,
		ReplyTo:     replyTo,
		CreatedAt:   now,
	}
	l.entries = append(l.entries, msg)
	l.byID[msg.ID] = msg
	return *msg, nil
}

// edit replaces the text of a message owned by requester.
// Tombstoned messages cannot be edited.
func (l *ledger) edit(id, requester, text string) (Message, error) {
	msg, ok := l.byID[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	if msg.AuthorID != requester {
		return Message{}, ErrForbidden
	}
	if msg.Deleted {
		return Message{}, ErrInvalidState
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	now := l.now()
	msg.Text = text
	msg.Edited = true
	msg.EditedAt = &now
	return *msg, nil
}

// softDelete tombstones a message owned by requester. The second call on the
// same message is a no-op and reports changed=false.
func (l *ledger) softDelete(id, requester string) (msg Message, changed bool, err error) {
	m, ok := l.byID[id]
	if !ok {
		return Message{}, false, ErrNotFound
	}
	if m.AuthorID != requester {
		return Message{}, false, ErrForbidden
	}
	if m.Deleted {
		return *m, false, nil
	}

	now := l.now()
	m.Deleted = true
	m.DeletedAt = &now
	return *m, true, nil
}

// history returns copies of the newest limit messages in append order, tombstones included.
func (l *ledger) history(limit int) []Message {
	start := 0
	if limit > 0 && len(l.entries) > limit {
		start = len(l.entries) - limit
	}
	out := make([]Message, 0, len(l.entries)-start)
	for _, m := range l.entries[start:] {
		out = append(out, *m)
	}
	return out
}

func (l *ledger) get(id string) (Message, bool) {
	m, ok := l.byID[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

func (l *ledger) last() (Message, bool) {
	if len(l.entries) == 0 {
		return Message{}, false
	}
	return *l.entries[len(l.entries)-1], true
}

func (l *ledger) ids() []string {
	ids := make([]string, 0, len(l.entries))
	for _, m := range l.entries {
		ids = append(ids, m.ID)
	}
	return ids
}
