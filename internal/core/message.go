package core

import (
	"strings"
	"time"
)

// MessageKind is the closed set of message payload types.
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessageAudio MessageKind = "audio"
	MessageFile  MessageKind = "file"
)

// ParseMessageKind validates a wire value. An empty value means text.
func ParseMessageKind(s string) (MessageKind, error) {
	switch MessageKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", MessageText:
		return MessageText, nil
	case MessageImage:
		return MessageImage, nil
	case MessageAudio:
		return MessageAudio, nil
	case MessageFile:
		return MessageFile, nil
	default:
		return "", ErrInvalidEnum
	}
}

// Message is the domain model for a chat message.
// ID, Seq, Room, AuthorID and CreatedAt never change after append.
type Message struct {
	ID          string
	Seq         uint64
	Room        string
	AuthorID    string
	DisplayName string
	Text        string
	Kind        MessageKind
	ReplyTo     string
	CreatedAt   time.Time

	Edited    bool
	EditedAt  *time.Time
	Deleted   bool
	DeletedAt *time.Time
}
