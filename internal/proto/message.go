package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin        = "join"
	InboundTypeLeave       = "leave"
	InboundTypeSendMessage = "send_message"
	InboundTypeTyping      = "typing"
	InboundTypeStartCall   = "start_call"
	InboundTypeAnswerCall  = "answer_call"
	InboundTypeEndCall     = "end_call"
	InboundTypeRTCSignal   = "rtc_signal"

	OutboundTypeEvent = "event"
)

// JoinData requests to join a room. OtherUser is required to open a new private room.
type JoinData struct {
	Username  string `json:"username"`
	Room      string `json:"room"`
	IsPrivate bool   `json:"is_private,omitempty"`
	OtherUser string `json:"other_user,omitempty"`
}

// LeaveData requests to leave a room.
type LeaveData struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Text     string `json:"text"`
	ReplyTo  string `json:"reply_to,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// TypingData reports typing state in a room.
type TypingData struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	IsTyping bool   `json:"is_typing"`
}

// CallData covers start_call, answer_call and end_call.
type CallData struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Kind     string `json:"kind,omitempty"`
	Accept   bool   `json:"accept,omitempty"`
}

// RTCSignalData carries an opaque payload to another identity.
type RTCSignalData struct {
	Username   string          `json:"username,omitempty"`
	To         string          `json:"to"`
	SignalType string          `json:"signal_type"`
	Signal     json.RawMessage `json:"signal"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// EventMessage is a ledger entry. Text is empty for deleted messages.
type EventMessage struct {
	ID          string     `json:"id"`
	Seq         uint64     `json:"seq"`
	Room        string     `json:"room"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Text        string     `json:"text"`
	Kind        string     `json:"kind"`
	ReplyTo     string     `json:"reply_to,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Edited      bool       `json:"edited"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
	Deleted     bool       `json:"deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// EventParticipant is one connection's membership in a room.
type EventParticipant struct {
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	ConnectionID string    `json:"connection_id"`
	JoinedAt     time.Time `json:"joined_at"`
}

// EventRoomUsers answers a join with the current participants.
type EventRoomUsers struct {
	Room  string             `json:"room"`
	Users []EventParticipant `json:"users"`
}

// EventHistory answers a join with recent messages.
type EventHistory struct {
	Room     string         `json:"room"`
	Messages []EventMessage `json:"messages"`
}

// EventUser covers joined, left, online and offline notices.
type EventUser struct {
	Room        string `json:"room,omitempty"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// EventTyping relays typing state.
type EventTyping struct {
	Room        string `json:"room"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	IsTyping    bool   `json:"is_typing"`
}

// EventNotification is a direct message preview.
type EventNotification struct {
	Room  string `json:"room"`
	Title string `json:"title"`
	Body  string `json:"body"`
	From  string `json:"from"`
}

// EventMessageChange announces an edit or delete.
type EventMessageChange struct {
	Room      string     `json:"room"`
	MessageID string     `json:"message_id"`
	Username  string     `json:"username"`
	Text      string     `json:"text,omitempty"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// EventCall describes a call state change.
type EventCall struct {
	Room         string   `json:"room"`
	Username     string   `json:"username"`
	DisplayName  string   `json:"display_name"`
	Caller       string   `json:"caller"`
	CallerName   string   `json:"caller_name"`
	Kind         string   `json:"kind"`
	State        string   `json:"state"`
	Participants []string `json:"participants"`
	EndedBy      string   `json:"ended_by,omitempty"`
	DurationMS   int64    `json:"duration_ms,omitempty"`
}

// EventSignal relays a raw signal payload tagged with its sender.
type EventSignal struct {
	From       string          `json:"from"`
	FromName   string          `json:"from_name"`
	SignalType string          `json:"signal_type"`
	Signal     json.RawMessage `json:"signal,omitempty"`
}
