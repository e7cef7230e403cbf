package core

import (
	"encoding/json"
	"time"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomUsers replies to a joiner with the room's participant list.
	EventRoomUsers EventKind = iota
	// EventHistory replies to a joiner with recent room history.
	EventHistory
	// EventUserJoined notifies a room about an identity's first connection joining.
	EventUserJoined
	// EventUserLeft notifies a room about an identity's last connection leaving.
	EventUserLeft
	// EventNewMessage delivers an appended message to the room, sender included.
	EventNewMessage
	// EventNotification is a direct preview of a new message for other participants.
	EventNotification
	// EventUserTyping relays typing state, excluding the sender's connection.
	EventUserTyping
	// EventMessageEdited notifies a room that a message text changed.
	EventMessageEdited
	// EventMessageDeleted notifies a room that a message was tombstoned.
	EventMessageDeleted

	// EventIncomingCall is sent to other room participants when a call starts.
	EventIncomingCall
	EventCallAccepted
	EventCallRejected
	EventCallEnded
	// EventRTCSignal relays an opaque signal payload.
	EventRTCSignal

	// EventUserOnline is broadcast to every connection on an identity's first connection.
	EventUserOnline
	// EventUserOffline is broadcast to every connection on an identity's last disconnect.
	EventUserOffline
)

var eventNames = map[EventKind]string{
	EventRoomUsers:      "room_users",
	EventHistory:        "message_history",
	EventUserJoined:     "user_joined",
	EventUserLeft:       "user_left",
	EventNewMessage:     "new_message",
	EventNotification:   "notification",
	EventUserTyping:     "user_typing",
	EventMessageEdited:  "message_edited",
	EventMessageDeleted: "message_deleted",
	EventIncomingCall:   "incoming_call",
	EventCallAccepted:   "call_accepted",
	EventCallRejected:   "call_rejected",
	EventCallEnded:      "call_ended",
	EventRTCSignal:      "rtc_signal",
	EventUserOnline:     "user_online",
	EventUserOffline:    "user_offline",
}

// String returns the wire name of the event.
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is sent to clients to describe what happened in the system.
// Events are shared between recipients and must not be mutated after dispatch.
type Event struct {
	Kind         EventKind
	Room         string
	User         string
	DisplayName  string
	Message      Message
	Messages     []Message     // EventHistory
	Participants []Participant // EventRoomUsers
	Typing       bool
	Notification *Notification
	Call         *CallEvent
	Signal       *Signal
}

// Notification is a direct message preview.
type Notification struct {
	Title string
	Body  string
	From  string
}

// CallEvent holds data specific to call events.
type CallEvent struct {
	Caller       string
	CallerName   string
	Kind         CallKind
	State        CallState
	Participants []string
	EndedBy      string // identity id or SystemMarker
	Duration     time.Duration
}

// Signal is an uninterpreted negotiation payload.
type Signal struct {
	From    string
	Type    string
	Payload json.RawMessage
}
