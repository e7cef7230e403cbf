package core

import "encoding/json"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the connection to a room, creating it if needed.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the connection from a room.
	CommandLeaveRoom
	// CommandSendRoomMessage appends a message to the room ledger.
	CommandSendRoomMessage
	// CommandTyping relays typing state to the rest of the room.
	CommandTyping

	// CommandStartCall opens a ringing call in a room.
	CommandStartCall
	// CommandAnswerCall accepts or rejects the room's live call.
	CommandAnswerCall
	// CommandEndCall ends the room's live call.
	CommandEndCall
	// CommandSignal relays an opaque negotiation payload to another identity.
	CommandSignal
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoinRoom:
		return "join"
	case CommandLeaveRoom:
		return "leave"
	case CommandSendRoomMessage:
		return "send_message"
	case CommandTyping:
		return "typing"
	case CommandStartCall:
		return "start_call"
	case CommandAnswerCall:
		return "answer_call"
	case CommandEndCall:
		return "end_call"
	case CommandSignal:
		return "rtc_signal"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
// Identity is the identity the event claims to come from; it must match the session.
type Command struct {
	Kind     CommandKind
	Identity string
	Room     string

	// join
	Private bool
	Other   string

	// send_message
	Text        string
	ReplyTo     string
	MessageKind string

	// typing
	Typing bool

	// calls
	CallKind string
	Accept   bool

	// rtc_signal
	To         string
	SignalType string
	Signal     json.RawMessage
}
