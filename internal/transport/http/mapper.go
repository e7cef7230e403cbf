package http

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"github.com/vovakirdan/parley/internal/core"
	"github.com/vovakirdan/parley/internal/proto"
)

// inboundToCommand decodes one channel event. The core validates the content.
func inboundToCommand(inbound proto.Inbound) (*core.Command, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var d proto.JoinData
		if err := decode(inbound, &d); err != nil {
			return nil, err
		}
		return &core.Command{
			Kind:     core.CommandJoinRoom,
			Identity: d.Username,
			Room:     d.Room,
			Private:  d.IsPrivate,
			Other:    d.OtherUser,
		}, nil
	case proto.InboundTypeLeave:
		var d proto.LeaveData
		if err := decode(inbound, &d); err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandLeaveRoom, Identity: d.Username, Room: d.Room}, nil
	case proto.InboundTypeSendMessage:
		var d proto.SendMessageData
		if err := decode(inbound, &d); err != nil {
			return nil, err
		}
		return &core.Command{
			Kind:        core.CommandSendRoomMessage,
			Identity:    d.Username,
			Room:        d.Room,
			Text:        d.Text,
			ReplyTo:     d.ReplyTo,
			MessageKind: d.Kind,
		}, nil
	case proto.InboundTypeTyping:
		var d proto.TypingData
		if err := decode(inbound, &d); err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandTyping, Identity: d.Username, Room: d.Room, Typing: d.IsTyping}, nil
	case proto.InboundTypeStartCall, proto.InboundTypeAnswerCall, proto.InboundTypeEndCall:
		var d proto.CallData
		if err := decode(inbound, &d); err != nil {
			return nil, err
		}
		cmd := &core.Command{Identity: d.Username, Room: d.Room, CallKind: d.Kind, Accept: d.Accept}
		switch inbound.Type {
		case proto.InboundTypeStartCall:
			cmd.Kind = core.CommandStartCall
		case proto.InboundTypeAnswerCall:
			cmd.Kind = core.CommandAnswerCall
		default:
			cmd.Kind = core.CommandEndCall
		}
		return cmd, nil
	case proto.InboundTypeRTCSignal:
		var d proto.RTCSignalData
		if err := decode(inbound, &d); err != nil {
			return nil, err
		}
		return &core.Command{
			Kind:       core.CommandSignal,
			Identity:   d.Username,
			To:         d.To,
			SignalType: d.SignalType,
			Signal:     d.Signal,
		}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q: %w", inbound.Type, core.ErrBadRequest)
	}
}

func decode(inbound proto.Inbound, v any) error {
	if len(inbound.Data) == 0 {
		return fmt.Errorf("%s: missing data: %w", inbound.Type, core.ErrBadRequest)
	}
	if err := json.Unmarshal(inbound.Data, v); err != nil {
		return fmt.Errorf("%s: %v: %w", inbound.Type, err, core.ErrBadRequest)
	}
	return nil
}

func outboundFromEvent(ev *core.Event) proto.Outbound {
	out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: ev.Kind.String()}

	switch ev.Kind {
	case core.EventRoomUsers:
		out.Data = proto.EventRoomUsers{
			Room:  ev.Room,
			Users: lo.Map(ev.Participants, func(p core.Participant, _ int) proto.EventParticipant { return participantToProto(p) }),
		}
	case core.EventHistory:
		out.Data = proto.EventHistory{Room: ev.Room, Messages: messagesToProto(ev.Messages)}
	case core.EventUserJoined, core.EventUserLeft, core.EventUserOnline, core.EventUserOffline:
		out.Data = proto.EventUser{Room: ev.Room, Username: ev.User, DisplayName: ev.DisplayName}
	case core.EventNewMessage:
		out.Data = messageToProto(ev.Message)
	case core.EventNotification:
		n := proto.EventNotification{Room: ev.Room}
		if ev.Notification != nil {
			n.Title, n.Body, n.From = ev.Notification.Title, ev.Notification.Body, ev.Notification.From
		}
		out.Data = n
	case core.EventUserTyping:
		out.Data = proto.EventTyping{Room: ev.Room, Username: ev.User, DisplayName: ev.DisplayName, IsTyping: ev.Typing}
	case core.EventMessageEdited:
		out.Data = proto.EventMessageChange{
			Room:      ev.Room,
			MessageID: ev.Message.ID,
			Username:  ev.User,
			Text:      ev.Message.Text,
			EditedAt:  ev.Message.EditedAt,
		}
	case core.EventMessageDeleted:
		out.Data = proto.EventMessageChange{
			Room:      ev.Room,
			MessageID: ev.Message.ID,
			Username:  ev.User,
			DeletedAt: ev.Message.DeletedAt,
		}
	case core.EventIncomingCall, core.EventCallAccepted, core.EventCallRejected, core.EventCallEnded:
		out.Data = callToProto(ev)
	case core.EventRTCSignal:
		s := proto.EventSignal{From: ev.User, FromName: ev.DisplayName}
		if ev.Signal != nil {
			s.SignalType, s.Signal = ev.Signal.Type, ev.Signal.Payload
		}
		out.Data = s
	}
	return out
}

func callToProto(ev *core.Event) proto.EventCall {
	out := proto.EventCall{Room: ev.Room, Username: ev.User, DisplayName: ev.DisplayName}
	if c := ev.Call; c != nil {
		out.Caller = c.Caller
		out.CallerName = c.CallerName
		out.Kind = string(c.Kind)
		out.State = c.State.String()
		out.Participants = c.Participants
		out.EndedBy = c.EndedBy
		out.DurationMS = c.Duration.Milliseconds()
	}
	return out
}

func participantToProto(p core.Participant) proto.EventParticipant {
	return proto.EventParticipant{
		Username:     p.IdentityID,
		DisplayName:  p.DisplayName,
		ConnectionID: p.ConnectionID,
		JoinedAt:     p.JoinedAt,
	}
}

// messageToProto renders a ledger entry. Tombstones keep their metadata but lose their text.
func messageToProto(m core.Message) proto.EventMessage {
	text := m.Text
	if m.Deleted {
		text = ""
	}
	return proto.EventMessage{
		ID:          m.ID,
		Seq:         m.Seq,
		Room:        m.Room,
		Username:    m.AuthorID,
		DisplayName: m.DisplayName,
		Text:        text,
		Kind:        string(m.Kind),
		ReplyTo:     m.ReplyTo,
		CreatedAt:   m.CreatedAt,
		Edited:      m.Edited,
		EditedAt:    m.EditedAt,
		Deleted:     m.Deleted,
		DeletedAt:   m.DeletedAt,
	}
}

func messagesToProto(msgs []core.Message) []proto.EventMessage {
	return lo.Map(msgs, func(m core.Message, _ int) proto.EventMessage { return messageToProto(m) })
}
