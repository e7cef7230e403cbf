package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHubJoinBroadcastAndLeave(t *testing.T) {
	hub := newTestHub(t, "alice", "bob")

	alice := connect(hub, "a", "alice")
	bob := connect(hub, "b", "bob")

	joinRoom(t, hub, alice, "general")
	joinRoom(t, hub, bob, "general")

	// Bob sees his own join broadcast, then the replies.
	joinEv := mustEvent(t, bob.Events, EventUserJoined)
	if joinEv.User != "bob" || joinEv.Room != "general" || joinEv.DisplayName != "bob name" {
		t.Fatalf("unexpected join event: %+v", joinEv)
	}

	say(t, hub, alice, "general", "hi")

	msgEv := mustEvent(t, bob.Events, EventNewMessage)
	if msgEv.Message.Text != "hi" || msgEv.Message.Room != "general" || msgEv.Message.AuthorID != "alice" {
		t.Fatalf("unexpected message event: %+v", msgEv)
	}
	// Sender sees its own message echoed back.
	echo := mustEvent(t, alice.Events, EventNewMessage)
	if echo.Message.ID != msgEv.Message.ID {
		t.Fatalf("echo id %q, want %q", echo.Message.ID, msgEv.Message.ID)
	}

	if err := hub.Handle(alice, &Command{Kind: CommandLeaveRoom, Identity: "alice", Room: "general"}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	leftEv := mustEvent(t, bob.Events, EventUserLeft)
	if leftEv.User != "alice" || leftEv.Room != "general" {
		t.Fatalf("unexpected leave event: %+v", leftEv)
	}

	// Public rooms survive becoming empty.
	if err := hub.Handle(bob, &Command{Kind: CommandLeaveRoom, Identity: "bob", Room: "general"}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := hub.Participants("general"); err != nil {
		t.Fatalf("public room gone after last leave: %v", err)
	}
}

func TestHubJoinRepliesWithParticipantsAndHistory(t *testing.T) {
	hub := newTestHub(t, "alice", "bob")

	alice := connect(hub, "a", "alice")
	joinRoom(t, hub, alice, "global")
	say(t, hub, alice, "global", "first")
	say(t, hub, alice, "global", "second")

	bob := connect(hub, "b", "bob")
	joinRoom(t, hub, bob, "global")

	users := mustEvent(t, bob.Events, EventRoomUsers)
	if len(users.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %+v", users.Participants)
	}
	hist := mustEvent(t, bob.Events, EventHistory)
	if len(hist.Messages) != 2 || hist.Messages[0].Text != "first" || hist.Messages[1].Text != "second" {
		t.Fatalf("unexpected history: %+v", hist.Messages)
	}
}

func TestHubMultiDeviceJoinSingleBroadcast(t *testing.T) {
	hub := newTestHub(t, "alice", "bob")

	bob := connect(hub, "b", "bob")
	joinRoom(t, hub, bob, "general")
	countEvents(bob.Events, EventUserJoined)

	phone := connect(hub, "a-phone", "alice")
	laptop := connect(hub, "a-laptop", "alice")
	joinRoom(t, hub, phone, "general")
	joinRoom(t, hub, laptop, "general")

	if n := countEvents(bob.Events, EventUserJoined); n != 1 {
		t.Fatalf("expected one joined broadcast, got %d", n)
	}

	parts, err := hub.Participants("general")
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	conns := map[string]bool{}
	for _, p := range parts {
		conns[p.ConnectionID] = true
	}
	if !conns["a-phone"] || !conns["a-laptop"] || len(parts) != 3 {
		t.Fatalf("unexpected participants: %+v", parts)
	}

	// Leaving from one device does not announce a leave.
	if err := hub.Handle(phone, &Command{Kind: CommandLeaveRoom, Identity: "alice", Room: "general"}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	noEvent(t, bob.Events, EventUserLeft)

	if err := hub.Handle(laptop, &Command{Kind: CommandLeaveRoom, Identity: "alice", Room: "general"}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	mustEvent(t, bob.Events, EventUserLeft)
}

func TestHubSendWithoutJoinError(t *testing.T) {
	hub := newTestHub(t, "alice")
	alice := connect(hub, "a", "alice")

	err := hub.Handle(alice, &Command{Kind: CommandSendRoomMessage, Identity: "alice", Room: "global", Text: "hi"})
	if !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("expected not_in_room, got %v", err)
	}
}

func TestHubLeaveUnknownRoomError(t *testing.T) {
	hub := newTestHub(t, "alice")
	alice := connect(hub, "a", "alice")

	err := hub.Handle(alice, &Command{Kind: CommandLeaveRoom, Identity: "alice", Room: "ghost"})
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected room_not_found, got %v", err)
	}
}

func TestHubDropsUnverifiedEvents(t *testing.T) {
	hub := newTestHub(t, "alice", "bob")

	bob := connect(hub, "b", "bob")
	joinRoom(t, hub, bob, "global")
	countEvents(bob.Events, EventUserJoined)

	anon := connect(hub, "anon", "")
	ghost := connect(hub, "g", "ghost") // valid session, unknown to the directory
	alice := connect(hub, "a", "alice")

	cases := []struct {
		name string
		c    *Client
		cmd  *Command
	}{
		{"no session", anon, &Command{Kind: CommandJoinRoom, Identity: "alice", Room: "global"}},
		{"claim mismatch", alice, &Command{Kind: CommandJoinRoom, Identity: "bob", Room: "global"}},
		{"missing claim", alice, &Command{Kind: CommandJoinRoom, Room: "global"}},
		{"unknown identity", ghost, &Command{Kind: CommandJoinRoom, Identity: "ghost", Room: "global"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := hub.Handle(tc.c, tc.cmd); !errors.Is(err, ErrUnauthenticated) {
				t.Fatalf("expected unauthenticated, got %v", err)
			}
		})
	}

	noEvent(t, bob.Events, EventUserJoined)
	if n := countEvents(anon.Events, EventRoomUsers); n != 0 {
		t.Fatalf("unauthenticated client received %d replies", n)
	}
}

func TestHubEditDeleteScenario(t *testing.T) {
	hub := newTestHub(t, "A", "B")

	a := connect(hub, "a", "A")
	b := connect(hub, "b", "B")
	joinRoom(t, hub, a, "global")
	joinRoom(t, hub, b, "global")

	say(t, hub, a, "global", "سلام")
	m1 := mustEvent(t, b.Events, EventNewMessage).Message

	hist, err := hub.History("A", "global", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].ID != m1.ID || hist[0].Text != "سلام" || hist[0].Deleted || hist[0].Edited {
		t.Fatalf("unexpected history: %+v", hist)
	}

	if _, err := hub.EditMessage("B", m1.ID, "hijack"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden edit, got %v", err)
	}

	edited, err := hub.EditMessage("A", m1.ID, "سلام دوباره")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !edited.Edited || edited.EditedAt == nil {
		t.Fatalf("edit flags not set: %+v", edited)
	}
	ev := mustEvent(t, b.Events, EventMessageEdited)
	if ev.Message.ID != m1.ID || ev.Message.Text != "سلام دوباره" {
		t.Fatalf("unexpected edited event: %+v", ev)
	}

	if _, err := hub.DeleteMessage("B", m1.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	noEvent(t, a.Events, EventMessageDeleted)

	hist, _ = hub.History("A", "global", 0)
	if hist[0].Text != "سلام دوباره" || !hist[0].Edited || hist[0].Deleted {
		t.Fatalf("unexpected history after edit: %+v", hist[0])
	}

	if _, err := hub.EditMessage("A", "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHubDeleteIsIdempotent(t *testing.T) {
	hub := newTestHub(t, "A", "B")

	a := connect(hub, "a", "A")
	b := connect(hub, "b", "B")
	joinRoom(t, hub, a, "global")
	joinRoom(t, hub, b, "global")
	say(t, hub, a, "global", "oops")
	m := mustEvent(t, b.Events, EventNewMessage).Message

	first, err := hub.DeleteMessage("A", m.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	mustEvent(t, b.Events, EventMessageDeleted)

	second, err := hub.DeleteMessage("A", m.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if !second.DeletedAt.Equal(*first.DeletedAt) {
		t.Fatalf("deletedAt moved: %v -> %v", first.DeletedAt, second.DeletedAt)
	}
	noEvent(t, b.Events, EventMessageDeleted)

	if _, err := hub.EditMessage("A", m.ID, "back"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid_state on tombstone edit, got %v", err)
	}

	hist, _ := hub.History("B", "global", 0)
	if len(hist) != 1 || !hist[0].Deleted {
		t.Fatalf("tombstone missing from history: %+v", hist)
	}
}

func TestHubPrivateRoomDeterministicAndPurged(t *testing.T) {
	hub := newTestHub(t, "leila", "zeynab")

	if PrivateRoomID("leila", "zeynab") != PrivateRoomID("zeynab", "leila") {
		t.Fatalf("private room id depends on argument order")
	}
	id := PrivateRoomID("zeynab", "leila")
	if id != "private_leila_zeynab" {
		t.Fatalf("unexpected private id %q", id)
	}

	l := connect(hub, "l", "leila")
	z := connect(hub, "z", "zeynab")
	if err := hub.Handle(l, &Command{Kind: CommandJoinRoom, Identity: "leila", Room: id, Private: true, Other: "zeynab"}); err != nil {
		t.Fatalf("leila join: %v", err)
	}
	// The second member finds the room without naming the other side.
	if err := hub.Handle(z, &Command{Kind: CommandJoinRoom, Identity: "zeynab", Room: id, Private: true}); err != nil {
		t.Fatalf("zeynab join: %v", err)
	}
	say(t, hub, z, id, "hello")
	msg := mustEvent(t, l.Events, EventNewMessage).Message

	rooms := hub.PrivateRooms("leila")
	if len(rooms) != 1 || rooms[0].Other != "zeynab" || rooms[0].LastMessage == nil || rooms[0].LastMessage.ID != msg.ID {
		t.Fatalf("unexpected private rooms: %+v", rooms)
	}

	if err := hub.Handle(l, &Command{Kind: CommandLeaveRoom, Identity: "leila", Room: id}); err != nil {
		t.Fatalf("leila leave: %v", err)
	}
	if _, err := hub.Participants(id); err != nil {
		t.Fatalf("room purged while zeynab still inside: %v", err)
	}
	if err := hub.Handle(z, &Command{Kind: CommandLeaveRoom, Identity: "zeynab", Room: id}); err != nil {
		t.Fatalf("zeynab leave: %v", err)
	}

	if _, err := hub.Participants(id); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected purged room, got %v", err)
	}
	if _, err := hub.EditMessage("zeynab", msg.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("message index not purged: %v", err)
	}
	if len(hub.PrivateRooms("leila")) != 0 {
		t.Fatalf("purged room still listed")
	}
}

func TestHubPrivateRoomLeaveAfterPurgeIsNoop(t *testing.T) {
	hub := newTestHub(t, "A", "B")

	a := connect(hub, "a", "A")
	b := connect(hub, "b", "B")
	id := PrivateRoomID("A", "B")
	if err := hub.Handle(a, &Command{Kind: CommandJoinRoom, Identity: "A", Room: id, Private: true, Other: "B"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := hub.Handle(a, &Command{Kind: CommandLeaveRoom, Identity: "A", Room: id}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := hub.Participants(id); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected purged room, got %v", err)
	}
	if err := hub.Handle(b, &Command{Kind: CommandLeaveRoom, Identity: "B", Room: id}); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected no-op leave, got %v", err)
	}
}

func TestHubPrivateRoomAccess(t *testing.T) {
	hub := newTestHub(t, "A", "B", "C")
	a := connect(hub, "a", "A")
	c := connect(hub, "c", "C")
	id := PrivateRoomID("A", "B")

	cases := []struct {
		name string
		cmd  *Command
		want error
	}{
		{"unknown without other", &Command{Kind: CommandJoinRoom, Identity: "A", Room: id, Private: true}, ErrRoomNotFound},
		{"mismatched id", &Command{Kind: CommandJoinRoom, Identity: "A", Room: "private_x_y", Private: true, Other: "B"}, ErrBadRequest},
		{"with self", &Command{Kind: CommandJoinRoom, Identity: "A", Room: PrivateRoomID("A", "A"), Private: true, Other: "A"}, ErrBadRequest},
		{"unknown other", &Command{Kind: CommandJoinRoom, Identity: "A", Room: PrivateRoomID("A", "Z"), Private: true, Other: "Z"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := hub.Handle(a, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if err := hub.Handle(a, &Command{Kind: CommandJoinRoom, Identity: "A", Room: id, Private: true, Other: "B"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := hub.Handle(c, &Command{Kind: CommandJoinRoom, Identity: "C", Room: id}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}
	if _, err := hub.History("C", id, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden history, got %v", err)
	}
}

func TestHubTypingExcludesSender(t *testing.T) {
	hub := newTestHub(t, "alice", "bob")

	phone := connect(hub, "a1", "alice")
	laptop := connect(hub, "a2", "alice")
	bob := connect(hub, "b", "bob")
	joinRoom(t, hub, phone, "global")
	joinRoom(t, hub, laptop, "global")
	joinRoom(t, hub, bob, "global")

	if err := hub.Handle(phone, &Command{Kind: CommandTyping, Identity: "alice", Room: "global", Typing: true}); err != nil {
		t.Fatalf("typing: %v", err)
	}

	ev := mustEvent(t, bob.Events, EventUserTyping)
	if ev.User != "alice" || !ev.Typing {
		t.Fatalf("unexpected typing event: %+v", ev)
	}
	if n := countEvents(laptop.Events, EventUserTyping); n != 1 {
		t.Fatalf("other device of sender should see typing once, got %d", n)
	}
	noEvent(t, phone.Events, EventUserTyping)
}

func TestHubNotificationPreview(t *testing.T) {
	hub := newTestHub(t, "alice", "bob")

	alice := connect(hub, "a", "alice")
	bob := connect(hub, "b", "bob")
	joinRoom(t, hub, alice, "global")
	joinRoom(t, hub, bob, "global")

	long := strings.Repeat("ж", 60)
	say(t, hub, alice, "global", long)

	ev := mustEvent(t, bob.Events, EventNotification)
	want := strings.Repeat("ж", 50) + "..."
	if ev.Notification == nil || ev.Notification.Body != want || ev.Notification.From != "alice name" {
		t.Fatalf("unexpected notification: %+v", ev.Notification)
	}
	noEvent(t, alice.Events, EventNotification)

	say(t, hub, alice, "global", "short")
	if ev := mustEvent(t, bob.Events, EventNotification); ev.Notification.Body != "short" {
		t.Fatalf("short text should not be truncated: %q", ev.Notification.Body)
	}
}

func TestHubSendValidation(t *testing.T) {
	hub := newTestHub(t, "alice")
	alice := connect(hub, "a", "alice")
	joinRoom(t, hub, alice, "global")

	cases := []struct {
		name string
		cmd  *Command
		want error
	}{
		{"blank", &Command{Text: "   \n\t"}, ErrEmptyMessage},
		{"bad kind", &Command{Text: "x", MessageKind: "sticker"}, ErrInvalidEnum},
		{"reply to unknown", &Command{Text: "x", ReplyTo: "nope"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.cmd.Kind = CommandSendRoomMessage
			tc.cmd.Identity = "alice"
			tc.cmd.Room = "global"
			if err := hub.Handle(alice, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	noEvent(t, alice.Events, EventNewMessage)
}

func TestHubCallScenario(t *testing.T) {
	hub := newTestHub(t, "A", "B", "C")

	a := connect(hub, "a", "A")
	b := connect(hub, "b", "B")
	c := connect(hub, "c", "C")
	for _, cl := range []*Client{a, b, c} {
		joinRoom(t, hub, cl, "R")
	}

	if err := hub.Handle(a, &Command{Kind: CommandStartCall, Identity: "A", Room: "R", CallKind: "audio"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if n := countEvents(b.Events, EventIncomingCall); n != 1 {
		t.Fatalf("B got %d incoming calls", n)
	}
	if n := countEvents(c.Events, EventIncomingCall); n != 1 {
		t.Fatalf("C got %d incoming calls", n)
	}
	noEvent(t, a.Events, EventIncomingCall)

	if err := hub.Handle(b, &Command{Kind: CommandAnswerCall, Identity: "B", Room: "R", Accept: true}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	acc := mustEvent(t, a.Events, EventCallAccepted)
	if acc.User != "B" || acc.Call.State != CallActive {
		t.Fatalf("unexpected accept event: %+v", acc)
	}

	call, ok := hub.CallSnapshot("R")
	if !ok || call.State != CallActive || len(call.Participants) != 2 || call.Participants[0] != "A" || call.Participants[1] != "B" {
		t.Fatalf("unexpected call: %+v", call)
	}

	hub.UnregisterClient(c)

	after, ok := hub.CallSnapshot("R")
	if !ok || after.State != CallActive || len(after.Participants) != 2 {
		t.Fatalf("call changed after non-participant disconnect: %+v", after)
	}
	noEvent(t, a.Events, EventCallEnded)

	if err := hub.Handle(b, &Command{Kind: CommandEndCall, Identity: "B", Room: "R"}); err != nil {
		t.Fatalf("end: %v", err)
	}
	ended := mustEvent(t, a.Events, EventCallEnded)
	if ended.Call.EndedBy != "B" || ended.Call.State != CallEnded {
		t.Fatalf("unexpected end event: %+v", ended.Call)
	}
	if _, ok := hub.CallSnapshot("R"); ok {
		t.Fatalf("call record not removed")
	}

	// Ending again is a silent no-op.
	if err := hub.Handle(b, &Command{Kind: CommandEndCall, Identity: "B", Room: "R"}); err != nil {
		t.Fatalf("second end: %v", err)
	}
	noEvent(t, a.Events, EventCallEnded)
}

func TestHubStartCallWhileLive(t *testing.T) {
	hub := newTestHub(t, "A", "B")
	a := connect(hub, "a", "A")
	b := connect(hub, "b", "B")
	joinRoom(t, hub, a, "R")
	joinRoom(t, hub, b, "R")

	if err := hub.Handle(a, &Command{Kind: CommandStartCall, Identity: "A", Room: "R", CallKind: "video"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := hub.Handle(b, &Command{Kind: CommandStartCall, Identity: "B", Room: "R", CallKind: "audio"}); !errors.Is(err, ErrCallInProgress) {
		t.Fatalf("expected call_in_progress, got %v", err)
	}
	call, _ := hub.CallSnapshot("R")
	if call.CallerID != "A" || call.Kind != CallVideo {
		t.Fatalf("existing call overwritten: %+v", call)
	}

	if err := hub.Handle(a, &Command{Kind: CommandStartCall, Identity: "A", Room: "R", CallKind: "hologram"}); !errors.Is(err, ErrInvalidEnum) {
		t.Fatalf("expected invalid_enum, got %v", err)
	}
}

func TestHubRejectEndsCallWhenCallerAlone(t *testing.T) {
	hub := newTestHub(t, "A", "B")
	a := connect(hub, "a", "A")
	b := connect(hub, "b", "B")
	joinRoom(t, hub, a, "R")
	joinRoom(t, hub, b, "R")

	if err := hub.Handle(b, &Command{Kind: CommandAnswerCall, Identity: "B", Room: "R"}); !errors.Is(err, ErrNoCall) {
		t.Fatalf("expected no_call, got %v", err)
	}

	if err := hub.Handle(a, &Command{Kind: CommandStartCall, Identity: "A", Room: "R", CallKind: "audio"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := hub.Handle(b, &Command{Kind: CommandAnswerCall, Identity: "B", Room: "R", Accept: false}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	mustEvent(t, a.Events, EventCallRejected)
	ended := mustEvent(t, a.Events, EventCallEnded)
	if ended.Call.EndedBy != SystemMarker {
		t.Fatalf("expected system marker, got %q", ended.Call.EndedBy)
	}
	if _, ok := hub.CallSnapshot("R"); ok {
		t.Fatalf("call still live after rejection")
	}
}

func TestHubDeclineAfterAcceptLeavesCall(t *testing.T) {
	hub := newTestHub(t, "A", "B", "C")
	a := connect(hub, "a", "A")
	b := connect(hub, "b", "B")
	c := connect(hub, "c", "C")
	for _, cl := range []*Client{a, b, c} {
		joinRoom(t, hub, cl, "R")
	}

	if err := hub.Handle(a, &Command{Kind: CommandStartCall, Identity: "A", Room: "R", CallKind: "video"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, cl := range []*Client{b, c} {
		if err := hub.Handle(cl, &Command{Kind: CommandAnswerCall, Identity: cl.Identity, Room: "R", Accept: true}); err != nil {
			t.Fatalf("accept %s: %v", cl.Identity, err)
		}
	}

	if err := hub.Handle(b, &Command{Kind: CommandAnswerCall, Identity: "B", Room: "R", Accept: false}); err != nil {
		t.Fatalf("decline: %v", err)
	}
	mustEvent(t, a.Events, EventCallRejected)
	call, ok := hub.CallSnapshot("R")
	if !ok {
		t.Fatalf("call ended while C is still in it")
	}
	if call.State != CallActive || len(call.Participants) != 2 || call.hasParticipant("B") {
		t.Fatalf("unexpected call after decline: %v %v", call.Participants, call.State)
	}

	if err := hub.Handle(c, &Command{Kind: CommandAnswerCall, Identity: "C", Room: "R", Accept: false}); err != nil {
		t.Fatalf("decline: %v", err)
	}
	ended := mustEvent(t, a.Events, EventCallEnded)
	if ended.Call.EndedBy != SystemMarker {
		t.Fatalf("expected system marker, got %q", ended.Call.EndedBy)
	}
	if _, ok := hub.CallSnapshot("R"); ok {
		t.Fatalf("call still live with only the caller left")
	}

	// The index no longer ties B to the room: going offline ends nothing.
	hub.UnregisterClient(b)
	noEvent(t, a.Events, EventCallEnded)
}

func TestHubDisconnectEndsCalls(t *testing.T) {
	hub := newTestHub(t, "A", "B")
	a1 := connect(hub, "a1", "A")
	a2 := connect(hub, "a2", "A")
	b := connect(hub, "b", "B")
	joinRoom(t, hub, a1, "R")
	joinRoom(t, hub, b, "R")
	joinRoom(t, hub, b, "global")
	joinRoom(t, hub, a2, "global")

	if err := hub.Handle(a1, &Command{Kind: CommandStartCall, Identity: "A", Room: "R", CallKind: "audio"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := hub.Handle(b, &Command{Kind: CommandAnswerCall, Identity: "B", Room: "R", Accept: true}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// A still has another connection: the call survives.
	hub.UnregisterClient(a1)
	if _, ok := hub.CallSnapshot("R"); !ok {
		t.Fatalf("call ended while caller still connected elsewhere")
	}
	noEvent(t, b.Events, EventUserOffline)

	hub.UnregisterClient(a2)
	ended := mustEvent(t, b.Events, EventCallEnded)
	if ended.Call.EndedBy != "A" || ended.Call.Duration < 0 {
		t.Fatalf("unexpected end event: %+v", ended.Call)
	}
	if _, ok := hub.CallSnapshot("R"); ok {
		t.Fatalf("call survived the caller going offline")
	}
	if len(a1.Rooms()) != 0 || len(a2.Rooms()) != 0 {
		t.Fatalf("disconnected clients still joined: %v %v", a1.Rooms(), a2.Rooms())
	}
}

func TestHubSignalRelay(t *testing.T) {
	hub := newTestHub(t, "A", "B", "C")
	a := connect(hub, "a", "A")
	b1 := connect(hub, "b1", "B")
	b2 := connect(hub, "b2", "B")
	joinRoom(t, hub, a, "global")
	joinRoom(t, hub, b1, "global")
	joinRoom(t, hub, b2, "R")

	payload := json.RawMessage(`{"sdp":"v=0"}`)
	if err := hub.Handle(a, &Command{Kind: CommandSignal, To: "B", SignalType: "offer", Signal: payload}); err != nil {
		t.Fatalf("signal: %v", err)
	}
	for _, b := range []*Client{b1, b2} {
		ev := mustEvent(t, b.Events, EventRTCSignal)
		if ev.Signal.From != "A" || ev.Signal.Type != "offer" || string(ev.Signal.Payload) != string(payload) {
			t.Fatalf("unexpected signal: %+v", ev.Signal)
		}
	}

	// Offline target: dropped without error.
	if err := hub.Handle(a, &Command{Kind: CommandSignal, To: "C", SignalType: "offer", Signal: payload}); err != nil {
		t.Fatalf("signal to offline: %v", err)
	}
	if err := hub.Handle(a, &Command{Kind: CommandSignal, To: "nobody", Signal: payload}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestHubSignalWithoutPayload(t *testing.T) {
	hub := newTestHub(t, "A", "B")
	a := connect(hub, "a", "A")
	b := connect(hub, "b", "B")

	for _, raw := range []json.RawMessage{nil, json.RawMessage(""), json.RawMessage(" null ")} {
		err := hub.Handle(a, &Command{Kind: CommandSignal, To: "B", SignalType: "offer", Signal: raw})
		if !errors.Is(err, ErrBadRequest) {
			t.Fatalf("signal %q: expected bad_request, got %v", raw, err)
		}
	}
	noEvent(t, b.Events, EventRTCSignal)
}

func TestHubBroadcastTarget(t *testing.T) {
	hub := newTestHub(t, "A", "B")
	a1 := connect(hub, "a1", "A")
	a2 := connect(hub, "a2", "A")
	b := connect(hub, "b", "B")
	joinRoom(t, hub, a1, "R")
	joinRoom(t, hub, a2, "R")
	joinRoom(t, hub, b, "R")

	targets := hub.BroadcastTarget("R")
	if len(targets) != 3 {
		t.Fatalf("expected 3 targets, got %d", len(targets))
	}
	seen := make(map[*Client]bool)
	for _, c := range targets {
		seen[c] = true
	}
	for _, c := range []*Client{a1, a2, b} {
		if !seen[c] {
			t.Fatalf("connection %s missing from targets", c.ID)
		}
	}

	if got := hub.BroadcastTarget("missing"); got != nil {
		t.Fatalf("unknown room has targets: %v", got)
	}

	id := PrivateRoomID("A", "B")
	if err := hub.Handle(a1, &Command{Kind: CommandJoinRoom, Identity: "A", Room: id, Private: true, Other: "B"}); err != nil {
		t.Fatalf("private join: %v", err)
	}
	if len(hub.BroadcastTarget(id)) != 1 {
		t.Fatalf("expected the creator as the only target")
	}
	if err := hub.Handle(a1, &Command{Kind: CommandLeaveRoom, Identity: "A", Room: id}); err != nil {
		t.Fatalf("private leave: %v", err)
	}
	if got := hub.BroadcastTarget(id); got != nil {
		t.Fatalf("purged room has targets: %v", got)
	}
}

func TestHubStaleMessageIndex(t *testing.T) {
	hub := newTestHub(t, "A")
	a := connect(hub, "a", "A")
	joinRoom(t, hub, a, "R")

	hub.msgMu.Lock()
	hub.msgRoom["ghost"] = "R"
	hub.msgMu.Unlock()

	if _, err := hub.EditMessage("A", "ghost", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("edit: expected not_found, got %v", err)
	}
	if _, err := hub.DeleteMessage("A", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: expected not_found, got %v", err)
	}
}

func TestHubOnlineOfflineAndLogout(t *testing.T) {
	hub := newTestHub(t, "A", "B")
	b := connect(hub, "b", "B")

	a1 := connect(hub, "a1", "A")
	online := mustEvent(t, b.Events, EventUserOnline)
	if online.User != "A" {
		t.Fatalf("unexpected online event: %+v", online)
	}
	a2 := connect(hub, "a2", "A")
	noEvent(t, b.Events, EventUserOnline)

	joinRoom(t, hub, a1, "global")
	joinRoom(t, hub, b, "global")
	snap := hub.OnlineSnapshot()
	if len(snap) != 2 || snap[0].ID != "A" || snap[1].ID != "B" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if n := hub.Logout("A"); n != 2 {
		t.Fatalf("expected 2 kicked connections, got %d", n)
	}
	for _, c := range []*Client{a1, a2} {
		select {
		case <-c.Done():
		default:
			t.Fatalf("connection %s not kicked", c.ID)
		}
		hub.UnregisterClient(c)
	}
	if n := countEvents(b.Events, EventUserOffline); n != 1 {
		t.Fatalf("expected one offline broadcast, got %d", n)
	}
	if snap := hub.OnlineSnapshot(); len(snap) != 1 || snap[0].ID != "B" {
		t.Fatalf("unexpected snapshot after logout: %+v", snap)
	}
}

func TestHubRingTimeoutSweep(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	hub := NewHub(newDirectory("A", "B"), nil, Options{RingTimeout: 30 * time.Second, Now: clock})

	a := connect(hub, "a", "A")
	b := connect(hub, "b", "B")
	joinRoom(t, hub, a, "R")
	joinRoom(t, hub, b, "R")
	if err := hub.Handle(a, &Command{Kind: CommandStartCall, Identity: "A", Room: "R", CallKind: "audio"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	hub.sweepRinging(now.Add(10 * time.Second))
	if _, ok := hub.CallSnapshot("R"); !ok {
		t.Fatalf("call swept too early")
	}

	mu.Lock()
	now = now.Add(31 * time.Second)
	mu.Unlock()
	hub.sweepRinging(clock())

	ended := mustEvent(t, b.Events, EventCallEnded)
	if ended.Call.EndedBy != SystemMarker || ended.Call.Duration != 31*time.Second {
		t.Fatalf("unexpected sweep end: %+v", ended.Call)
	}
}

func TestHubConcurrentSendersLinearized(t *testing.T) {
	const senders, perSender = 8, 25

	ids := make([]string, senders)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%d", i)
	}
	hub := newTestHub(t, ids...)

	clients := make([]*Client, senders)
	for i, id := range ids {
		clients[i] = NewClient(id, id, 4096)
		hub.RegisterClient(clients[i])
		joinRoom(t, hub, clients[i], "global")
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_ = hub.Handle(c, &Command{Kind: CommandSendRoomMessage, Identity: c.Identity, Room: "global", Text: "m"})
			}
		}(c)
	}
	wg.Wait()

	hist, err := hub.History(ids[0], "global", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 100 {
		t.Fatalf("expected history capped at 100, got %d", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].Seq != hist[i-1].Seq+1 || hist[i].CreatedAt.Before(hist[i-1].CreatedAt) {
			t.Fatalf("history out of order at %d: %+v %+v", i, hist[i-1], hist[i])
		}
	}

	// Every receiver observed the same order as the ledger.
	var last uint64
	for {
		select {
		case ev := <-clients[0].Events:
			if ev.Kind != EventNewMessage {
				continue
			}
			if ev.Message.Seq <= last {
				t.Fatalf("delivery out of ledger order: %d after %d", ev.Message.Seq, last)
			}
			last = ev.Message.Seq
			continue
		default:
		}
		break
	}
	if last != senders*perSender {
		t.Fatalf("expected last seq %d, got %d", senders*perSender, last)
	}
}

func TestHubSlowClientDropsEvents(t *testing.T) {
	var dropped int
	hub := NewHub(newDirectory("A", "B"), nil, Options{OnDrop: func(*Client, *Event) { dropped++ }})

	a := connect(hub, "a", "A")
	slow := NewClient("slow", "B", 1)
	hub.RegisterClient(slow)
	joinRoom(t, hub, a, "global")
	joinRoom(t, hub, slow, "global")

	for i := 0; i < 5; i++ {
		say(t, hub, a, "global", "spam")
	}
	if dropped == 0 {
		t.Fatalf("expected dropped events for slow client")
	}
}
