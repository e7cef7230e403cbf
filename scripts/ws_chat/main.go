package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/parley/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	user := flag.String("user", "", "username")
	password := flag.String("password", "", "password")
	room := flag.String("room", "global", "room to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	token, err := login(ctx, *server, *user, *password)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeJoin, proto.JoinData{Username: *user, Room: *room}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s in room %s\n", *server, *user, *room)
	fmt.Println("Type messages and press Enter to send. Commands: /call audio|video, /answer yes|no, /end. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *user, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func login(ctx context.Context, server, user, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": user, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	return out.Token, nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	return wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload})
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch f.Event {
		case "new_message":
			var m proto.EventMessage
			if err := json.Unmarshal(f.Data, &m); err == nil {
				fmt.Printf("[%s] %s: %s\n", m.Room, m.DisplayName, m.Text)
			}
		case "message_history":
			var h proto.EventHistory
			if err := json.Unmarshal(f.Data, &h); err == nil {
				for _, m := range h.Messages {
					text := m.Text
					if m.Deleted {
						text = "(message removed)"
					}
					fmt.Printf("[%s] %s: %s\n", m.Room, m.DisplayName, text)
				}
			}
		case "user_joined", "user_left", "user_online", "user_offline":
			var u proto.EventUser
			if err := json.Unmarshal(f.Data, &u); err == nil {
				fmt.Printf("* %s %s %s\n", u.DisplayName, strings.ReplaceAll(f.Event, "_", " "), u.Room)
			}
		case "incoming_call", "call_accepted", "call_rejected", "call_ended":
			var c proto.EventCall
			if err := json.Unmarshal(f.Data, &c); err == nil {
				fmt.Printf("* %s in %s: caller=%s state=%s participants=%v\n", f.Event, c.Room, c.Caller, c.State, c.Participants)
			}
		case "notification", "user_typing", "room_users":
			// Noise for a terminal client.
		default:
			fmt.Printf("event=%s data=%s\n", f.Event, f.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, user, room string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var err error
			fields := strings.Fields(text)
			switch fields[0] {
			case "/call":
				kind := "audio"
				if len(fields) > 1 {
					kind = fields[1]
				}
				err = send(ctx, conn, proto.InboundTypeStartCall, proto.CallData{Username: user, Room: room, Kind: kind})
			case "/answer":
				accept := len(fields) > 1 && fields[1] == "yes"
				err = send(ctx, conn, proto.InboundTypeAnswerCall, proto.CallData{Username: user, Room: room, Accept: accept})
			case "/end":
				err = send(ctx, conn, proto.InboundTypeEndCall, proto.CallData{Username: user, Room: room})
			default:
				err = send(ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{Username: user, Room: room, Text: text})
			}
			if err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
