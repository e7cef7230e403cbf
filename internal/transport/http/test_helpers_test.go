package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/parley/internal/auth"
	"github.com/vovakirdan/parley/internal/config"
	"github.com/vovakirdan/parley/internal/core"
	"github.com/vovakirdan/parley/internal/directory"
	applog "github.com/vovakirdan/parley/internal/log"
	"github.com/vovakirdan/parley/internal/metrics"
	"github.com/vovakirdan/parley/internal/proto"
	"github.com/vovakirdan/parley/internal/store"
	"github.com/vovakirdan/parley/internal/store/sqlite"
)

type testEnv struct {
	ts   *httptest.Server
	hub  *core.Hub
	auth *auth.Service
}

// startTestServer wires the full stack over an in-memory store.
// Accounts are created as "<name>" with password "password123"; the first one is privileged.
func startTestServer(t *testing.T, users ...string) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	dir := directory.New()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})
	authService.OnAccountCreated(func(a *store.Account) { dir.Put(directory.FromAccount(a)) })

	for i, u := range users {
		if _, err := authService.Bootstrap(context.Background(), auth.NewAccount{
			Username:     u,
			Password:     "password123",
			DisplayName:  strings.ToUpper(u[:1]) + u[1:],
			IsPrivileged: i == 0,
		}); err != nil {
			t.Fatalf("bootstrap %s: %v", u, err)
		}
	}

	logger := applog.Nop()
	cfg := config.Default()
	cfg.Addr = ":0"

	hub := core.NewHub(dir, logger, core.Options{GlobalRoom: cfg.GlobalRoom})
	server := NewServer(hub, authService, metrics.New(), &cfg, logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, hub: hub, auth: authService}
}

func (e *testEnv) token(t *testing.T, user string) string {
	t.Helper()
	token, _, err := e.auth.Login(context.Background(), user, "password123")
	if err != nil {
		t.Fatalf("login %s: %v", user, err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

// dial opens a websocket; an empty token yields an unauthenticated connection.
func (e *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	url := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readUntil reads frames until one carries event, failing on timeout.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) outbound {
	t.Helper()

	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if out.Event == event {
			return out
		}
	}
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
