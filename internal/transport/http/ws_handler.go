package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/parley/internal/auth"
	"github.com/vovakirdan/parley/internal/config"
	"github.com/vovakirdan/parley/internal/core"
	"github.com/vovakirdan/parley/internal/metrics"
	"github.com/vovakirdan/parley/internal/proto"
)

var errKicked = errors.New("connection closed by server")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub     *core.Hub
	auth    *auth.Service
	metrics *metrics.Metrics
	cfg     *config.Config
	log     *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, m *metrics.Metrics, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, auth: authService, metrics: m, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()
	identity := h.identityFromRequest(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(uuid.NewString(), identity, h.cfg.EventBuffer)
	h.hub.RegisterClient(client)
	h.metrics.ConnectionOpened()
	defer func() {
		h.hub.UnregisterClient(client)
		h.metrics.ConnectionClosed()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if errors.Is(err, errKicked) {
		reason = "logged out"
		err = nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "read error"
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// identityFromRequest returns the verified identity, or "" for an unauthenticated connection.
func (h *WSHandler) identityFromRequest(r *stdhttp.Request) string {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" || h.auth == nil {
		return ""
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected, continuing unauthenticated")
		return ""
	}
	return claims.Subject
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerSecond, h.cfg.RateLimitBurst)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			h.metrics.Command("rate_limited", metrics.OutcomeDropped)
			h.log.Debug().Str("client_id", client.ID).Msg("inbound event rate limited")
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.drop(client, "malformed", err)
			continue
		}
		cmd, err := inboundToCommand(inbound)
		if err != nil {
			h.drop(client, inbound.Type, err)
			continue
		}
		if err := h.hub.Handle(client, cmd); err != nil {
			h.drop(client, cmd.Kind.String(), err)
			continue
		}
		h.metrics.Command(cmd.Kind.String(), metrics.OutcomeOK)
	}
}

// drop records an inbound event that failed validation. Nothing is written back to the peer.
func (h *WSHandler) drop(client *core.Client, kind string, err error) {
	h.metrics.Command(kind, metrics.OutcomeDropped)
	h.log.Debug().
		Err(err).
		Str("client_id", client.ID).
		Str("identity", client.Identity).
		Str("event", kind).
		Str("code", core.Code(err)).
		Msg("inbound event dropped")
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if event == nil {
				continue
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return errKicked
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
