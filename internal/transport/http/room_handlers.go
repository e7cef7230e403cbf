package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/parley/internal/core"
	"github.com/vovakirdan/parley/internal/proto"
)

// RoomHandlers provides read-only HTTP views over live rooms and presence.
type RoomHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub: hub,
		log: logger,
	}
}

// UserResponse is an online identity.
type UserResponse struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// PrivateRoomResponse is one of the caller's private rooms.
type PrivateRoomResponse struct {
	Room        string              `json:"room"`
	OtherUser   string              `json:"other_user"`
	LastMessage *proto.EventMessage `json:"last_message,omitempty"`
}

// HistoryResponse is a page of room history.
type HistoryResponse struct {
	Room     string               `json:"room"`
	Messages []proto.EventMessage `json:"messages"`
}

// Online lists identities with at least one joined connection.
// GET /api/online
func (h *RoomHandlers) Online(c *gin.Context) {
	users := lo.Map(h.hub.OnlineSnapshot(), func(i core.Identity, _ int) UserResponse {
		return UserResponse{Username: i.ID, DisplayName: i.Name()}
	})
	c.JSON(http.StatusOK, users)
}

// PrivateRooms lists the caller's live private rooms.
// GET /api/rooms/private
func (h *RoomHandlers) PrivateRooms(c *gin.Context) {
	rooms := lo.Map(h.hub.PrivateRooms(identityFrom(c)), func(pr core.PrivateRoom, _ int) PrivateRoomResponse {
		out := PrivateRoomResponse{Room: pr.Room, OtherUser: pr.Other}
		if pr.LastMessage != nil {
			m := messageToProto(*pr.LastMessage)
			out.LastMessage = &m
		}
		return out
	})
	c.JSON(http.StatusOK, rooms)
}

// History returns recent messages of a room, tombstones included.
// GET /api/rooms/:room/history?limit=n
func (h *RoomHandlers) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit", Code: core.ErrCodeBadRequest})
			return
		}
		limit = n
	}

	room := c.Param("room")
	msgs, err := h.hub.History(identityFrom(c), room, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	h.log.Debug().Str("room", room).Int("count", len(msgs)).Msg("history served")
	c.JSON(http.StatusOK, HistoryResponse{Room: room, Messages: messagesToProto(msgs)})
}
