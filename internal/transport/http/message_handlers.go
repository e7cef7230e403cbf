package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/parley/internal/core"
)

// MessageHandlers serves the message mutation endpoints.
type MessageHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(hub *core.Hub, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{hub: hub, log: logger}
}

// EditMessageRequest represents the edit request body.
type EditMessageRequest struct {
	Text string `json:"text"`
}

// EditMessage replaces the text of one of the caller's messages.
// PUT /api/messages/:id
func (h *MessageHandlers) EditMessage(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	identity := identityFrom(c)
	msg, err := h.hub.EditMessage(identity, c.Param("id"), req.Text)
	if err != nil {
		h.log.Debug().Err(err).Str("identity", identity).Str("message_id", c.Param("id")).Msg("edit rejected")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageToProto(msg))
}

// DeleteMessage tombstones one of the caller's messages.
// DELETE /api/messages/:id
func (h *MessageHandlers) DeleteMessage(c *gin.Context) {
	identity := identityFrom(c)
	msg, err := h.hub.DeleteMessage(identity, c.Param("id"))
	if err != nil {
		h.log.Debug().Err(err).Str("identity", identity).Str("message_id", c.Param("id")).Msg("delete rejected")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageToProto(msg))
}
