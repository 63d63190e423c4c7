package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/savora-ai/savora-backend/internal/domain"
	"github.com/savora-ai/savora-backend/internal/pkg/logger"
	"github.com/savora-ai/savora-backend/internal/services"
	"github.com/savora-ai/savora-backend/internal/sse"
)

type ChatHandler struct {
	log  *logger.Logger
	orch *services.QueryOrchestrator
}

func NewChatHandler(log *logger.Logger, orch *services.QueryOrchestrator) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "ChatHandler"), orch: orch}
}

type chatRequest struct {
	UID     string               `json:"uid" binding:"required,uuid"`
	Message string               `json:"message" binding:"required"`
	History []domain.ChatMessage `json:"history" binding:"omitempty,dive"`
}

// Chat streams one turn as server-sent events: thinking steps followed by
// exactly one result event, then the stream closes.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	uid, err := uuid.Parse(req.UID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_uid", err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		RespondError(c, http.StatusInternalServerError, "streaming_unsupported", errors.New("response writer cannot stream"))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := h.orch.HandleChat(c.Request.Context(), uid, req.Message, req.History)
	for ev := range events {
		if err := sse.Write(c.Writer, ev); err != nil {
			h.log.Warn("Writing chat event failed; client likely disconnected",
				"uid", uid, "error", err.Error())
			return
		}
		flusher.Flush()
	}
}
