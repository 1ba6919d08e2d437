package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/notebook-backend/internal/http/response"
	"github.com/yungbote/notebook-backend/internal/services"
)

type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatReq struct {
	Message string `json:"message"`
}

// POST /api/sessions/:id/chat
//
// Streams the turn as server-sent events: a run of token frames, then
// citation frames, then exactly one done or error frame.
func (h *ChatHandler) Stream(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	events, err := h.chat.StreamChat(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		if err == services.ErrSessionNotFound {
			response.RespondError(c, http.StatusNotFound, "session_not_found", err)
			return
		}
		response.RespondError(c, http.StatusBadRequest, "chat_failed", err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", nil)
		return
	}

	for ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, raw)
		flusher.Flush()
	}
}

// GET /api/sessions/:id/messages?limit=50
func (h *ChatHandler) ListMessages(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	limit := 50
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	msgs, err := h.chat.ListMessages(c.Request.Context(), sessionID, limit)
	if err != nil {
		if err == services.ErrSessionNotFound {
			response.RespondError(c, http.StatusNotFound, "session_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "list_messages_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"messages": msgs})
}
