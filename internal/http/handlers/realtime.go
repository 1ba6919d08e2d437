package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/notebook-backend/internal/http/response"
	"github.com/yungbote/notebook-backend/internal/realtime"
)

type RealtimeHandler struct {
	hub *realtime.SSEHub
}

func NewRealtimeHandler(hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// GET /api/sessions/:id/events
//
// Long-lived SSE stream of document lifecycle events for one session.
func (h *RealtimeHandler) SessionEvents(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	client := h.hub.NewSSEClient()
	h.hub.AddChannel(client, realtime.SessionChannel(sessionID))
	defer h.hub.CloseClient(client)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
