package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/http/response"
	"github.com/yungbote/notebook-backend/internal/services"
)

type SessionHandler struct {
	sessions *services.SessionService
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type createSessionReq struct {
	Title string `json:"title"`
	Mode  string `json:"mode"`
}

// POST /api/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), req.Title, domain.Mode(req.Mode))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "create_session_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"session": session})
}

// GET /api/sessions?limit=50
func (h *SessionHandler) List(c *gin.Context) {
	limit := 50
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sessions, err := h.sessions.List(c.Request.Context(), limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_sessions_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": sessions})
}

// GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		if err == services.ErrSessionNotFound {
			response.RespondError(c, http.StatusNotFound, "session_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "get_session_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"session": session})
}

// DELETE /api/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), sessionID); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "delete_session_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}
