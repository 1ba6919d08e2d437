package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/notebook-backend/internal/http/response"
	"github.com/yungbote/notebook-backend/internal/services"
)

type DocumentHandler struct {
	documents *services.DocumentService
}

func NewDocumentHandler(documents *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// POST /api/sessions/:id/documents  (multipart field "file")
func (h *DocumentHandler) Upload(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}

	doc, err := h.documents.Upload(c.Request.Context(), sessionID,
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		switch err {
		case services.ErrSessionNotFound:
			response.RespondError(c, http.StatusNotFound, "session_not_found", err)
		case services.ErrTooLarge:
			response.RespondError(c, http.StatusRequestEntityTooLarge, "document_too_large", err)
		default:
			response.RespondError(c, http.StatusInternalServerError, "upload_failed", err)
		}
		return
	}
	response.RespondCreated(c, gin.H{"document": doc})
}

// GET /api/sessions/:id/documents
func (h *DocumentHandler) List(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	docs, err := h.documents.List(c.Request.Context(), sessionID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_documents_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs})
}

// GET /api/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), documentID)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "document_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}
