// Package handler provides HTTP handlers for the knowledge base service.
package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/ragserver/internal/ragserver/biz"
	"github.com/kart-io/ragserver/pkg/utils/errors"
)

// queryTimeout bounds a single retrieval-plus-generation round trip.
const queryTimeout = 60 * time.Second

// Handler handles knowledge base HTTP requests.
type Handler struct {
	service        biz.Service
	maxUploadBytes int64
}

// New creates a new Handler.
func New(service biz.Service, maxUploadBytes int64) *Handler {
	return &Handler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
	}
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError maps service errors onto the response envelope.
func writeError(c *gin.Context, err error) {
	if errno, ok := errors.FromError(err); ok {
		c.JSON(errno.HTTPStatus(), ErrorResponse{Code: errno.Code, Message: errno.Message("en")})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    errors.ErrRAGQueryFailed.Code,
		Message: err.Error(),
	})
}

// IngestRequest represents a JSON document upload.
type IngestRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
	Content     string `json:"content" binding:"required"`
}

// Ingest uploads a document into the knowledge base.
// Accepts either a multipart form with a "file" field or a JSON body.
func (h *Handler) Ingest(c *gin.Context) {
	filename, contentType, content, err := h.readDocument(c)
	if err != nil {
		writeError(c, err)
		return
	}

	doc, err := h.service.Ingest(c.Request.Context(), filename, contentType, content)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Code:    0,
		Message: "document ingested",
		Data:    doc,
	})
}

func (h *Handler) readDocument(c *gin.Context) (string, string, []byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return "", "", nil, errors.ErrRAGInvalidRequest.WithMessagef("missing file field: %v", err)
		}
		if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
			return "", "", nil, errors.ErrRAGInvalidRequest.WithMessagef(
				"file size %d exceeds limit %d", fileHeader.Size, h.maxUploadBytes)
		}
		f, err := fileHeader.Open()
		if err != nil {
			return "", "", nil, errors.ErrRAGInvalidRequest.WithCause(err)
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return "", "", nil, errors.ErrRAGInvalidRequest.WithCause(err)
		}
		return fileHeader.Filename, fileHeader.Header.Get("Content-Type"), content, nil
	}

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", "", nil, errors.ErrRAGInvalidRequest.WithMessagef("invalid request body: %v", err)
	}
	if h.maxUploadBytes > 0 && int64(len(req.Content)) > h.maxUploadBytes {
		return "", "", nil, errors.ErrRAGInvalidRequest.WithMessagef(
			"content size %d exceeds limit %d", len(req.Content), h.maxUploadBytes)
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}
	return req.Filename, contentType, []byte(req.Content), nil
}

// ListDocuments lists visible documents.
func (h *Handler) ListDocuments(c *gin.Context) {
	docs, err := h.service.ListDocuments(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: docs})
}

// GetDocument returns a single document by ID.
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.service.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: doc})
}

// DeleteDocument removes a document and its chunks.
func (h *Handler) DeleteDocument(c *gin.Context) {
	if err := h.service.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "document deleted"})
}

// QueryRequest represents a query request.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
}

// Query answers a question against the knowledge base.
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.ErrRAGInvalidRequest.WithMessagef("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(c, errors.ErrRAGInvalidRequest.WithMessage("question must not be empty"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	result, err := h.service.Query(ctx, req.Question)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			writeError(c, errors.ErrRAGQueryTimeout.WithCause(err))
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: result})
}

// Stats returns knowledge base statistics.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "ok", Data: stats})
}

// Healthz is a liveness probe.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
