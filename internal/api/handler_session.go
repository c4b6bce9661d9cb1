package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"devserver/internal/service"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	svc *service.Service
}

func NewSessionHandler(svc *service.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// ListSessions GET /session
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.svc.ListSessions(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := make([]SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, toSessionResponse(sess))
	}
	c.JSON(http.StatusOK, resp)
}

// CreateSession POST /session. An empty body creates a session without metadata.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondErrorWithDetails(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	sess, err := h.svc.CreateSession(c.Request.Context(), req.Metadata)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toSessionResponse(sess))
}

// GetSession GET /session/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, err := h.svc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(sess))
}

// CloseSession DELETE /session/:id
// The session is only flagged closed; it stays listed and its events stay readable.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	sess, err := h.svc.CloseSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(sess))
}

// AppendEvent POST /session/:id/event
func (h *SessionHandler) AppendEvent(c *gin.Context) {
	var req AppendEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}

	event, err := h.svc.AppendEvent(c.Request.Context(), c.Param("id"), req.Kind, payload)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toEventResponse(event))
}

// ListEvents GET /session/:id/event?cursor=n
func (h *SessionHandler) ListEvents(c *gin.Context) {
	var cursor uint64
	if raw := c.Query("cursor"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondErrorWithDetails(c, http.StatusBadRequest, ErrInvalidRequest, "cursor must be a non-negative integer")
			return
		}
		cursor = n
	}

	events, err := h.svc.Events(c.Request.Context(), c.Param("id"), cursor)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, toEventResponse(e))
	}
	c.JSON(http.StatusOK, resp)
}
