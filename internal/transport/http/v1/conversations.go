package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// BeginConversation opens a conversation, or resumes the given one.
// POST /v1/conversations
func (h *Handler) BeginConversation(c echo.Context) error {
	var req domain.BeginConversationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.BeginConversation(c.Request().Context(), req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

// SubmitTurn sends one user message and waits for the assistant's reply.
// POST /v1/conversations/:conversation_id/turns
func (h *Handler) SubmitTurn(c echo.Context) error {
	var req domain.SubmitTurnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	res := h.service.SubmitTurn(c.Request().Context(), c.Param("conversation_id"), req)
	return c.JSON(http.StatusOK, res)
}

// ListTurns returns the latest turns of a conversation.
// GET /v1/conversations/:conversation_id/turns
func (h *Handler) ListTurns(c echo.Context) error {
	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	turns, err := h.service.ListTurns(c.Request().Context(), c.Param("conversation_id"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if turns == nil {
		turns = []domain.Turn{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"turns": turns,
	})
}

// GetConversationEvents retrieves the event trail of a conversation.
// GET /v1/conversations/:conversation_id/events
func (h *Handler) GetConversationEvents(c echo.Context) error {
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if raw := c.QueryParam("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	events, err := h.service.GetConversationEvents(c.Request().Context(), c.Param("conversation_id"), afterTs, types, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if events == nil {
		events = []domain.Event{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
