// Package v1 provides the JSON API handlers.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Conversations
	e.POST("/v1/conversations", h.BeginConversation)
	e.POST("/v1/conversations/:conversation_id/turns", h.SubmitTurn)
	e.GET("/v1/conversations/:conversation_id/turns", h.ListTurns)
	e.GET("/v1/conversations/:conversation_id/events", h.GetConversationEvents)

	// Missions
	e.POST("/v1/missions", h.ConfirmDraft)
	e.GET("/v1/missions/:record_id", h.GetMission)
	e.PATCH("/v1/missions/:record_id", h.UpdateMission)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
