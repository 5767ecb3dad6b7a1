package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
)

// ConfirmDraft persists a confirmed draft and notifies the client.
// POST /v1/missions
func (h *Handler) ConfirmDraft(c echo.Context) error {
	var req domain.ConfirmDraftRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Source == "" {
		req.Source = domain.MissionSourceAPI
	}

	res := h.service.ConfirmDraft(c.Request().Context(), req)
	return c.JSON(http.StatusOK, res)
}

// GetMission returns a persisted mission.
// GET /v1/missions/:record_id
func (h *Handler) GetMission(c echo.Context) error {
	entry, err := h.service.GetMission(c.Request().Context(), c.Param("record_id"))
	if err != nil {
		return missionError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// UpdateMission changes the status of a mission.
// PATCH /v1/missions/:record_id
func (h *Handler) UpdateMission(c echo.Context) error {
	var req domain.UpdateMissionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	entry, err := h.service.UpdateMission(c.Request().Context(), c.Param("record_id"), req)
	if err != nil {
		return missionError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

func missionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "mission not found"})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
