// Package legacy serves the cookie-based chat routes and the manual mission
// form.
package legacy

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/domain"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/service"
)

// CookieName holds the conversation identity of a browser.
const CookieName = "conversation_id"

const cookieMaxAge = 30 * 24 * time.Hour

// Handler handles the legacy routes.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the legacy routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Index)
	e.GET("/chat", h.Chat)
	e.POST("/chat/sendMessage", h.SendMessage)
	e.POST("/chat/submitMission", h.SubmitMission)
	e.POST("/form", h.SubmitForm)
}

// Index greets visitors.
// GET /
func (h *Handler) Index(c echo.Context) error {
	return c.String(http.StatusOK, "Bienvenue sur FreelanceFlow!")
}

// Chat opens the browser's conversation.
// GET /chat
func (h *Handler) Chat(c echo.Context) error {
	convID := conversationID(c)

	resp, err := h.service.BeginConversation(c.Request().Context(), domain.BeginConversationRequest{ConversationID: convID})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

// SendMessage runs one chat turn.
// POST /chat/sendMessage
func (h *Handler) SendMessage(c echo.Context) error {
	var req domain.LegacySendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	convID := conversationID(c)
	res := h.service.SubmitTurn(c.Request().Context(), convID, domain.SubmitTurnRequest{Text: req.Message})

	return c.JSON(http.StatusOK, domain.LegacySendMessageResponse{
		Message: res.Reply,
		Mission: res.Draft,
	})
}

// SubmitMission confirms a draft proposed in the chat.
// POST /chat/submitMission
func (h *Handler) SubmitMission(c echo.Context) error {
	var req domain.LegacySubmitMissionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.Service == "" || req.Description == "" || req.Price == nil || req.ClientEmail == "" {
		return c.JSON(http.StatusOK, domain.LegacySubmitMissionResponse{
			Success: false,
			Message: "Données de mission incomplètes",
		})
	}

	var convID string
	if cookie, err := c.Cookie(CookieName); err == nil {
		convID = cookie.Value
	}

	res := h.service.ConfirmDraft(c.Request().Context(), domain.ConfirmDraftRequest{
		ConversationID: convID,
		Service:        req.Service,
		Description:    req.Description,
		Price:          *req.Price,
		ClientEmail:    req.ClientEmail,
		Source:         domain.MissionSourceChat,
	})

	return c.JSON(http.StatusOK, domain.LegacySubmitMissionResponse{
		Success: res.Accepted,
		Message: res.Message,
	})
}

// SubmitForm records a mission entered by hand.
// POST /form
func (h *Handler) SubmitForm(c echo.Context) error {
	price, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(c.FormValue("price")), ",", "."), 64)
	if err != nil {
		price = 0
	}

	res := h.service.ConfirmDraft(c.Request().Context(), domain.ConfirmDraftRequest{
		Service:     c.FormValue("service"),
		Description: c.FormValue("description"),
		Price:       price,
		ClientEmail: c.FormValue("email"),
		Source:      domain.MissionSourceForm,
	})

	if res.Reference == "" {
		return c.String(http.StatusOK, "Erreur lors de la création de la mission : "+res.Message)
	}
	if !res.Accepted {
		return c.String(http.StatusOK, res.Message)
	}
	return c.String(http.StatusOK, "Mission créée avec succès ! Référence : "+res.Reference)
}

// conversationID returns the browser's conversation, issuing a new identity
// cookie when there is none.
func conversationID(c echo.Context) string {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := service.NewConversationID()
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
