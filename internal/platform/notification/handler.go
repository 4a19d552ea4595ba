package notification

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbook/medbook/internal/platform/auth"
)

// NotificationHandler is the staff-facing HTTP surface over the manager.
type NotificationHandler struct {
	manager *NotificationManager
}

func NewNotificationHandler(manager *NotificationManager) *NotificationHandler {
	return &NotificationHandler{manager: manager}
}

// RegisterRoutes mounts the notification endpoints. All of them are staff
// operations.
func (h *NotificationHandler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "staff"))
	g.POST("/notifications", h.Send)
	g.POST("/notifications/from-template", h.SendFromTemplate)
	g.GET("/notifications", h.ListByRecipient)
	g.GET("/notifications/stats", h.Stats)
	g.GET("/notifications/:id", h.Get)
	g.POST("/notifications/:id/retry", h.Retry)
}

type sendRequest struct {
	Channel   Channel `json:"channel"`
	Recipient string  `json:"recipient"`
	Subject   string  `json:"subject"`
	Body      string  `json:"body"`
}

// Send delivers a one-off message. The notification is returned with its
// delivery status even when delivery failed, so the caller gets the ID to
// retry with.
func (h *NotificationHandler) Send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Recipient == "" || req.Body == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "recipient and body are required")
	}
	if req.Channel != ChannelEmail && req.Channel != ChannelSMS {
		return echo.NewHTTPError(http.StatusBadRequest, "channel must be email or sms")
	}

	n, _ := h.manager.Send(c.Request().Context(), req.Channel, req.Recipient, req.Subject, req.Body)
	return c.JSON(http.StatusCreated, n)
}

type sendTemplateRequest struct {
	TemplateID string            `json:"template_id"`
	Recipient  string            `json:"recipient"`
	Data       map[string]string `json:"data"`
}

func (h *NotificationHandler) SendFromTemplate(c echo.Context) error {
	var req sendTemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Recipient == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "recipient is required")
	}

	n, err := h.manager.SendFromTemplate(c.Request().Context(), req.TemplateID, req.Data, req.Recipient)
	if n == nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *NotificationHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification id")
	}
	n, err := h.manager.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	return c.JSON(http.StatusOK, n)
}

func (h *NotificationHandler) ListByRecipient(c echo.Context) error {
	recipient := c.QueryParam("recipient")
	if recipient == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "recipient query parameter is required")
	}
	return c.JSON(http.StatusOK, h.manager.ListByRecipient(c.Request().Context(), recipient, 100))
}

func (h *NotificationHandler) Retry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification id")
	}
	n, err := h.manager.Retry(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	if n == nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, n)
}

func (h *NotificationHandler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stats(c.Request().Context()))
}
