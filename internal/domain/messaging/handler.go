package messaging

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebridge/carebridge/internal/platform/auth"
)

// Handler provides the REST surface of the messaging domain. Live delivery
// happens over the websocket router; these endpoints are the durable-store
// view of the same conversations.
type Handler struct {
	svc *Service
}

// NewHandler creates a new messaging handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers all messaging routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/messages/:otherUserID", h.History)
	api.POST("/messages/:otherUserID", h.Send)
	api.PATCH("/messages/:messageID/read", h.MarkRead)
}

type historyResponse struct {
	ConversationID string     `json:"conversation_id"`
	Messages       []*Message `json:"messages"`
}

// History returns the full conversation with the other user. A pair with no
// relationship gets 403; an authorized pair that has never talked gets an
// empty list.
func (h *Handler) History(c echo.Context) error {
	otherID, err := uuid.Parse(c.Param("otherUserID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	ctx := c.Request().Context()
	callerID := auth.UserIDFromContext(ctx)
	msgs, err := h.svc.History(ctx, callerID, otherID)
	if err != nil {
		return historyError(err)
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	return c.JSON(http.StatusOK, historyResponse{
		ConversationID: ConversationID(callerID, otherID),
		Messages:       msgs,
	})
}

type sendRequest struct {
	Text          string `json:"text"`
	CorrelationID string `json:"correlation_id"`
}

func (h *Handler) Send(c echo.Context) error {
	otherID, err := uuid.Parse(c.Param("otherUserID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	m, err := h.svc.Send(ctx, auth.UserIDFromContext(ctx), otherID, req.Text, req.CorrelationID)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnauthorized):
			return echo.NewHTTPError(http.StatusForbidden, "no appointment links these users")
		case errors.Is(err, ErrUserNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		case errors.Is(err, ErrEmptyText), errors.Is(err, ErrInvalidParticipant):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) MarkRead(c echo.Context) error {
	messageID, err := uuid.Parse(c.Param("messageID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid message id")
	}
	ctx := c.Request().Context()
	m, err := h.svc.MarkRead(ctx, auth.UserIDFromContext(ctx), messageID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotReceiver):
			return echo.NewHTTPError(http.StatusForbidden, "only the receiver may mark a message read")
		case errors.Is(err, ErrMessageNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "message not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func historyError(err error) error {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, "no appointment links these users")
	case errors.Is(err, ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	case errors.Is(err, ErrInvalidParticipant):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
