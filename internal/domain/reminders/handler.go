package reminders

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebridge/carebridge/internal/platform/auth"
	"github.com/carebridge/carebridge/pkg/pagination"
)

// Handler provides HTTP handlers for the reminders domain.
type Handler struct {
	svc *Service
}

// NewHandler creates a new reminders domain handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers all reminder routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/reminders", h.Create)
	api.GET("/reminders", h.List)
	api.PATCH("/reminders/:id", h.Update)
	api.DELETE("/reminders/:id", h.Delete)
}

type reminderRequest struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Schedule string `json:"schedule"`
	Active   *bool  `json:"active"`
}

func (h *Handler) Create(c echo.Context) error {
	var req reminderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	rem, err := h.svc.Create(ctx, auth.UserIDFromContext(ctx), req.Title, req.Message, req.Schedule)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rem)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(ctx, auth.UserIDFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req reminderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	rem, err := h.svc.Update(ctx, auth.UserIDFromContext(ctx), id, req.Title, req.Message, req.Schedule, req.Active)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotOwner):
			return echo.NewHTTPError(http.StatusForbidden, "not the reminder's owner")
		case errors.Is(err, ErrReminderNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "reminder not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rem)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, auth.UserIDFromContext(ctx), id); err != nil {
		switch {
		case errors.Is(err, ErrNotOwner):
			return echo.NewHTTPError(http.StatusForbidden, "not the reminder's owner")
		case errors.Is(err, ErrReminderNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "reminder not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
