package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebridge/carebridge/internal/platform/auth"
	"github.com/carebridge/carebridge/pkg/pagination"
)

// Handler provides HTTP handlers for the scheduling domain.
type Handler struct {
	svc *Service
}

// NewHandler creates a new scheduling domain handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers all scheduling routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.Book, auth.RequireRole("patient"))
	api.GET("/appointments", h.List)
	api.GET("/appointments/:id", h.Get)
	api.PATCH("/appointments/:id/status", h.SetStatus, auth.RequireRole("doctor"))
}

type bookRequest struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Reason      string    `json:"reason"`
}

func (h *Handler) Book(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	a, err := h.svc.Book(ctx, auth.UserIDFromContext(ctx), req.DoctorID, req.ScheduledAt, req.Reason)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

// List returns the caller's own appointments, patient or doctor side.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	uid := auth.UserIDFromContext(ctx)

	var (
		items []*Appointment
		total int
		err   error
	)
	if auth.RoleFromContext(ctx) == "doctor" {
		items, total, err = h.svc.ListByDoctor(ctx, uid, pg.Limit, pg.Offset)
	} else {
		items, total, err = h.svc.ListByPatient(ctx, uid, pg.Limit, pg.Offset)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	a, err := h.svc.Get(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	uid := auth.UserIDFromContext(ctx)
	if a.PatientID != uid && a.DoctorID != uid && auth.RoleFromContext(ctx) != "admin" {
		return echo.NewHTTPError(http.StatusForbidden, "not a participant")
	}
	return c.JSON(http.StatusOK, a)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	a, err := h.svc.Get(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	if a.DoctorID != auth.UserIDFromContext(ctx) {
		return echo.NewHTTPError(http.StatusForbidden, "only the appointment's doctor may change its status")
	}
	if err := h.svc.SetStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.Status = req.Status
	return c.JSON(http.StatusOK, a)
}
