package records

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebridge/carebridge/internal/platform/auth"
	"github.com/carebridge/carebridge/pkg/pagination"
)

// Handler provides HTTP handlers for the records domain.
type Handler struct {
	svc *Service
}

// NewHandler creates a new records domain handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers all records routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/records", h.Create, auth.RequireRole("doctor"))
	api.GET("/records/:id", h.Get)
	api.GET("/patients/:patientID/records", h.ListByPatient)
	api.PATCH("/records/:id", h.Update, auth.RequireRole("doctor"))
	api.DELETE("/records/:id", h.Delete, auth.RequireRole("doctor"))
}

type createRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	rec, err := h.svc.Create(ctx, auth.UserIDFromContext(ctx), req.PatientID, req.Type, req.Title, req.Body)
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			return echo.NewHTTPError(http.StatusForbidden, "no appointment with this patient")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	rec, err := h.svc.Get(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), id)
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			return echo.NewHTTPError(http.StatusForbidden, "not authorized for this record")
		}
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), patientID, pg.Limit, pg.Offset)
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			return echo.NewHTTPError(http.StatusForbidden, "not authorized for this patient's records")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type updateRequest struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	rec, err := h.svc.Update(ctx, auth.UserIDFromContext(ctx), id, req.Type, req.Title, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotAuthorized):
			return echo.NewHTTPError(http.StatusForbidden, "only the authoring doctor may update this record")
		case errors.Is(err, ErrRecordNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "record not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, auth.UserIDFromContext(ctx), id); err != nil {
		switch {
		case errors.Is(err, ErrNotAuthorized):
			return echo.NewHTTPError(http.StatusForbidden, "only the authoring doctor may delete this record")
		case errors.Is(err, ErrRecordNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "record not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
