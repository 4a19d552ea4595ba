package booking

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbook/medbook/internal/platform/auth"
	"github.com/medbook/medbook/pkg/pagination"
)

type Handler struct {
	svc      *Service
	resolver *Resolver
}

func NewHandler(svc *Service, resolver *Resolver) *Handler {
	return &Handler{svc: svc, resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – any authenticated staff role plus patients
	readGroup := api.Group("", auth.RequireRole("admin", "staff", "doctor", "patient"))
	readGroup.GET("/doctors/:id/availability", h.GetAvailability)
	readGroup.GET("/doctors/:id/appointments", h.ListByDoctor)
	readGroup.GET("/patients/:id/appointments", h.ListByPatient)
	readGroup.GET("/appointments/:id", h.GetAppointment)

	// Write endpoints
	writeGroup := api.Group("", auth.RequireRole("admin", "staff", "patient"))
	writeGroup.POST("/appointments", h.BookAppointment)
	writeGroup.POST("/appointments/:id/reschedule", h.RescheduleAppointment)
	writeGroup.POST("/appointments/:id/cancel", h.CancelAppointment)

	// Status transitions are a staff concern
	staffGroup := api.Group("", auth.RequireRole("admin", "staff"))
	staffGroup.POST("/appointments/:id/confirm", h.ConfirmAppointment)
	staffGroup.POST("/appointments/:id/complete", h.CompleteAppointment)
	staffGroup.POST("/appointments/:id/no-show", h.MarkNoShow)
}

// GetAvailability returns per-day free ranges (and slots, when ?slot= is
// given) for a doctor between ?from and ?to (YYYY-MM-DD, inclusive).
func (h *Handler) GetAvailability(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	from, err := time.Parse("2006-01-02", c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
	}
	to, err := time.Parse("2006-01-02", c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
	}
	if to.Before(from) {
		return echo.NewHTTPError(http.StatusBadRequest, "to precedes from")
	}
	if to.Sub(from) > 62*24*time.Hour {
		return echo.NewHTTPError(http.StatusBadRequest, "date range too wide, maximum is 62 days")
	}

	var opts ResolveOptions
	if slot := c.QueryParam("slot"); slot != "" {
		opts.SlotDuration, err = time.ParseDuration(slot)
		if err != nil || opts.SlotDuration <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid slot duration")
		}
	} else if sid := c.QueryParam("service_id"); sid != "" {
		serviceID, err := uuid.Parse(sid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid service_id")
		}
		opts.SlotDuration, err = h.resolver.directory.ServiceDuration(c.Request().Context(), serviceID)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "service not found")
		}
	}
	if step := c.QueryParam("step"); step != "" {
		opts.SlotStep, err = time.ParseDuration(step)
		if err != nil || opts.SlotStep <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid slot step")
		}
	}

	days, err := h.resolver.Resolve(c.Request().Context(), doctorID, from, to, opts)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctor_id": doctorID,
		"days":      days,
	})
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.Book(c.Request().Context(), req)
	if err != nil {
		return appointmentError(c, err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.AppointmentID = id
	appt, err := h.svc.Reschedule(c.Request().Context(), req)
	if err != nil {
		return appointmentError(c, err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appt, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return appointmentError(c, err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ConfirmAppointment(c echo.Context) error {
	return h.transition(c, h.svc.Confirm)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	return h.transition(c, h.svc.Complete)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	return h.transition(c, h.svc.MarkNoShow)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appt, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return appointmentError(c, err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) transition(c echo.Context, op func(ctx context.Context, id uuid.UUID) (*Appointment, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appt, err := op(c.Request().Context(), id)
	if err != nil {
		return appointmentError(c, err)
	}
	return c.JSON(http.StatusOK, appt)
}

// appointmentError maps booking errors onto the HTTP surface: conflicts and
// repeat cancellations are 409 with the offending range, transient store
// failures are 503 with a Retry-After hint, unknown ids are 404, everything
// else is a 400 validation failure.
func appointmentError(c echo.Context, err error) error {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		body := map[string]interface{}{
			"error":  conflict.Error(),
			"reason": string(conflict.Reason),
		}
		if !conflict.Start.IsZero() {
			body["conflict"] = map[string]interface{}{
				"start": conflict.Start,
				"end":   conflict.End,
			}
		}
		return echo.NewHTTPError(http.StatusConflict, body)
	}
	switch {
	case errors.Is(err, ErrAlreadyCancelled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrTransient):
		c.Response().Header().Set("Retry-After", strconv.Itoa(1))
		he := echo.NewHTTPError(http.StatusServiceUnavailable, "booking conflict under load, retry the request")
		he.SetInternal(err)
		return he
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
