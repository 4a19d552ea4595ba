package schedule

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbook/medbook/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Schedule management is staff-only; patients never edit working hours.
	staff := api.Group("", auth.RequireRole("admin", "staff"))
	staff.GET("/doctors/:id/schedule", h.GetWeeklyTemplate)
	staff.PUT("/doctors/:id/schedule", h.ReplaceWeeklyTemplate)
	staff.GET("/doctors/:id/exceptions", h.ListExceptions)
	staff.POST("/doctors/:id/exceptions", h.CreateException)
	staff.DELETE("/exceptions/:id", h.DeleteException)
}

func (h *Handler) GetWeeklyTemplate(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	entries, err := h.svc.ListWeekly(c.Request().Context(), doctorID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ReplaceWeeklyTemplate(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}

	var entries []*WeeklyEntry
	if err := c.Bind(&entries); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.svc.ReplaceWeeklyTemplate(c.Request().Context(), doctorID, entries); err != nil {
		return scheduleEditError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ListExceptions(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}

	from, to, err := parseDateRange(c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	items, err := h.svc.ListExceptions(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateException(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}

	var exc Exception
	if err := c.Bind(&exc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	exc.DoctorID = doctorID

	if err := h.svc.CreateException(c.Request().Context(), &exc); err != nil {
		return scheduleEditError(err)
	}
	return c.JSON(http.StatusCreated, exc)
}

func (h *Handler) DeleteException(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteException(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "exception not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func scheduleEditError(err error) error {
	var conflict *ErrAppointmentsConflict
	if errors.As(err, &conflict) {
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"error":        conflict.Error(),
			"appointments": conflict.Appointments,
		})
	}
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func parseDateRange(startStr, endStr string) (time.Time, time.Time, error) {
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, errors.New("start and end query parameters are required")
	}
	from, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid start date format (want YYYY-MM-DD)")
	}
	to, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid end date format (want YYYY-MM-DD)")
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("end date precedes start date")
	}
	return from, to, nil
}
