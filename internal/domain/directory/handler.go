package directory

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbook/medbook/internal/platform/auth"
	"github.com/medbook/medbook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "staff", "doctor", "patient"))
	readGroup.GET("/doctors", h.ListDoctors)
	readGroup.GET("/doctors/:id", h.GetDoctor)
	readGroup.GET("/services", h.ListServiceTypes)
	readGroup.GET("/services/:id", h.GetServiceType)

	staffRead := api.Group("", auth.RequireRole("admin", "staff", "doctor"))
	staffRead.GET("/patients", h.ListPatients)
	staffRead.GET("/patients/:id", h.GetPatient)

	writeGroup := api.Group("", auth.RequireRole("admin", "staff"))
	writeGroup.POST("/doctors", h.CreateDoctor)
	writeGroup.PUT("/doctors/:id", h.UpdateDoctor)
	writeGroup.DELETE("/doctors/:id", h.DeleteDoctor)
	writeGroup.POST("/patients", h.CreatePatient)
	writeGroup.PUT("/patients/:id", h.UpdatePatient)
	writeGroup.DELETE("/patients/:id", h.DeletePatient)
	writeGroup.POST("/services", h.CreateServiceType)
	writeGroup.PUT("/services/:id", h.UpdateServiceType)
	writeGroup.DELETE("/services/:id", h.DeleteServiceType)
}

// -- Doctor Handlers --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.Active = true
	if err := h.svc.CreateDoctor(c.Request().Context(), &d); err != nil {
		return directoryError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return directoryError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = id
	if err := h.svc.UpdateDoctor(c.Request().Context(), &d); err != nil {
		return directoryError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	activeOnly := c.QueryParam("active") == "true"
	items, total, err := h.svc.ListDoctors(c.Request().Context(), activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return directoryError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.Active = true
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return directoryError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return directoryError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return directoryError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return directoryError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Service Type Handlers --

func (h *Handler) CreateServiceType(c echo.Context) error {
	var st ServiceType
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st.Active = true
	if err := h.svc.CreateServiceType(c.Request().Context(), &st); err != nil {
		return directoryError(err)
	}
	return c.JSON(http.StatusCreated, st)
}

func (h *Handler) GetServiceType(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	st, err := h.svc.GetServiceType(c.Request().Context(), id)
	if err != nil {
		return directoryError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) UpdateServiceType(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var st ServiceType
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st.ID = id
	if err := h.svc.UpdateServiceType(c.Request().Context(), &st); err != nil {
		return directoryError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListServiceTypes(c echo.Context) error {
	pg := pagination.FromContext(c)
	activeOnly := c.QueryParam("active") == "true"
	items, total, err := h.svc.ListServiceTypes(c.Request().Context(), activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteServiceType(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteServiceType(c.Request().Context(), id); err != nil {
		return directoryError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func directoryError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
