package catalog

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	store Store
	log   logrus.FieldLogger
}

func NewHandler(store Store, log logrus.FieldLogger) *Handler {
	return &Handler{store: store, log: log}
}

// ListServices - GET /services
func (h *Handler) ListServices(c echo.Context) error {
	services, err := h.store.List(c.Request().Context())
	if err != nil {
		h.log.WithError(err).Error("list services")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "code": "internal"})
	}
	return c.JSON(http.StatusOK, services)
}

// GetService - GET /services/:id
func (h *Handler) GetService(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid service id", "code": "validation"})
	}
	svc, err := h.store.Get(c.Request().Context(), id)
	if errors.Is(err, ErrServiceNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error(), "code": "not_found"})
	}
	if err != nil {
		h.log.WithError(err).Error("get service")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "code": "internal"})
	}
	return c.JSON(http.StatusOK, svc)
}
