package requests

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/fieldhub/internal/auth"
	"github.com/sudo-init-do/fieldhub/internal/middleware"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Routes mounts the request endpoints on g. g must already run JWTMiddleware.
func (h *Handler) Routes(g *echo.Group) {
	g.POST("/requests", h.Create, middleware.RequireRoles(auth.RoleRequester))
	g.GET("/requests/me", h.ListMine, middleware.RequireRoles(auth.RoleRequester))
	g.GET("/requests", h.ListAll, middleware.RequireRoles(auth.RoleProvider, auth.RoleAdmin))
	g.GET("/requests/:id", h.Get)
	g.PATCH("/requests/:id", h.Edit, middleware.RequireRoles(auth.RoleRequester))
	g.POST("/requests/:id/cancel", h.Cancel, middleware.RequireRoles(auth.RoleRequester))
	g.POST("/requests/:id/accept", h.Accept, middleware.RequireRoles(auth.RoleProvider))
	g.PATCH("/requests/:id/confirm-arrived", h.ConfirmArrived, middleware.RequireRoles(auth.RoleRequester, auth.RoleProvider))
	g.PATCH("/requests/:id/confirm-completed", h.ConfirmCompleted, middleware.RequireRoles(auth.RoleRequester, auth.RoleProvider))
}

// AdminRoutes mounts the operator view. g must run JWTMiddleware and AdminGuard.
func (h *Handler) AdminRoutes(g *echo.Group) {
	g.GET("/requests", h.ListAll)
	g.GET("/requests/:id", h.Get)
}

type createRequest struct {
	ServiceID string   `json:"service_id" validate:"required,uuid"`
	Lat       *float64 `json:"lat" validate:"required"`
	Lng       *float64 `json:"lng" validate:"required"`
	Notes     string   `json:"notes" validate:"max=2000"`
	Provider  *string  `json:"provider"`
}

// editRequest is checked by the engine, after ownership and the edit window.
type editRequest struct {
	Notes  *string  `json:"notes"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
	Status *string  `json:"status"`
}

type confirmRequest struct {
	Role string `json:"role"`
}

// Create - POST /requests
func (h *Handler) Create(c echo.Context) error {
	caller, ok := middleware.IdentityFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body", "code": "validation"})
	}
	if err := validate(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "code": "validation"})
	}

	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		return fail(c, &ValidationError{Field: "service_id", Reason: "must be a uuid"})
	}
	if req.Lat == nil || req.Lng == nil {
		return fail(c, &ValidationError{Field: "location", Reason: "lat and lng are required"})
	}

	v, err := h.engine.Create(c.Request().Context(), caller, CreateInput{
		ServiceID: serviceID,
		Lat:       *req.Lat,
		Lng:       *req.Lng,
		Notes:     req.Notes,
		Provider:  req.Provider,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// ListMine - GET /requests/me?status=active
func (h *Handler) ListMine(c echo.Context) error {
	caller, ok := middleware.IdentityFrom(c)
	if !ok {
		return unauthorized(c)
	}
	views, err := h.engine.ListMine(c.Request().Context(), caller, c.QueryParam("status") == "active")
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

// ListAll - GET /requests?status=Pending
func (h *Handler) ListAll(c echo.Context) error {
	caller, ok := middleware.IdentityFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var statuses []Status
	switch raw := c.QueryParam("status"); raw {
	case "":
	case "active":
		statuses = ActiveStatuses
	default:
		st, err := ParseStatus(raw)
		if err != nil {
			return fail(c, err)
		}
		statuses = []Status{st}
	}
	views, err := h.engine.ListAll(c.Request().Context(), caller, statuses)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

// Get - GET /requests/:id
func (h *Handler) Get(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return fail(c, err)
	}
	v, err := h.engine.Get(c.Request().Context(), caller, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// Edit - PATCH /requests/:id
func (h *Handler) Edit(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return fail(c, err)
	}
	var req editRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body", "code": "validation"})
	}

	p := Patch{Notes: req.Notes, Lat: req.Lat, Lng: req.Lng, Status: req.Status}
	v, err := h.engine.Edit(c.Request().Context(), caller, id, p)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// Cancel - POST /requests/:id/cancel
func (h *Handler) Cancel(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return fail(c, err)
	}
	v, err := h.engine.Cancel(c.Request().Context(), caller, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// Accept - POST /requests/:id/accept
func (h *Handler) Accept(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return fail(c, err)
	}
	v, err := h.engine.Accept(c.Request().Context(), caller, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// ConfirmArrived - PATCH /requests/:id/confirm-arrived
func (h *Handler) ConfirmArrived(c echo.Context) error {
	return h.confirm(c, h.engine.ConfirmArrived)
}

// ConfirmCompleted - PATCH /requests/:id/confirm-completed
func (h *Handler) ConfirmCompleted(c echo.Context) error {
	return h.confirm(c, h.engine.ConfirmCompleted)
}

type confirmFunc func(ctx context.Context, caller auth.Identity, id uuid.UUID, role string) (View, error)

func (h *Handler) confirm(c echo.Context, fn confirmFunc) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return fail(c, err)
	}
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body", "code": "validation"})
	}
	v, err := fn(c.Request().Context(), caller, id, req.Role)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// errUnauthenticated means no identity reached the handler.
var errUnauthenticated = errors.New("unauthorized")

func callerAndID(c echo.Context) (auth.Identity, uuid.UUID, error) {
	caller, ok := middleware.IdentityFrom(c)
	if !ok {
		return auth.Identity{}, uuid.Nil, errUnauthenticated
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return auth.Identity{}, uuid.Nil, ErrNotFound
	}
	return caller, id, nil
}

func validate(c echo.Context, v any) error {
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(v)
}

func fail(c echo.Context, err error) error {
	if errors.Is(err, errUnauthenticated) {
		return unauthorized(c)
	}
	msg := err.Error()
	if Code(err) == "internal" {
		msg = "internal error"
	}
	return c.JSON(StatusCode(err), echo.Map{"error": msg, "code": Code(err)})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "unauthorized"})
}
