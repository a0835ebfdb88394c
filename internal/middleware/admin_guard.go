package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/fieldhub/internal/auth"
)

// AdminGuard ensures only admins reach the wrapped routes.
func AdminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		role, ok := c.Get("role").(string)
		if !ok || role != auth.RoleAdmin {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "admin access only", "code": "forbidden"})
		}
		return next(c)
	}
}
