package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/fieldhub/internal/auth"
)

const identityKey = "identity"

// JWTMiddleware verifies the bearer token and stores the caller identity on the context.
// user_id and role are also set individually for RequireRoles and AdminGuard.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			const prefix = "Bearer "
			if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing or invalid Authorization header", "code": "unauthorized"})
			}

			id, err := parseToken(header[len(prefix):], key)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token", "code": "unauthorized"})
			}

			c.Set(identityKey, id)
			c.Set("user_id", id.UserID.String())
			c.Set("role", id.Role)
			return next(c)
		}
	}
}

func parseToken(raw string, key []byte) (auth.Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	})
	if err != nil || !token.Valid {
		return auth.Identity{}, errors.New("invalid token")
	}

	rawID, _ := claims["user_id"].(string)
	if rawID == "" {
		rawID, _ = claims["sub"].(string)
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return auth.Identity{}, errors.New("invalid user_id claim")
	}
	role, _ := claims["role"].(string)
	if !auth.ValidRole(role) {
		return auth.Identity{}, errors.New("invalid role claim")
	}
	email, _ := claims["email"].(string)

	return auth.Identity{UserID: userID, Contact: email, Role: role}, nil
}

// IdentityFrom returns the identity set by JWTMiddleware.
func IdentityFrom(c echo.Context) (auth.Identity, bool) {
	id, ok := c.Get(identityKey).(auth.Identity)
	return id, ok
}

// WithIdentity stores id on the context the way JWTMiddleware does.
func WithIdentity(c echo.Context, id auth.Identity) {
	c.Set(identityKey, id)
	c.Set("user_id", id.UserID.String())
	c.Set("role", id.Role)
}
