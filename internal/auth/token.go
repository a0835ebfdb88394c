package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const DefaultTokenTTL = 72 * time.Hour

// IssueToken signs an HS256 token for id.
func IssueToken(secret string, id Identity, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	if !ValidRole(id.Role) {
		return "", errors.New("invalid role")
	}
	claims := jwt.MapClaims{
		"user_id": id.UserID.String(),
		"email":   id.Contact,
		"role":    id.Role,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
