// Package auth carries the verified caller identity and issues tokens for it.
package auth

import (
	"github.com/google/uuid"
)

// Account roles carried in the token.
const (
	RoleRequester = "requester"
	RoleProvider  = "provider"
	RoleAdmin     = "admin"
)

// Identity is the verified caller. Contact is matched against provider emails.
type Identity struct {
	UserID  uuid.UUID
	Contact string
	Role    string
}

func (i Identity) IsAdmin() bool    { return i.Role == RoleAdmin }
func (i Identity) IsProvider() bool { return i.Role == RoleProvider }

// ValidRole reports whether role is one of the account roles.
func ValidRole(role string) bool {
	switch role {
	case RoleRequester, RoleProvider, RoleAdmin:
		return true
	}
	return false
}
