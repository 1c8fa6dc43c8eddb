package auth

import (
	"errors"
	"net/http"
)

// Role represents an authorisation tier.
type Role string

const (
	// RoleOperator may read state and send commands.
	RoleOperator Role = "operator"

	// RoleViewer may only read.
	RoleViewer Role = "viewer"
)

// ValidRoles is the set of valid roles.
var ValidRoles = []Role{RoleOperator, RoleViewer}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// ParseRole converts a role name into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !IsValidRole(r) {
		return "", ErrInvalidRole
	}
	return r, nil
}

// CanMethod reports whether the role may issue an HTTP request with the
// given method. Viewers are limited to safe methods.
func (r Role) CanMethod(method string) bool {
	switch r {
	case RoleOperator:
		return true
	case RoleViewer:
		return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
	default:
		return false
	}
}

// Identity is an authenticated caller.
type Identity struct {
	Subject string
	Role    Role
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid  = errors.New("invalid token")
	ErrInvalidRole   = errors.New("invalid role: must be operator or viewer")
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrForbidden     = errors.New("insufficient permissions")
	ErrWeakSecret    = errors.New("jwt secret must be at least 32 characters")
)
