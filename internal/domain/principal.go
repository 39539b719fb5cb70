package domain

import "errors"

// Principal is the authenticated caller of the API
type Principal struct {
	Subject string
	Role    Role
}

// Role represents a caller's access level
type Role string

const (
	// RoleAdmin can run reconciliation and rebuild projections
	RoleAdmin Role = "admin"

	// RoleOperator can create wallets and move money
	RoleOperator Role = "operator"

	// RoleViewer can only read balances and history
	RoleViewer Role = "viewer"
)

var validRoles = map[Role]bool{
	RoleAdmin:    true,
	RoleOperator: true,
	RoleViewer:   true,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// Allows reports whether r grants at least the access of min.
func (r Role) Allows(min Role) bool {
	switch min {
	case RoleAdmin:
		return r == RoleAdmin
	case RoleOperator:
		return r == RoleAdmin || r == RoleOperator
	case RoleViewer:
		return r.IsValid()
	default:
		return false
	}
}

// Authentication errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInsufficientRole = errors.New("insufficient role for this operation")
)
