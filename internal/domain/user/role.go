package user

import (
	"errors"
	"strings"
)

// Role is an actor role carried in JWT claims.
type Role string

const (
	RoleClient   Role = "CLIENT"
	RoleDriver   Role = "DRIVER"
	RoleDelivery Role = "DELIVERY"
	RoleAdmin    Role = "ADMIN"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes (uppercases+trims) and validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether role is one of the allowed role constants.
func (role Role) Valid() bool {
	switch role {
	case RoleClient, RoleDriver, RoleDelivery, RoleAdmin:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Role.
func (role Role) String() string {
	return string(role)
}

// Worker reports whether the role belongs to a fulfilling worker.
func (role Role) Worker() bool {
	return role == RoleDriver || role == RoleDelivery
}
