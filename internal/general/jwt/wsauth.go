package jwt

import (
	"errors"
	"strings"

	"trip-dispatch/internal/domain/user"
)

var ErrBadTokenWrap = errors.New("token must be 'Bearer <token>' or a raw JWT")

// ValidateIdentifyToken validates the token carried in a realtime identify
// payload and enforces RBAC. Accepts "Bearer <jwt>" wrapping or a bare token.
func ValidateIdentifyToken(token string, mgr *Manager, allowedRoles ...user.Role) (*Claims, error) {
	raw := strings.TrimSpace(token)
	if parts := strings.SplitN(raw, " ", 2); len(parts) == 2 {
		if !strings.EqualFold(parts[0], "Bearer") {
			return nil, ErrBadTokenWrap
		}
		raw = strings.TrimSpace(parts[1])
	}
	if raw == "" {
		return nil, ErrEmptyToken
	}

	// parse and validate token
	_, claims, err := mgr.ParseAndValidate(raw)
	if err != nil {
		return nil, err
	}

	// enforce role-based access control (RBAC)
	if err := RoleAllowed(claims, allowedRoles...); err != nil {
		return nil, err
	}

	return claims, nil
}
