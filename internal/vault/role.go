package vault

import (
	"fmt"
	"strconv"
	"strings"
)

// Role is the privilege level held by a principal.
type Role uint8

const (
	RoleNone Role = iota
	RoleLiquidate
	RolePartial
	RoleFull
)

// Valid reports whether r is one of the four defined levels.
func (r Role) Valid() bool {
	switch r {
	case RoleNone, RoleLiquidate, RolePartial, RoleFull:
		return true
	default:
		return false
	}
}

// Administers reports whether r may enroll principals and cancel liquidation.
func (r Role) Administers() bool {
	switch r {
	case RolePartial, RoleFull:
		return true
	case RoleNone, RoleLiquidate:
		return false
	default:
		return false
	}
}

// Enrolled reports whether r is anything other than RoleNone.
func (r Role) Enrolled() bool {
	switch r {
	case RoleLiquidate, RolePartial, RoleFull:
		return true
	case RoleNone:
		return false
	default:
		return false
	}
}

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "NONE"
	case RoleLiquidate:
		return "LIQUIDATE"
	case RolePartial:
		return "PARTIAL"
	case RoleFull:
		return "FULL"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// ParseRole accepts a role name (any case) or its numeric level.
func ParseRole(raw string) (Role, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	switch value {
	case "NONE":
		return RoleNone, nil
	case "LIQUIDATE":
		return RoleLiquidate, nil
	case "PARTIAL":
		return RolePartial, nil
	case "FULL":
		return RoleFull, nil
	}
	level, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return RoleNone, fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
	role := Role(level)
	if !role.Valid() {
		return RoleNone, fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
	return role, nil
}

// MarshalText renders the role name.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText parses a role name or level.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}
