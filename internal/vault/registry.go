package vault

import (
	"fmt"
	"sort"
)

// RoleRegistry maps principals to their role. Identities never assigned
// resolve to RoleNone.
type RoleRegistry struct {
	roles map[Identity]Role
}

// NewRoleRegistry seeds a registry from the three construction lists. Lists
// apply in order full, partial, liquidate so a principal named twice keeps
// the later role.
func NewRoleRegistry(full, partial, liquidate []Identity) *RoleRegistry {
	r := &RoleRegistry{roles: make(map[Identity]Role, len(full)+len(partial)+len(liquidate))}
	for _, seed := range []struct {
		ids  []Identity
		role Role
	}{
		{full, RoleFull},
		{partial, RolePartial},
		{liquidate, RoleLiquidate},
	} {
		for _, id := range seed.ids {
			if id.Valid() {
				r.assign(id, seed.role)
			}
		}
	}
	return r
}

// RoleOf returns the role held by id.
func (r *RoleRegistry) RoleOf(id Identity) Role {
	if r == nil {
		return RoleNone
	}
	return r.roles[id]
}

// AddUser assigns role to target on behalf of caller.
func (r *RoleRegistry) AddUser(caller, target Identity, role Role) error {
	if err := r.checkAddUser(caller, target, role); err != nil {
		return err
	}
	r.assign(target, role)
	return nil
}

// checkAddUser validates an assignment without applying it.
func (r *RoleRegistry) checkAddUser(caller, target Identity, role Role) error {
	callerRole := r.RoleOf(caller)
	if !callerRole.Administers() {
		return fmt.Errorf("%w: %s cannot assign roles", ErrUnauthorized, callerRole)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidRole, uint8(role))
	}
	if !target.Valid() {
		return fmt.Errorf("%w: empty target", ErrInvalidIdentity)
	}
	return nil
}

func (r *RoleRegistry) assign(id Identity, role Role) {
	if role == RoleNone {
		delete(r.roles, id)
		return
	}
	r.roles[id] = role
}

// Entries returns a copy of every enrolled principal.
func (r *RoleRegistry) Entries() map[Identity]Role {
	out := make(map[Identity]Role, len(r.roles))
	for id, role := range r.roles {
		out[id] = role
	}
	return out
}

// Principals lists enrolled identities holding role, sorted.
func (r *RoleRegistry) Principals(role Role) []Identity {
	var out []Identity
	for id, held := range r.roles {
		if held == role {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *RoleRegistry) replace(entries map[Identity]Role) {
	r.roles = make(map[Identity]Role, len(entries))
	for id, role := range entries {
		if role.Valid() && role != RoleNone {
			r.roles[id] = role
		}
	}
}
