package vault

import (
	"context"
	"sync"
	"time"
)

// Snapshot is the persisted vault state.
type Snapshot struct {
	Initialized bool
	Roles       map[Identity]Role
	// Deadline is nil while the clock is idle.
	Deadline *time.Time
}

// StateStore persists the role registry and liquidation clock. Writes must be
// durable before they return; the vault applies a change in memory only
// after the store accepted it.
type StateStore interface {
	// Initialize stores seed when no state exists yet and reports whether it did.
	Initialize(ctx context.Context, seed Snapshot) (bool, error)
	Load(ctx context.Context) (Snapshot, error)
	SaveRole(ctx context.Context, id Identity, role Role) error
	SaveDeadline(ctx context.Context, deadline *time.Time) error
}

// MemoryStore is a process-local StateStore.
type MemoryStore struct {
	mu    sync.Mutex
	state Snapshot
	// FailWrites makes every write return the given error.
	FailWrites error
}

// NewMemoryStore returns an uninitialised store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Initialize implements StateStore.
func (s *MemoryStore) Initialize(ctx context.Context, seed Snapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Initialized {
		return false, nil
	}
	if s.FailWrites != nil {
		return false, s.FailWrites
	}
	s.state = Snapshot{Initialized: true, Roles: copyRoles(seed.Roles), Deadline: copyDeadline(seed.Deadline)}
	return true, nil
}

// Load implements StateStore.
func (s *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Initialized: s.state.Initialized,
		Roles:       copyRoles(s.state.Roles),
		Deadline:    copyDeadline(s.state.Deadline),
	}, nil
}

// SaveRole implements StateStore.
func (s *MemoryStore) SaveRole(ctx context.Context, id Identity, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	if s.state.Roles == nil {
		s.state.Roles = make(map[Identity]Role)
	}
	if role == RoleNone {
		delete(s.state.Roles, id)
		return nil
	}
	s.state.Roles[id] = role
	return nil
}

// SaveDeadline implements StateStore.
func (s *MemoryStore) SaveDeadline(ctx context.Context, deadline *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.state.Deadline = copyDeadline(deadline)
	return nil
}

func copyRoles(in map[Identity]Role) map[Identity]Role {
	out := make(map[Identity]Role, len(in))
	for id, role := range in {
		out[id] = role
	}
	return out
}

func copyDeadline(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	d := *in
	return &d
}

var _ StateStore = (*MemoryStore)(nil)
