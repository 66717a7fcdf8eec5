package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/custody-vault/internal/platform/db"
)

// PGStore persists vault state in vault_state and vault_roles.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore backed by pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Initialize implements StateStore.
func (s *PGStore) Initialize(ctx context.Context, seed Snapshot) (bool, error) {
	if s == nil || s.pool == nil {
		return false, errors.New("vault: store not initialised")
	}
	seeded := false
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO vault_state (id, liquidation_deadline, initialized_at, updated_at)
			VALUES (1, $1, NOW(), NOW()) ON CONFLICT (id) DO NOTHING`, toTimestamptz(seed.Deadline))
		if err != nil {
			return fmt.Errorf("insert vault_state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		for id, role := range seed.Roles {
			if role == RoleNone {
				continue
			}
			if err := upsertRole(ctx, tx, id, role); err != nil {
				return err
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return seeded, nil
}

// Load implements StateStore.
func (s *PGStore) Load(ctx context.Context) (Snapshot, error) {
	var deadline pgtype.Timestamptz
	err := s.pool.QueryRow(ctx, `SELECT liquidation_deadline FROM vault_state WHERE id = 1`).Scan(&deadline)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{Roles: map[Identity]Role{}}, nil
		}
		return Snapshot{}, fmt.Errorf("select vault_state: %w", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT principal, role FROM vault_roles WHERE role <> 0`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("select vault_roles: %w", err)
	}
	defer rows.Close()
	roles := make(map[Identity]Role)
	for rows.Next() {
		var principal string
		var level int16
		if err := rows.Scan(&principal, &level); err != nil {
			return Snapshot{}, err
		}
		role := Role(level)
		if !role.Valid() {
			return Snapshot{}, fmt.Errorf("%w: stored level %d for %s", ErrInvalidRole, level, principal)
		}
		roles[Identity(principal)] = role
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Initialized: true, Roles: roles}
	if deadline.Valid {
		d := deadline.Time.UTC()
		snap.Deadline = &d
	}
	return snap, nil
}

// SaveRole implements StateStore.
func (s *PGStore) SaveRole(ctx context.Context, id Identity, role Role) error {
	if role == RoleNone {
		_, err := s.pool.Exec(ctx, `DELETE FROM vault_roles WHERE principal = $1`, string(id))
		return err
	}
	return upsertRole(ctx, s.pool, id, role)
}

// SaveDeadline implements StateStore.
func (s *PGStore) SaveDeadline(ctx context.Context, deadline *time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE vault_state SET liquidation_deadline = $1, updated_at = NOW() WHERE id = 1`, toTimestamptz(deadline))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("vault: state row missing")
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertRole(ctx context.Context, q execer, id Identity, role Role) error {
	_, err := q.Exec(ctx, `INSERT INTO vault_roles (principal, role, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (principal) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()`, string(id), int16(role))
	if err != nil {
		return fmt.Errorf("upsert vault_roles: %w", err)
	}
	return nil
}

func toTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

var _ StateStore = (*PGStore)(nil)
