package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/custody-vault/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByPrincipal(ctx context.Context, principal string) (*Credential, error)
	SaveCredential(ctx context.Context, principal, secretHash string) error
	Deactivate(ctx context.Context, principal string) error
	TouchLastUsed(ctx context.Context, principal string, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByPrincipal fetches a credential by principal.
func (r *PGRepository) FindByPrincipal(ctx context.Context, principal string) (*Credential, error) {
	var (
		cred     Credential
		created  pgtype.Timestamptz
		lastUsed pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, `SELECT principal, secret_hash, is_active, created_at, last_used_at
		FROM vault_credentials WHERE principal = $1`, principal).
		Scan(&cred.Principal, &cred.SecretHash, &cred.IsActive, &created, &lastUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	cred.CreatedAt = created.Time
	if lastUsed.Valid {
		t := lastUsed.Time
		cred.LastUsedAt = &t
	}
	return &cred, nil
}

// SaveCredential inserts or rotates the secret for principal.
func (r *PGRepository) SaveCredential(ctx context.Context, principal, secretHash string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO vault_credentials (principal, secret_hash, is_active, created_at)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (principal) DO UPDATE SET secret_hash = EXCLUDED.secret_hash, is_active = TRUE`, principal, secretHash)
	return err
}

// Deactivate disables the principal's key without deleting history.
func (r *PGRepository) Deactivate(ctx context.Context, principal string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE vault_credentials SET is_active = FALSE WHERE principal = $1`, principal)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TouchLastUsed records the latest successful authentication.
func (r *PGRepository) TouchLastUsed(ctx context.Context, principal string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE vault_credentials SET last_used_at = $2 WHERE principal = $1`, principal,
		pgtype.Timestamptz{Time: at.UTC(), Valid: true})
	return err
}

var _ Repository = (*PGRepository)(nil)
