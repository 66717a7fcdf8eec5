package custody

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/custody-vault/internal/platform/db"
	"github.com/odyssey-erp/custody-vault/internal/vault"
)

// Balances are NUMERIC(20,0) in postgres; they cross the wire as text so the
// full uint64 range survives.

// PGLedger stores pools in custody_balances with audit rows in
// custody_deposits and custody_transfers.
type PGLedger struct {
	pool *pgxpool.Pool
}

// NewPGLedger constructs a PGLedger backed by pool.
func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

// BalanceOf implements vault.AssetAdapter.
func (l *PGLedger) BalanceOf(ctx context.Context, asset vault.Asset) (uint64, error) {
	var raw string
	err := l.pool.QueryRow(ctx, `SELECT balance::text FROM custody_balances WHERE token = $1`, string(asset.Token)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("select custody_balances: %w", err)
	}
	return parseAmount(raw)
}

// Transfer implements vault.AssetAdapter. The debit and its audit row
// commit together or not at all.
func (l *PGLedger) Transfer(ctx context.Context, asset vault.Asset, amount uint64, to vault.Identity) error {
	return db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE custody_balances
			SET balance = balance - $2::text::numeric, updated_at = NOW()
			WHERE token = $1 AND balance >= $2::text::numeric`, string(asset.Token), formatAmount(amount))
		if err != nil {
			return fmt.Errorf("debit custody_balances: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientFunds
		}
		_, err = tx.Exec(ctx, `INSERT INTO custody_transfers (id, token, amount, recipient, created_at)
			VALUES ($1, $2, $3::text::numeric, $4, NOW())`, uuid.NewString(), string(asset.Token), formatAmount(amount), string(to))
		if err != nil {
			return fmt.Errorf("insert custody_transfers: %w", err)
		}
		return nil
	})
}

// Credit implements Ledger.
func (l *PGLedger) Credit(ctx context.Context, deposit Deposit) (Balance, error) {
	var bal Balance
	err := db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		var reference *string
		if deposit.Reference != "" {
			reference = &deposit.Reference
		}
		_, err := tx.Exec(ctx, `INSERT INTO custody_deposits (id, token, amount, depositor, reference, created_at)
			VALUES ($1, $2, $3::text::numeric, $4, $5, $6)`,
			deposit.ID, string(deposit.Asset.Token), formatAmount(deposit.Amount), deposit.From, reference, deposit.At.UTC())
		if err != nil {
			return fmt.Errorf("insert custody_deposits: %w", err)
		}
		var (
			raw     string
			updated time.Time
		)
		err = tx.QueryRow(ctx, `INSERT INTO custody_balances (token, balance, updated_at)
			VALUES ($1, $2::text::numeric, NOW())
			ON CONFLICT (token) DO UPDATE SET balance = custody_balances.balance + EXCLUDED.balance, updated_at = NOW()
			RETURNING balance::text, updated_at`, string(deposit.Asset.Token), formatAmount(deposit.Amount)).Scan(&raw, &updated)
		if err != nil {
			return fmt.Errorf("credit custody_balances: %w", err)
		}
		amount, err := parseAmount(raw)
		if err != nil {
			return err
		}
		bal = Balance{Asset: deposit.Asset, Amount: amount, UpdatedAt: updated.UTC()}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Balance{}, ErrDuplicateDeposit
			case "23514":
				return Balance{}, ErrBalanceOverflow
			}
		}
		return Balance{}, err
	}
	return bal, nil
}

// Balances implements Ledger.
func (l *PGLedger) Balances(ctx context.Context) ([]Balance, error) {
	rows, err := l.pool.Query(ctx, `SELECT token, balance::text, updated_at FROM custody_balances ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("select custody_balances: %w", err)
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var (
			token   string
			raw     string
			updated time.Time
		)
		if err := rows.Scan(&token, &raw, &updated); err != nil {
			return nil, err
		}
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Balance{Asset: vault.TokenAsset(vault.Identity(token)), Amount: amount, UpdatedAt: updated.UTC()})
	}
	return out, rows.Err()
}

func formatAmount(amount uint64) string {
	return strconv.FormatUint(amount, 10)
}

func parseAmount(raw string) (uint64, error) {
	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("custody: stored balance %q: %w", raw, err)
	}
	return amount, nil
}

var _ Ledger = (*PGLedger)(nil)
