package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/custody-vault/internal/shared"
	"github.com/odyssey-erp/custody-vault/internal/vault"
)

// VaultDeps are the runtime collaborators of a vault process.
type VaultDeps struct {
	Config    *Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Assets    vault.AssetAdapter
	Observer  vault.Observer
	Recorders []vault.Recorder
}

// NewVault builds a vault over postgres state with a redis lock, seeded from
// the configured roster when the database is empty.
func NewVault(ctx context.Context, deps VaultDeps) (*vault.Vault, error) {
	roster, err := deps.Config.Roster()
	if err != nil {
		return nil, err
	}
	full, partial, liquidate := roster.Identities()
	params := vault.Params{
		Full:      full,
		Partial:   partial,
		Liquidate: liquidate,
		Delay:     deps.Config.LiquidationDelay,
		Assets:    deps.Assets,
		LockKey:   shared.VaultLockKey("state"),
		Recorders: deps.Recorders,
		Observer:  deps.Observer,
		Logger:    deps.Logger,
	}
	if deps.Pool != nil {
		params.Store = vault.NewPGStore(deps.Pool)
		params.Recorders = append(params.Recorders, vault.NewAuditRecorder(shared.NewAuditLogger(deps.Pool)))
	}
	if deps.Redis != nil {
		params.Locker = shared.NewRedisLocker(deps.Redis, deps.Config.LockTTL, deps.Config.LockWait)
	}
	return vault.New(ctx, params)
}
