package custody

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/custody-vault/internal/vault"
)

// Ledger is the vault's asset adapter plus the inbound side.
type Ledger interface {
	vault.AssetAdapter
	Credit(ctx context.Context, deposit Deposit) (Balance, error)
	Balances(ctx context.Context) ([]Balance, error)
}

// MemoryLedger keeps pools in process. Used by tests and single-node runs
// without postgres.
type MemoryLedger struct {
	mu         sync.Mutex
	balances   map[vault.Asset]Balance
	references map[string]struct{}
	transfers  []TransferRecord
	now        func() time.Time

	// FailTransfers, when set, makes Transfer fail without moving funds.
	FailTransfers error
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[vault.Asset]Balance),
		references: make(map[string]struct{}),
		now:        time.Now,
	}
}

// BalanceOf implements vault.AssetAdapter.
func (l *MemoryLedger) BalanceOf(ctx context.Context, asset vault.Asset) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[asset].Amount, nil
}

// Transfer implements vault.AssetAdapter.
func (l *MemoryLedger) Transfer(ctx context.Context, asset vault.Asset, amount uint64, to vault.Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailTransfers != nil {
		return l.FailTransfers
	}
	bal := l.balances[asset]
	if amount > bal.Amount {
		return ErrInsufficientFunds
	}
	now := l.now().UTC()
	bal.Asset = asset
	bal.Amount -= amount
	bal.UpdatedAt = now
	l.balances[asset] = bal
	l.transfers = append(l.transfers, TransferRecord{ID: uuid.NewString(), Asset: asset, Amount: amount, To: to, At: now})
	return nil
}

// Credit implements Ledger.
func (l *MemoryLedger) Credit(ctx context.Context, deposit Deposit) (Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if deposit.Reference != "" {
		if _, seen := l.references[deposit.Reference]; seen {
			return Balance{}, ErrDuplicateDeposit
		}
	}
	bal := l.balances[deposit.Asset]
	if deposit.Amount > math.MaxUint64-bal.Amount {
		return Balance{}, ErrBalanceOverflow
	}
	bal.Asset = deposit.Asset
	bal.Amount += deposit.Amount
	bal.UpdatedAt = l.now().UTC()
	l.balances[deposit.Asset] = bal
	if deposit.Reference != "" {
		l.references[deposit.Reference] = struct{}{}
	}
	return bal, nil
}

// Balances implements Ledger. Native sorts first, then tokens by id.
func (l *MemoryLedger) Balances(ctx context.Context) ([]Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Balance, 0, len(l.balances))
	for _, bal := range l.balances {
		out = append(out, bal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset.Token < out[j].Asset.Token })
	return out, nil
}

// Transfers returns a copy of executed transfers in order.
func (l *MemoryLedger) Transfers() []TransferRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TransferRecord(nil), l.transfers...)
}

var _ Ledger = (*MemoryLedger)(nil)
