package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/custody-vault/internal/vault"
)

// DepositInput captures an inbound credit request.
type DepositInput struct {
	Asset     vault.Asset
	Amount    uint64
	From      string
	Reference string
}

// Service accepts deposits and reports pool balances. Withdrawals go
// through the vault, never through here.
type Service struct {
	ledger Ledger
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a custody service.
func NewService(ledger Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, logger: logger, now: time.Now}
}

// WithNow overrides the clock used for deposit timestamps.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Deposit credits the pool. Anyone may deposit; the depositor is recorded.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (Deposit, Balance, error) {
	if input.Amount == 0 {
		return Deposit{}, Balance{}, fmt.Errorf("%w: amount must be positive", ErrInvalidDeposit)
	}
	if strings.TrimSpace(input.From) == "" {
		return Deposit{}, Balance{}, fmt.Errorf("%w: depositor required", ErrInvalidDeposit)
	}
	deposit := Deposit{
		ID:        uuid.NewString(),
		Asset:     input.Asset,
		Amount:    input.Amount,
		From:      input.From,
		Reference: strings.TrimSpace(input.Reference),
		At:        s.now().UTC(),
	}
	bal, err := s.ledger.Credit(ctx, deposit)
	if err != nil {
		if !errors.Is(err, ErrDuplicateDeposit) && !errors.Is(err, ErrBalanceOverflow) {
			s.logger.Error("deposit failed", slog.String("asset", input.Asset.String()), slog.Any("error", err))
		}
		return Deposit{}, Balance{}, err
	}
	s.logger.Info("deposit credited",
		slog.String("deposit_id", deposit.ID),
		slog.String("asset", deposit.Asset.String()),
		slog.Uint64("amount", deposit.Amount),
		slog.String("from", deposit.From),
	)
	return deposit, bal, nil
}

// Balances lists every pool the ledger knows.
func (s *Service) Balances(ctx context.Context) ([]Balance, error) {
	return s.ledger.Balances(ctx)
}

// Balance reports one pool; unknown pools hold zero.
func (s *Service) Balance(ctx context.Context, asset vault.Asset) (Balance, error) {
	amount, err := s.ledger.BalanceOf(ctx, asset)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Asset: asset, Amount: amount}, nil
}
