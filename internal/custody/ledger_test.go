package custody

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/custody-vault/internal/vault"
)

var usdc = vault.TokenAsset("0xusdc")

func TestMemoryLedgerCreditAndTransfer(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	bal, err := ledger.Credit(ctx, Deposit{Asset: vault.Native, Amount: 100})
	require.NoError(t, err)
	require.Equal(t, uint64(100), bal.Amount)

	require.NoError(t, ledger.Transfer(ctx, vault.Native, 40, "0xbob"))
	got, err := ledger.BalanceOf(ctx, vault.Native)
	require.NoError(t, err)
	require.Equal(t, uint64(60), got)

	require.ErrorIs(t, ledger.Transfer(ctx, vault.Native, 61, "0xbob"), ErrInsufficientFunds)
	transfers := ledger.Transfers()
	require.Len(t, transfers, 1)
	require.Equal(t, vault.Identity("0xbob"), transfers[0].To)
}

func TestMemoryLedgerPoolsAreIndependent(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	_, err := ledger.Credit(ctx, Deposit{Asset: usdc, Amount: 5})
	require.NoError(t, err)

	native, err := ledger.BalanceOf(ctx, vault.Native)
	require.NoError(t, err)
	require.Zero(t, native)
	require.ErrorIs(t, ledger.Transfer(ctx, vault.Native, 1, "0xbob"), ErrInsufficientFunds)
}

func TestMemoryLedgerRejectsOverflowAndDuplicates(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	_, err := ledger.Credit(ctx, Deposit{Asset: usdc, Amount: math.MaxUint64, Reference: "tx-1"})
	require.NoError(t, err)

	_, err = ledger.Credit(ctx, Deposit{Asset: usdc, Amount: 1})
	require.ErrorIs(t, err, ErrBalanceOverflow)
	_, err = ledger.Credit(ctx, Deposit{Asset: vault.Native, Amount: 1, Reference: "tx-1"})
	require.ErrorIs(t, err, ErrDuplicateDeposit)
}

func TestMemoryLedgerFailTransfersKeepsFunds(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	_, err := ledger.Credit(ctx, Deposit{Asset: vault.Native, Amount: 10})
	require.NoError(t, err)

	ledger.FailTransfers = errors.New("recipient rejected")
	require.Error(t, ledger.Transfer(ctx, vault.Native, 5, "0xbob"))
	bal, err := ledger.BalanceOf(ctx, vault.Native)
	require.NoError(t, err)
	require.Equal(t, uint64(10), bal)
}

func TestServiceDeposit(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	svc := NewService(ledger, nil)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return at })

	deposit, bal, err := svc.Deposit(ctx, DepositInput{Asset: usdc, Amount: 25, From: "0xalice", Reference: " wire-7 "})
	require.NoError(t, err)
	require.NotEmpty(t, deposit.ID)
	require.Equal(t, "wire-7", deposit.Reference)
	require.Equal(t, at, deposit.At)
	require.Equal(t, uint64(25), bal.Amount)

	_, _, err = svc.Deposit(ctx, DepositInput{Asset: usdc, Amount: 0, From: "0xalice"})
	require.ErrorIs(t, err, ErrInvalidDeposit)
	_, _, err = svc.Deposit(ctx, DepositInput{Asset: usdc, Amount: 1, From: " "})
	require.ErrorIs(t, err, ErrInvalidDeposit)

	balances, err := svc.Balances(ctx)
	require.NoError(t, err)
	require.Len(t, balances, 1)

	empty, err := svc.Balance(ctx, vault.Native)
	require.NoError(t, err)
	require.Zero(t, empty.Amount)
}

func TestLedgerBacksVaultWithdrawals(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	_, err := ledger.Credit(ctx, Deposit{Asset: vault.Native, Amount: 100})
	require.NoError(t, err)

	v, err := vault.New(ctx, vault.Params{
		Full:   []vault.Identity{"0xfull"},
		Delay:  time.Hour,
		Assets: ledger,
		Store:  vault.NewMemoryStore(),
	})
	require.NoError(t, err)

	require.NoError(t, v.Withdraw(ctx, "0xfull", 30, "0xbob"))
	require.ErrorIs(t, v.Withdraw(ctx, "0xfull", 71, "0xbob"), vault.ErrInsufficientBalance)

	ledger.FailTransfers = errors.New("recipient rejected")
	require.ErrorIs(t, v.Withdraw(ctx, "0xfull", 10, "0xbob"), vault.ErrTransferFailed)

	bal, err := ledger.BalanceOf(ctx, vault.Native)
	require.NoError(t, err)
	require.Equal(t, uint64(70), bal)
}
