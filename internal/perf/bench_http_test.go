package perf

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/odyssey-erp/custody-vault/internal/custody"
	"github.com/odyssey-erp/custody-vault/internal/vault"
)

const (
	fullUser  vault.Identity = "0xfull"
	liqUser   vault.Identity = "0xliquidate"
	recipient vault.Identity = "0xrecipient"
)

func newFundedVault(tb testing.TB, amount uint64) (*vault.Vault, *custody.MemoryLedger) {
	tb.Helper()
	ctx := context.Background()
	ledger := custody.NewMemoryLedger()
	if _, err := ledger.Credit(ctx, custody.Deposit{Asset: vault.Native, Amount: amount}); err != nil {
		tb.Fatalf("fund ledger: %v", err)
	}
	v, err := vault.New(ctx, vault.Params{
		Full:      []vault.Identity{fullUser},
		Liquidate: []vault.Identity{liqUser},
		Delay:     time.Hour,
		Assets:    ledger,
		Store:     vault.NewMemoryStore(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		tb.Fatalf("new vault: %v", err)
	}
	return v, ledger
}

func TestWithdrawLatencyTargets(t *testing.T) {
	ctx := context.Background()
	v, _ := newFundedVault(t, 1_000_000)

	scenarios := []struct {
		name      string
		run       func() error
		threshold time.Duration
	}{
		{
			name:      "normal",
			run:       func() error { return v.Withdraw(ctx, fullUser, 1, recipient) },
			threshold: 20 * time.Millisecond,
		},
		{
			name:      "status",
			run:       func() error { _, err := v.Status(ctx); return err },
			threshold: 10 * time.Millisecond,
		},
	}

	for _, scenario := range scenarios {
		samples := make([]time.Duration, 0, 200)
		for i := 0; i < 200; i++ {
			start := time.Now()
			if err := scenario.run(); err != nil {
				t.Fatalf("%s: unexpected error: %v", scenario.name, err)
			}
			samples = append(samples, time.Since(start))
		}
		p95 := percentile95(samples)
		if p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func BenchmarkWithdraw(b *testing.B) {
	ctx := context.Background()
	v, _ := newFundedVault(b, uint64(b.N)+1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := v.Withdraw(ctx, fullUser, 1, recipient); err != nil {
			b.Fatalf("withdraw: %v", err)
		}
	}
}

func BenchmarkWithdrawParallel(b *testing.B) {
	ctx := context.Background()
	v, _ := newFundedVault(b, 1<<40)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if err := v.Withdraw(ctx, fullUser, 1, recipient); err != nil {
				b.Errorf("withdraw: %v", err)
				return
			}
		}
	})
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
