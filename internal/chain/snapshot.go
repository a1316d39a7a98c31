package chain

import (
	"context"
	"log/slog"

	"github.com/mkdior/blocklab/internal/funds"
	"github.com/mkdior/blocklab/internal/store"
)

// BalanceSnapshotter returns an AfterStep hook that writes the current
// free/reserved balances of every known account through the repository.
// Write-behind only: the deterministic core never reads these rows back, so
// persistence failures are logged and skipped.
func BalanceSnapshotter(ledger *funds.MemoryLedger, accounts store.AccountRepository, logger *slog.Logger) func(ctx context.Context, height uint64) {
	return func(ctx context.Context, height uint64) {
		for _, addr := range ledger.Accounts() {
			b := ledger.Snapshot(addr)
			acc := &store.Account{
				Address:  addr,
				Free:     b.Free,
				Reserved: b.Reserved,
			}
			if err := accounts.Upsert(ctx, acc); err != nil {
				logger.ErrorContext(ctx, "failed to persist balance snapshot",
					slog.String("address", addr),
					slog.Uint64("height", height),
					slog.Any("error", err),
				)
			}
		}
	}
}
