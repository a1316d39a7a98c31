package chain_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mkdior/blocklab/internal/chain"
	"github.com/mkdior/blocklab/internal/funds"
	"github.com/mkdior/blocklab/internal/store"
)

type mockAccountRepo struct {
	upserts map[string]store.Account
	err     error
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{upserts: make(map[string]store.Account)}
}

func (m *mockAccountRepo) Upsert(_ context.Context, a *store.Account) error {
	if m.err != nil {
		return m.err
	}
	m.upserts[a.Address] = *a
	return nil
}

func (m *mockAccountRepo) GetByAddress(_ context.Context, address string) (*store.Account, error) {
	a, ok := m.upserts[address]
	if !ok {
		return nil, fmt.Errorf("account not found")
	}
	return &a, nil
}

func (m *mockAccountRepo) List(_ context.Context) ([]store.Account, error) {
	out := make([]store.Account, 0, len(m.upserts))
	for _, a := range m.upserts {
		out = append(out, a)
	}
	return out, nil
}

func TestBalanceSnapshotter(t *testing.T) {
	bank := funds.NewMemoryLedgerWithBalances(map[string]decimal.Decimal{
		"carrier-c": decimal.NewFromInt(100),
		"berth-op":  decimal.NewFromInt(10),
	})
	_ = bank.Reserve("carrier-c", decimal.NewFromInt(40))

	repo := newMockAccountRepo()
	hook := chain.BalanceSnapshotter(bank, repo, slog.Default())

	hook(context.Background(), 7)

	if len(repo.upserts) != 2 {
		t.Fatalf("upserted %d accounts, want 2", len(repo.upserts))
	}
	c := repo.upserts["carrier-c"]
	if !c.Free.Equal(decimal.NewFromInt(60)) || !c.Reserved.Equal(decimal.NewFromInt(40)) {
		t.Errorf("carrier-c snapshot = %s/%s, want 60/40", c.Free, c.Reserved)
	}
}

func TestBalanceSnapshotter_PersistFailure(t *testing.T) {
	bank := funds.NewMemoryLedgerWithBalances(map[string]decimal.Decimal{
		"carrier-c": decimal.NewFromInt(100),
	})
	repo := newMockAccountRepo()
	repo.err = fmt.Errorf("db down")

	hook := chain.BalanceSnapshotter(bank, repo, slog.Default())

	// Write-behind only: persistence failures must not panic or propagate.
	hook(context.Background(), 1)
}
