package postgres_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mkdior/blocklab/internal/clock"
	"github.com/mkdior/blocklab/internal/store"
	"github.com/mkdior/blocklab/internal/store/postgres"
)

func TestAccountRepo_UpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewAccountRepo(db, clock.Real{})
	ctx := context.Background()

	a := &store.Account{
		Address:  "carrier-c",
		Free:     decimal.RequireFromString("100.5"),
		Reserved: decimal.RequireFromString("25"),
	}

	if err := repo.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if a.ID == "" {
		t.Fatal("expected ID to be set after Upsert")
	}

	got, err := repo.GetByAddress(ctx, "carrier-c")
	if err != nil {
		t.Fatalf("GetByAddress: %v", err)
	}
	if !got.Free.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("Free = %s, want 100.5", got.Free)
	}
	if !got.Reserved.Equal(decimal.RequireFromString("25")) {
		t.Errorf("Reserved = %s, want 25", got.Reserved)
	}
}

func TestAccountRepo_UpsertOverwrites(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewAccountRepo(db, clock.Real{})
	ctx := context.Background()

	a := &store.Account{Address: "carrier-c", Free: decimal.NewFromInt(100)}
	if err := repo.Upsert(ctx, a); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	firstID := a.ID

	a.Free = decimal.NewFromInt(40)
	a.Reserved = decimal.NewFromInt(60)
	if err := repo.Upsert(ctx, a); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if a.ID != firstID {
		t.Errorf("ID changed on upsert: %s -> %s", firstID, a.ID)
	}

	got, err := repo.GetByAddress(ctx, "carrier-c")
	if err != nil {
		t.Fatalf("GetByAddress: %v", err)
	}
	if !got.Free.Equal(decimal.NewFromInt(40)) || !got.Reserved.Equal(decimal.NewFromInt(60)) {
		t.Errorf("balances = %s/%s, want 40/60", got.Free, got.Reserved)
	}
}

func TestAccountRepo_List(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewAccountRepo(db, clock.Real{})
	ctx := context.Background()

	for _, a := range []*store.Account{
		{Address: "liner-b", Free: decimal.NewFromInt(1)},
		{Address: "berth-op", Free: decimal.NewFromInt(2)},
	} {
		if err := repo.Upsert(ctx, a); err != nil {
			t.Fatalf("Upsert(%s): %v", a.Address, err)
		}
	}

	accounts, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("List returned %d accounts, want 2", len(accounts))
	}

	// Ordered by address ASC.
	if accounts[0].Address != "berth-op" {
		t.Errorf("first account = %q, want %q", accounts[0].Address, "berth-op")
	}
}

func TestAccountRepo_GetByAddress_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewAccountRepo(db, clock.Real{})

	_, err := repo.GetByAddress(context.Background(), "nonexistent")
	if err == nil {
		t.Fatal("expected error for nonexistent account")
	}
}
