package otelstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mkdior/blocklab/internal/clock"
	"github.com/mkdior/blocklab/internal/store"
)

// AccountRepo implements store.AccountRepository using database/sql.
type AccountRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewAccountRepo returns a new AccountRepo.
func NewAccountRepo(db *sql.DB, clk clock.Clock) *AccountRepo {
	return &AccountRepo{db: db, clock: clk}
}

func (r *AccountRepo) Upsert(ctx context.Context, a *store.Account) error {
	a.UpdatedAt = r.clock.Now().UTC()
	return r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (address, free, reserved, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (address)
		 DO UPDATE SET free = $2, reserved = $3, updated_at = $4
		 RETURNING id`,
		a.Address, a.Free, a.Reserved, a.UpdatedAt,
	).Scan(&a.ID)
}

func (r *AccountRepo) GetByAddress(ctx context.Context, address string) (*store.Account, error) {
	a := &store.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, address, free, reserved, updated_at
		 FROM accounts WHERE address = $1`, address,
	).Scan(&a.ID, &a.Address, &a.Free, &a.Reserved, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting account by address: %w", err)
	}
	return a, nil
}

func (r *AccountRepo) List(ctx context.Context) ([]store.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, address, free, reserved, updated_at FROM accounts ORDER BY address ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []store.Account
	for rows.Next() {
		var a store.Account
		if err := rows.Scan(&a.ID, &a.Address, &a.Free, &a.Reserved, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
