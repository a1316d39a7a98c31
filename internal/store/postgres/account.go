package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mkdior/blocklab/internal/clock"
	"github.com/mkdior/blocklab/internal/store"
)

// AccountRepo implements store.AccountRepository with sqlx.
type AccountRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewAccountRepo returns a new AccountRepo.
func NewAccountRepo(db *sqlx.DB, clk clock.Clock) *AccountRepo {
	return &AccountRepo{db: db, clk: clk}
}

func (r *AccountRepo) Upsert(ctx context.Context, a *store.Account) error {
	query := `INSERT INTO accounts (address, free, reserved, updated_at)
	           VALUES ($1, $2, $3, $4)
	           ON CONFLICT (address)
	           DO UPDATE SET free = $2, reserved = $3, updated_at = $4
	           RETURNING id`
	a.UpdatedAt = r.clk.Now().UTC()
	return r.db.QueryRowContext(ctx, query, a.Address, a.Free, a.Reserved, a.UpdatedAt).Scan(&a.ID)
}

func (r *AccountRepo) GetByAddress(ctx context.Context, address string) (*store.Account, error) {
	var a store.Account
	err := r.db.GetContext(ctx, &a, `SELECT * FROM accounts WHERE address = $1`, address)
	if err != nil {
		return nil, fmt.Errorf("getting account by address: %w", err)
	}
	return &a, nil
}

func (r *AccountRepo) List(ctx context.Context) ([]store.Account, error) {
	var accounts []store.Account
	err := r.db.SelectContext(ctx, &accounts, `SELECT * FROM accounts ORDER BY address ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}
