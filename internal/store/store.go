package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Account is a persisted snapshot of one funds-ledger balance pair. The
// deterministic core never reads these rows back; they exist for operators
// and the query surface.
type Account struct {
	ID        string          `db:"id"`
	Address   string          `db:"address"`
	Free      decimal.Decimal `db:"free"`
	Reserved  decimal.Decimal `db:"reserved"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// AccountRepository defines balance snapshot persistence.
type AccountRepository interface {
	Upsert(ctx context.Context, a *Account) error
	GetByAddress(ctx context.Context, address string) (*Account, error)
	List(ctx context.Context) ([]Account, error)
}
