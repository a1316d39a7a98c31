// Package escrow wraps the funds ledger with the guarded reserve, unreserve
// and transfer primitives the bid pipeline relies on.
package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mkdior/blocklab/internal/event"
	"github.com/mkdior/blocklab/internal/funds"
)

// Errors returned by escrow operations.
var (
	// ErrReserveFailed means the account's free balance does not cover the
	// requested hold. Expected and surfaced to callers.
	ErrReserveFailed = errors.New("escrow reserve failed")
	// ErrOverdraft means held funds were below the amount a transfer tried
	// to release. Indicates corrupted accounting; the transfer is aborted.
	ErrOverdraft = errors.New("escrow overdraft")
	// ErrMintingFailed means overdraft compensation during unreserve failed.
	ErrMintingFailed = errors.New("minting compensation failed")
)

// Adapter guards a funds.Ledger. Unreserve self-heals overdrafts by minting
// so refund paths never block; Transfer rejects them so payouts never draw
// on an under-collateralized hold.
type Adapter struct {
	ledger funds.Ledger
	events event.Store
	logger *slog.Logger
	height func() uint64
}

// NewAdapter returns an Adapter. height supplies the current step for
// emitted signals.
func NewAdapter(ledger funds.Ledger, events event.Store, logger *slog.Logger, height func() uint64) *Adapter {
	return &Adapter{ledger: ledger, events: events, logger: logger, height: height}
}

// Ledger exposes the wrapped ledger for balance queries.
func (a *Adapter) Ledger() funds.Ledger { return a.ledger }

// Reserve moves amount from account's free balance into held.
func (a *Adapter) Reserve(ctx context.Context, account string, amount decimal.Decimal) error {
	if a.ledger.FreeBalance(account).LessThan(amount) {
		return fmt.Errorf("%w: account %s holds less than %s free", ErrReserveFailed, account, amount)
	}
	if err := a.ledger.Reserve(account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrReserveFailed, err)
	}

	a.emit(ctx, event.FundsLocked, account, event.FundsData{
		Account: account,
		Amount:  amount.String(),
		Height:  a.height(),
	})
	return nil
}

// Unreserve releases amount from account's held balance back to free. A
// shortfall is compensated by minting and logged as an anomaly; refunds must
// not block the pipeline.
func (a *Adapter) Unreserve(ctx context.Context, account string, amount decimal.Decimal) error {
	overdraft := a.ledger.Unreserve(account, amount)
	if overdraft.IsPositive() {
		if err := a.ledger.Mint(account, overdraft); err != nil {
			return fmt.Errorf("%w: %v", ErrMintingFailed, err)
		}
		a.logger.ErrorContext(ctx, "overdraft detected during unreserve, compensated by mint",
			slog.String("account", account),
			slog.String("requested", amount.String()),
			slog.String("overdraft", overdraft.String()),
		)
	}

	a.emit(ctx, event.FundsUnlocked, account, event.FundsData{
		Account: account,
		Amount:  amount.String(),
		Height:  a.height(),
	})
	return nil
}

// Transfer releases amount from from's held balance and pays it to to's free
// balance. Any overdraft aborts the whole transfer.
func (a *Adapter) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	overdraft := a.ledger.Unreserve(from, amount)
	if overdraft.IsPositive() {
		a.logger.ErrorContext(ctx, "overdraft detected during transfer, aborting",
			slog.String("from", from),
			slog.String("to", to),
			slog.String("requested", amount.String()),
			slog.String("overdraft", overdraft.String()),
		)
		return fmt.Errorf("%w: held balance of %s short by %s", ErrOverdraft, from, overdraft)
	}
	if err := a.ledger.TransferFree(from, to, amount); err != nil {
		return fmt.Errorf("transferring released funds: %w", err)
	}

	a.emit(ctx, event.FundsTransferred, from, event.FundsData{
		Account: from,
		To:      to,
		Amount:  amount.String(),
		Height:  a.height(),
	})
	return nil
}

func (a *Adapter) emit(ctx context.Context, t event.Type, aggregate string, data event.FundsData) {
	payload, _ := json.Marshal(data)
	if err := a.events.Append(ctx, event.Event{
		AggregateID: aggregate,
		Type:        t,
		Data:        payload,
	}); err != nil {
		a.logger.ErrorContext(ctx, "failed to persist funds event",
			slog.String("type", string(t)),
			slog.Any("error", err),
		)
	}
}
