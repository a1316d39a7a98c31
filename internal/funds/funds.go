// Package funds defines the balance ledger the auction engine draws escrow
// from. The engine only consumes the Ledger interface; MemoryLedger is the
// deterministic implementation used in-process.
package funds

import (
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Errors returned by ledger operations.
var (
	ErrInsufficientFunds = errors.New("insufficient free balance")
	ErrUnknownAccount    = errors.New("unknown account")
)

// Balance is a free/reserved pair for one account.
type Balance struct {
	Free     decimal.Decimal
	Reserved decimal.Decimal
}

// Ledger is the balance collaborator consumed by the escrow adapter.
// Unreserve returns the overdraft: the part of the requested amount that was
// not actually held. A correct caller always sees a zero overdraft.
type Ledger interface {
	FreeBalance(account string) decimal.Decimal
	ReservedBalance(account string) decimal.Decimal
	Reserve(account string, amount decimal.Decimal) error
	Unreserve(account string, amount decimal.Decimal) decimal.Decimal
	TransferFree(from, to string, amount decimal.Decimal) error
	Mint(account string, amount decimal.Decimal) error
}

// MemoryLedger is an in-memory Ledger. It is safe for concurrent reads but
// assumes the single-writer discipline of the engine for mutations.
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]Balance
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]Balance)}
}

// NewMemoryLedgerWithBalances seeds free balances, for genesis and tests.
func NewMemoryLedgerWithBalances(free map[string]decimal.Decimal) *MemoryLedger {
	l := NewMemoryLedger()
	for acc, amt := range free {
		l.balances[acc] = Balance{Free: amt}
	}
	return l
}

// FreeBalance returns the spendable balance of account.
func (l *MemoryLedger) FreeBalance(account string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account].Free
}

// ReservedBalance returns the held balance of account.
func (l *MemoryLedger) ReservedBalance(account string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account].Reserved
}

// Reserve moves amount from free to reserved.
func (l *MemoryLedger) Reserve(account string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balances[account]
	if b.Free.LessThan(amount) {
		return ErrInsufficientFunds
	}
	b.Free = b.Free.Sub(amount)
	b.Reserved = b.Reserved.Add(amount)
	l.balances[account] = b
	return nil
}

// Unreserve moves up to amount from reserved back to free and returns the
// shortfall when less than amount was held.
func (l *MemoryLedger) Unreserve(account string, amount decimal.Decimal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balances[account]
	released := amount
	overdraft := decimal.Zero
	if b.Reserved.LessThan(amount) {
		released = b.Reserved
		overdraft = amount.Sub(b.Reserved)
	}
	b.Reserved = b.Reserved.Sub(released)
	b.Free = b.Free.Add(released)
	l.balances[account] = b
	return overdraft
}

// TransferFree moves amount between free balances.
func (l *MemoryLedger) TransferFree(from, to string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fb := l.balances[from]
	if fb.Free.LessThan(amount) {
		return ErrInsufficientFunds
	}
	fb.Free = fb.Free.Sub(amount)
	l.balances[from] = fb

	tb := l.balances[to]
	tb.Free = tb.Free.Add(amount)
	l.balances[to] = tb
	return nil
}

// Mint issues new funds into account's free balance.
func (l *MemoryLedger) Mint(account string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balances[account]
	b.Free = b.Free.Add(amount)
	l.balances[account] = b
	return nil
}

// Accounts returns all known account ids in deterministic order.
func (l *MemoryLedger) Accounts() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.balances))
	for id := range l.balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of account's balance pair.
func (l *MemoryLedger) Snapshot(account string) Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}
