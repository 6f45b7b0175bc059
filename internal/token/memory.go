package token

import (
	"context"
	"sync"
)

// MemoryLedger keeps balances in process memory.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]uint64
}

// NewMemoryLedger creates a ledger seeded with the given balances.
func NewMemoryLedger(initial map[string]uint64) *MemoryLedger {
	balances := make(map[string]uint64, len(initial))
	for account, amount := range initial {
		balances[account] = amount
	}
	return &MemoryLedger{balances: balances}
}

// Transfer moves amount from one account to another.
func (l *MemoryLedger) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if err := authorize(ctx, from); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amount {
		return ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	if l.balances[to]+amount < l.balances[to] {
		return ErrOverflow
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// Balance returns the account balance; unknown accounts hold zero.
func (l *MemoryLedger) Balance(_ context.Context, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

// Mint credits new units to account.
func (l *MemoryLedger) Mint(_ context.Context, account string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[account]+amount < l.balances[account] {
		return ErrOverflow
	}
	l.balances[account] += amount
	return nil
}
