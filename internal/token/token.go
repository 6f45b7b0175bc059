// Package token settles payments against a fungible token ledger.
package token

import (
	"context"
	"errors"

	"github.com/goodtune/accesstime/internal/auth"
)

var (
	// ErrInsufficientFunds is returned when the payer cannot cover a transfer.
	ErrInsufficientFunds = errors.New("token: insufficient funds")

	// ErrUnauthorized is returned when the context is not authenticated as
	// the payer.
	ErrUnauthorized = errors.New("token: transfer not authorized by payer")

	// ErrOverflow is returned when a credit would exceed the largest
	// representable balance.
	ErrOverflow = errors.New("token: balance overflow")
)

// Ledger moves token units between accounts. Transfer must be authorized by
// the payer, whose principal the context carries.
type Ledger interface {
	Transfer(ctx context.Context, from, to string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)
}

// Minter can create new units. It is an operator tool and performs no
// authorization.
type Minter interface {
	Mint(ctx context.Context, account string, amount uint64) error
}

func authorize(ctx context.Context, from string) error {
	if err := auth.Require(ctx, from); err != nil {
		return ErrUnauthorized
	}
	return nil
}
