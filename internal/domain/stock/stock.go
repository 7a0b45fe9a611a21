// Package stock defines the authoritative quantity-on-hand contract.
//
// The sale path may only lower stock through Ledger.TryDecrement, which must
// check and decrement atomically per product. Compensator.Increment exists so
// that the checkout engine can undo its own decrements after a failed commit;
// nothing else should depend on it.
package stock

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficient is returned by TryDecrement when the quantity on hand is
	// lower than requested. No mutation has happened.
	ErrInsufficient = errors.New("insufficient stock")
	// ErrUnknownProduct is returned when the ledger has no entry for a product.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrInvalidQuantity is returned for non-positive or too fine quantities.
	ErrInvalidQuantity = errors.New("invalid stock quantity")
)

// Ledger is the read and conditional-decrement side of stock.
type Ledger interface {
	// TryDecrement lowers the quantity of productID by qty only if the
	// current quantity is at least qty. It never waits for stock.
	TryDecrement(ctx context.Context, productID string, qty decimal.Decimal) error
	// Quantity returns the current quantity. The value is advisory and must
	// not be used for commit decisions.
	Quantity(ctx context.Context, productID string) (decimal.Decimal, error)
}

// Compensator returns stock taken by a decrement that has to be undone.
type Compensator interface {
	Increment(ctx context.Context, productID string, qty decimal.Decimal) error
}

// Store is a ledger that the checkout engine can also compensate.
type Store interface {
	Ledger
	Compensator
}

// CheckQuantity validates a mutation amount.
func CheckQuantity(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return errors.Wrapf(ErrInvalidQuantity, "quantity %s", qty)
	}
	return nil
}
