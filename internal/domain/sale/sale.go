// Package sale holds the committed sale record and the sales ledger contract.
package sale

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no sale has the requested reference.
	ErrNotFound = errors.New("sale not found")
	// ErrDuplicateReference is returned by Append when the reference is taken.
	ErrDuplicateReference = errors.New("duplicate sale reference")
	// ErrInconsistentTotals is returned by Validate when the stored totals
	// do not follow from the lines and discount.
	ErrInconsistentTotals = errors.New("inconsistent sale totals")
)

var hundred = decimal.NewFromInt(100)

// Line is the per-product snapshot stored with a sale.
type Line struct {
	ProductID    string
	Name         string
	Quantity     decimal.Decimal
	CostPrice    decimal.Decimal
	SellingPrice decimal.Decimal
}

// Revenue is the rounded selling amount of the line.
func (l Line) Revenue() decimal.Decimal {
	return l.Quantity.Mul(l.SellingPrice).Round(2)
}

// Cost is the rounded cost amount of the line.
func (l Line) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.CostPrice).Round(2)
}

// Sale is an immutable committed transaction.
type Sale struct {
	Reference       string
	Actor           string
	CreatedAt       time.Time
	Lines           []Line
	SubTotal        decimal.Decimal
	DiscountPercent decimal.Decimal
	FinalTotal      decimal.Decimal
	FinalCost       decimal.Decimal
}

// DiscountAmount is the money taken off the subtotal.
func (s *Sale) DiscountAmount() decimal.Decimal {
	return s.SubTotal.Sub(s.FinalTotal)
}

// Validate checks that the sale is well formed and that its totals are
// consistent with its lines.
func (s *Sale) Validate() error {
	if s.Reference == "" {
		return errors.New("reference required")
	}
	if s.Actor == "" {
		return errors.New("actor required")
	}
	if len(s.Lines) == 0 {
		return errors.New("lines required")
	}

	subtotal := decimal.Zero
	cost := decimal.Zero
	for _, l := range s.Lines {
		if !l.Quantity.IsPositive() {
			return errors.Errorf("line %s: quantity must be positive", l.ProductID)
		}
		subtotal = subtotal.Add(l.Revenue())
		cost = cost.Add(l.Cost())
	}

	factor := decimal.NewFromInt(1).Sub(s.DiscountPercent.Div(hundred))
	final := subtotal.Mul(factor).Round(2)
	switch {
	case !subtotal.Equal(s.SubTotal):
		return errors.Wrapf(ErrInconsistentTotals, "subtotal %s, lines sum to %s", s.SubTotal, subtotal)
	case !final.Equal(s.FinalTotal):
		return errors.Wrapf(ErrInconsistentTotals, "final total %s, expected %s", s.FinalTotal, final)
	case !cost.Equal(s.FinalCost):
		return errors.Wrapf(ErrInconsistentTotals, "final cost %s, lines sum to %s", s.FinalCost, cost)
	}
	return nil
}

// Repository is the append-only sales ledger.
type Repository interface {
	// Append stores a new sale. It returns ErrDuplicateReference if the
	// reference already exists.
	Append(ctx context.Context, s *Sale) error
	Get(ctx context.Context, reference string) (*Sale, error)
	// Delete removes a sale and returns what was removed.
	Delete(ctx context.Context, reference string) (*Sale, error)
	// ListBetween returns sales created in [start, end) ordered by creation time.
	ListBetween(ctx context.Context, start, end time.Time) ([]Sale, error)
}
