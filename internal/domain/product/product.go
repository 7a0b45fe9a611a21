package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Unit is the unit-of-sale kind of a product.
type Unit string

const (
	// UnitCount is sold in whole pieces.
	UnitCount Unit = "count"
	// UnitWeight is sold by weight and allows fractional quantities.
	UnitWeight Unit = "weight"
	// UnitLength is sold by length and allows fractional quantities.
	UnitLength Unit = "length"
)

// QuantityScale is the number of decimal places a fractional quantity may carry.
const QuantityScale = 3

// Valid reports whether u is a known unit kind.
func (u Unit) Valid() bool {
	switch u {
	case UnitCount, UnitWeight, UnitLength:
		return true
	default:
		return false
	}
}

// Accepts reports whether qty has a granularity the unit can be sold in.
// Count units need whole numbers; other units allow QuantityScale decimals.
func (u Unit) Accepts(qty decimal.Decimal) bool {
	if u == UnitCount || u == "" {
		return qty.IsInteger()
	}
	return qty.Shift(QuantityScale).IsInteger()
}

// Product is a catalog item as seen by the checkout engine.
type Product struct {
	ID           string
	Barcode      string
	Name         string
	Unit         Unit
	CostPrice    decimal.Decimal
	ListPrice    decimal.Decimal
	SellingPrice decimal.Decimal
	Quantity     decimal.Decimal
	Regular      bool
}

// Repository is the catalog lookup the engine depends on.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByBarcode(ctx context.Context, barcode string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
