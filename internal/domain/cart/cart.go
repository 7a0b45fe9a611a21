// Package cart implements the in-progress transaction of a cashier session.
//
// A Cart is a pure in-memory aggregate: it captures a price snapshot of every
// product at the moment it is added and keeps all derived totals up to date on
// each mutation. It never touches stock or persistence.
package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/product"
)

var (
	// ErrInvalidQuantity is returned for non-positive quantities or quantities
	// that do not match the product's unit granularity.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrDiscountOutOfRange is returned when a discount is outside [0, 100].
	ErrDiscountOutOfRange = errors.New("discount must be between 0 and 100")
	// ErrDiscountPrecision is returned when a discount has more than
	// DiscountScale decimals.
	ErrDiscountPrecision = errors.New("discount has too many decimals")
	// ErrLineNotFound is returned when updating a product that is not in the cart.
	ErrLineNotFound = errors.New("line not found")
)

var hundred = decimal.NewFromInt(100)

// DiscountScale is the number of decimal places a discount percentage may carry.
const DiscountScale = 2

// Line is a single product entry with the prices captured at add time.
type Line struct {
	ProductID    string
	Name         string
	Unit         product.Unit
	Quantity     decimal.Decimal
	SellingPrice decimal.Decimal
	CostPrice    decimal.Decimal
}

// Total is the line's selling amount rounded to the currency minor unit.
func (l Line) Total() decimal.Decimal {
	return l.Quantity.Mul(l.SellingPrice).Round(2)
}

// Cost is the line's cost amount rounded to the currency minor unit.
func (l Line) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.CostPrice).Round(2)
}

// Totals are the values derived from the lines and the discount.
type Totals struct {
	Subtotal        decimal.Decimal
	CostSubtotal    decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	FinalTotal      decimal.Decimal
	GrossProfit     decimal.Decimal
}

// FinalTotal applies a percentage discount to subtotal and rounds the result.
func FinalTotal(subtotal, discountPercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
	return subtotal.Mul(factor).Round(2)
}

// Cart is an ordered mapping of product id to line plus a discount.
// It is not safe for concurrent use; a cart belongs to one cashier session.
type Cart struct {
	order    []string
	lines    map[string]*Line
	discount decimal.Decimal
	totals   Totals
}

// New returns an empty cart.
func New() *Cart {
	c := &Cart{lines: make(map[string]*Line)}
	c.recompute()
	return c
}

// AddItem adds qty of p, or increments the existing line for p. The price
// snapshot of an existing line is kept.
func (c *Cart) AddItem(p product.Product, qty decimal.Decimal) error {
	if !qty.IsPositive() || !p.Unit.Accepts(qty) {
		return errors.Wrapf(ErrInvalidQuantity, "add %s x %s", p.ID, qty)
	}

	if l, ok := c.lines[p.ID]; ok {
		l.Quantity = l.Quantity.Add(qty)
		c.recompute()
		return nil
	}

	unit := p.Unit
	if unit == "" {
		unit = product.UnitCount
	}
	c.lines[p.ID] = &Line{
		ProductID:    p.ID,
		Name:         p.Name,
		Unit:         unit,
		Quantity:     qty,
		SellingPrice: p.SellingPrice,
		CostPrice:    p.CostPrice,
	}
	c.order = append(c.order, p.ID)
	c.recompute()
	return nil
}

// UpdateQuantity overwrites the quantity of a line. A quantity below one for
// count units, or not positive for fractional units, removes the line.
func (c *Cart) UpdateQuantity(productID string, qty decimal.Decimal) error {
	l, ok := c.lines[productID]
	if !ok {
		return errors.Wrapf(ErrLineNotFound, "update %s", productID)
	}

	threshold := decimal.Zero
	if l.Unit == product.UnitCount {
		threshold = decimal.NewFromInt(1)
	}
	if qty.LessThan(threshold) || !qty.IsPositive() {
		c.RemoveItem(productID)
		return nil
	}
	if !l.Unit.Accepts(qty) {
		return errors.Wrapf(ErrInvalidQuantity, "update %s to %s", productID, qty)
	}

	l.Quantity = qty
	c.recompute()
	return nil
}

// RemoveItem drops the line for productID. Removing an absent product is a no-op.
func (c *Cart) RemoveItem(productID string) {
	if _, ok := c.lines[productID]; !ok {
		return
	}
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.recompute()
}

// SetDiscount sets the discount percentage.
func (c *Cart) SetDiscount(percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return errors.Wrapf(ErrDiscountOutOfRange, "discount %s", percent)
	}
	if !percent.Shift(DiscountScale).IsInteger() {
		return errors.Wrapf(ErrDiscountPrecision, "discount %s", percent)
	}
	c.discount = percent
	c.recompute()
	return nil
}

// Clear resets the cart to empty with no discount.
func (c *Cart) Clear() {
	c.order = nil
	c.lines = make(map[string]*Line)
	c.discount = decimal.Zero
	c.recompute()
}

// Len returns the number of lines.
func (c *Cart) Len() int {
	return len(c.order)
}

// Line returns a copy of the line for productID.
func (c *Cart) Line(productID string) (Line, bool) {
	l, ok := c.lines[productID]
	if !ok {
		return Line{}, false
	}
	return *l, true
}

// Lines returns copies of all lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.order))
	for i, id := range c.order {
		out[i] = *c.lines[id]
	}
	return out
}

// Discount returns the discount percentage.
func (c *Cart) Discount() decimal.Decimal {
	return c.discount
}

// Totals returns the derived values as of the last mutation.
func (c *Cart) Totals() Totals {
	return c.totals
}

func (c *Cart) recompute() {
	subtotal := decimal.Zero
	cost := decimal.Zero
	for _, id := range c.order {
		l := c.lines[id]
		subtotal = subtotal.Add(l.Total())
		cost = cost.Add(l.Cost())
	}

	final := FinalTotal(subtotal, c.discount)
	c.totals = Totals{
		Subtotal:        subtotal,
		CostSubtotal:    cost,
		DiscountPercent: c.discount,
		DiscountAmount:  subtotal.Sub(final),
		FinalTotal:      final,
		GrossProfit:     final.Sub(cost),
	}
}
