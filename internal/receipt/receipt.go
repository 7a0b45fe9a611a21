// Package receipt delivers finalized sales to downstream consumers such as a
// local journal. Delivery happens after commit and never affects the sale.
package receipt

import (
	"context"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/xenking/pos-checkout/internal/domain/sale"
)

// Receipt is what a customer is handed after a successful checkout.
type Receipt struct {
	Sale     *sale.Sale
	Tendered decimal.Decimal
	Balance  decimal.Decimal
}

// Encode writes the receipt as a JSON object.
func (r Receipt) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("sale", func(e *jx.Encoder) { r.Sale.Encode(e) })
		e.Field("tendered", func(e *jx.Encoder) { sale.EncodeDecimal(e, r.Tendered) })
		e.Field("balance", func(e *jx.Encoder) { sale.EncodeDecimal(e, r.Balance) })
	})
}

// Decode reads a receipt written by Encode.
func (r *Receipt) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "sale":
			r.Sale = new(sale.Sale)
			err = r.Sale.Decode(d)
		case "tendered":
			r.Tendered, err = sale.DecodeDecimal(d)
		case "balance":
			r.Balance, err = sale.DecodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

// Sink accepts receipts.
type Sink interface {
	Deliver(ctx context.Context, r Receipt) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Receipt) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, r Receipt) error { return f(ctx, r) }

// Discard drops every receipt.
var Discard Sink = SinkFunc(func(context.Context, Receipt) error { return nil })

// Multi delivers to every sink and combines their errors.
type Multi []Sink

// Deliver implements Sink.
func (m Multi) Deliver(ctx context.Context, r Receipt) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Deliver(ctx, r))
	}
	return err
}
