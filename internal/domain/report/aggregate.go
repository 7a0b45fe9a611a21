// Package report rolls committed sales up into per-product summaries.
//
// Aggregation reads only the line snapshots stored with each sale, so a later
// catalog price edit never changes a past report.
package report

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/sale"
)

// Options controls how revenue is attributed.
type Options struct {
	// NetOfDiscount apportions each sale's discount over its lines, so
	// revenue and profit reflect what was actually received.
	NetOfDiscount bool
}

// Row is the aggregate of one product over the window.
type Row struct {
	ProductID string
	Name      string
	Quantity  decimal.Decimal
	Cost      decimal.Decimal
	Revenue   decimal.Decimal
	Profit    decimal.Decimal
}

// Totals are the grand totals over the window.
type Totals struct {
	Cost      decimal.Decimal
	Revenue   decimal.Decimal
	Profit    decimal.Decimal
	SaleCount int
	// Received is the sum of the sales' final totals.
	Received  decimal.Decimal
	Discounts decimal.Decimal
}

// Report is the result of Aggregate.
type Report struct {
	Start  time.Time
	End    time.Time
	Rows   []Row
	Totals Totals
}

// Aggregate groups the lines of sales created in [start, end) by product.
// Rows are ordered by product id.
func Aggregate(sales []sale.Sale, start, end time.Time, opts Options) Report {
	rep := Report{
		Start: start,
		End:   end,
		Totals: Totals{
			Cost:      decimal.Zero,
			Revenue:   decimal.Zero,
			Profit:    decimal.Zero,
			Received:  decimal.Zero,
			Discounts: decimal.Zero,
		},
	}

	rows := make(map[string]*Row)
	latest := make(map[string]time.Time)
	for i := range sales {
		s := &sales[i]
		if s.CreatedAt.Before(start) || !s.CreatedAt.Before(end) {
			continue
		}
		rep.Totals.SaleCount++
		rep.Totals.Received = rep.Totals.Received.Add(s.FinalTotal)
		rep.Totals.Discounts = rep.Totals.Discounts.Add(s.DiscountAmount())

		revenues := lineRevenues(s, opts)
		for j, l := range s.Lines {
			r, ok := rows[l.ProductID]
			if !ok {
				r = &Row{
					ProductID: l.ProductID,
					Quantity:  decimal.Zero,
					Cost:      decimal.Zero,
					Revenue:   decimal.Zero,
				}
				rows[l.ProductID] = r
			}
			if !s.CreatedAt.Before(latest[l.ProductID]) {
				r.Name = l.Name
				latest[l.ProductID] = s.CreatedAt
			}
			r.Quantity = r.Quantity.Add(l.Quantity)
			r.Cost = r.Cost.Add(l.Cost())
			r.Revenue = r.Revenue.Add(revenues[j])
		}
	}

	rep.Rows = make([]Row, 0, len(rows))
	for _, r := range rows {
		r.Profit = r.Revenue.Sub(r.Cost)
		rep.Totals.Cost = rep.Totals.Cost.Add(r.Cost)
		rep.Totals.Revenue = rep.Totals.Revenue.Add(r.Revenue)
		rep.Rows = append(rep.Rows, *r)
	}
	rep.Totals.Profit = rep.Totals.Revenue.Sub(rep.Totals.Cost)
	slices.SortFunc(rep.Rows, func(a, b Row) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return rep
}

// lineRevenues returns the revenue attributed to each line of s. With
// NetOfDiscount the rounding remainder goes to the last line so the lines
// sum to the sale's final total.
func lineRevenues(s *sale.Sale, opts Options) []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.Lines))
	for i, l := range s.Lines {
		out[i] = l.Revenue()
	}
	if !opts.NetOfDiscount || s.SubTotal.IsZero() || s.FinalTotal.Equal(s.SubTotal) {
		return out
	}

	allocated := decimal.Zero
	last := len(out) - 1
	for i := range out[:last] {
		out[i] = out[i].Mul(s.FinalTotal).Div(s.SubTotal).Round(2)
		allocated = allocated.Add(out[i])
	}
	out[last] = s.FinalTotal.Sub(allocated)
	return out
}
