package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/stock"
)

const (
	// The WHERE clause makes check and decrement a single atomic statement.
	tryDecrementSQL = `UPDATE products
		SET quantity_on_hand = quantity_on_hand - $2, stock_version = stock_version + 1
		WHERE id = $1 AND quantity_on_hand >= $2`

	incrementSQL = `UPDATE products
		SET quantity_on_hand = quantity_on_hand + $2, stock_version = stock_version + 1
		WHERE id = $1`

	setQuantitySQL = `UPDATE products
		SET quantity_on_hand = $2, stock_version = stock_version + 1
		WHERE id = $1`

	quantitySQL = `SELECT quantity_on_hand FROM products WHERE id = $1`
)

var _ stock.Store = (*StockLedger)(nil)

// StockLedger implements stock.Store on the products table.
type StockLedger struct {
	pool *pgxpool.Pool
}

// NewStockLedger returns a StockLedger that uses the given pool.
func NewStockLedger(pool *pgxpool.Pool) *StockLedger {
	return &StockLedger{pool: pool}
}

// TryDecrement implements stock.Ledger.
func (l *StockLedger) TryDecrement(ctx context.Context, id string, qty decimal.Decimal) error {
	if err := stock.CheckQuantity(qty); err != nil {
		return err
	}

	tag, err := l.pool.Exec(ctx, tryDecrementSQL, id, qty)
	if err != nil {
		return errors.Wrapf(err, "decrement %q", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing updated: either the product is unknown or stock is short.
	if _, err := l.Quantity(ctx, id); err != nil {
		return err
	}
	return errors.Wrapf(stock.ErrInsufficient, "product %s: want %s", id, qty)
}

// Increment implements stock.Compensator.
func (l *StockLedger) Increment(ctx context.Context, id string, qty decimal.Decimal) error {
	if err := stock.CheckQuantity(qty); err != nil {
		return err
	}
	return l.exec(ctx, incrementSQL, id, qty)
}

// SetQuantity overwrites the stock on hand of a product.
func (l *StockLedger) SetQuantity(ctx context.Context, id string, qty decimal.Decimal) error {
	if qty.IsNegative() {
		return errors.Wrapf(stock.ErrInvalidQuantity, "set %q to %s", id, qty)
	}
	return l.exec(ctx, setQuantitySQL, id, qty)
}

func (l *StockLedger) exec(ctx context.Context, sql, id string, qty decimal.Decimal) error {
	tag, err := l.pool.Exec(ctx, sql, id, qty)
	if err != nil {
		return errors.Wrapf(err, "update stock %q", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(stock.ErrUnknownProduct, "product %s", id)
	}
	return nil
}

// Quantity implements stock.Ledger.
func (l *StockLedger) Quantity(ctx context.Context, id string) (decimal.Decimal, error) {
	var q decimal.Decimal
	if err := l.pool.QueryRow(ctx, quantitySQL, id).Scan(&q); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, errors.Wrapf(stock.ErrUnknownProduct, "product %s", id)
		}
		return decimal.Zero, errors.Wrapf(err, "read stock %q", id)
	}
	return q, nil
}
