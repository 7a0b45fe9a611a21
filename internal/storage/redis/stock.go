// Package redis implements the stock ledger on Redis for multi-terminal
// deployments where stock must be shared across server instances.
package redis

import (
	"context"

	"github.com/go-faster/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/product"
	"github.com/xenking/pos-checkout/internal/domain/stock"
)

// Quantities are stored as integers in units of 10^-QuantityScale.
const keyPrefix = "pos:stock:"

const (
	codeUnknown      = -1
	codeInsufficient = -2
)

// Compare-and-decrement in one script so no other client sees the
// intermediate state.
var tryDecrementScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return -1 end
if tonumber(v) < tonumber(ARGV[1]) then return -2 end
return redis.call('DECRBY', KEYS[1], ARGV[1])
`)

var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

var _ stock.Store = (*StockLedger)(nil)

// StockLedger implements stock.Store on Redis.
type StockLedger struct {
	client *redis.Client
}

// NewStockLedger connects to Redis.
func NewStockLedger(addr, password string, db int) *StockLedger {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &StockLedger{client: client}
}

// Ping checks the connection.
func (l *StockLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the client.
func (l *StockLedger) Close() error {
	return l.client.Close()
}

func key(id string) string {
	return keyPrefix + id
}

func toUnits(qty decimal.Decimal) (int64, error) {
	units := qty.Shift(product.QuantityScale)
	if !units.IsInteger() {
		return 0, errors.Wrapf(stock.ErrInvalidQuantity, "quantity %s has more than %d decimals", qty, product.QuantityScale)
	}
	return units.IntPart(), nil
}

func fromUnits(units int64) decimal.Decimal {
	return decimal.New(units, -product.QuantityScale)
}

// Set overwrites the stock of a product, creating its entry if needed.
func (l *StockLedger) Set(ctx context.Context, id string, qty decimal.Decimal) error {
	if qty.IsNegative() {
		return errors.Wrapf(stock.ErrInvalidQuantity, "set %q to %s", id, qty)
	}
	units, err := toUnits(qty)
	if err != nil {
		return err
	}
	if err := l.client.Set(ctx, key(id), units, 0).Err(); err != nil {
		return errors.Wrapf(err, "set stock %q", id)
	}
	return nil
}

// TryDecrement implements stock.Ledger.
func (l *StockLedger) TryDecrement(ctx context.Context, id string, qty decimal.Decimal) error {
	if err := stock.CheckQuantity(qty); err != nil {
		return err
	}
	units, err := toUnits(qty)
	if err != nil {
		return err
	}

	res, err := tryDecrementScript.Run(ctx, l.client, []string{key(id)}, units).Int64()
	if err != nil {
		return errors.Wrapf(err, "decrement %q", id)
	}
	switch res {
	case codeUnknown:
		return errors.Wrapf(stock.ErrUnknownProduct, "product %s", id)
	case codeInsufficient:
		return errors.Wrapf(stock.ErrInsufficient, "product %s: want %s", id, qty)
	}
	return nil
}

// Increment implements stock.Compensator.
func (l *StockLedger) Increment(ctx context.Context, id string, qty decimal.Decimal) error {
	if err := stock.CheckQuantity(qty); err != nil {
		return err
	}
	units, err := toUnits(qty)
	if err != nil {
		return err
	}

	res, err := incrementScript.Run(ctx, l.client, []string{key(id)}, units).Int64()
	if err != nil {
		return errors.Wrapf(err, "increment %q", id)
	}
	if res == codeUnknown {
		return errors.Wrapf(stock.ErrUnknownProduct, "product %s", id)
	}
	return nil
}

// Quantity implements stock.Ledger.
func (l *StockLedger) Quantity(ctx context.Context, id string) (decimal.Decimal, error) {
	units, err := l.client.Get(ctx, key(id)).Int64()
	if err == redis.Nil {
		return decimal.Zero, errors.Wrapf(stock.ErrUnknownProduct, "product %s", id)
	}
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "read stock %q", id)
	}
	return fromUnits(units), nil
}
