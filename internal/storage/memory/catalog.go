// Package memory provides in-process catalog, stock and sales ledgers.
//
// They back the server when no database is configured and serve as the
// reference implementation of the ledger contracts in tests.
package memory

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/product"
	"github.com/xenking/pos-checkout/internal/domain/stock"
)

type stockEntry struct {
	mu      sync.Mutex
	qty     decimal.Decimal
	version uint64
}

// Store is a catalog and stock ledger. Each product's stock has its own lock,
// so operations on different products never contend.
type Store struct {
	mu       sync.RWMutex
	products map[string]product.Product
	barcodes map[string]string
	stock    map[string]*stockEntry
}

var (
	_ product.Repository = (*Store)(nil)
	_ stock.Store        = (*Store)(nil)
)

// NewStore returns a store seeded with products.
func NewStore(products ...product.Product) *Store {
	s := &Store{
		products: make(map[string]product.Product),
		barcodes: make(map[string]string),
		stock:    make(map[string]*stockEntry),
	}
	for _, p := range products {
		s.Upsert(p)
	}
	return s
}

// Upsert creates or replaces a catalog entry. The product's Quantity
// becomes the stock on hand only for new products; use SetQuantity to
// overwrite stock of an existing one.
func (s *Store) Upsert(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.products[p.ID]; ok && old.Barcode != "" {
		delete(s.barcodes, old.Barcode)
	}
	s.products[p.ID] = p
	if p.Barcode != "" {
		s.barcodes[p.Barcode] = p.ID
	}
	if _, ok := s.stock[p.ID]; !ok {
		s.stock[p.ID] = &stockEntry{qty: p.Quantity}
	}
}

// Remove deletes a product from the catalog. Its stock entry is kept so
// in-flight compensations still land.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.products[id]; ok && p.Barcode != "" {
		delete(s.barcodes, p.Barcode)
	}
	delete(s.products, id)
}

// SetQuantity overwrites the stock on hand of a product.
func (s *Store) SetQuantity(id string, qty decimal.Decimal) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.qty = qty
	e.version++
	return nil
}

// Version returns the number of stock mutations applied to a product.
func (s *Store) Version(id string) (uint64, error) {
	e, err := s.entry(id)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version, nil
}

func (s *Store) entry(id string) (*stockEntry, error) {
	s.mu.RLock()
	e, ok := s.stock[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(stock.ErrUnknownProduct, "product %s", id)
	}
	return e, nil
}

func (s *Store) withQuantity(p product.Product) product.Product {
	if e, ok := s.stock[p.ID]; ok {
		e.mu.Lock()
		p.Quantity = e.qty
		e.mu.Unlock()
	}
	return p
}

// GetByID implements product.Repository.
func (s *Store) GetByID(_ context.Context, id string) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p = s.withQuantity(p)
	return &p, nil
}

// GetByBarcode implements product.Repository.
func (s *Store) GetByBarcode(_ context.Context, barcode string) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.barcodes[barcode]
	if !ok {
		return nil, product.ErrNotFound
	}
	p := s.withQuantity(s.products[id])
	return &p, nil
}

// GetByIDs implements product.Repository. Unknown ids are skipped.
func (s *Store) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, s.withQuantity(p))
		}
	}
	return out, nil
}

// TryDecrement implements stock.Ledger.
func (s *Store) TryDecrement(_ context.Context, id string, qty decimal.Decimal) error {
	if err := stock.CheckQuantity(qty); err != nil {
		return err
	}
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.qty.LessThan(qty) {
		return errors.Wrapf(stock.ErrInsufficient, "product %s: have %s, want %s", id, e.qty, qty)
	}
	e.qty = e.qty.Sub(qty)
	e.version++
	return nil
}

// Increment implements stock.Compensator.
func (s *Store) Increment(_ context.Context, id string, qty decimal.Decimal) error {
	if err := stock.CheckQuantity(qty); err != nil {
		return err
	}
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.qty = e.qty.Add(qty)
	e.version++
	return nil
}

// Quantity implements stock.Ledger.
func (s *Store) Quantity(_ context.Context, id string) (decimal.Decimal, error) {
	e, err := s.entry(id)
	if err != nil {
		return decimal.Zero, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.qty, nil
}
