package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/pos-checkout/internal/domain/sale"
)

// SaleLedger is an append-only in-memory sales ledger.
type SaleLedger struct {
	mu    sync.RWMutex
	byRef map[string]*sale.Sale
	order []string
}

var _ sale.Repository = (*SaleLedger)(nil)

// NewSaleLedger returns an empty ledger.
func NewSaleLedger() *SaleLedger {
	return &SaleLedger{byRef: make(map[string]*sale.Sale)}
}

func cloneSale(s *sale.Sale) *sale.Sale {
	c := *s
	c.Lines = slices.Clone(s.Lines)
	return &c
}

// Append implements sale.Repository.
func (l *SaleLedger) Append(_ context.Context, s *sale.Sale) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byRef[s.Reference]; ok {
		return errors.Wrapf(sale.ErrDuplicateReference, "reference %s", s.Reference)
	}
	l.byRef[s.Reference] = cloneSale(s)
	l.order = append(l.order, s.Reference)
	return nil
}

// Get implements sale.Repository.
func (l *SaleLedger) Get(_ context.Context, reference string) (*sale.Sale, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.byRef[reference]
	if !ok {
		return nil, sale.ErrNotFound
	}
	return cloneSale(s), nil
}

// Delete implements sale.Repository.
func (l *SaleLedger) Delete(_ context.Context, reference string) (*sale.Sale, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.byRef[reference]
	if !ok {
		return nil, sale.ErrNotFound
	}
	delete(l.byRef, reference)
	l.order = slices.DeleteFunc(l.order, func(ref string) bool { return ref == reference })
	return s, nil
}

// ListBetween implements sale.Repository.
func (l *SaleLedger) ListBetween(_ context.Context, start, end time.Time) ([]sale.Sale, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []sale.Sale
	for _, ref := range l.order {
		s := l.byRef[ref]
		if s.CreatedAt.Before(start) || !s.CreatedAt.Before(end) {
			continue
		}
		out = append(out, *cloneSale(s))
	}
	slices.SortStableFunc(out, func(a, b sale.Sale) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// Len returns the number of stored sales.
func (l *SaleLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}
