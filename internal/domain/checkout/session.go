package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/auth"
	"github.com/xenking/pos-checkout/internal/domain/cart"
	"github.com/xenking/pos-checkout/internal/domain/product"
)

// State is the lifecycle state of a cashier session.
type State string

const (
	StateOpen            State = "OPEN"
	StateAwaitingPayment State = "AWAITING_PAYMENT"
	StateCommitted       State = "COMMITTED"
	StateRejected        State = "REJECTED"
)

var transitions = map[State][]State{
	StateOpen:            {StateAwaitingPayment},
	StateAwaitingPayment: {StateOpen, StateCommitted, StateRejected},
	StateRejected:        {StateOpen, StateAwaitingPayment, StateCommitted, StateRejected},
	StateCommitted:       {StateOpen},
}

// CanTransitionTo reports whether next is reachable from s.
func (s State) CanTransitionTo(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session's sale is final.
func (s State) IsTerminal() bool {
	return s == StateCommitted
}

func (s State) String() string {
	return string(s)
}

// mutable reports whether the cart can be edited in s. A rejected attempt
// leaves the cart as it was so the cashier can fix it and retry.
func (s State) mutable() bool {
	return s == StateOpen || s == StateRejected
}

// StockHint is advisory information returned when adding a product.
type StockHint struct {
	Available decimal.Decimal
	// Low is set when the cart already asks for more than is available.
	// The commit may still fail or succeed regardless.
	Low bool
}

// Session drives one cashier's cart through the checkout lifecycle.
// It is not safe for concurrent use.
type Session struct {
	engine *Engine
	actor  auth.Actor
	cart   *cart.Cart
	state  State
	last   *Result
}

// NewSession opens an empty session for actor.
func (e *Engine) NewSession(actor auth.Actor) *Session {
	return &Session{
		engine: e,
		actor:  actor,
		cart:   cart.New(),
		state:  StateOpen,
	}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Lines returns the cart lines.
func (s *Session) Lines() []cart.Line { return s.cart.Lines() }

// Totals returns the cart totals.
func (s *Session) Totals() cart.Totals { return s.cart.Totals() }

// Last returns the result of the last committed checkout, if any.
func (s *Session) Last() *Result { return s.last }

func (s *Session) checkMutable() error {
	if !s.state.mutable() {
		return &ValidationError{Err: errors.Wrapf(ErrInvalidState, "cart is frozen in state %s", s.state)}
	}
	return nil
}

func (s *Session) reopen() {
	if s.state == StateRejected {
		s.state = StateOpen
	}
}

func (s *Session) transition(next State) error {
	if !s.state.CanTransitionTo(next) {
		return &ValidationError{Err: errors.Wrapf(ErrInvalidState, "%s -> %s", s.state, next)}
	}
	s.state = next
	return nil
}

// AddProduct looks up a product by id and adds qty of it to the cart.
func (s *Session) AddProduct(ctx context.Context, productID string, qty decimal.Decimal) (StockHint, error) {
	if err := s.checkMutable(); err != nil {
		return StockHint{}, err
	}
	p, err := s.engine.catalog.GetByID(ctx, productID)
	if err != nil {
		return StockHint{}, s.lookupError(productID, err)
	}
	return s.add(ctx, p, qty)
}

// AddBarcode looks up a product by barcode and adds qty of it to the cart.
func (s *Session) AddBarcode(ctx context.Context, barcode string, qty decimal.Decimal) (StockHint, error) {
	if err := s.checkMutable(); err != nil {
		return StockHint{}, err
	}
	p, err := s.engine.catalog.GetByBarcode(ctx, barcode)
	if err != nil {
		return StockHint{}, s.lookupError(barcode, err)
	}
	return s.add(ctx, p, qty)
}

func (s *Session) lookupError(key string, err error) error {
	if errors.Is(err, product.ErrNotFound) {
		return &ProductNotFoundError{ProductID: key}
	}
	return &CatalogError{Err: errors.Wrapf(err, "lookup %s", key)}
}

func (s *Session) add(ctx context.Context, p *product.Product, qty decimal.Decimal) (StockHint, error) {
	if err := s.cart.AddItem(*p, qty); err != nil {
		return StockHint{}, &ValidationError{Err: err}
	}
	s.reopen()

	// The hint is best effort; a stock read failure does not fail the add.
	available, err := s.engine.stock.Quantity(ctx, p.ID)
	if err != nil {
		available = p.Quantity
	}
	l, _ := s.cart.Line(p.ID)
	return StockHint{
		Available: available,
		Low:       l.Quantity.GreaterThan(available),
	}, nil
}

// UpdateQuantity overwrites the quantity of a cart line.
func (s *Session) UpdateQuantity(productID string, qty decimal.Decimal) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	if err := s.cart.UpdateQuantity(productID, qty); err != nil {
		return &ValidationError{Err: err}
	}
	s.reopen()
	return nil
}

// RemoveItem drops a cart line.
func (s *Session) RemoveItem(productID string) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	s.cart.RemoveItem(productID)
	s.reopen()
	return nil
}

// SetDiscount sets the cart discount percentage.
func (s *Session) SetDiscount(percent decimal.Decimal) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	if err := s.cart.SetDiscount(percent); err != nil {
		return &ValidationError{Err: err}
	}
	s.reopen()
	return nil
}

// RequestPayment freezes the cart and waits for tendered cash.
func (s *Session) RequestPayment() error {
	if s.cart.Len() == 0 {
		return &ValidationError{Err: ErrEmptyCart}
	}
	return s.transition(StateAwaitingPayment)
}

// Cancel returns from AwaitingPayment to Open without side effects.
func (s *Session) Cancel() error {
	if s.state != StateAwaitingPayment {
		return &ValidationError{Err: errors.Wrapf(ErrInvalidState, "cancel in state %s", s.state)}
	}
	return s.transition(StateOpen)
}

// Finalize commits the cart with the tendered amount. On rejection the cart is
// left unchanged and the session moves to Rejected.
func (s *Session) Finalize(ctx context.Context, tendered decimal.Decimal) (*Result, error) {
	if s.state != StateAwaitingPayment && s.state != StateRejected {
		return nil, &ValidationError{Err: errors.Wrapf(ErrInvalidState, "finalize in state %s", s.state)}
	}

	res, err := s.engine.Checkout(ctx, s.cart, tendered, s.actor)
	if err != nil {
		s.state = StateRejected
		return nil, err
	}
	s.state = StateCommitted
	s.last = res
	return res, nil
}

// NewSale clears the cart and starts over. It is not allowed while waiting
// for payment.
func (s *Session) NewSale() error {
	if s.state == StateAwaitingPayment {
		return &ValidationError{Err: errors.Wrapf(ErrInvalidState, "new sale in state %s", s.state)}
	}
	s.cart.Clear()
	s.state = StateOpen
	return nil
}
