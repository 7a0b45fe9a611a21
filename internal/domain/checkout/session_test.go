package checkout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-checkout/internal/storage/memory"
)

func newTestSession(t *testing.T) (*Session, *memory.Store, *memory.SaleLedger) {
	t.Helper()
	store := memory.NewStore(
		newTestProduct("a", "10", "5", 3),
		newTestProduct("b", "4.50", "2", 10),
	)
	sales := memory.NewSaleLedger()
	e := newTestEngine(t, store, store, sales)
	return e.NewSession(cashier), store, sales
}

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateOpen, StateAwaitingPayment, true},
		{StateOpen, StateCommitted, false},
		{StateAwaitingPayment, StateOpen, true},
		{StateAwaitingPayment, StateCommitted, true},
		{StateAwaitingPayment, StateRejected, true},
		{StateRejected, StateOpen, true},
		{StateRejected, StateAwaitingPayment, true},
		{StateCommitted, StateAwaitingPayment, false},
		{StateCommitted, StateOpen, true},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
	assert.True(t, StateCommitted.IsTerminal())
	assert.False(t, StateRejected.IsTerminal())
}

func TestSession_HappyPath(t *testing.T) {
	ctx := context.Background()
	s, store, sales := newTestSession(t)

	_, err := s.AddProduct(ctx, "a", dec("2"))
	require.NoError(t, err)
	_, err = s.AddBarcode(ctx, "bc-b", dec("1"))
	require.NoError(t, err)
	require.NoError(t, s.SetDiscount(dec("5")))

	assert.True(t, dec("24.50").Equal(s.Totals().Subtotal))
	assert.True(t, dec("23.28").Equal(s.Totals().FinalTotal))

	require.NoError(t, s.RequestPayment())
	assert.Equal(t, StateAwaitingPayment, s.State())

	res, err := s.Finalize(ctx, dec("30"))
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, s.State())
	assert.True(t, dec("6.72").Equal(res.Balance))
	assert.Same(t, res, s.Last())
	assert.Equal(t, 1, sales.Len())
	requireQuantity(t, store, "a", "1")

	// Cart is kept until the cashier starts a new sale.
	assert.Len(t, s.Lines(), 2)
	require.NoError(t, s.NewSale())
	assert.Equal(t, StateOpen, s.State())
	assert.Empty(t, s.Lines())
}

func TestSession_RequestPaymentNeedsLines(t *testing.T) {
	s, _, _ := newTestSession(t)

	err := s.RequestPayment()
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, StateOpen, s.State())
}

func TestSession_FrozenWhileAwaitingPayment(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestSession(t)

	_, err := s.AddProduct(ctx, "a", dec("1"))
	require.NoError(t, err)
	require.NoError(t, s.RequestPayment())

	_, err = s.AddProduct(ctx, "b", dec("1"))
	require.ErrorIs(t, err, ErrInvalidState)
	require.ErrorIs(t, s.UpdateQuantity("a", dec("2")), ErrInvalidState)
	require.ErrorIs(t, s.RemoveItem("a"), ErrInvalidState)
	require.ErrorIs(t, s.SetDiscount(dec("1")), ErrInvalidState)
	require.ErrorIs(t, s.NewSale(), ErrInvalidState)

	require.NoError(t, s.Cancel())
	assert.Equal(t, StateOpen, s.State())
	assert.Len(t, s.Lines(), 1)
	requireQuantity(t, store, "a", "3")

	require.ErrorIs(t, s.Cancel(), ErrInvalidState)
}

func TestSession_FinalizeRequiresPaymentRequest(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t)
	_, err := s.AddProduct(ctx, "a", dec("1"))
	require.NoError(t, err)

	_, err = s.Finalize(ctx, dec("10"))
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestSession_RejectedKeepsCart(t *testing.T) {
	ctx := context.Background()
	s, store, sales := newTestSession(t)

	_, err := s.AddProduct(ctx, "a", dec("2"))
	require.NoError(t, err)
	require.NoError(t, s.RequestPayment())

	_, err = s.Finalize(ctx, dec("5"))
	var payErr *InsufficientPaymentError
	require.ErrorAs(t, err, &payErr)
	assert.Equal(t, StateRejected, s.State())
	assert.Len(t, s.Lines(), 1)

	// Retrying payment from Rejected needs no re-entry.
	res, err := s.Finalize(ctx, dec("20"))
	require.NoError(t, err)
	assert.True(t, res.Balance.IsZero())
	assert.Equal(t, 1, sales.Len())
	requireQuantity(t, store, "a", "1")
}

func TestSession_EditAfterStockRejection(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestSession(t)

	hint, err := s.AddProduct(ctx, "a", dec("5"))
	require.NoError(t, err)
	assert.True(t, hint.Low)
	assert.True(t, dec("3").Equal(hint.Available))

	require.NoError(t, s.RequestPayment())
	_, err = s.Finalize(ctx, dec("100"))
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, StateRejected, s.State())

	require.NoError(t, s.UpdateQuantity("a", dec("3")))
	assert.Equal(t, StateOpen, s.State())
	require.NoError(t, s.RequestPayment())
	_, err = s.Finalize(ctx, dec("30"))
	require.NoError(t, err)
	requireQuantity(t, store, "a", "0")
}

func TestSession_AddUnknownProduct(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t)

	_, err := s.AddProduct(ctx, "missing", dec("1"))
	var nfErr *ProductNotFoundError
	require.ErrorAs(t, err, &nfErr)

	_, err = s.AddBarcode(ctx, "no-such-barcode", dec("1"))
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "no-such-barcode", nfErr.ProductID)

	_, err = s.AddProduct(ctx, "a", dec("0.5"))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}
