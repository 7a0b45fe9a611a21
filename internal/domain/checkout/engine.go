// Package checkout turns a cart into a committed sale.
//
// The engine is the only writer of stock on the sale path. It decrements stock
// through conditional per-product operations, appends the sale, and undoes its
// own decrements when any later step fails, so that stock and the sales ledger
// never disagree.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenking/pos-checkout/internal/domain/auth"
	"github.com/xenking/pos-checkout/internal/domain/cart"
	"github.com/xenking/pos-checkout/internal/domain/product"
	"github.com/xenking/pos-checkout/internal/domain/sale"
	"github.com/xenking/pos-checkout/internal/domain/stock"
	"github.com/xenking/pos-checkout/internal/receipt"
)

const instrumentationName = "github.com/xenking/pos-checkout/internal/domain/checkout"

// Policy holds configurable engine behaviour.
type Policy struct {
	// RestockOnDelete returns the quantities of a deleted sale to stock.
	RestockOnDelete bool
}

// Result is the outcome of a successful checkout.
type Result struct {
	Sale     *sale.Sale
	Tendered decimal.Decimal
	Balance  decimal.Decimal
	// DeliveryErr is set when the receipt sink failed. The sale stays committed.
	DeliveryErr error
}

// Option configures an Engine.
type Option func(*Engine)

// WithReceiptSink sets where receipts of committed sales are delivered.
func WithReceiptSink(s receipt.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithReferences overrides the sale reference generator.
func WithReferences(g sale.ReferenceGenerator) Option {
	return func(e *Engine) { e.refs = g }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPolicy sets the engine policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithMeterProvider sets the meter provider for engine metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider for engine spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(instrumentationName) }
}

// Engine commits carts as sales.
type Engine struct {
	catalog product.Repository
	stock   stock.Store
	sales   sale.Repository

	sink   receipt.Sink
	refs   sale.ReferenceGenerator
	now    func() time.Time
	policy Policy

	meterProvider metric.MeterProvider
	metrics       *engineMetrics
	tracer        trace.Tracer
}

// NewEngine creates an Engine over the catalog, stock and sales ledgers.
func NewEngine(
	catalog product.Repository,
	stocks stock.Store,
	sales sale.Repository,
	opts ...Option,
) (*Engine, error) {
	e := &Engine{
		catalog:       catalog,
		stock:         stocks,
		sales:         sales,
		sink:          receipt.Discard,
		refs:          sale.TimeReferences{},
		now:           time.Now,
		meterProvider: metricnoop.NewMeterProvider(),
		tracer:        tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}
	for _, o := range opts {
		o(e)
	}

	m, err := newEngineMetrics(e.meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, errors.Wrap(err, "init metrics")
	}
	e.metrics = m
	return e, nil
}

// Checkout commits c as a sale paid with tendered. The cart is read but never
// modified; clearing it is up to the caller.
func (e *Engine) Checkout(ctx context.Context, c *cart.Cart, tendered decimal.Decimal, actor auth.Actor) (_ *Result, rerr error) {
	var lines int
	if c != nil {
		lines = c.Len()
	}
	ctx, span := e.tracer.Start(ctx, "checkout.Commit",
		trace.WithAttributes(
			attribute.String("pos.actor", actor.ID),
			attribute.Int("pos.lines", lines),
		),
	)
	start := time.Now()
	defer func() {
		e.metrics.observe(ctx, start, rerr)
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, Reason(rerr))
		}
		span.End()
	}()

	lg := zctx.From(ctx).With(zap.String("actor", actor.ID))

	res, err := e.commit(ctx, c, tendered, actor)
	if err != nil {
		var compErr *CompensationError
		if errors.As(err, &compErr) {
			lg.Error("Stock compensation failed", zap.Error(compErr.Err), zap.NamedError("cause", compErr.Cause))
		} else {
			lg.Warn("Checkout rejected", zap.String("reason", Reason(err)), zap.Error(err))
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("pos.sale.reference", res.Sale.Reference))
	lg.Info("Sale committed",
		zap.String("reference", res.Sale.Reference),
		zap.Stringer("final_total", res.Sale.FinalTotal),
		zap.Stringer("balance", res.Balance),
	)

	if err := e.sink.Deliver(ctx, receipt.Receipt{
		Sale:     res.Sale,
		Tendered: res.Tendered,
		Balance:  res.Balance,
	}); err != nil {
		res.DeliveryErr = err
		lg.Warn("Receipt delivery failed", zap.String("reference", res.Sale.Reference), zap.Error(err))
	}
	return res, nil
}

func (e *Engine) commit(ctx context.Context, c *cart.Cart, tendered decimal.Decimal, actor auth.Actor) (*Result, error) {
	if actor.ID == "" {
		return nil, &ValidationError{Err: ErrMissingActor}
	}
	if c == nil || c.Len() == 0 {
		return nil, &ValidationError{Err: ErrEmptyCart}
	}
	if tendered.IsNegative() {
		return nil, &ValidationError{Err: ErrInvalidTender}
	}

	totals := c.Totals()
	if tendered.LessThan(totals.FinalTotal) {
		return nil, &InsufficientPaymentError{Tendered: tendered, Due: totals.FinalTotal}
	}

	lines := c.Lines()
	if err := e.checkCatalog(ctx, lines); err != nil {
		return nil, err
	}

	// Decrement in cart order; undo everything applied so far on first failure.
	applied := make([]cart.Line, 0, len(lines))
	for _, l := range lines {
		if err := e.stock.TryDecrement(ctx, l.ProductID, l.Quantity); err != nil {
			var rejection error
			switch {
			case errors.Is(err, stock.ErrInsufficient):
				rejection = &InsufficientStockError{ProductID: l.ProductID, Requested: l.Quantity}
			case errors.Is(err, stock.ErrUnknownProduct):
				rejection = &ProductNotFoundError{ProductID: l.ProductID}
			default:
				rejection = &PersistenceError{Err: errors.Wrapf(err, "decrement %s", l.ProductID)}
			}
			return nil, e.compensate(ctx, applied, rejection)
		}
		applied = append(applied, l)
	}

	now := e.now()
	s := &sale.Sale{
		Reference:       e.refs.Next(now),
		Actor:           actor.ID,
		CreatedAt:       now,
		Lines:           make([]sale.Line, len(lines)),
		SubTotal:        totals.Subtotal,
		DiscountPercent: totals.DiscountPercent,
		FinalTotal:      totals.FinalTotal,
		FinalCost:       totals.CostSubtotal,
	}
	for i, l := range lines {
		s.Lines[i] = sale.Line{
			ProductID:    l.ProductID,
			Name:         l.Name,
			Quantity:     l.Quantity,
			CostPrice:    l.CostPrice,
			SellingPrice: l.SellingPrice,
		}
	}
	if err := s.Validate(); err != nil {
		return nil, e.compensate(ctx, applied, &ValidationError{Err: err})
	}

	if err := e.sales.Append(ctx, s); err != nil {
		return nil, e.compensate(ctx, applied, &PersistenceError{Err: errors.Wrap(err, "append sale")})
	}

	return &Result{
		Sale:     s,
		Tendered: tendered,
		Balance:  tendered.Sub(s.FinalTotal),
	}, nil
}

func (e *Engine) checkCatalog(ctx context.Context, lines []cart.Line) error {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	found, err := e.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return &CatalogError{Err: errors.Wrap(err, "get products")}
	}
	known := make(map[string]struct{}, len(found))
	for _, p := range found {
		known[p.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return &ProductNotFoundError{ProductID: id}
		}
	}
	return nil
}

// compensate increments every applied line exactly once and returns the
// rejection, or a CompensationError if any increment failed.
func (e *Engine) compensate(ctx context.Context, applied []cart.Line, rejection error) error {
	if len(applied) == 0 {
		return rejection
	}

	// Undo must run even if the caller gave up.
	ctx = context.WithoutCancel(ctx)

	var errs error
	for _, l := range applied {
		if err := e.stock.Increment(ctx, l.ProductID, l.Quantity); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "increment %s by %s", l.ProductID, l.Quantity))
			continue
		}
		e.metrics.compensations.Add(ctx, 1)
	}
	if errs != nil {
		return &CompensationError{Cause: rejection, Err: errs}
	}
	return rejection
}

// CurrentStock returns the advisory quantity on hand of a product.
func (e *Engine) CurrentStock(ctx context.Context, productID string) (decimal.Decimal, error) {
	q, err := e.stock.Quantity(ctx, productID)
	if err != nil {
		if errors.Is(err, stock.ErrUnknownProduct) {
			return decimal.Zero, &ProductNotFoundError{ProductID: productID}
		}
		return decimal.Zero, &PersistenceError{Err: errors.Wrap(err, "read stock")}
	}
	return q, nil
}

// Sale returns a committed sale. Only admins may read individual sales.
func (e *Engine) Sale(ctx context.Context, actor auth.Actor, reference string) (*sale.Sale, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	s, err := e.sales.Get(ctx, reference)
	if err != nil {
		return nil, errors.Wrapf(err, "get sale %s", reference)
	}
	return s, nil
}

// Sales lists the sales created in [start, end). Admin only.
func (e *Engine) Sales(ctx context.Context, actor auth.Actor, start, end time.Time) ([]sale.Sale, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if !end.After(start) {
		return nil, &ValidationError{Err: ErrEmptyWindow}
	}
	sales, err := e.sales.ListBetween(ctx, start, end)
	if err != nil {
		return nil, &PersistenceError{Err: errors.Wrap(err, "list sales")}
	}
	return sales, nil
}

// DeleteSale removes a committed sale. Only admins may delete; stock is
// restored only when the RestockOnDelete policy is set.
func (e *Engine) DeleteSale(ctx context.Context, actor auth.Actor, reference string) (*sale.Sale, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	s, err := e.sales.Delete(ctx, reference)
	if err != nil {
		return nil, errors.Wrapf(err, "delete sale %s", reference)
	}

	lg := zctx.From(ctx).With(zap.String("actor", actor.ID), zap.String("reference", reference))
	if !e.policy.RestockOnDelete {
		lg.Info("Sale deleted")
		return s, nil
	}

	var errs error
	for _, l := range s.Lines {
		if err := e.stock.Increment(ctx, l.ProductID, l.Quantity); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "restock %s", l.ProductID))
		}
	}
	if errs != nil {
		lg.Error("Restock after delete failed", zap.Error(errs))
		return s, &PersistenceError{Err: errs}
	}
	lg.Info("Sale deleted and restocked", zap.Int("lines", len(s.Lines)))
	return s, nil
}
