package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel causes carried inside ValidationError.
var (
	ErrEmptyCart     = errors.New("cart is empty")
	ErrMissingActor  = errors.New("actor required")
	ErrInvalidTender = errors.New("tendered amount must not be negative")
	ErrInvalidState  = errors.New("invalid session state")
	ErrForbidden     = errors.New("actor is not allowed to perform this operation")
	ErrEmptyWindow   = errors.New("window end must be after start")
)

// Rejection reasons returned by Reason.
const (
	ReasonValidation         = "validation"
	ReasonInsufficientPay    = "insufficient_payment"
	ReasonInsufficientStock  = "insufficient_stock"
	ReasonNotFound           = "not_found"
	ReasonPersistence        = "persistence"
	ReasonCatalogUnavailable = "catalog_unavailable"
	ReasonCompensation       = "compensation"
	ReasonForbidden          = "forbidden"
	ReasonUnknown            = "unknown"
)

// ValidationError rejects a request before any side effect.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// InsufficientPaymentError is returned when the tendered amount is lower than
// the final total. Nothing has been mutated.
type InsufficientPaymentError struct {
	Tendered decimal.Decimal
	Due      decimal.Decimal
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: tendered %s, due %s", e.Tendered, e.Due)
}

// InsufficientStockError names the first product whose conditional decrement
// failed at commit time. All decrements of the attempt have been undone.
type InsufficientStockError struct {
	ProductID string
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %s)", e.ProductID, e.Requested)
}

// ProductNotFoundError indicates a cart line refers to a product that is no
// longer in the catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// PersistenceError is returned when the sale could not be appended to the
// ledger, or stock could not be reached. It is safe to retry.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CatalogError is returned when the product lookup is unavailable.
type CatalogError struct {
	Err error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog: %v", e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// CompensationError is returned when undoing stock decrements failed after a
// rejection. Cause is the original rejection; Err holds the failed increments.
// Stock for the products named in Err is lower than it should be.
type CompensationError struct {
	Cause error
	Err   error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation failed: %v (after: %v)", e.Err, e.Cause)
}

func (e *CompensationError) Unwrap() error { return e.Cause }

// Reason maps an engine error to a stable code for metrics, logs and
// transport mapping. It returns an empty string for nil.
func Reason(err error) string {
	if err == nil {
		return ""
	}

	var (
		compErr    *CompensationError
		payErr     *InsufficientPaymentError
		stockErr   *InsufficientStockError
		notFound   *ProductNotFoundError
		persistErr *PersistenceError
		catalogErr *CatalogError
		validErr   *ValidationError
	)
	switch {
	case errors.As(err, &compErr):
		return ReasonCompensation
	case errors.Is(err, ErrForbidden):
		return ReasonForbidden
	case errors.As(err, &validErr):
		return ReasonValidation
	case errors.As(err, &payErr):
		return ReasonInsufficientPay
	case errors.As(err, &stockErr):
		return ReasonInsufficientStock
	case errors.As(err, &notFound):
		return ReasonNotFound
	case errors.As(err, &persistErr):
		return ReasonPersistence
	case errors.As(err, &catalogErr):
		return ReasonCatalogUnavailable
	default:
		return ReasonUnknown
	}
}
