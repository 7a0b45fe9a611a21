package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-checkout/internal/domain/checkout"
	"github.com/xenking/pos-checkout/internal/domain/sale"
)

const maxBodySize = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) (*jx.Decoder, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	return jx.DecodeBytes(body), nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Bytes())))
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes {code, message, reason, productId}. Server-side failures
// are logged with the request logger and their message is replaced by the
// status text.
func writeError(w http.ResponseWriter, r *http.Request, status int, reason string, err error) {
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.Int("status", status),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}

	var productID string
	var stockErr *checkout.InsufficientStockError
	var nfErr *checkout.ProductNotFoundError
	switch {
	case errors.As(err, &stockErr):
		productID = stockErr.ProductID
	case errors.As(err, &nfErr):
		productID = nfErr.ProductID
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
			if reason != "" {
				e.Field("reason", func(e *jx.Encoder) { e.Str(reason) })
			}
			if productID != "" {
				e.Field("productId", func(e *jx.Encoder) { e.Str(productID) })
			}
		})
	})
}

// writeBodyError writes 413 for an oversized body and 400 otherwise.
func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	writeError(w, r, status, "", err)
}

// writeEngineError maps an engine error to its HTTP status.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	reason := checkout.Reason(err)
	status := http.StatusInternalServerError
	switch reason {
	case checkout.ReasonValidation, checkout.ReasonNotFound:
		status = http.StatusUnprocessableEntity
	case checkout.ReasonInsufficientPay:
		status = http.StatusPaymentRequired
	case checkout.ReasonInsufficientStock:
		status = http.StatusConflict
	case checkout.ReasonForbidden:
		status = http.StatusForbidden
	case checkout.ReasonPersistence, checkout.ReasonCompensation, checkout.ReasonCatalogUnavailable:
		status = http.StatusServiceUnavailable
	case checkout.ReasonUnknown:
		if errors.Is(err, sale.ErrNotFound) {
			status = http.StatusNotFound
			reason = "not_found"
		}
	}
	writeError(w, r, status, reason, err)
}
