package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/auth"
	"github.com/xenking/pos-checkout/internal/domain/checkout"
	"github.com/xenking/pos-checkout/internal/domain/sale"
)

var (
	errNoRoute  = errors.New("route not found")
	errNoMethod = errors.New("method not allowed")
)

type checkoutItem struct {
	ProductID string
	Barcode   string
	Quantity  decimal.Decimal
}

type checkoutRequest struct {
	Items           []checkoutItem
	DiscountPercent decimal.Decimal
	Tendered        decimal.Decimal
	hasTendered     bool
}

func (req *checkoutRequest) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var item checkoutItem
				if err := item.Decode(d); err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "discountPercent":
			req.DiscountPercent, err = sale.DecodeDecimal(d)
		case "tendered":
			req.Tendered, err = sale.DecodeDecimal(d)
			req.hasTendered = true
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func (item *checkoutItem) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			item.ProductID, err = d.Str()
		case "barcode":
			item.Barcode, err = d.Str()
		case "quantity":
			item.Quantity, err = sale.DecodeDecimal(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

func (req *checkoutRequest) validate() error {
	if !req.hasTendered {
		return errors.New("tendered is required")
	}
	for i, item := range req.Items {
		if (item.ProductID == "") == (item.Barcode == "") {
			return errors.Errorf("items[%d]: exactly one of productId or barcode is required", i)
		}
	}
	return nil
}

// Checkout builds a cart from the request and commits it.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.ActorFromContext(ctx)

	var req checkoutRequest
	d, err := readBody(w, r)
	if err == nil {
		err = req.Decode(d)
	}
	if err == nil {
		err = req.validate()
	}
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	s := h.engine.NewSession(actor)
	for _, item := range req.Items {
		if item.Barcode != "" {
			_, err = s.AddBarcode(ctx, item.Barcode, item.Quantity)
		} else {
			_, err = s.AddProduct(ctx, item.ProductID, item.Quantity)
		}
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
	}
	if err := s.SetDiscount(req.DiscountPercent); err != nil {
		writeEngineError(w, r, err)
		return
	}
	if err := s.RequestPayment(); err != nil {
		writeEngineError(w, r, err)
		return
	}

	res, err := s.Finalize(ctx, req.Tendered)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("sale", func(e *jx.Encoder) { res.Sale.Encode(e) })
			e.Field("tendered", func(e *jx.Encoder) { sale.EncodeDecimal(e, res.Tendered) })
			e.Field("balance", func(e *jx.Encoder) { sale.EncodeDecimal(e, res.Balance) })
			if res.DeliveryErr != nil {
				e.Field("deliveryError", func(e *jx.Encoder) { e.Str(res.DeliveryErr.Error()) })
			}
		})
	})
}

// CurrentStock returns the advisory quantity on hand of a product.
func (h *Handler) CurrentStock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	q, err := h.engine.CurrentStock(r.Context(), id)
	if err != nil {
		var nfErr *checkout.ProductNotFoundError
		if errors.As(err, &nfErr) {
			writeError(w, r, http.StatusNotFound, checkout.ReasonNotFound, err)
			return
		}
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("productId", func(e *jx.Encoder) { e.Str(id) })
			e.Field("quantity", func(e *jx.Encoder) { sale.EncodeDecimal(e, q) })
		})
	})
}
