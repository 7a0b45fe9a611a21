package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pos-checkout/internal/domain/auth"
	"github.com/xenking/pos-checkout/internal/domain/checkout"
)

// ListSales returns the sales created in ?start=&end=. Admin only.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	loc := h.reports.Location()
	start, err := parseBound(r.URL.Query().Get("start"), loc, false)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "", errors.Wrap(err, "start"))
		return
	}
	end, err := parseBound(r.URL.Query().Get("end"), loc, true)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "", errors.Wrap(err, "end"))
		return
	}

	sales, err := h.engine.Sales(r.Context(), actor, start, end)
	if errors.Is(err, checkout.ErrEmptyWindow) {
		writeError(w, r, http.StatusBadRequest, "", err)
		return
	}
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("sales", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, s := range sales {
						s.Encode(e)
					}
				})
			})
		})
	})
}

// GetSale returns one committed sale. Admin only.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	s, err := h.engine.Sale(r.Context(), actor, chi.URLParam(r, "reference"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Encode)
}

// DeleteSale removes a committed sale. Admin only.
func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	s, err := h.engine.DeleteSale(r.Context(), actor, chi.URLParam(r, "reference"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("deleted", func(e *jx.Encoder) { s.Encode(e) })
		})
	})
}
