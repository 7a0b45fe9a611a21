package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pos-checkout/internal/domain/report"
	"github.com/xenking/pos-checkout/internal/domain/sale"
)

const dateLayout = "2006-01-02"

// ReportToday reports on the current local day.
func (h *Handler) ReportToday(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Today(r.Context())
	h.writeReport(w, r, rep, err)
}

// ReportMonth reports on the current calendar month.
func (h *Handler) ReportMonth(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Month(r.Context())
	h.writeReport(w, r, rep, err)
}

// ReportWindow reports on ?start=&end=. Both accept RFC 3339 timestamps or
// dates; a date end includes that whole day.
func (h *Handler) ReportWindow(w http.ResponseWriter, r *http.Request) {
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

	rep, err := h.reports.Window(r.Context(), start, end)
	h.writeReport(w, r, rep, err)
}

func parseBound(v string, loc *time.Location, end bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("required")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		return time.Time{}, errors.Errorf("%q is neither RFC 3339 nor %s", v, dateLayout)
	}
	if end {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func (h *Handler) writeReport(w http.ResponseWriter, r *http.Request, rep *report.Report, err error) {
	if err != nil {
		if errors.Is(err, report.ErrInvalidWindow) {
			writeError(w, r, http.StatusBadRequest, "", err)
			return
		}
		writeError(w, r, http.StatusServiceUnavailable, "persistence", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeReport(e, rep) })
}

func encodeReport(e *jx.Encoder, rep *report.Report) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("start", func(e *jx.Encoder) { e.Str(rep.Start.Format(time.RFC3339)) })
		e.Field("end", func(e *jx.Encoder) { e.Str(rep.End.Format(time.RFC3339)) })
		e.Field("rows", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, row := range rep.Rows {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(row.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(row.Name) })
						e.Field("quantity", func(e *jx.Encoder) { sale.EncodeDecimal(e, row.Quantity) })
						e.Field("cost", func(e *jx.Encoder) { sale.EncodeDecimal(e, row.Cost) })
						e.Field("revenue", func(e *jx.Encoder) { sale.EncodeDecimal(e, row.Revenue) })
						e.Field("profit", func(e *jx.Encoder) { sale.EncodeDecimal(e, row.Profit) })
					})
				}
			})
		})
		e.Field("totals", func(e *jx.Encoder) {
			t := rep.Totals
			e.Obj(func(e *jx.Encoder) {
				e.Field("saleCount", func(e *jx.Encoder) { e.Int(t.SaleCount) })
				e.Field("cost", func(e *jx.Encoder) { sale.EncodeDecimal(e, t.Cost) })
				e.Field("revenue", func(e *jx.Encoder) { sale.EncodeDecimal(e, t.Revenue) })
				e.Field("profit", func(e *jx.Encoder) { sale.EncodeDecimal(e, t.Profit) })
				e.Field("received", func(e *jx.Encoder) { sale.EncodeDecimal(e, t.Received) })
				e.Field("discounts", func(e *jx.Encoder) { sale.EncodeDecimal(e, t.Discounts) })
			})
		})
	})
}
