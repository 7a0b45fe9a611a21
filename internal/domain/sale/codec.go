package sale

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encode writes the wire form of s. Decimals are encoded as strings.
func (s *Sale) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("reference", func(e *jx.Encoder) { e.Str(s.Reference) })
		e.Field("actor", func(e *jx.Encoder) { e.Str(s.Actor) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(s.CreatedAt.Format(time.RFC3339Nano)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range s.Lines {
					l.Encode(e)
				}
			})
		})
		e.Field("subTotal", func(e *jx.Encoder) { EncodeDecimal(e, s.SubTotal) })
		e.Field("discountPercent", func(e *jx.Encoder) { EncodeDecimal(e, s.DiscountPercent) })
		e.Field("finalTotal", func(e *jx.Encoder) { EncodeDecimal(e, s.FinalTotal) })
		e.Field("finalCost", func(e *jx.Encoder) { EncodeDecimal(e, s.FinalCost) })
	})
}

// Decode reads the wire form written by Encode. Unknown fields are skipped.
func (s *Sale) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "reference":
			s.Reference, err = d.Str()
		case "actor":
			s.Actor, err = d.Str()
		case "createdAt":
			var raw string
			if raw, err = d.Str(); err != nil {
				break
			}
			s.CreatedAt, err = time.Parse(time.RFC3339Nano, raw)
		case "items":
			s.Lines = s.Lines[:0]
			err = d.Arr(func(d *jx.Decoder) error {
				var l Line
				if err := l.Decode(d); err != nil {
					return err
				}
				s.Lines = append(s.Lines, l)
				return nil
			})
		case "subTotal":
			s.SubTotal, err = DecodeDecimal(d)
		case "discountPercent":
			s.DiscountPercent, err = DecodeDecimal(d)
		case "finalTotal":
			s.FinalTotal, err = DecodeDecimal(d)
		case "finalCost":
			s.FinalCost, err = DecodeDecimal(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

// Encode writes the wire form of l.
func (l Line) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("productId", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
		e.Field("qty", func(e *jx.Encoder) { EncodeDecimal(e, l.Quantity) })
		e.Field("costPrice", func(e *jx.Encoder) { EncodeDecimal(e, l.CostPrice) })
		e.Field("sellingPrice", func(e *jx.Encoder) { EncodeDecimal(e, l.SellingPrice) })
	})
}

// Decode reads the wire form written by Line.Encode.
func (l *Line) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			l.ProductID, err = d.Str()
		case "name":
			l.Name, err = d.Str()
		case "qty":
			l.Quantity, err = DecodeDecimal(d)
		case "costPrice":
			l.CostPrice, err = DecodeDecimal(d)
		case "sellingPrice":
			l.SellingPrice, err = DecodeDecimal(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

// EncodeDecimal writes v as a fixed-point string.
func EncodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.String())
}

// DecodeDecimal reads a decimal from either a JSON string or a JSON number.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("unexpected %s, want decimal", d.Next())
	}
}
