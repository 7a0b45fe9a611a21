package app

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/pos-checkout/internal/domain/product"
	"github.com/xenking/pos-checkout/internal/domain/sale"
)

// LoadCatalog reads a JSON array of products with their opening stock.
func LoadCatalog(path string) ([]product.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}

	var products []product.Product
	seen := make(map[string]struct{})
	if err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return errors.Wrapf(err, "product %d", len(products))
		}
		if _, dup := seen[p.ID]; dup {
			return errors.Errorf("duplicate product id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		products = append(products, p)
		return nil
	}); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return products, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "barcode":
			p.Barcode, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "unit":
			var u string
			u, err = d.Str()
			p.Unit = product.Unit(u)
		case "costPrice":
			p.CostPrice, err = sale.DecodeDecimal(d)
		case "listPrice":
			p.ListPrice, err = sale.DecodeDecimal(d)
		case "sellingPrice":
			p.SellingPrice, err = sale.DecodeDecimal(d)
		case "quantity":
			p.Quantity, err = sale.DecodeDecimal(d)
		case "regular":
			p.Regular, err = d.Bool()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
	if err != nil {
		return p, err
	}

	switch {
	case p.ID == "":
		return p, errors.New("id is required")
	case p.Unit == "":
		p.Unit = product.UnitCount
	case !p.Unit.Valid():
		return p, errors.Errorf("%s: unknown unit %q", p.ID, p.Unit)
	}
	if p.CostPrice.IsNegative() || p.SellingPrice.IsNegative() || p.Quantity.IsNegative() {
		return p, errors.Errorf("%s: prices and quantity must not be negative", p.ID)
	}
	if !p.Unit.Accepts(p.Quantity) {
		return p, errors.Errorf("%s: quantity %s is not a valid %s amount", p.ID, p.Quantity, p.Unit)
	}
	return p, nil
}
