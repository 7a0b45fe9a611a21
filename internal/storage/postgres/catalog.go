package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-checkout/internal/domain/product"
)

const (
	productColumns = `id, COALESCE(barcode, ''), name, unit, cost_price, list_price, selling_price,
		quantity_on_hand, regular`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductByBarcodeSQL = `SELECT ` + productColumns + ` FROM products WHERE barcode = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	upsertProductSQL = `INSERT INTO products
		(id, barcode, name, unit, cost_price, list_price, selling_price, quantity_on_hand, regular)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			barcode = EXCLUDED.barcode,
			name = EXCLUDED.name,
			unit = EXCLUDED.unit,
			cost_price = EXCLUDED.cost_price,
			list_price = EXCLUDED.list_price,
			selling_price = EXCLUDED.selling_price,
			regular = EXCLUDED.regular,
			updated_at = now()`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.getOne(ctx, getProductByIDSQL, id)
}

// GetByBarcode returns a single product by its barcode.
func (r *ProductRepository) GetByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	return r.getOne(ctx, getProductByBarcodeSQL, barcode)
}

func (r *ProductRepository) getOne(ctx context.Context, sql, key string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, sql, key)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", key)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", key)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// List returns the whole catalog ordered by id.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert creates or edits a catalog entry. Stock on hand is only taken from p
// when the product is new; existing stock is owned by the stock ledger.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	unit := p.Unit
	if unit == "" {
		unit = product.UnitCount
	}
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Barcode, p.Name, string(unit),
		p.CostPrice, p.ListPrice, p.SellingPrice, p.Quantity, p.Regular,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p    product.Product
		unit string
	)
	err := row.Scan(
		&p.ID, &p.Barcode, &p.Name, &unit,
		&p.CostPrice, &p.ListPrice, &p.SellingPrice,
		&p.Quantity, &p.Regular,
	)
	p.Unit = product.Unit(unit)
	return p, err
}
