package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-checkout/internal/domain/sale"
)

const (
	insertSaleSQL = `INSERT INTO sales
		(reference, actor_id, created_at, sub_total, discount_percent, final_total, final_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	saleColumns = `reference, actor_id, created_at, sub_total, discount_percent, final_total, final_cost`

	getSaleSQL = `SELECT ` + saleColumns + ` FROM sales WHERE reference = $1`

	getSaleForUpdateSQL = getSaleSQL + ` FOR UPDATE`

	listSalesSQL = `SELECT ` + saleColumns + ` FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, reference`

	listLinesSQL = `SELECT sale_reference, product_id, product_name, quantity, cost_price, selling_price
		FROM sale_lines WHERE sale_reference = ANY($1)
		ORDER BY sale_reference, position`

	deleteSaleSQL = `DELETE FROM sales WHERE reference = $1`
)

var _ sale.Repository = (*SaleRepository)(nil)

// SaleRepository implements sale.Repository backed by PostgreSQL.
type SaleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// Append stores the sale and its lines in one transaction.
func (r *SaleRepository) Append(ctx context.Context, s *sale.Sale) (rerr error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, insertSaleSQL,
		s.Reference, s.Actor, s.CreatedAt,
		s.SubTotal, s.DiscountPercent, s.FinalTotal, s.FinalCost,
	); err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(sale.ErrDuplicateReference, "reference %s", s.Reference)
		}
		return errors.Wrapf(err, "insert sale %s", s.Reference)
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"sale_lines"},
		[]string{"sale_reference", "position", "product_id", "product_name", "quantity", "cost_price", "selling_price"},
		pgx.CopyFromSlice(len(s.Lines), func(i int) ([]any, error) {
			l := s.Lines[i]
			return []any{s.Reference, i, l.ProductID, l.Name, l.Quantity, l.CostPrice, l.SellingPrice}, nil
		}),
	); err != nil {
		return errors.Wrapf(err, "insert lines of %s", s.Reference)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// Get returns a sale with its lines.
func (r *SaleRepository) Get(ctx context.Context, reference string) (*sale.Sale, error) {
	return getSale(ctx, r.pool, getSaleSQL, reference)
}

// Delete removes a sale and returns it.
func (r *SaleRepository) Delete(ctx context.Context, reference string) (_ *sale.Sale, rerr error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	s, err := getSale(ctx, tx, getSaleForUpdateSQL, reference)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, deleteSaleSQL, reference); err != nil {
		return nil, errors.Wrapf(err, "delete sale %s", reference)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return s, nil
}

// ListBetween returns sales created in [start, end) ordered by creation time.
func (r *SaleRepository) ListBetween(ctx context.Context, start, end time.Time) ([]sale.Sale, error) {
	rows, err := r.pool.Query(ctx, listSalesSQL, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "list sales")
	}
	sales, err := pgx.CollectRows(rows, scanSale)
	if err != nil {
		return nil, errors.Wrap(err, "scan sales")
	}
	if len(sales) == 0 {
		return nil, nil
	}
	if err := attachLines(ctx, r.pool, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func getSale(ctx context.Context, q querier, sql, reference string) (*sale.Sale, error) {
	rows, err := q.Query(ctx, sql, reference)
	if err != nil {
		return nil, errors.Wrapf(err, "get sale %s", reference)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sale.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get sale %s", reference)
	}

	out := []sale.Sale{s}
	if err := attachLines(ctx, q, out); err != nil {
		return nil, err
	}
	return &out[0], nil
}

func attachLines(ctx context.Context, q querier, sales []sale.Sale) error {
	refs := make([]string, len(sales))
	index := make(map[string]int, len(sales))
	for i, s := range sales {
		refs[i] = s.Reference
		index[s.Reference] = i
	}

	rows, err := q.Query(ctx, listLinesSQL, refs)
	if err != nil {
		return errors.Wrap(err, "list sale lines")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ref string
			l   sale.Line
		)
		if err := rows.Scan(&ref, &l.ProductID, &l.Name, &l.Quantity, &l.CostPrice, &l.SellingPrice); err != nil {
			return errors.Wrap(err, "scan sale line")
		}
		i := index[ref]
		sales[i].Lines = append(sales[i].Lines, l)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate sale lines")
	}
	return nil
}

func scanSale(row pgx.CollectableRow) (sale.Sale, error) {
	var s sale.Sale
	err := row.Scan(
		&s.Reference, &s.Actor, &s.CreatedAt,
		&s.SubTotal, &s.DiscountPercent, &s.FinalTotal, &s.FinalCost,
	)
	return s, err
}
