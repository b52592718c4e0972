package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProductRepo reads and seeds the product catalog. Stock mutations go
// through LedgerRepo, never through here.
type ProductRepo struct{ DB *pgxpool.Pool }

var _ ProductRepository = (*ProductRepo)(nil)

func (r *ProductRepo) Create(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := q(ctx, r.DB).Exec(ctx, `
		INSERT INTO products(id, name, batch, supplier, stock, min_stock, price)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.Name, p.Batch, p.Supplier, p.Stock, p.MinStock, p.Price,
	)
	return err
}

func (r *ProductRepo) GetByID(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := q(ctx, r.DB).QueryRow(ctx, `
		SELECT id, name, batch, supplier, stock, min_stock, price, created_at, updated_at
		FROM products WHERE id=$1`, id).Scan(
		&p.ID, &p.Name, &p.Batch, &p.Supplier, &p.Stock, &p.MinStock, &p.Price,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) List(ctx context.Context) ([]Product, error) {
	rows, err := q(ctx, r.DB).Query(ctx, `
		SELECT id, name, batch, supplier, stock, min_stock, price, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Batch, &p.Supplier, &p.Stock, &p.MinStock, &p.Price,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
