package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepo owns the per-product stock count in Postgres.
type LedgerRepo struct{ DB *pgxpool.Pool }

var _ Ledger = (*LedgerRepo)(nil)

// TryReserve decrements stock only when it covers qty, as a single
// conditional UPDATE. The stock >= qty guard in the WHERE clause is what
// keeps concurrent callers from driving stock negative; a 0 row count
// means the product is gone or the guard lost, either way no reservation.
func (l *LedgerRepo) TryReserve(ctx context.Context, productID string, qty int) (bool, error) {
	ct, err := q(ctx, l.DB).Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (l *LedgerRepo) Release(ctx context.Context, productID string, qty int) error {
	ct, err := q(ctx, l.DB).Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (l *LedgerRepo) Peek(ctx context.Context, productID string) (int, error) {
	var stock int
	err := q(ctx, l.DB).QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return stock, err
}
