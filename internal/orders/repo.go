package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo persists order aggregates in Postgres.
type Repo struct{ DB *pgxpool.Pool }

var _ OrderRepository = (*Repo)(nil)

func (r *Repo) Create(ctx context.Context, o *Order) error {
	db := q(ctx, r.DB)
	_, err := db.Exec(ctx, `
		INSERT INTO orders(id, order_number, customer_id, customer_name,
		                   subtotal, tax, total, status, status_note, accepted_by,
		                   created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.OrderNumber, o.CustomerID, o.CustomerName,
		o.Subtotal, o.Tax, o.Total, o.Status, o.StatusNote, o.AcceptedBy,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return ErrOrderNumberTaken
		}
		return err
	}

	for i, it := range o.Items {
		_, err = db.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, product_id, name, batch, price, quantity)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, i, it.ProductID, it.Name, it.Batch, it.Price, it.Quantity,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Order, error) {
	db := q(ctx, r.DB)
	var o Order
	err := db.QueryRow(ctx, `
		SELECT id, order_number, customer_id, customer_name,
		       subtotal, tax, total, status, status_note, accepted_by,
		       created_at, updated_at
		FROM orders WHERE id=$1`, id).Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerName,
		&o.Subtotal, &o.Tax, &o.Total, &o.Status, &o.StatusNote, &o.AcceptedBy,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := r.loadItems(ctx, db, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

func (r *Repo) Update(ctx context.Context, o *Order) error {
	ct, err := q(ctx, r.DB).Exec(ctx, `
		UPDATE orders
		SET status=$2, status_note=$3, accepted_by=$4, updated_at=$5
		WHERE id=$1`,
		o.ID, o.Status, o.StatusNote, o.AcceptedBy, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) List(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	f = f.normalized()
	db := q(ctx, r.DB)

	var (
		conds []string
		args  []any
	)
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		conds = append(conds, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status=$%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	rows, err := db.Query(ctx, `
		SELECT id, order_number, customer_id, customer_name,
		       subtotal, tax, total, status, status_note, accepted_by,
		       created_at, updated_at
		FROM orders`+where+fmt.Sprintf(`
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out []Order
		ids []string
	)
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerName,
			&o.Subtotal, &o.Tax, &o.Total, &o.Status, &o.StatusNote, &o.AcceptedBy,
			&o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	items, err := r.loadItems(ctx, db, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, total, nil
}

func (r *Repo) LastNumberForPrefix(ctx context.Context, prefix string) (string, error) {
	var number string
	err := q(ctx, r.DB).QueryRow(ctx, `
		SELECT order_number FROM orders
		WHERE order_number LIKE $1 || '%'
		ORDER BY order_number DESC LIMIT 1`, prefix).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return number, nil
}

func (r *Repo) loadItems(ctx context.Context, db querier, orderIDs []string) (map[string][]OrderItem, error) {
	out := make(map[string][]OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := db.Query(ctx, `
		SELECT order_id, product_id, name, batch, price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      OrderItem
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Batch, &it.Price, &it.Quantity); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}
