package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies the schema. Statements are idempotent so running it on
// every boot is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		batch      TEXT NOT NULL DEFAULT '',
		supplier   TEXT NOT NULL DEFAULT '',
		stock      INT  NOT NULL CHECK (stock >= 0),
		min_stock  INT  NOT NULL DEFAULT 0 CHECK (min_stock >= 0),
		price      NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id            TEXT PRIMARY KEY,
		order_number  TEXT NOT NULL,
		customer_id   TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		subtotal      NUMERIC(12,2) NOT NULL CHECK (subtotal >= 0),
		tax           NUMERIC(12,2) NOT NULL CHECK (tax >= 0),
		total         NUMERIC(12,2) NOT NULL CHECK (total >= 0),
		status        TEXT NOT NULL,
		status_note   TEXT NOT NULL DEFAULT '',
		accepted_by   TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// hard uniqueness backstop for the non-atomic sequence generator
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_number ON orders (order_number)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id   TEXT NOT NULL REFERENCES orders(id),
		line_no    INT  NOT NULL,
		product_id TEXT NOT NULL,
		name       TEXT NOT NULL,
		batch      TEXT NOT NULL DEFAULT '',
		price      NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		quantity   INT  NOT NULL CHECK (quantity >= 1),
		PRIMARY KEY (order_id, line_no)
	)`,
}

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
