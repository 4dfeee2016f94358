package postgres

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
)

func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("Database connected and migrated")
	return db, nil
}

func migrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			selling_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			discount_price NUMERIC(12,2),
			discount_start TIMESTAMPTZ,
			discount_end TIMESTAMPTZ,
			sold_quantity INT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS inventory (
			product_id TEXT PRIMARY KEY REFERENCES products(id),
			quantity INT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			min_quantity INT NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS inventory_adjustments (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL REFERENCES products(id),
			delta INT NOT NULL,
			reason TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			total_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS order_lines (
			id SERIAL PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES orders(id),
			product_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			quantity INT NOT NULL DEFAULT 1,
			unit_price NUMERIC(12,2) NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS shipments (
			order_id TEXT PRIMARY KEY REFERENCES orders(id),
			carrier TEXT NOT NULL DEFAULT '',
			tracking_number TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			phone_number TEXT NOT NULL DEFAULT '',
			shipping_fee NUMERIC(12,2) NOT NULL DEFAULT 0,
			estimated_delivery TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_id);
		CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status);
		CREATE INDEX IF NOT EXISTS idx_adjustments_product ON inventory_adjustments (product_id, created_at);
	`)
	return err
}
