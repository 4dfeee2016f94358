package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sondv/storefront/internal/entity"
	"github.com/sondv/storefront/internal/repository"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new OrderRepository backed by Postgres.
func NewOrderRepository(db *sql.DB) repository.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Save(ctx context.Context, order *entity.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveOrderTx(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

// saveOrderTx inserts the aggregate (order, lines, shipment) inside tx.
func saveOrderTx(ctx context.Context, tx *sql.Tx, order *entity.Order) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO orders (id, customer_id, status, total_price, created_at) VALUES ($1, $2, $3, $4, $5)",
		order.ID, order.CustomerID, order.Status, order.TotalPrice, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, line := range order.Lines {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO order_lines (order_id, product_id, name, quantity, unit_price) VALUES ($1, $2, $3, $4, $5)",
			order.ID, line.ProductID, line.Name, line.Quantity, line.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order line: %w", err)
		}
	}

	if order.Shipment != nil {
		s := order.Shipment
		_, err = tx.ExecContext(ctx, `
			INSERT INTO shipments (order_id, carrier, tracking_number, address, phone_number, shipping_fee, estimated_delivery)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.ID, s.Carrier, s.TrackingNumber, s.Address, s.PhoneNumber, s.ShippingFee, s.EstimatedDelivery,
		)
		if err != nil {
			return fmt.Errorf("failed to insert shipment: %w", err)
		}
	}

	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	var o entity.Order
	err := r.db.QueryRowContext(ctx,
		"SELECT id, customer_id, status, total_price, created_at FROM orders WHERE id = $1", id,
	).Scan(&o.ID, &o.CustomerID, &o.Status, &o.TotalPrice, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, entity.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}

	if err := r.loadDetails(ctx, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) FindByCustomer(ctx context.Context, customerID string) ([]entity.Order, error) {
	return r.findWhere(ctx, "customer_id = $1", customerID)
}

func (r *orderRepository) FindByStatus(ctx context.Context, status entity.OrderStatus) ([]entity.Order, error) {
	return r.findWhere(ctx, "status = $1", string(status))
}

func (r *orderRepository) findWhere(ctx context.Context, where string, arg any) ([]entity.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, customer_id, status, total_price, created_at FROM orders WHERE "+where+" ORDER BY created_at DESC",
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []entity.Order
	for rows.Next() {
		var o entity.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.Status, &o.TotalPrice, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if err := r.loadDetails(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) loadDetails(ctx context.Context, o *entity.Order) error {
	lineRows, err := r.db.QueryContext(ctx,
		"SELECT product_id, name, quantity, unit_price FROM order_lines WHERE order_id = $1 ORDER BY id",
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to query order lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line entity.OrderLine
		if err := lineRows.Scan(&line.ProductID, &line.Name, &line.Quantity, &line.UnitPrice); err != nil {
			return fmt.Errorf("failed to scan order line: %w", err)
		}
		o.Lines = append(o.Lines, line)
	}
	if err := lineRows.Err(); err != nil {
		return err
	}

	var s entity.ShipmentRecord
	err = r.db.QueryRowContext(ctx, `
		SELECT order_id, carrier, tracking_number, address, phone_number, shipping_fee, estimated_delivery
		FROM shipments WHERE order_id = $1`, o.ID,
	).Scan(&s.OrderID, &s.Carrier, &s.TrackingNumber, &s.Address, &s.PhoneNumber, &s.ShippingFee, &s.EstimatedDelivery)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load shipment for %s: %w", o.ID, err)
	}
	o.Shipment = &s
	return nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id string, from, next entity.OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET status = $1 WHERE id = $2 AND status = $3",
		next, id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.statusConflict(ctx, id)
	}
	return nil
}

func (r *orderRepository) AttachShipment(ctx context.Context, orderID string, shipment *entity.ShipmentRecord, from entity.OrderStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Status moves first: the conditional UPDATE locks the order row, so
	// the shipment write below never survives a lost status race.
	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1 WHERE id = $2 AND status = $3",
		entity.StatusShipped, orderID, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.statusConflict(ctx, orderID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shipments (order_id, carrier, tracking_number, address, phone_number, shipping_fee, estimated_delivery)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO UPDATE SET
			carrier = EXCLUDED.carrier,
			tracking_number = EXCLUDED.tracking_number,
			estimated_delivery = EXCLUDED.estimated_delivery`,
		orderID, shipment.Carrier, shipment.TrackingNumber, shipment.Address, shipment.PhoneNumber,
		shipment.ShippingFee, shipment.EstimatedDelivery,
	)
	if err != nil {
		return fmt.Errorf("failed to attach shipment to %s: %w", orderID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit shipment: %w", err)
	}
	return nil
}

// statusConflict tells a missing order apart from a lost status race.
func (r *orderRepository) statusConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check order %s: %w", id, err)
	}
	if !exists {
		return entity.ErrOrderNotFound
	}
	return entity.ErrInvalidStatusTransition
}
