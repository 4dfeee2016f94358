package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sondv/storefront/internal/entity"
	"github.com/sondv/storefront/internal/repository"
)

type inventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository creates a new InventoryRepository backed by
// Postgres. Per-product serialization comes from the row lock taken by
// the conditional UPDATE on the stock counter.
func NewInventoryRepository(db *sql.DB) repository.InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) Find(ctx context.Context, productID string) (*entity.InventoryRecord, error) {
	var rec entity.InventoryRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT product_id, quantity, min_quantity, last_updated FROM inventory WHERE product_id = $1",
		productID,
	).Scan(&rec.ProductID, &rec.Quantity, &rec.MinQuantity, &rec.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, entity.ErrUnknownProduct
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory for %s: %w", productID, err)
	}
	return &rec, nil
}

func (r *inventoryRepository) ApplyAdjustment(ctx context.Context, adj entity.InventoryAdjustment) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	newQuantity, err := applyAdjustmentTx(ctx, tx, adj)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit adjustment: %w", err)
	}
	return newQuantity, nil
}

// applyAdjustmentTx runs the counter update and the audit insert inside
// tx. The conditional UPDATE both enforces quantity >= 0 and locks the
// row, serializing concurrent adjustments for the same product.
func applyAdjustmentTx(ctx context.Context, tx *sql.Tx, adj entity.InventoryAdjustment) (int, error) {
	var newQuantity int
	err := tx.QueryRowContext(ctx, `
		UPDATE inventory
		SET quantity = quantity + $1, last_updated = NOW()
		WHERE product_id = $2 AND quantity + $1 >= 0
		RETURNING quantity`,
		adj.Delta, adj.ProductID,
	).Scan(&newQuantity)

	if err == sql.ErrNoRows {
		var available int
		lookupErr := tx.QueryRowContext(ctx,
			"SELECT quantity FROM inventory WHERE product_id = $1", adj.ProductID,
		).Scan(&available)
		if lookupErr == sql.ErrNoRows {
			return 0, entity.ErrUnknownProduct
		}
		if lookupErr != nil {
			return 0, fmt.Errorf("failed to check stock for %s: %w", adj.ProductID, lookupErr)
		}
		return 0, &entity.OutOfStockError{ProductID: adj.ProductID, Requested: -adj.Delta, Available: available}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to adjust stock for %s: %w", adj.ProductID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_adjustments (id, product_id, delta, reason, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		adj.ID, adj.ProductID, adj.Delta, adj.Reason, adj.ActorID, adj.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record adjustment for %s: %w", adj.ProductID, err)
	}

	return newQuantity, nil
}

func (r *inventoryRepository) History(ctx context.Context, productID string) ([]entity.InventoryAdjustment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, delta, reason, actor_id, created_at
		FROM inventory_adjustments WHERE product_id = $1 ORDER BY created_at ASC`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments for %s: %w", productID, err)
	}
	defer rows.Close()

	var history []entity.InventoryAdjustment
	for rows.Next() {
		var adj entity.InventoryAdjustment
		if err := rows.Scan(&adj.ID, &adj.ProductID, &adj.Delta, &adj.Reason, &adj.ActorID, &adj.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		history = append(history, adj)
	}
	return history, rows.Err()
}

func (r *inventoryRepository) Report(ctx context.Context) ([]entity.InventoryReportRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.product_id, p.name, i.quantity, i.min_quantity, i.last_updated
		FROM inventory i JOIN products p ON p.id = i.product_id
		ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory report: %w", err)
	}
	defer rows.Close()

	var report []entity.InventoryReportRow
	for rows.Next() {
		var row entity.InventoryReportRow
		var minQuantity int
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.Quantity, &minQuantity, &row.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		row.Status = entity.StockStatusOf(row.Quantity, minQuantity)
		report = append(report, row)
	}
	return report, rows.Err()
}

func (r *inventoryRepository) Create(ctx context.Context, rec entity.InventoryRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, quantity, min_quantity)
		VALUES ($1, $2, $3) ON CONFLICT (product_id) DO NOTHING`,
		rec.ProductID, rec.Quantity, rec.MinQuantity,
	)
	if err != nil {
		return fmt.Errorf("failed to create inventory record for %s: %w", rec.ProductID, err)
	}
	return nil
}
