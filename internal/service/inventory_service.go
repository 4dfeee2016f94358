package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sondv/storefront/internal/entity"
	"github.com/sondv/storefront/internal/messaging"
	"github.com/sondv/storefront/internal/repository"
)

// Adjustment reasons recorded in the audit trail.
const (
	ReasonOrderPlacement   = "order placement"
	ReasonOrderCancelled   = "order cancelled"
	ReasonManualCorrection = "manual correction"
)

// InventoryLedger exposes audited stock operations. Every quantity
// change goes through Adjust, which appends one immutable audit entry
// together with the counter update. Serialization per product is the
// repository's concern; the ledger itself holds no locks.
type InventoryLedger struct {
	inventoryRepo repository.InventoryRepository
	publisher     messaging.Publisher
}

func NewInventoryLedger(inventoryRepo repository.InventoryRepository, publisher messaging.Publisher) *InventoryLedger {
	return &InventoryLedger{
		inventoryRepo: inventoryRepo,
		publisher:     publisher,
	}
}

// CheckAvailable reports whether the product has at least quantity
// units in stock, along with the quantity currently available.
func (l *InventoryLedger) CheckAvailable(ctx context.Context, productID string, quantity int) (bool, int, error) {
	rec, err := l.inventoryRepo.Find(ctx, productID)
	if err != nil {
		return false, 0, err
	}
	return rec.Quantity >= quantity, rec.Quantity, nil
}

// Adjust applies delta to the product's stock counter and records the
// audit entry. Negative deltas that would push the counter below zero
// fail with entity.ErrInsufficientStock and leave no trace.
func (l *InventoryLedger) Adjust(ctx context.Context, productID string, delta int, reason, actorID string) error {
	if delta == 0 || reason == "" {
		return fmt.Errorf("adjustment needs a non-zero delta and a reason: %w", entity.ErrInvalidRequest)
	}

	adj := entity.InventoryAdjustment{
		ID:        uuid.NewString(),
		ProductID: productID,
		Delta:     delta,
		Reason:    reason,
		ActorID:   actorID,
		CreatedAt: time.Now(),
	}

	newStock, err := l.inventoryRepo.ApplyAdjustment(ctx, adj)
	if err != nil {
		return err
	}

	slog.Info("Stock adjusted", "product_id", productID, "delta", delta, "reason", reason, "new_stock", newStock)

	if l.publisher != nil {
		event := entity.StockAdjusted{
			ProductID: productID,
			Delta:     delta,
			Reason:    reason,
			NewStock:  newStock,
		}
		if err := l.publisher.PublishEvent(ctx, "inventory.adjusted", productID, event); err != nil {
			slog.Error("Failed to publish StockAdjusted", "product_id", productID, "err", err)
		}
	}

	return nil
}

// History returns the audit trail for a product, oldest first.
func (l *InventoryLedger) History(ctx context.Context, productID string) ([]entity.InventoryAdjustment, error) {
	return l.inventoryRepo.History(ctx, productID)
}

// Report returns the admin stock report with low-stock classification.
func (l *InventoryLedger) Report(ctx context.Context) ([]entity.InventoryReportRow, error) {
	return l.inventoryRepo.Report(ctx)
}
