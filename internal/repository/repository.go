package repository

import (
	"context"
	"time"

	"github.com/sondv/storefront/internal/entity"
)

// ProductRepository handles persistence for Products.
type ProductRepository interface {
	FindAll(ctx context.Context) ([]entity.Product, error)
	FindByID(ctx context.Context, id string) (*entity.Product, error)
	Save(ctx context.Context, p *entity.Product) error
	// IncrementSold adds quantity to the product's cumulative sold count.
	IncrementSold(ctx context.Context, id string, quantity int) error
	// ClearExpiredDiscounts unsets discount fields on every product whose
	// window ended before now. Returns the number of products touched.
	ClearExpiredDiscounts(ctx context.Context, now time.Time) (int, error)
	// Seed inserts initial products if none exist.
	Seed(ctx context.Context, products []entity.Product) error
}

// InventoryRepository owns per-product stock counters and their audit
// trail. ApplyAdjustment must be atomic per product: concurrent calls
// for the same product are serialized, and the counter never goes
// negative.
type InventoryRepository interface {
	Find(ctx context.Context, productID string) (*entity.InventoryRecord, error)
	// ApplyAdjustment applies adj.Delta to the product's quantity and
	// appends the audit entry in one atomic step. Returns the new
	// quantity. Fails with entity.ErrUnknownProduct or
	// entity.ErrInsufficientStock; on failure neither the counter nor the
	// audit trail changes.
	ApplyAdjustment(ctx context.Context, adj entity.InventoryAdjustment) (int, error)
	History(ctx context.Context, productID string) ([]entity.InventoryAdjustment, error)
	Report(ctx context.Context) ([]entity.InventoryReportRow, error)
	// Create registers an inventory record for a new product.
	Create(ctx context.Context, rec entity.InventoryRecord) error
}

// UnitOfWork begins an atomic placement unit spanning stock
// reservation and aggregate persistence. Either everything staged in
// the unit commits, or nothing does: a rolled-back unit leaves no
// stock change and no audit entry behind.
type UnitOfWork interface {
	Begin(ctx context.Context) (PlacementTx, error)
}

// PlacementTx is one in-flight placement unit. Implementations
// serialize concurrent units touching the same product so that two
// placements cannot both consume the last unit of stock.
type PlacementTx interface {
	// Reserve applies a negative adjustment and stages its audit entry.
	// Returns the stock remaining after the reservation.
	Reserve(ctx context.Context, adj entity.InventoryAdjustment) (int, error)
	// SaveOrder stages the full order aggregate.
	SaveOrder(ctx context.Context, order *entity.Order) error
	Commit() error
	Rollback() error
}

// OrderRepository handles persistence for the order aggregate.
type OrderRepository interface {
	// Save persists the order, its lines and its shipment record
	// atomically. The order id must not already exist.
	Save(ctx context.Context, order *entity.Order) error
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	FindByCustomer(ctx context.Context, customerID string) ([]entity.Order, error)
	FindByStatus(ctx context.Context, status entity.OrderStatus) ([]entity.Order, error)
	// UpdateStatus moves the order from its expected current status to
	// next in one atomic step. Fails with entity.ErrOrderNotFound when
	// the order does not exist, and with
	// entity.ErrInvalidStatusTransition when the stored status no longer
	// matches from, so concurrent transitions cannot both apply.
	UpdateStatus(ctx context.Context, id string, from, next entity.OrderStatus) error
	// AttachShipment sets the shipment record and moves the order from
	// from to SHIPPED as one atomic operation. A failed status check
	// leaves the shipment untouched. Error contract matches
	// UpdateStatus.
	AttachShipment(ctx context.Context, orderID string, shipment *entity.ShipmentRecord, from entity.OrderStatus) error
}
