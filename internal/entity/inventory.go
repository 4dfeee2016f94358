package entity

import "time"

// InventoryRecord tracks the stock level of one product. Quantity is
// mutated only through audited ledger adjustments.
type InventoryRecord struct {
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	MinQuantity int       `json:"min_quantity"`
	LastUpdated time.Time `json:"last_updated"`
}

// StockStatus classifies a stock level for reporting.
type StockStatus string

const (
	StockOut    StockStatus = "OUT_OF_STOCK"
	StockLow    StockStatus = "LOW"
	StockNormal StockStatus = "NORMAL"
)

// StockStatusOf classifies quantity against the low-stock threshold.
func StockStatusOf(quantity, minQuantity int) StockStatus {
	switch {
	case quantity == 0:
		return StockOut
	case quantity < minQuantity:
		return StockLow
	}
	return StockNormal
}

// InventoryAdjustment is one immutable entry in the stock audit trail.
// Entries are append-only; a rolled-back reservation leaves no entry.
type InventoryAdjustment struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	ActorID   string    `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// InventoryReportRow is one row of the admin stock report.
type InventoryReportRow struct {
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Quantity    int         `json:"quantity"`
	LastUpdated time.Time   `json:"last_updated"`
	Status      StockStatus `json:"status"`
}
