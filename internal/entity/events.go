package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is a domain event published to the message broker for
// downstream consumers (projections, notifications, reporting).
type Event interface {
	EventType() string
}

// OrderPlaced is emitted after an order aggregate commits.
type OrderPlaced struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	Lines      []OrderLine     `json:"lines"`
	TotalPrice decimal.Decimal `json:"total_price"`
	PlacedAt   time.Time       `json:"placed_at"`
}

func (e OrderPlaced) EventType() string { return "OrderPlaced" }

// OrderCancelled is emitted when an order is cancelled and its
// reservation reversed.
type OrderCancelled struct {
	OrderID     string    `json:"order_id"`
	CancelledAt time.Time `json:"cancelled_at"`
}

func (e OrderCancelled) EventType() string { return "OrderCancelled" }

// OrderCompleted is emitted when staff mark a shipped order delivered.
type OrderCompleted struct {
	OrderID     string    `json:"order_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func (e OrderCompleted) EventType() string { return "OrderCompleted" }

// StockAdjusted is emitted for every committed inventory adjustment.
type StockAdjusted struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
	NewStock  int    `json:"new_stock"`
}

func (e StockAdjusted) EventType() string { return "StockAdjusted" }
