package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// ValidOrderStatus reports whether s is one of the known statuses.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case StatusPending, StatusShipped, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from its current
// status to next. PENDING→SHIPPED→COMPLETED, with CANCELLED reachable
// from PENDING or SHIPPED.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusShipped || next == StatusCancelled
	case StatusShipped:
		return next == StatusCompleted || next == StatusCancelled
	}
	return false
}

// OrderLine is a line item within an order. UnitPrice is the effective
// price captured at placement time and never changes afterwards.
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal returns quantity times the captured unit price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ShipmentRecord holds delivery details for an order. At most one per
// order; tracking information is attached later by staff.
type ShipmentRecord struct {
	OrderID           string          `json:"order_id"`
	Carrier           string          `json:"carrier"`
	TrackingNumber    string          `json:"tracking_number,omitempty"`
	Address           string          `json:"address"`
	PhoneNumber       string          `json:"phone_number"`
	ShippingFee       decimal.Decimal `json:"shipping_fee"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
}

// Order is the aggregate root persisted atomically together with its
// lines and shipment record. Only Status and the shipment's tracking
// details change after creation.
type Order struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Status     OrderStatus     `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Lines      []OrderLine     `json:"lines"`
	Shipment   *ShipmentRecord `json:"shipment,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
