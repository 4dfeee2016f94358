package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sondv/storefront/internal/service"
)

type createOrderRequest struct {
	Lines    []service.CartLine      `json:"lines"`
	Shipping service.ShippingDetails `json:"shipping"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type attachShipmentRequest struct {
	Carrier           string     `json:"carrier"`
	TrackingNumber    string     `json:"tracking_number"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

type adjustStockRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

type applyDiscountRequest struct {
	ProductIDs  []string        `json:"product_ids,omitempty"`
	Percentage  decimal.Decimal `json:"percentage"`
	FixedAmount decimal.Decimal `json:"fixed_amount"`
	Start       time.Time       `json:"start"`
	End         time.Time       `json:"end"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
