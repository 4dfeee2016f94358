package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the store catalog.
//
// Discount fields are either all set or all unset: a product with a
// discount price but no validity window is rejected at write time.
type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	SellingPrice  decimal.Decimal  `json:"selling_price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	DiscountStart *time.Time       `json:"discount_start,omitempty"`
	DiscountEnd   *time.Time       `json:"discount_end,omitempty"`
	Stock         int              `json:"stock"`
	SoldQuantity  int              `json:"sold_quantity"`
}

// Validate checks product invariants before the product is written.
func (p *Product) Validate() error {
	if p.ID == "" || p.Name == "" {
		return ErrInvalidRequest
	}
	if p.SellingPrice.IsNegative() {
		return ErrInvalidRequest
	}
	if p.Stock < 0 {
		return ErrInvalidRequest
	}
	set := 0
	if p.DiscountPrice != nil {
		set++
	}
	if p.DiscountStart != nil {
		set++
	}
	if p.DiscountEnd != nil {
		set++
	}
	if set != 0 && set != 3 {
		return ErrInvalidRequest
	}
	if set == 3 && p.DiscountEnd.Before(*p.DiscountStart) {
		return ErrInvalidRequest
	}
	return nil
}

// HasActiveDiscount reports whether the discount window covers asOf.
// Both window bounds are inclusive.
func (p *Product) HasActiveDiscount(asOf time.Time) bool {
	if p.DiscountPrice == nil || p.DiscountStart == nil || p.DiscountEnd == nil {
		return false
	}
	return !asOf.Before(*p.DiscountStart) && !asOf.After(*p.DiscountEnd)
}
