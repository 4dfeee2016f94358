package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sondv/storefront/internal/entity"
	"github.com/sondv/storefront/internal/repository"
)

// EffectivePrice returns the price charged for a product at asOf: the
// discount price while the discount window is active (bounds
// inclusive), the base selling price otherwise. Products with
// partially-set discount fields never reach this point; they are
// rejected by Product.Validate at write time.
func EffectivePrice(p *entity.Product, asOf time.Time) decimal.Decimal {
	if p.HasActiveDiscount(asOf) {
		return *p.DiscountPrice
	}
	return p.SellingPrice
}

// PricingService manages product discounts.
type PricingService struct {
	productRepo repository.ProductRepository
}

func NewPricingService(productRepo repository.ProductRepository) *PricingService {
	return &PricingService{productRepo: productRepo}
}

// ApplyDiscount sets a time-bounded discount on the given products, or
// on every product when ids is empty. Exactly one of percentage or
// fixedAmount must be positive; the discounted price never drops below
// zero.
func (s *PricingService) ApplyDiscount(ctx context.Context, ids []string, percentage, fixedAmount decimal.Decimal, start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("discount window ends before it starts: %w", entity.ErrInvalidRequest)
	}
	if percentage.IsPositive() == fixedAmount.IsPositive() {
		return fmt.Errorf("exactly one of percentage or fixed amount required: %w", entity.ErrInvalidRequest)
	}

	products, err := s.selectProducts(ctx, ids)
	if err != nil {
		return err
	}

	for i := range products {
		p := &products[i]
		discounted := discountedPrice(p.SellingPrice, percentage, fixedAmount)
		p.DiscountPrice = &discounted
		p.DiscountStart = &start
		p.DiscountEnd = &end
		if err := s.productRepo.Save(ctx, p); err != nil {
			return fmt.Errorf("failed to save discounted product %s: %w", p.ID, err)
		}
	}

	slog.Info("Discount applied", "products", len(products), "start", start, "end", end)
	return nil
}

// ClearExpiredDiscounts removes discount fields from products whose
// window has ended. Invoked by the periodic sweep job.
func (s *PricingService) ClearExpiredDiscounts(ctx context.Context, now time.Time) (int, error) {
	cleared, err := s.productRepo.ClearExpiredDiscounts(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired discounts: %w", err)
	}
	if cleared > 0 {
		slog.Info("Expired discounts cleared", "products", cleared)
	}
	return cleared, nil
}

func (s *PricingService) selectProducts(ctx context.Context, ids []string) ([]entity.Product, error) {
	if len(ids) == 0 {
		products, err := s.productRepo.FindAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load products: %w", err)
		}
		return products, nil
	}

	products := make([]entity.Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.productRepo.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load product %s: %w", id, err)
		}
		products = append(products, *p)
	}
	return products, nil
}

func discountedPrice(selling, percentage, fixedAmount decimal.Decimal) decimal.Decimal {
	var discounted decimal.Decimal
	if percentage.IsPositive() {
		factor := decimal.NewFromInt(1).Sub(percentage.Div(decimal.NewFromInt(100)))
		discounted = selling.Mul(factor)
	} else {
		discounted = selling.Sub(fixedAmount)
	}
	if discounted.IsNegative() {
		return decimal.Zero
	}
	return discounted
}
