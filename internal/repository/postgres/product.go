package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sondv/storefront/internal/entity"
	"github.com/sondv/storefront/internal/repository"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new ProductRepository backed by Postgres.
func NewProductRepository(db *sql.DB) repository.ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `p.id, p.name, p.description, p.selling_price, p.discount_price,
	p.discount_start, p.discount_end, p.sold_quantity, COALESCE(i.quantity, 0)`

func scanProduct(row interface{ Scan(...any) error }) (*entity.Product, error) {
	var p entity.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.SellingPrice, &p.DiscountPrice,
		&p.DiscountStart, &p.DiscountEnd, &p.SoldQuantity, &p.Stock)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepository) FindAll(ctx context.Context) ([]entity.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products p LEFT JOIN inventory i ON i.product_id = p.id
		ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []entity.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *productRepository) FindByID(ctx context.Context, id string) (*entity.Product, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p LEFT JOIN inventory i ON i.product_id = p.id
		WHERE p.id = $1`, id)

	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, entity.ErrUnknownProduct
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product %s: %w", id, err)
	}
	return p, nil
}

func (r *productRepository) Save(ctx context.Context, p *entity.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, selling_price, discount_price, discount_start, discount_end, sold_quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			selling_price = EXCLUDED.selling_price,
			discount_price = EXCLUDED.discount_price,
			discount_start = EXCLUDED.discount_start,
			discount_end = EXCLUDED.discount_end`,
		p.ID, p.Name, p.Description, p.SellingPrice, p.DiscountPrice, p.DiscountStart, p.DiscountEnd, p.SoldQuantity,
	)
	if err != nil {
		return fmt.Errorf("failed to save product %s: %w", p.ID, err)
	}
	return nil
}

func (r *productRepository) IncrementSold(ctx context.Context, id string, quantity int) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE products SET sold_quantity = sold_quantity + $1 WHERE id = $2",
		quantity, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update sold quantity for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrUnknownProduct
	}
	return nil
}

func (r *productRepository) ClearExpiredDiscounts(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET discount_price = NULL, discount_start = NULL, discount_end = NULL
		WHERE discount_end IS NOT NULL AND discount_end < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired discounts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *productRepository) Seed(ctx context.Context, products []entity.Product) error {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil // already seeded
	}

	for _, p := range products {
		if err := r.Save(ctx, &p); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.ID, err)
		}
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO inventory (product_id, quantity, min_quantity)
			VALUES ($1, $2, $3) ON CONFLICT (product_id) DO NOTHING`,
			p.ID, p.Stock, 5,
		)
		if err != nil {
			return fmt.Errorf("failed to seed inventory for %s: %w", p.ID, err)
		}
	}
	return nil
}
