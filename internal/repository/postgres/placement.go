package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sondv/storefront/internal/entity"
	"github.com/sondv/storefront/internal/repository"
)

type unitOfWork struct {
	db *sql.DB
}

// NewUnitOfWork returns a placement unit-of-work backed by a single
// Postgres transaction. Stock updates, audit entries and the order
// aggregate all commit or roll back together; the conditional UPDATE
// on the stock counter gives per-product serialization via the row
// lock it holds until commit.
func NewUnitOfWork(db *sql.DB) repository.UnitOfWork {
	return &unitOfWork{db: db}
}

func (u *unitOfWork) Begin(ctx context.Context) (repository.PlacementTx, error) {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &placementTx{tx: tx}, nil
}

type placementTx struct {
	tx   *sql.Tx
	done bool
}

func (p *placementTx) Reserve(ctx context.Context, adj entity.InventoryAdjustment) (int, error) {
	return applyAdjustmentTx(ctx, p.tx, adj)
}

func (p *placementTx) SaveOrder(ctx context.Context, order *entity.Order) error {
	return saveOrderTx(ctx, p.tx, order)
}

func (p *placementTx) Commit() error {
	p.done = true
	if err := p.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit placement: %w", err)
	}
	return nil
}

func (p *placementTx) Rollback() error {
	if p.done {
		return nil
	}
	p.done = true
	return p.tx.Rollback()
}
