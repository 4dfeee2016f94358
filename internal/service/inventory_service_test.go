package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sondv/storefront/internal/entity"
	"github.com/sondv/storefront/internal/repository/memory"
)

func seededStore(t *testing.T, stock int) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	err := store.Products().Seed(context.Background(), []entity.Product{
		{ID: "p1", Name: "Phone", SellingPrice: decimal.NewFromInt(100), Stock: stock},
	})
	require.NoError(t, err)
	return store
}

func TestLedgerAdjustRecordsAudit(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, 10)
	ledger := NewInventoryLedger(store.Inventory(), nil)

	require.NoError(t, ledger.Adjust(ctx, "p1", -3, ReasonOrderPlacement, "cust-1"))

	rec, err := store.Inventory().Find(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, rec.Quantity)

	history, err := ledger.History(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, -3, history[0].Delta)
	assert.Equal(t, ReasonOrderPlacement, history[0].Reason)
	assert.Equal(t, "cust-1", history[0].ActorID)
}

func TestLedgerAdjustInsufficientStock(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, 5)
	ledger := NewInventoryLedger(store.Inventory(), nil)

	err := ledger.Adjust(ctx, "p1", -6, ReasonOrderPlacement, "cust-1")
	assert.ErrorIs(t, err, entity.ErrInsufficientStock)

	var oos *entity.OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, "p1", oos.ProductID)
	assert.Equal(t, 5, oos.Available)

	// Nothing changed, nothing logged.
	rec, err := store.Inventory().Find(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Quantity)

	history, err := ledger.History(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLedgerAdjustUnknownProduct(t *testing.T) {
	ledger := NewInventoryLedger(seededStore(t, 5).Inventory(), nil)
	err := ledger.Adjust(context.Background(), "missing", -1, ReasonOrderPlacement, "cust-1")
	assert.ErrorIs(t, err, entity.ErrUnknownProduct)
}

func TestLedgerAdjustValidation(t *testing.T) {
	ledger := NewInventoryLedger(seededStore(t, 5).Inventory(), nil)
	ctx := context.Background()

	assert.ErrorIs(t, ledger.Adjust(ctx, "p1", 0, ReasonManualCorrection, "admin"), entity.ErrInvalidRequest)
	assert.ErrorIs(t, ledger.Adjust(ctx, "p1", -1, "", "admin"), entity.ErrInvalidRequest)
}

func TestLedgerConcurrentAdjustNeverOversells(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t, 10)
	ledger := NewInventoryLedger(store.Inventory(), nil)

	const workers = 25
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = ledger.Adjust(ctx, "p1", -1, ReasonOrderPlacement, "cust")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, entity.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 10, succeeded)

	rec, err := store.Inventory().Find(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Quantity)

	history, err := ledger.History(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, history, 10)
}

func TestLedgerCheckAvailable(t *testing.T) {
	ctx := context.Background()
	ledger := NewInventoryLedger(seededStore(t, 5).Inventory(), nil)

	ok, available, err := ledger.CheckAvailable(ctx, "p1", 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, available)

	ok, available, err = ledger.CheckAvailable(ctx, "p1", 6)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 5, available)

	_, _, err = ledger.CheckAvailable(ctx, "missing", 1)
	assert.ErrorIs(t, err, entity.ErrUnknownProduct)
}

func TestLedgerReportClassifiesStock(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Products().Seed(ctx, []entity.Product{
		{ID: "p1", Name: "Empty", SellingPrice: decimal.NewFromInt(10), Stock: 0},
		{ID: "p2", Name: "Low", SellingPrice: decimal.NewFromInt(10), Stock: 2},
		{ID: "p3", Name: "Normal", SellingPrice: decimal.NewFromInt(10), Stock: 50},
	}))
	ledger := NewInventoryLedger(store.Inventory(), nil)

	report, err := ledger.Report(ctx)
	require.NoError(t, err)
	require.Len(t, report, 3)

	byID := map[string]entity.StockStatus{}
	for _, row := range report {
		byID[row.ProductID] = row.Status
	}
	assert.Equal(t, entity.StockOut, byID["p1"])
	assert.Equal(t, entity.StockLow, byID["p2"])
	assert.Equal(t, entity.StockNormal, byID["p3"])
}
