package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sondv/storefront/internal/entity"
	"github.com/sondv/storefront/internal/repository"
	"github.com/sondv/storefront/internal/repository/memory"
)

type orderTestEnv struct {
	store  *memory.Store
	ledger *InventoryLedger
	svc    *OrderService
}

func newOrderTestEnv(t *testing.T, products ...entity.Product) *orderTestEnv {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.Products().Seed(context.Background(), products))

	ledger := NewInventoryLedger(store.Inventory(), nil)
	svc := NewOrderService(store.Orders(), store.Products(), store, ledger, nil, nil)
	return &orderTestEnv{store: store, ledger: ledger, svc: svc}
}

func phoneWithDiscount(stock int) entity.Product {
	discount := decimal.NewFromInt(80)
	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	return entity.Product{
		ID:            "prod-a",
		Name:          "Phone A",
		SellingPrice:  decimal.NewFromInt(100),
		DiscountPrice: &discount,
		DiscountStart: &start,
		DiscountEnd:   &end,
		Stock:         stock,
	}
}

func TestPlaceOrderWithActiveDiscount(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t, phoneWithDiscount(5))

	order, err := env.svc.PlaceOrder(ctx, "cust-1",
		[]CartLine{{ProductID: "prod-a", Quantity: 3}},
		ShippingDetails{Carrier: "GHN", Address: "12 Nguyen Hue", PhoneNumber: "0900000001"},
	)
	require.NoError(t, err)

	// Quantity 3 at discount price 80 → total 240.
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(240)), "got %s", order.TotalPrice)
	assert.Equal(t, entity.StatusPending, order.Status)
	require.Len(t, order.Lines, 1)
	assert.True(t, order.Lines[0].UnitPrice.Equal(decimal.NewFromInt(80)))
	require.NotNil(t, order.Shipment)
	assert.Equal(t, "GHN", order.Shipment.Carrier)

	rec, err := env.store.Inventory().Find(ctx, "prod-a")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Quantity)

	history, err := env.ledger.History(ctx, "prod-a")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, -3, history[0].Delta)
	assert.Equal(t, ReasonOrderPlacement, history[0].Reason)
	assert.Equal(t, "cust-1", history[0].ActorID)

	// Persisted aggregate matches the returned one.
	saved, err := env.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, saved.TotalPrice.Equal(order.TotalPrice))
	require.Len(t, saved.Lines, 1)
	require.NotNil(t, saved.Shipment)
}

func TestPlaceOrderTotalIncludesShippingFee(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t,
		entity.Product{ID: "p1", Name: "Case", SellingPrice: decimal.NewFromInt(30), Stock: 10},
		entity.Product{ID: "p2", Name: "Charger", SellingPrice: decimal.NewFromInt(40), Stock: 10},
	)

	order, err := env.svc.PlaceOrder(ctx, "cust-1",
		[]CartLine{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
		ShippingDetails{Carrier: "GHTK", Address: "5 Le Loi", ShippingFee: decimal.NewFromInt(15)},
	)
	require.NoError(t, err)

	// 2×30 + 1×40 + 15 shipping = 115, and it equals the line sum + fee.
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(115)), "got %s", order.TotalPrice)

	sum := decimal.Zero
	for _, line := range order.Lines {
		sum = sum.Add(line.Subtotal())
	}
	assert.True(t, order.TotalPrice.Equal(sum.Add(order.Shipment.ShippingFee)))
}

func TestPlaceOrderOutOfStock(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t, entity.Product{ID: "p1", Name: "Phone", SellingPrice: decimal.NewFromInt(100), Stock: 5})

	_, err := env.svc.PlaceOrder(ctx, "cust-1",
		[]CartLine{{ProductID: "p1", Quantity: 6}},
		ShippingDetails{Address: "somewhere"},
	)
	require.Error(t, err)

	var oos *entity.OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, "p1", oos.ProductID)
	assert.Equal(t, 6, oos.Requested)
	assert.Equal(t, 5, oos.Available)

	rec, err := env.store.Inventory().Find(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Quantity)

	history, err := env.ledger.History(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, history)

	orders, err := env.svc.GetOrdersByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceOrderPartialFailureRollsBackAllLines(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t,
		entity.Product{ID: "p1", Name: "Plenty", SellingPrice: decimal.NewFromInt(10), Stock: 100},
		entity.Product{ID: "p2", Name: "Scarce", SellingPrice: decimal.NewFromInt(10), Stock: 1},
	)

	_, err := env.svc.PlaceOrder(ctx, "cust-1",
		[]CartLine{{ProductID: "p1", Quantity: 5}, {ProductID: "p2", Quantity: 2}},
		ShippingDetails{Address: "somewhere"},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrInsufficientStock)

	// Neither product lost stock, neither has an audit entry.
	for _, id := range []string{"p1", "p2"} {
		history, err := env.ledger.History(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, history, "product %s", id)
	}
	rec, err := env.store.Inventory().Find(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 100, rec.Quantity)
	rec, err = env.store.Inventory().Find(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Quantity)
}

func TestPlaceOrderValidation(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t, entity.Product{ID: "p1", Name: "Phone", SellingPrice: decimal.NewFromInt(100), Stock: 5})

	_, err := env.svc.PlaceOrder(ctx, "cust-1", nil, ShippingDetails{})
	assert.ErrorIs(t, err, entity.ErrInvalidRequest)

	_, err = env.svc.PlaceOrder(ctx, "cust-1", []CartLine{{ProductID: "p1", Quantity: 0}}, ShippingDetails{})
	assert.ErrorIs(t, err, entity.ErrInvalidRequest)

	_, err = env.svc.PlaceOrder(ctx, "", []CartLine{{ProductID: "p1", Quantity: 1}}, ShippingDetails{})
	assert.ErrorIs(t, err, entity.ErrInvalidRequest)

	_, err = env.svc.PlaceOrder(ctx, "cust-1", []CartLine{{ProductID: "nope", Quantity: 1}}, ShippingDetails{})
	assert.ErrorIs(t, err, entity.ErrUnknownProduct)
}

func TestConcurrentPlacementExhaustsStockExactly(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t, entity.Product{ID: "p1", Name: "Phone", SellingPrice: decimal.NewFromInt(100), Stock: 7})

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.PlaceOrder(ctx, "cust-1",
				[]CartLine{{ProductID: "p1", Quantity: 1}},
				ShippingDetails{Address: "somewhere"},
			)
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
	assert.Equal(t, 7, succeeded)

	rec, err := env.store.Inventory().Find(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Quantity)

	history, err := env.ledger.History(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, history, 7)
}

func TestOrderStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t, entity.Product{ID: "p1", Name: "Phone", SellingPrice: decimal.NewFromInt(100), Stock: 5})

	order, err := env.svc.PlaceOrder(ctx, "cust-1",
		[]CartLine{{ProductID: "p1", Quantity: 2}},
		ShippingDetails{Carrier: "GHN", Address: "somewhere"},
	)
	require.NoError(t, err)

	// PENDING → COMPLETED is not allowed.
	_, err = env.svc.UpdateStatus(ctx, order.ID, entity.StatusCompleted, "admin-1")
	assert.ErrorIs(t, err, entity.ErrInvalidStatusTransition)

	// Attach tracking → SHIPPED.
	shipped, err := env.svc.AttachShipment(ctx, order.ID, "", "TRACK-123", nil)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusShipped, shipped.Status)
	assert.Equal(t, "TRACK-123", shipped.Shipment.TrackingNumber)
	assert.Equal(t, "GHN", shipped.Shipment.Carrier)

	// SHIPPED → COMPLETED is status-only: no extra stock deduction.
	completed, err := env.svc.UpdateStatus(ctx, order.ID, entity.StatusCompleted, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, completed.Status)

	rec, err := env.store.Inventory().Find(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Quantity)
	history, err := env.ledger.History(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// COMPLETED is terminal.
	_, err = env.svc.UpdateStatus(ctx, order.ID, entity.StatusCancelled, "admin-1")
	assert.ErrorIs(t, err, entity.ErrInvalidStatusTransition)
}

func TestCancelOrderRestoresStock(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t, entity.Product{ID: "p1", Name: "Phone", SellingPrice: decimal.NewFromInt(100), Stock: 5})

	order, err := env.svc.PlaceOrder(ctx, "cust-1",
		[]CartLine{{ProductID: "p1", Quantity: 2}},
		ShippingDetails{Address: "somewhere"},
	)
	require.NoError(t, err)

	cancelled, err := env.svc.UpdateStatus(ctx, order.ID, entity.StatusCancelled, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, cancelled.Status)

	rec, err := env.store.Inventory().Find(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Quantity)

	history, err := env.ledger.History(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, -2, history[0].Delta)
	assert.Equal(t, 2, history[1].Delta)
	assert.Equal(t, ReasonOrderCancelled, history[1].Reason)
}

// rendezvousOrderRepo holds every FindByID call until all expected
// readers have loaded the order, forcing concurrent status updates to
// start from the same observed state.
type rendezvousOrderRepo struct {
	repository.OrderRepository
	readers *sync.WaitGroup
}

func (r *rendezvousOrderRepo) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	order, err := r.OrderRepository.FindByID(ctx, id)
	r.readers.Done()
	r.readers.Wait()
	return order, err
}

func TestConcurrentCancelReversesReservationOnce(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t, entity.Product{ID: "p1", Name: "Phone", SellingPrice: decimal.NewFromInt(100), Stock: 5})

	order, err := env.svc.PlaceOrder(ctx, "cust-1",
		[]CartLine{{ProductID: "p1", Quantity: 2}},
		ShippingDetails{Address: "somewhere"},
	)
	require.NoError(t, err)

	var readers sync.WaitGroup
	readers.Add(2)
	gated := &rendezvousOrderRepo{OrderRepository: env.store.Orders(), readers: &readers}
	svc := NewOrderService(gated, env.store.Products(), env.store, env.ledger, nil, nil)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.UpdateStatus(ctx, order.ID, entity.StatusCancelled, "admin-1")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, entity.ErrInvalidStatusTransition)
		}
	}
	assert.Equal(t, 1, succeeded)

	// One reservation, one reversal: stock back to 5, exactly two
	// audit entries.
	rec, err := env.store.Inventory().Find(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Quantity)

	history, err := env.ledger.History(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, -2, history[0].Delta)
	assert.Equal(t, 2, history[1].Delta)

	final, err := env.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, final.Status)
}

func TestAttachShipmentStaleStatusLeavesOrderUntouched(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t, entity.Product{ID: "p1", Name: "Phone", SellingPrice: decimal.NewFromInt(100), Stock: 5})

	order, err := env.svc.PlaceOrder(ctx, "cust-1",
		[]CartLine{{ProductID: "p1", Quantity: 1}},
		ShippingDetails{Address: "somewhere"},
	)
	require.NoError(t, err)

	// The store refuses the shipment write when the expected status no
	// longer matches, so tracking never lands on an order whose status
	// move did not happen.
	shipment := &entity.ShipmentRecord{OrderID: order.ID, TrackingNumber: "TRACK-STALE"}
	err = env.store.Orders().AttachShipment(ctx, order.ID, shipment, entity.StatusShipped)
	assert.ErrorIs(t, err, entity.ErrInvalidStatusTransition)

	reloaded, err := env.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, reloaded.Status)
	require.NotNil(t, reloaded.Shipment)
	assert.Empty(t, reloaded.Shipment.TrackingNumber)
}

func TestAttachShipmentTwiceRejected(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t, entity.Product{ID: "p1", Name: "Phone", SellingPrice: decimal.NewFromInt(100), Stock: 5})

	order, err := env.svc.PlaceOrder(ctx, "cust-1",
		[]CartLine{{ProductID: "p1", Quantity: 1}},
		ShippingDetails{Carrier: "GHN", Address: "somewhere"},
	)
	require.NoError(t, err)

	_, err = env.svc.AttachShipment(ctx, order.ID, "", "TRACK-1", nil)
	require.NoError(t, err)

	_, err = env.svc.AttachShipment(ctx, order.ID, "", "TRACK-2", nil)
	assert.ErrorIs(t, err, entity.ErrShipmentExists)

	reloaded, err := env.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "TRACK-1", reloaded.Shipment.TrackingNumber)
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	env := newOrderTestEnv(t, entity.Product{ID: "p1", Name: "Phone", SellingPrice: decimal.NewFromInt(100), Stock: 5})
	_, err := env.svc.UpdateStatus(context.Background(), "missing", entity.StatusShipped, "admin-1")
	assert.ErrorIs(t, err, entity.ErrOrderNotFound)
}

func TestFindOrdersByCustomerAndStatus(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t, entity.Product{ID: "p1", Name: "Phone", SellingPrice: decimal.NewFromInt(100), Stock: 50})

	first, err := env.svc.PlaceOrder(ctx, "cust-1", []CartLine{{ProductID: "p1", Quantity: 1}}, ShippingDetails{Address: "a"})
	require.NoError(t, err)
	_, err = env.svc.PlaceOrder(ctx, "cust-2", []CartLine{{ProductID: "p1", Quantity: 1}}, ShippingDetails{Address: "b"})
	require.NoError(t, err)

	_, err = env.svc.AttachShipment(ctx, first.ID, "", "TRACK-1", nil)
	require.NoError(t, err)

	mine, err := env.svc.GetOrdersByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)

	pending, err := env.svc.GetOrdersByStatus(ctx, entity.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	shipped, err := env.svc.GetOrdersByStatus(ctx, entity.StatusShipped)
	require.NoError(t, err)
	assert.Len(t, shipped, 1)

	_, err = env.svc.GetOrdersByStatus(ctx, entity.OrderStatus("NOPE"))
	assert.ErrorIs(t, err, entity.ErrInvalidRequest)
}

func TestHandleOrderPlacedUpdatesSoldCount(t *testing.T) {
	ctx := context.Background()
	env := newOrderTestEnv(t, entity.Product{ID: "p1", Name: "Phone", SellingPrice: decimal.NewFromInt(100), Stock: 10})

	event := &entity.OrderPlaced{
		OrderID: "order-1",
		Lines:   []entity.OrderLine{{ProductID: "p1", Quantity: 4}},
	}
	require.NoError(t, env.svc.HandleOrderPlaced(ctx, event))

	p, err := env.store.Products().FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, p.SoldQuantity)
}
