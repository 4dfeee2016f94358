package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sondv/storefront/internal/entity"
	"github.com/sondv/storefront/internal/messaging"
	"github.com/sondv/storefront/internal/metrics"
	"github.com/sondv/storefront/internal/repository"
)

// CartLine is one (product, quantity) pair of an order request.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ShippingDetails carries the delivery information supplied with an
// order request. A zero ShippingFee is valid.
type ShippingDetails struct {
	Carrier           string          `json:"carrier"`
	Address           string          `json:"address"`
	PhoneNumber       string          `json:"phone_number"`
	ShippingFee       decimal.Decimal `json:"shipping_fee"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
}

// OrderService assembles carts into persisted orders and drives the
// order status lifecycle.
type OrderService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	unitOfWork  repository.UnitOfWork
	ledger      *InventoryLedger
	publisher   messaging.Publisher
	metrics     *metrics.PlacementMetrics
	now         func() time.Time
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	unitOfWork repository.UnitOfWork,
	ledger *InventoryLedger,
	publisher messaging.Publisher,
	m *metrics.PlacementMetrics,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		unitOfWork:  unitOfWork,
		ledger:      ledger,
		publisher:   publisher,
		metrics:     m,
		now:         time.Now,
	}
}

// PlaceOrder turns a cart into a priced, stock-checked, persisted
// order with its shipment record. The reservation, the audit entries
// and the aggregate commit as one unit; any failure leaves stock and
// the order store untouched.
func (s *OrderService) PlaceOrder(ctx context.Context, customerID string, lines []CartLine, shipping ShippingDetails) (*entity.Order, error) {
	started := s.now()

	if err := validateCart(customerID, lines); err != nil {
		s.observe("rejected", started)
		return nil, err
	}

	slog.Info("Service: Placing order", "customer_id", customerID, "lines", len(lines))

	// Price snapshots come from current product state; the authoritative
	// stock check happens inside the placement unit.
	products := make(map[string]*entity.Product, len(lines))
	for _, line := range lines {
		p, err := s.productRepo.FindByID(ctx, line.ProductID)
		if err != nil {
			s.observe("rejected", started)
			return nil, err
		}
		products[line.ProductID] = p
	}

	for _, line := range lines {
		ok, available, err := s.ledger.CheckAvailable(ctx, line.ProductID, line.Quantity)
		if err != nil {
			s.observe("rejected", started)
			return nil, err
		}
		if !ok {
			s.observe("out_of_stock", started)
			return nil, &entity.OutOfStockError{ProductID: line.ProductID, Requested: line.Quantity, Available: available}
		}
	}

	order := s.assemble(customerID, lines, products, shipping)

	tx, err := s.unitOfWork.Begin(ctx)
	if err != nil {
		s.observe("error", started)
		return nil, fmt.Errorf("failed to begin placement: %w", err)
	}
	defer tx.Rollback()

	for _, line := range lines {
		adj := entity.InventoryAdjustment{
			ID:        uuid.NewString(),
			ProductID: line.ProductID,
			Delta:     -line.Quantity,
			Reason:    ReasonOrderPlacement,
			ActorID:   customerID,
			CreatedAt: order.CreatedAt,
		}
		if _, err := tx.Reserve(ctx, adj); err != nil {
			if errors.Is(err, entity.ErrInsufficientStock) {
				s.observe("out_of_stock", started)
			} else {
				s.observe("error", started)
			}
			return nil, err
		}
	}

	if err := tx.SaveOrder(ctx, order); err != nil {
		s.observe("error", started)
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.observe("error", started)
		return nil, fmt.Errorf("failed to commit placement: %w", err)
	}

	slog.Info("Order placed", "order_id", order.ID, "customer_id", customerID, "total", order.TotalPrice)
	s.observe("placed", started)

	if s.publisher != nil {
		event := entity.OrderPlaced{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Lines:      order.Lines,
			TotalPrice: order.TotalPrice,
			PlacedAt:   order.CreatedAt,
		}
		if err := s.publisher.PublishEvent(ctx, "orders.placed", order.ID, event); err != nil {
			slog.Error("Failed to publish OrderPlaced", "order_id", order.ID, "err", err)
		}
	}

	return order, nil
}

// assemble builds the priced aggregate: one line per cart entry with
// the effective unit price captured now, total = Σ subtotals + fee.
func (s *OrderService) assemble(customerID string, lines []CartLine, products map[string]*entity.Product, shipping ShippingDetails) *entity.Order {
	now := s.now()
	orderID := uuid.NewString()

	orderLines := make([]entity.OrderLine, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		p := products[line.ProductID]
		ol := entity.OrderLine{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  line.Quantity,
			UnitPrice: EffectivePrice(p, now),
		}
		orderLines = append(orderLines, ol)
		total = total.Add(ol.Subtotal())
	}
	total = total.Add(shipping.ShippingFee)

	return &entity.Order{
		ID:         orderID,
		CustomerID: customerID,
		Status:     entity.StatusPending,
		TotalPrice: total,
		Lines:      orderLines,
		CreatedAt:  now,
		Shipment: &entity.ShipmentRecord{
			OrderID:           orderID,
			Carrier:           shipping.Carrier,
			Address:           shipping.Address,
			PhoneNumber:       shipping.PhoneNumber,
			ShippingFee:       shipping.ShippingFee,
			EstimatedDelivery: shipping.EstimatedDelivery,
		},
	}
}

// GetProducts returns the product catalog.
func (s *OrderService) GetProducts(ctx context.Context) ([]entity.Product, error) {
	return s.productRepo.FindAll(ctx)
}

// GetOrder returns one order aggregate by id.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	return s.orderRepo.FindByID(ctx, id)
}

// GetOrdersByCustomer returns all orders owned by a customer.
func (s *OrderService) GetOrdersByCustomer(ctx context.Context, customerID string) ([]entity.Order, error) {
	return s.orderRepo.FindByCustomer(ctx, customerID)
}

// GetOrdersByStatus returns all orders in the given status.
func (s *OrderService) GetOrdersByStatus(ctx context.Context, status entity.OrderStatus) ([]entity.Order, error) {
	if !entity.ValidOrderStatus(status) {
		return nil, fmt.Errorf("unknown status %q: %w", status, entity.ErrInvalidRequest)
	}
	return s.orderRepo.FindByStatus(ctx, status)
}

// UpdateStatus moves an order through its lifecycle. Cancelling a
// PENDING or SHIPPED order reverses the original reservation with a
// positive adjustment per line. Completing a SHIPPED order is a
// status-only change; stock was already deducted at placement.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, next entity.OrderStatus, actorID string) (*entity.Order, error) {
	if !entity.ValidOrderStatus(next) {
		return nil, fmt.Errorf("unknown status %q: %w", next, entity.ErrInvalidRequest)
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.Status.CanTransition(next) {
		return nil, fmt.Errorf("cannot move order %s from %s to %s: %w", orderID, order.Status, next, entity.ErrInvalidStatusTransition)
	}

	// The repository applies the transition only if the stored status
	// still matches what was read above. Losing that race means another
	// request already moved the order, so the reversal below runs at
	// most once per order.
	if err := s.orderRepo.UpdateStatus(ctx, orderID, order.Status, next); err != nil {
		return nil, err
	}
	order.Status = next

	if next == entity.StatusCancelled {
		for _, line := range order.Lines {
			if err := s.ledger.Adjust(ctx, line.ProductID, line.Quantity, ReasonOrderCancelled, actorID); err != nil {
				return nil, fmt.Errorf("failed to restock %s for cancelled order %s: %w", line.ProductID, orderID, err)
			}
		}
	}

	slog.Info("Order status updated", "order_id", orderID, "status", next)

	if s.publisher != nil {
		var event entity.Event
		var topic string
		switch next {
		case entity.StatusCancelled:
			event = entity.OrderCancelled{OrderID: orderID, CancelledAt: s.now()}
			topic = "orders.cancelled"
		case entity.StatusCompleted:
			event = entity.OrderCompleted{OrderID: orderID, CompletedAt: s.now()}
			topic = "orders.completed"
		}
		if event != nil {
			if err := s.publisher.PublishEvent(ctx, topic, orderID, event); err != nil {
				slog.Error("Failed to publish status event", "order_id", orderID, "err", err)
			}
		}
	}

	return order, nil
}

// AttachShipment records tracking details on an order's shipment and
// moves the order to SHIPPED.
func (s *OrderService) AttachShipment(ctx context.Context, orderID, carrier, trackingNumber string, estimatedDelivery *time.Time) (*entity.Order, error) {
	if trackingNumber == "" {
		return nil, fmt.Errorf("tracking number required: %w", entity.ErrInvalidRequest)
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Shipment != nil && order.Shipment.TrackingNumber != "" {
		return nil, fmt.Errorf("order %s already has tracking attached: %w", orderID, entity.ErrShipmentExists)
	}
	if !order.Status.CanTransition(entity.StatusShipped) {
		return nil, fmt.Errorf("cannot ship order %s in status %s: %w", orderID, order.Status, entity.ErrInvalidStatusTransition)
	}

	shipment := order.Shipment
	if shipment == nil {
		shipment = &entity.ShipmentRecord{OrderID: orderID}
	}
	if carrier != "" {
		shipment.Carrier = carrier
	}
	shipment.TrackingNumber = trackingNumber
	if estimatedDelivery != nil {
		shipment.EstimatedDelivery = estimatedDelivery
	}

	// One atomic repository call: the shipment write and the move to
	// SHIPPED either both happen or neither does.
	if err := s.orderRepo.AttachShipment(ctx, orderID, shipment, order.Status); err != nil {
		return nil, err
	}

	order.Shipment = shipment
	order.Status = entity.StatusShipped

	slog.Info("Shipment attached", "order_id", orderID, "carrier", shipment.Carrier, "tracking", trackingNumber)
	return order, nil
}

// HandleOrderPlaced is triggered by the message broker after an order
// is placed; it maintains the cumulative sold-count projection.
func (s *OrderService) HandleOrderPlaced(ctx context.Context, event *entity.OrderPlaced) error {
	for _, line := range event.Lines {
		if err := s.productRepo.IncrementSold(ctx, line.ProductID, line.Quantity); err != nil {
			return fmt.Errorf("failed to update sold count for %s: %w", line.ProductID, err)
		}
	}
	slog.Info("Projection: sold counts updated", "order_id", event.OrderID)
	return nil
}

func (s *OrderService) observe(outcome string, started time.Time) {
	if s.metrics != nil {
		s.metrics.Observe(outcome, time.Since(started))
	}
}

func validateCart(customerID string, lines []CartLine) error {
	if customerID == "" {
		return fmt.Errorf("customer id required: %w", entity.ErrInvalidRequest)
	}
	if len(lines) == 0 {
		return fmt.Errorf("order must have at least one line: %w", entity.ErrInvalidRequest)
	}
	for _, line := range lines {
		if line.ProductID == "" {
			return fmt.Errorf("line product id required: %w", entity.ErrInvalidRequest)
		}
		if line.Quantity < 1 {
			return fmt.Errorf("line quantity for %s must be at least 1: %w", line.ProductID, entity.ErrInvalidRequest)
		}
	}
	return nil
}
