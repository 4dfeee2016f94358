// Package memory provides in-memory repository implementations used by
// tests and by the dev mode when no database is configured. One store
// mutex serializes placement units and adjustments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sondv/storefront/internal/entity"
	"github.com/sondv/storefront/internal/repository"
)

// Store holds all state behind one lock. The Products, Inventory and
// Orders views implement the corresponding repository interfaces;
// Store itself is the placement UnitOfWork.
type Store struct {
	mu          sync.Mutex
	products    map[string]entity.Product
	inventory   map[string]entity.InventoryRecord
	adjustments []entity.InventoryAdjustment
	orders      map[string]entity.Order
}

func NewStore() *Store {
	return &Store{
		products:  make(map[string]entity.Product),
		inventory: make(map[string]entity.InventoryRecord),
		orders:    make(map[string]entity.Order),
	}
}

func (s *Store) Products() repository.ProductRepository { return &productRepo{s} }

func (s *Store) Inventory() repository.InventoryRepository { return &inventoryRepo{s} }

func (s *Store) Orders() repository.OrderRepository { return &orderRepo{s} }

// --- ProductRepository ---

type productRepo struct{ s *Store }

func (r *productRepo) FindAll(ctx context.Context) ([]entity.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	products := make([]entity.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		p.Stock = r.s.inventory[p.ID].Quantity
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (r *productRepo) FindByID(ctx context.Context, id string) (*entity.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, entity.ErrUnknownProduct
	}
	p.Stock = r.s.inventory[id].Quantity
	return &p, nil
}

func (r *productRepo) Save(ctx context.Context, p *entity.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.products[p.ID]; ok {
		p.SoldQuantity = existing.SoldQuantity
	}
	r.s.products[p.ID] = *p
	return nil
}

func (r *productRepo) IncrementSold(ctx context.Context, id string, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[id]
	if !ok {
		return entity.ErrUnknownProduct
	}
	p.SoldQuantity += quantity
	r.s.products[id] = p
	return nil
}

func (r *productRepo) ClearExpiredDiscounts(ctx context.Context, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cleared := 0
	for id, p := range r.s.products {
		if p.DiscountEnd != nil && p.DiscountEnd.Before(now) {
			p.DiscountPrice = nil
			p.DiscountStart = nil
			p.DiscountEnd = nil
			r.s.products[id] = p
			cleared++
		}
	}
	return cleared, nil
}

func (r *productRepo) Seed(ctx context.Context, products []entity.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if len(r.s.products) > 0 {
		return nil // already seeded
	}
	for _, p := range products {
		r.s.products[p.ID] = p
		r.s.inventory[p.ID] = entity.InventoryRecord{
			ProductID:   p.ID,
			Quantity:    p.Stock,
			MinQuantity: 5,
			LastUpdated: time.Now(),
		}
	}
	return nil
}

// --- InventoryRepository ---

type inventoryRepo struct{ s *Store }

func (r *inventoryRepo) Find(ctx context.Context, productID string) (*entity.InventoryRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.inventory[productID]
	if !ok {
		return nil, entity.ErrUnknownProduct
	}
	return &rec, nil
}

func (r *inventoryRepo) ApplyAdjustment(ctx context.Context, adj entity.InventoryAdjustment) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.applyAdjustmentLocked(adj)
}

func (r *inventoryRepo) History(ctx context.Context, productID string) ([]entity.InventoryAdjustment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var history []entity.InventoryAdjustment
	for _, adj := range r.s.adjustments {
		if adj.ProductID == productID {
			history = append(history, adj)
		}
	}
	return history, nil
}

func (r *inventoryRepo) Report(ctx context.Context) ([]entity.InventoryReportRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	report := make([]entity.InventoryReportRow, 0, len(r.s.inventory))
	for id, rec := range r.s.inventory {
		report = append(report, entity.InventoryReportRow{
			ProductID:   id,
			ProductName: r.s.products[id].Name,
			Quantity:    rec.Quantity,
			LastUpdated: rec.LastUpdated,
			Status:      entity.StockStatusOf(rec.Quantity, rec.MinQuantity),
		})
	}
	sort.Slice(report, func(i, j int) bool { return report[i].ProductName < report[j].ProductName })
	return report, nil
}

func (r *inventoryRepo) Create(ctx context.Context, rec entity.InventoryRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.inventory[rec.ProductID]; !ok {
		rec.LastUpdated = time.Now()
		r.s.inventory[rec.ProductID] = rec
	}
	return nil
}

func (s *Store) applyAdjustmentLocked(adj entity.InventoryAdjustment) (int, error) {
	rec, ok := s.inventory[adj.ProductID]
	if !ok {
		return 0, entity.ErrUnknownProduct
	}
	if rec.Quantity+adj.Delta < 0 {
		return 0, &entity.OutOfStockError{ProductID: adj.ProductID, Requested: -adj.Delta, Available: rec.Quantity}
	}
	rec.Quantity += adj.Delta
	rec.LastUpdated = time.Now()
	s.inventory[adj.ProductID] = rec
	s.adjustments = append(s.adjustments, adj)
	return rec.Quantity, nil
}

// --- OrderRepository ---

type orderRepo struct{ s *Store }

func (r *orderRepo) Save(ctx context.Context, order *entity.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.saveOrderLocked(order)
}

func (r *orderRepo) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, entity.ErrOrderNotFound
	}
	clone := cloneOrder(&o)
	return &clone, nil
}

func (r *orderRepo) FindByCustomer(ctx context.Context, customerID string) ([]entity.Order, error) {
	return r.findWhere(func(o entity.Order) bool { return o.CustomerID == customerID })
}

func (r *orderRepo) FindByStatus(ctx context.Context, status entity.OrderStatus) ([]entity.Order, error) {
	return r.findWhere(func(o entity.Order) bool { return o.Status == status })
}

func (r *orderRepo) findWhere(match func(entity.Order) bool) ([]entity.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var orders []entity.Order
	for _, o := range r.s.orders {
		if match(o) {
			orders = append(orders, cloneOrder(&o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id string, from, next entity.OrderStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return entity.ErrOrderNotFound
	}
	if o.Status != from {
		return entity.ErrInvalidStatusTransition
	}
	o.Status = next
	r.s.orders[id] = o
	return nil
}

func (r *orderRepo) AttachShipment(ctx context.Context, orderID string, shipment *entity.ShipmentRecord, from entity.OrderStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[orderID]
	if !ok {
		return entity.ErrOrderNotFound
	}
	if o.Status != from {
		return entity.ErrInvalidStatusTransition
	}
	sh := *shipment
	o.Shipment = &sh
	o.Status = entity.StatusShipped
	r.s.orders[orderID] = o
	return nil
}

func (s *Store) saveOrderLocked(order *entity.Order) error {
	if _, ok := s.orders[order.ID]; ok {
		return entity.ErrInvalidRequest
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

// --- UnitOfWork ---

// Begin takes the store lock for the lifetime of the unit, serializing
// concurrent placements. Changes are staged and applied on Commit;
// Rollback discards them, leaving no stock change and no audit entry.
func (s *Store) Begin(ctx context.Context) (repository.PlacementTx, error) {
	s.mu.Lock()
	return &placementTx{store: s}, nil
}

type placementTx struct {
	store        *Store
	reservations []entity.InventoryAdjustment
	order        *entity.Order
	done         bool
}

func (p *placementTx) Reserve(ctx context.Context, adj entity.InventoryAdjustment) (int, error) {
	rec, ok := p.store.inventory[adj.ProductID]
	if !ok {
		return 0, entity.ErrUnknownProduct
	}
	available := rec.Quantity
	for _, staged := range p.reservations {
		if staged.ProductID == adj.ProductID {
			available += staged.Delta
		}
	}
	if available+adj.Delta < 0 {
		return 0, &entity.OutOfStockError{ProductID: adj.ProductID, Requested: -adj.Delta, Available: available}
	}
	p.reservations = append(p.reservations, adj)
	return available + adj.Delta, nil
}

func (p *placementTx) SaveOrder(ctx context.Context, order *entity.Order) error {
	if _, ok := p.store.orders[order.ID]; ok {
		return entity.ErrInvalidRequest
	}
	p.order = order
	return nil
}

func (p *placementTx) Commit() error {
	if p.done {
		return nil
	}
	p.done = true
	defer p.store.mu.Unlock()

	// Reserve validated against staged state under the lock held since
	// Begin, so these cannot fail here.
	for _, adj := range p.reservations {
		if _, err := p.store.applyAdjustmentLocked(adj); err != nil {
			return err
		}
	}
	if p.order != nil {
		if err := p.store.saveOrderLocked(p.order); err != nil {
			return err
		}
	}
	return nil
}

func (p *placementTx) Rollback() error {
	if p.done {
		return nil
	}
	p.done = true
	p.store.mu.Unlock()
	return nil
}

func cloneOrder(order *entity.Order) entity.Order {
	o := *order
	o.Lines = append([]entity.OrderLine(nil), order.Lines...)
	if order.Shipment != nil {
		sh := *order.Shipment
		o.Shipment = &sh
	}
	return o
}
