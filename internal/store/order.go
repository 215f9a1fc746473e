package store

import (
	"sync"

	"github.com/openwager/wagerbook/internal/domain"
)

// OrderStore is a thread-safe in-memory store for orders, with a primary
// index by order_id and secondary indexes by market and purchaser.
type OrderStore struct {
	mu              sync.RWMutex
	orders          map[string]*domain.Order
	marketOrders    map[string][]*domain.Order // market_id → orders (append-only)
	purchaserOrders map[string][]*domain.Order // purchaser_id → orders (append-only)
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:          make(map[string]*domain.Order),
		marketOrders:    make(map[string][]*domain.Order),
		purchaserOrders: make(map[string][]*domain.Order),
	}
}

// Create adds an order to the store and its secondary indexes.
func (s *OrderStore) Create(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.OrderID] = o
	s.marketOrders[o.MarketID] = append(s.marketOrders[o.MarketID], o)
	s.purchaserOrders[o.PurchaserID] = append(s.purchaserOrders[o.PurchaserID], o)
}

// Get retrieves an order by ID. It returns domain.ErrOrderNotFound if the
// order does not exist.
func (s *OrderStore) Get(id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// ListByMarket returns all orders of a market in creation order.
func (s *OrderStore) ListByMarket(marketID string) []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.marketOrders[marketID]
	out := make([]*domain.Order, len(all))
	copy(out, all)
	return out
}

// ListByPurchaser returns all orders of a purchaser in creation order.
func (s *OrderStore) ListByPurchaser(purchaserID string) []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.purchaserOrders[purchaserID]
	out := make([]*domain.Order, len(all))
	copy(out, all)
	return out
}

// Delete removes a closed order from the store and its market index.
// The purchaser index keeps its (now dangling) reference trimmed too.
func (s *OrderStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return
	}
	delete(s.orders, id)
	s.marketOrders[o.MarketID] = removeOrder(s.marketOrders[o.MarketID], id)
	s.purchaserOrders[o.PurchaserID] = removeOrder(s.purchaserOrders[o.PurchaserID], id)
}

func removeOrder(orders []*domain.Order, id string) []*domain.Order {
	for i, o := range orders {
		if o.OrderID == id {
			return append(orders[:i], orders[i+1:]...)
		}
	}
	return orders
}
