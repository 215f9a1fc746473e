package store

import (
	"sync"

	"github.com/openwager/wagerbook/internal/domain"
)

// positionKey identifies a position by purchaser and market.
type positionKey struct {
	purchaserID string
	marketID    string
}

// PositionStore is a thread-safe in-memory store for market positions.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[positionKey]*domain.MarketPosition
	byMarket  map[string][]*domain.MarketPosition // market_id → positions (append-only)
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions: make(map[positionKey]*domain.MarketPosition),
		byMarket:  make(map[string][]*domain.MarketPosition),
	}
}

// Get retrieves a position. It returns domain.ErrPositionNotFound if the
// purchaser has no position on the market.
func (s *PositionStore) Get(purchaserID, marketID string) (*domain.MarketPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[positionKey{purchaserID, marketID}]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	return p, nil
}

// GetOrCreate returns the purchaser's position on the market, creating a
// zero position if none exists. Reports whether it was created.
func (s *PositionStore) GetOrCreate(purchaserID, marketID string, outcomes int) (*domain.MarketPosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey{purchaserID, marketID}
	if p, ok := s.positions[key]; ok {
		return p, false
	}
	p := domain.NewMarketPosition(purchaserID, marketID, outcomes)
	s.positions[key] = p
	s.byMarket[marketID] = append(s.byMarket[marketID], p)
	return p, true
}

// ListByMarket returns all positions on a market in creation order.
func (s *PositionStore) ListByMarket(marketID string) []*domain.MarketPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byMarket[marketID]
	out := make([]*domain.MarketPosition, len(all))
	copy(out, all)
	return out
}

// Delete removes a closed position.
func (s *PositionStore) Delete(purchaserID, marketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey{purchaserID, marketID}
	p, ok := s.positions[key]
	if !ok {
		return
	}
	delete(s.positions, key)
	list := s.byMarket[marketID]
	for i, q := range list {
		if q == p {
			s.byMarket[marketID] = append(list[:i], list[i+1:]...)
			break
		}
	}
}
