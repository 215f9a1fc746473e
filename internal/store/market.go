package store

import (
	"sync"

	"github.com/openwager/wagerbook/internal/domain"
)

// MarketStore is a thread-safe in-memory store for markets.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[string]*domain.Market
}

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{markets: make(map[string]*domain.Market)}
}

// Create adds a market to the store.
func (s *MarketStore) Create(m *domain.Market) {
	s.mu.Lock()
	s.markets[m.MarketID] = m
	s.mu.Unlock()
}

// Get retrieves a market by ID. It returns domain.ErrMarketNotFound if the
// market does not exist.
func (s *MarketStore) Get(id string) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return m, nil
}

// List returns all markets in unspecified order.
func (s *MarketStore) List() []*domain.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	return out
}
