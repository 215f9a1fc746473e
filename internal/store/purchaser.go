package store

import (
	"sync"

	"github.com/openwager/wagerbook/internal/domain"
)

// PurchaserStore is a thread-safe in-memory store for purchasers.
type PurchaserStore struct {
	mu         sync.RWMutex
	purchasers map[string]*domain.Purchaser
}

// NewPurchaserStore creates an empty PurchaserStore.
func NewPurchaserStore() *PurchaserStore {
	return &PurchaserStore{purchasers: make(map[string]*domain.Purchaser)}
}

// Create adds a purchaser. It returns domain.ErrPurchaserAlreadyExists if
// the ID is taken.
func (s *PurchaserStore) Create(p *domain.Purchaser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.purchasers[p.PurchaserID]; ok {
		return domain.ErrPurchaserAlreadyExists
	}
	s.purchasers[p.PurchaserID] = p
	return nil
}

// Get retrieves a purchaser by ID. It returns domain.ErrPurchaserNotFound
// if the purchaser does not exist.
func (s *PurchaserStore) Get(id string) (*domain.Purchaser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.purchasers[id]
	if !ok {
		return nil, domain.ErrPurchaserNotFound
	}
	return p, nil
}
