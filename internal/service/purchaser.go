package service

import (
	"regexp"
	"time"

	"github.com/openwager/wagerbook/internal/domain"
	"github.com/openwager/wagerbook/internal/store"
)

var purchaserIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// RegisterPurchaserRequest represents the input for purchaser registration.
type RegisterPurchaserRequest struct {
	PurchaserID    string
	InitialBalance float64
}

// BalanceResponse represents the response for the balance endpoint.
type BalanceResponse struct {
	PurchaserID string `json:"purchaser_id"`
	Balance     int64  `json:"balance"`
}

// PurchaserService handles purchaser registration and wallet operations.
type PurchaserService struct {
	store *store.PurchaserStore
}

// NewPurchaserService creates a new PurchaserService.
func NewPurchaserService(store *store.PurchaserStore) *PurchaserService {
	return &PurchaserService{store: store}
}

// Register validates the request and creates a purchaser wallet.
func (s *PurchaserService) Register(req RegisterPurchaserRequest) (*domain.Purchaser, error) {
	if !purchaserIDRegex.MatchString(req.PurchaserID) {
		return nil, &domain.ValidationError{
			Message: "purchaser_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if req.InitialBalance < 0 {
		return nil, &domain.ValidationError{
			Message: "initial_balance must be >= 0",
		}
	}
	cents, err := domain.DollarsToCents(req.InitialBalance)
	if err != nil {
		return nil, &domain.ValidationError{
			Message: "initial_balance must have at most 2 decimal places",
		}
	}

	p := &domain.Purchaser{
		PurchaserID: req.PurchaserID,
		Balance:     cents,
		CreatedAt:   time.Now(),
	}
	if err := s.store.Create(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Deposit adds funds to a purchaser's wallet.
func (s *PurchaserService) Deposit(purchaserID string, amount float64) (*BalanceResponse, error) {
	if amount <= 0 {
		return nil, &domain.ValidationError{Message: "amount must be > 0"}
	}
	cents, err := domain.DollarsToCents(amount)
	if err != nil {
		return nil, &domain.ValidationError{
			Message: "amount must have at most 2 decimal places",
		}
	}
	p, err := s.store.Get(purchaserID)
	if err != nil {
		return nil, err
	}
	p.Credit(cents)
	return &BalanceResponse{PurchaserID: p.PurchaserID, Balance: p.CurrentBalance()}, nil
}

// Balance returns a purchaser's current wallet balance.
func (s *PurchaserService) Balance(purchaserID string) (*BalanceResponse, error) {
	p, err := s.store.Get(purchaserID)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{PurchaserID: p.PurchaserID, Balance: p.CurrentBalance()}, nil
}
