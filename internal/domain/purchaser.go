package domain

import (
	"sync"
	"time"
)

// Purchaser represents a registered participant and their token balance.
// Escrow payments draw from Balance; refunds and payouts credit it.
type Purchaser struct {
	PurchaserID string
	Balance     int64 // cents
	CreatedAt   time.Time
	Mu          sync.Mutex // per-purchaser lock for balance mutations
}

// Debit removes amount from the balance, failing with ErrInsufficientFunds
// when the balance cannot cover it.
func (p *Purchaser) Debit(amount int64) error {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	if p.Balance < amount {
		return ErrInsufficientFunds
	}
	p.Balance -= amount
	return nil
}

// Credit adds amount to the balance.
func (p *Purchaser) Credit(amount int64) {
	p.Mu.Lock()
	p.Balance += amount
	p.Mu.Unlock()
}

// CurrentBalance returns the balance under the purchaser lock.
func (p *Purchaser) CurrentBalance() int64 {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return p.Balance
}
