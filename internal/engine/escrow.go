package engine

import "github.com/openwager/wagerbook/internal/domain"

// Escrow is the pooled balance holding all funds at risk on one market.
// Its balance always equals the sum of purchaser exposures: the amount
// owed back to purchasers if the market voided right now. The engine is
// the only writer.
type Escrow struct {
	marketID string
	balance  int64
}

// NewEscrow creates an empty escrow for a market.
func NewEscrow(marketID string) *Escrow {
	return &Escrow{marketID: marketID}
}

// Deposit adds amount to the pool.
func (e *Escrow) Deposit(amount int64) {
	e.balance += amount
}

// Withdraw removes amount from the pool. A withdrawal the pool cannot
// cover means a conservation invariant has already been broken, so it
// fails rather than going negative.
func (e *Escrow) Withdraw(amount int64) error {
	if amount > e.balance {
		return domain.ErrInsufficientFunds
	}
	e.balance -= amount
	return nil
}

// Balance returns the pooled balance.
func (e *Escrow) Balance() int64 {
	return e.balance
}

// Drain empties the pool, returning what was left. Used by the close
// sweep for any residue left by best-effort queue drops.
func (e *Escrow) Drain() int64 {
	v := e.balance
	e.balance = 0
	return v
}
