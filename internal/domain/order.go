package domain

import "time"

// Side indicates whether an order backs an outcome to happen (for) or not
// to happen (against).
type Side string

const (
	SideFor     Side = "for"
	SideAgainst Side = "against"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideFor {
		return SideAgainst
	}
	return SideFor
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusVoided    OrderStatus = "voided"
)

// Order represents a single stake instruction submitted by a purchaser.
// Side and Price are immutable after creation. The stake conservation
// invariant StakeMatched + StakeUnmatched + StakeVoided == StakeOriginal
// holds at all times.
type Order struct {
	OrderID     string
	MarketID    string
	PurchaserID string
	Outcome     int
	Side        Side
	Price       Price // limit price, always on the market's ladder

	StakeOriginal  int64
	StakeUnmatched int64
	StakeMatched   int64
	StakeVoided    int64 // stake removed by cancellation or market void

	// ExpectedPayout accumulates stake × matched price across fills.
	ExpectedPayout int64

	Status    OrderStatus
	Settled   bool // set once settlement has released this order's escrow
	CreatedAt time.Time

	CancelledAt *time.Time
}

// IsFinal reports whether the order can no longer participate in matching.
func (o *Order) IsFinal() bool {
	return o.Status == OrderStatusCancelled || o.Status == OrderStatusVoided ||
		(o.Status == OrderStatusMatched && o.StakeUnmatched == 0)
}

// ApplyMatch moves stake from unmatched to matched at the given price and
// updates the expected payout. The caller guarantees stake ≤ StakeUnmatched.
func (o *Order) ApplyMatch(stake int64, price Price) {
	o.StakeUnmatched -= stake
	o.StakeMatched += stake
	o.ExpectedPayout += decimalPayout(stake, price)
	if o.StakeUnmatched == 0 {
		o.Status = OrderStatusMatched
	}
}

// decimalPayout is stake × price in cents, rounded half away from zero.
func decimalPayout(stake int64, price Price) int64 {
	return stake + RiskFromStake(stake, price)
}

// Void moves all unmatched stake to voided. Used by cancellation and by
// market voiding; idempotent on an already-drained order.
func (o *Order) Void() int64 {
	v := o.StakeUnmatched
	o.StakeVoided += v
	o.StakeUnmatched = 0
	return v
}

// ConservationHolds reports the per-order stake invariant.
func (o *Order) ConservationHolds() bool {
	return o.StakeMatched+o.StakeUnmatched+o.StakeVoided == o.StakeOriginal
}
