package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusInitializing MarketStatus = "initializing"
	MarketStatusOpen         MarketStatus = "open"
	MarketStatusSuspended    MarketStatus = "suspended"
	MarketStatusLocked       MarketStatus = "locked"
	MarketStatusSettled      MarketStatus = "settled"
	MarketStatusVoidPending  MarketStatus = "void_pending"
	MarketStatusVoided       MarketStatus = "voided"
	MarketStatusReadyToClose MarketStatus = "ready_to_close"
	MarketStatusClosed       MarketStatus = "closed"
)

// legalTransitions is the fixed partial order of market status transitions.
// Transitions are monotone: once past Locked a market never trades again.
var legalTransitions = map[MarketStatus][]MarketStatus{
	MarketStatusInitializing: {MarketStatusOpen, MarketStatusVoidPending},
	MarketStatusOpen:         {MarketStatusSuspended, MarketStatusLocked, MarketStatusVoidPending},
	MarketStatusSuspended:    {MarketStatusOpen, MarketStatusLocked, MarketStatusVoidPending},
	MarketStatusLocked:       {MarketStatusSettled, MarketStatusVoidPending},
	MarketStatusVoidPending:  {MarketStatusVoided},
	MarketStatusSettled:      {MarketStatusReadyToClose},
	MarketStatusVoided:       {MarketStatusReadyToClose},
	MarketStatusReadyToClose: {MarketStatusClosed},
}

// CanTransition reports whether moving from to next is a legal transition.
func CanTransition(from, to MarketStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Market represents a single event with a fixed set of mutually exclusive
// outcomes, a discrete price ladder, and the status machine that gates
// every engine operation.
type Market struct {
	MarketID            string
	Title               string
	AuthorityID         string // operator allowed to run privileged transitions
	OutcomeCount        int
	OutcomeTitles       []string
	PriceLadder         PriceLadder
	Status              MarketStatus
	EnableCrossMatching bool
	WinningOutcome      *int // set once status reaches settled

	// Dependent-account counters. Unsettled is decremented exactly once per
	// settled/voided order and position; Unclosed once per closed entity.
	// Both must reach zero before the market can close.
	UnsettledCount int
	UnclosedCount  int

	// StakeMatchedTotal accumulates all stake ever matched on this market.
	StakeMatchedTotal int64

	CreatedAt time.Time
	LockedAt  *time.Time
	SettledAt *time.Time
}

// Transition moves the market to the next status, returning
// ErrInvalidStatusTransition if the move is not in the partial order.
func (m *Market) Transition(to MarketStatus) error {
	if !CanTransition(m.Status, to) {
		return ErrInvalidStatusTransition
	}
	m.Status = to
	return nil
}

// AcceptsOrders reports whether new stake may be submitted.
func (m *Market) AcceptsOrders() bool {
	return m.Status == MarketStatusOpen
}

// ValidOutcome reports whether the outcome index exists on this market.
func (m *Market) ValidOutcome(outcome int) bool {
	return outcome >= 0 && outcome < m.OutcomeCount
}
