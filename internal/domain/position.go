package domain

// MarketPosition is a purchaser's net exposure on one market: one signed
// matched value and one non-negative unmatched value per outcome. It is the
// sole source of truth for payment, refund, and payout computation.
//
// Matched[o] is the purchaser's profit (positive) or liability (negative)
// if outcome o wins, over the matched portion of their orders. Unmatched[o]
// is the worst-case liability of resting stake if outcome o wins.
type MarketPosition struct {
	PurchaserID string
	MarketID    string
	Matched     []int64
	Unmatched   []int64

	// Settled is set once the matched side has been paid out or voided.
	Settled bool
	// RefundBudget is the escrow still backing this purchaser's unmatched
	// order refunds after the position has settled. Order settlement draws
	// it down; it never goes negative.
	RefundBudget int64
}

// NewMarketPosition creates a zero position for a market with the given
// outcome count.
func NewMarketPosition(purchaserID, marketID string, outcomes int) *MarketPosition {
	return &MarketPosition{
		PurchaserID: purchaserID,
		MarketID:    marketID,
		Matched:     make([]int64, outcomes),
		Unmatched:   make([]int64, outcomes),
	}
}

// Exposure is the purchaser's worst-case liability across all outcomes:
// max over o of Unmatched[o] + max(0, −Matched[o]). The market escrow
// balance equals the sum of exposures over all positions; every mutation
// pays in or refunds the exposure delta.
func (p *MarketPosition) Exposure() int64 {
	var worst int64
	for o := range p.Matched {
		e := p.Unmatched[o]
		if p.Matched[o] < 0 {
			e -= p.Matched[o]
		}
		if e > worst {
			worst = e
		}
	}
	return worst
}

// MaxUnmatched is the largest per-outcome unmatched liability.
func (p *MarketPosition) MaxUnmatched() int64 {
	var worst int64
	for _, u := range p.Unmatched {
		if u > worst {
			worst = u
		}
	}
	return worst
}

// AddForStake records resting for-stake on an outcome: the stake is at risk
// on every other outcome.
func (p *MarketPosition) AddForStake(outcome int, stake int64) {
	for o := range p.Unmatched {
		if o != outcome {
			p.Unmatched[o] += stake
		}
	}
}

// RemoveForStake reverses AddForStake for cancellation or settlement of
// unmatched for-stake.
func (p *MarketPosition) RemoveForStake(outcome int, stake int64) {
	for o := range p.Unmatched {
		if o != outcome {
			p.Unmatched[o] -= stake
		}
	}
}

// AddAgainstRisk records resting against-liability on an outcome.
func (p *MarketPosition) AddAgainstRisk(outcome int, risk int64) {
	p.Unmatched[outcome] += risk
}

// RemoveAgainstRisk reverses AddAgainstRisk.
func (p *MarketPosition) RemoveAgainstRisk(outcome int, risk int64) {
	p.Unmatched[outcome] -= risk
}

// MatchFor converts stake of a for-order on outcome into matched exposure
// at the matched price: profit risk×1 on the outcome, liability stake on
// every other outcome. risk is RiskFromStake(stake, matchedPrice).
func (p *MarketPosition) MatchFor(outcome int, stake, risk int64) {
	p.Matched[outcome] += risk
	for o := range p.Matched {
		if o != outcome {
			p.Matched[o] -= stake
			p.Unmatched[o] -= stake
		}
	}
}

// MatchAgainst converts stake of an against-order on outcome into matched
// exposure. reservedRisk is the liability recorded at the order's limit
// price; matchedRisk is the liability at the actual matched price (equal or
// better, so exposure never increases).
func (p *MarketPosition) MatchAgainst(outcome int, stake, reservedRisk, matchedRisk int64) {
	p.Unmatched[outcome] -= reservedRisk
	p.Matched[outcome] -= matchedRisk
	for o := range p.Matched {
		if o != outcome {
			p.Matched[o] += stake
		}
	}
}
