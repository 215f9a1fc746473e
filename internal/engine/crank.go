package engine

import (
	"log/slog"

	"github.com/openwager/wagerbook/internal/domain"
)

// CrankResult reports one crank run. Dropped counts queue entries whose
// maker pool had no remaining orders; their escrow stays pooled until the
// market closes.
type CrankResult struct {
	Processed int `json:"processed"`
	Dropped   int `json:"dropped"`
}

// Crank drains up to maxEntries pending matching-queue entries, applying
// the maker side of earlier pairings. Makers are claimed from the FIFO
// pool of their price level, oldest first. An entry whose pool is empty
// (makers cancelled since the pairing) is dropped; pairing is best-effort
// and never retried. maxEntries <= 0 drains the whole queue.
func (e *Engine) Crank(marketID string, maxEntries int) (CrankResult, error) {
	var res CrankResult

	market, err := e.markets.Get(marketID)
	if err != nil {
		return res, err
	}
	st, err := e.state(marketID)
	if err != nil {
		return res, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	switch market.Status {
	case domain.MarketStatusOpen, domain.MarketStatusSuspended,
		domain.MarketStatusLocked, domain.MarketStatusVoidPending:
	default:
		return res, domain.ErrMarketNotOpen
	}

	for maxEntries <= 0 || res.Processed+res.Dropped < maxEntries {
		entry, ok := st.queue.Dequeue()
		if !ok {
			break
		}
		applied, err := e.applyQueueEntry(st, entry)
		if err != nil {
			return res, err
		}
		if applied {
			res.Processed++
		} else {
			res.Dropped++
			e.logger.Info("queue entry dropped, maker pool empty",
				slog.String("market_id", marketID),
				slog.String("side", string(entry.Side)),
				slog.Int("outcome", entry.Outcome),
				slog.String("price", entry.Price.String()),
				slog.Int64("stake", entry.Stake))
		}
	}

	// Void completion waits on an empty queue.
	if market.Status == domain.MarketStatusVoidPending && st.queue.Len() == 0 {
		if err := market.Transition(domain.MarketStatusVoided); err != nil {
			return res, err
		}
	}

	return res, nil
}

// applyQueueEntry fills one queue entry from its maker pool. Reports
// whether any stake was applied.
func (e *Engine) applyQueueEntry(st *marketState, entry QueueEntry) (bool, error) {
	key := PoolKey{Side: entry.Side, Outcome: entry.Outcome, Price: entry.Price}
	remaining := entry.Stake
	applied := false

	for remaining > 0 {
		orderID, ok := st.queue.PoolPeek(key)
		if !ok {
			break
		}
		order, err := e.orders.Get(orderID)
		if err != nil || order.StakeUnmatched == 0 {
			st.queue.PoolDequeue(key)
			continue
		}

		stake := remaining
		if order.StakeUnmatched < stake {
			stake = order.StakeUnmatched
		}

		pos, err := e.positions.Get(order.PurchaserID, order.MarketID)
		if err != nil {
			return applied, err
		}
		purchaser, err := e.purchasers.Get(order.PurchaserID)
		if err != nil {
			return applied, err
		}

		expBefore := pos.Exposure()
		if order.Side == domain.SideFor {
			pos.MatchFor(order.Outcome, stake, domain.RiskFromStake(stake, order.Price))
		} else {
			reserved := reservedRiskDelta(order.StakeUnmatched, stake, order.Price)
			pos.MatchAgainst(order.Outcome, stake, reserved, domain.RiskFromStake(stake, order.Price))
		}
		order.ApplyMatch(stake, order.Price)

		// Matching at the maker's own price never increases exposure.
		refund := expBefore - pos.Exposure()
		if refund > 0 {
			if err := st.escrow.Withdraw(refund); err != nil {
				return applied, err
			}
			purchaser.Credit(refund)
		}

		e.recordTrade(order.MarketID, order, order.Price, stake)

		remaining -= stake
		applied = true
		if order.StakeUnmatched == 0 {
			st.queue.PoolDequeue(key)
		}
	}

	return applied, nil
}
