package engine

import (
	"log/slog"
	"time"

	"github.com/openwager/wagerbook/internal/domain"
	"github.com/openwager/wagerbook/internal/store"
)

// OpenMarket moves a market from initializing to open.
func (e *Engine) OpenMarket(marketID string) (*domain.Market, error) {
	return e.transition(marketID, domain.MarketStatusOpen)
}

// SuspendMarket pauses order intake. Cancellation and the crank keep
// working while suspended.
func (e *Engine) SuspendMarket(marketID string) (*domain.Market, error) {
	return e.transition(marketID, domain.MarketStatusSuspended)
}

// ResumeMarket reopens a suspended market.
func (e *Engine) ResumeMarket(marketID string) (*domain.Market, error) {
	m, err := e.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	st, err := e.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if m.Status != domain.MarketStatusSuspended {
		return nil, domain.ErrInvalidStatusTransition
	}
	if err := m.Transition(domain.MarketStatusOpen); err != nil {
		return nil, err
	}
	return m, nil
}

// LockMarket closes a market for new orders.
func (e *Engine) LockMarket(marketID string) (*domain.Market, error) {
	m, err := e.transition(marketID, domain.MarketStatusLocked)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	m.LockedAt = &now
	return m, nil
}

func (e *Engine) transition(marketID string, to domain.MarketStatus) (*domain.Market, error) {
	m, err := e.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	st, err := e.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := m.Transition(to); err != nil {
		return nil, err
	}
	return m, nil
}

// SettleMarket declares the winning outcome of a locked market. The
// matching queue must be fully drained first so that every matched stake
// is reflected in positions.
func (e *Engine) SettleMarket(marketID string, winningOutcome int) (*domain.Market, error) {
	m, err := e.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	st, err := e.state(marketID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !m.ValidOutcome(winningOutcome) {
		return nil, &domain.ValidationError{Message: "winning outcome index out of range"}
	}
	if st.queue.Len() > 0 {
		return nil, domain.ErrQueueNotEmpty
	}
	if err := m.Transition(domain.MarketStatusSettled); err != nil {
		return nil, err
	}
	m.WinningOutcome = &winningOutcome
	now := time.Now()
	m.SettledAt = &now

	e.logger.Info("market settled",
		slog.String("market_id", marketID),
		slog.Int("winning_outcome", winningOutcome))
	return m, nil
}

// SettlePosition pays out the matched portion of a purchaser's position
// on a settled market: their winnings on the declared outcome plus any
// exposure collateral freed beyond what unmatched orders still need. The
// remaining collateral becomes the refund budget for settling those
// orders. Idempotent via ErrAlreadySettled.
func (e *Engine) SettlePosition(marketID, purchaserID string) (int64, error) {
	m, err := e.markets.Get(marketID)
	if err != nil {
		return 0, err
	}
	st, err := e.state(marketID)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if m.Status != domain.MarketStatusSettled {
		return 0, domain.ErrInvalidStatusTransition
	}
	pos, err := e.positions.Get(purchaserID, marketID)
	if err != nil {
		return 0, err
	}
	return e.settlePositionLocked(m, st, pos)
}

func (e *Engine) settlePositionLocked(m *domain.Market, st *marketState, pos *domain.MarketPosition) (int64, error) {
	if pos.Settled {
		return 0, domain.ErrAlreadySettled
	}
	if m.WinningOutcome == nil {
		return 0, domain.ErrOutcomeNotSet
	}
	winner := *m.WinningOutcome

	// The purchaser's escrowed collateral splits three ways: winnings on
	// the declared outcome, collateral the unmatched orders still need
	// (kept as their refund budget), and surplus paid out now.
	winnings := pos.Matched[winner]
	if winnings < 0 {
		winnings = 0
	}
	loss := -pos.Matched[winner]
	if loss < 0 {
		loss = 0
	}
	collateral := pos.Exposure() - loss
	budget := pos.MaxUnmatched()
	if collateral < budget {
		budget = collateral
	}
	surplus := collateral - budget

	for i := range pos.Matched {
		pos.Matched[i] = 0
	}
	pos.RefundBudget = budget
	pos.Settled = true
	m.UnsettledCount--

	payout := winnings + surplus
	if payout > 0 {
		if err := st.escrow.Withdraw(payout); err != nil {
			return 0, err
		}
		purchaser, err := e.purchasers.Get(pos.PurchaserID)
		if err != nil {
			return 0, err
		}
		purchaser.Credit(payout)
	}
	e.recordPayout(m.MarketID, "position", pos.PurchaserID, pos.PurchaserID, "payout", payout)
	return payout, nil
}

// SettleOrder finalizes one order on a settled market, refunding the
// collateral its unmatched remainder releases, capped by the position's
// refund budget. Settles the purchaser's position first if that has not
// happened yet. Idempotent via ErrAlreadySettled.
func (e *Engine) SettleOrder(orderID string) (int64, error) {
	order, err := e.orders.Get(orderID)
	if err != nil {
		return 0, err
	}
	m, err := e.markets.Get(order.MarketID)
	if err != nil {
		return 0, err
	}
	st, err := e.state(order.MarketID)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if m.Status != domain.MarketStatusSettled {
		return 0, domain.ErrInvalidStatusTransition
	}
	if order.Settled {
		return 0, domain.ErrAlreadySettled
	}
	pos, err := e.positions.Get(order.PurchaserID, order.MarketID)
	if err != nil {
		return 0, err
	}
	if !pos.Settled {
		if _, err := e.settlePositionLocked(m, st, pos); err != nil {
			return 0, err
		}
	}

	unmatched := order.StakeUnmatched
	expBefore := pos.Exposure()
	if order.Side == domain.SideFor {
		pos.RemoveForStake(order.Outcome, unmatched)
	} else {
		pos.RemoveAgainstRisk(order.Outcome, domain.RiskFromStake(unmatched, order.Price))
	}
	refund := expBefore - pos.Exposure()
	if refund > pos.RefundBudget {
		refund = pos.RefundBudget
	}
	pos.RefundBudget -= refund

	order.StakeVoided += unmatched
	order.StakeUnmatched = 0
	order.Settled = true
	m.UnsettledCount--

	if refund > 0 {
		if err := st.escrow.Withdraw(refund); err != nil {
			return 0, err
		}
		purchaser, err := e.purchasers.Get(order.PurchaserID)
		if err != nil {
			return 0, err
		}
		purchaser.Credit(refund)
	}
	e.recordPayout(order.MarketID, "order", order.OrderID, order.PurchaserID, "refund", refund)
	return refund, nil
}

// VoidMarket aborts a market from any pre-settlement status. The market
// parks in void_pending until the matching queue is empty; force purges
// the queue immediately. Returns the resulting status.
func (e *Engine) VoidMarket(marketID string, force bool) (*domain.Market, error) {
	m, err := e.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	st, err := e.state(marketID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if m.Status != domain.MarketStatusVoidPending {
		if err := m.Transition(domain.MarketStatusVoidPending); err != nil {
			return nil, err
		}
	}
	if force {
		purged := st.queue.Purge()
		if purged > 0 {
			e.logger.Warn("matching queue purged",
				slog.String("market_id", marketID),
				slog.Int("entries", purged))
		}
	}
	if st.queue.Len() == 0 {
		if err := m.Transition(domain.MarketStatusVoided); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// VoidPosition refunds a purchaser's full exposure on a voided market.
// Idempotent via ErrAlreadySettled.
func (e *Engine) VoidPosition(marketID, purchaserID string) (int64, error) {
	m, err := e.markets.Get(marketID)
	if err != nil {
		return 0, err
	}
	st, err := e.state(marketID)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if m.Status != domain.MarketStatusVoided {
		return 0, domain.ErrInvalidStatusTransition
	}
	pos, err := e.positions.Get(purchaserID, marketID)
	if err != nil {
		return 0, err
	}
	if pos.Settled {
		return 0, domain.ErrAlreadySettled
	}

	refund := pos.Exposure()
	for i := range pos.Matched {
		pos.Matched[i] = 0
		pos.Unmatched[i] = 0
	}
	pos.RefundBudget = 0
	pos.Settled = true
	m.UnsettledCount--

	if refund > 0 {
		if err := st.escrow.Withdraw(refund); err != nil {
			return 0, err
		}
		purchaser, err := e.purchasers.Get(purchaserID)
		if err != nil {
			return 0, err
		}
		purchaser.Credit(refund)
	}
	e.recordPayout(marketID, "position", purchaserID, purchaserID, "void_refund", refund)
	return refund, nil
}

// VoidOrder finalizes one order on a voided market. Funds move at the
// position level; this only zeroes the order and counts it settled.
// Idempotent via ErrAlreadySettled.
func (e *Engine) VoidOrder(orderID string) (int64, error) {
	order, err := e.orders.Get(orderID)
	if err != nil {
		return 0, err
	}
	m, err := e.markets.Get(order.MarketID)
	if err != nil {
		return 0, err
	}
	st, err := e.state(order.MarketID)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if m.Status != domain.MarketStatusVoided {
		return 0, domain.ErrInvalidStatusTransition
	}
	if order.Settled {
		return 0, domain.ErrAlreadySettled
	}

	voided := order.Void()
	order.Status = domain.OrderStatusVoided
	order.Settled = true
	m.UnsettledCount--
	return voided, nil
}

// ReadyToClose marks a fully settled (or fully voided) market as ready
// for resource cleanup. Every order and position must be settled first.
func (e *Engine) ReadyToClose(marketID string) (*domain.Market, error) {
	m, err := e.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	st, err := e.state(marketID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.queue.Len() > 0 {
		return nil, domain.ErrQueueNotEmpty
	}
	if m.UnsettledCount != 0 {
		return nil, domain.ErrCountersNotZero
	}
	if err := m.Transition(domain.MarketStatusReadyToClose); err != nil {
		return nil, err
	}
	return m, nil
}

// CloseOrder releases a settled order's storage.
func (e *Engine) CloseOrder(orderID string) error {
	order, err := e.orders.Get(orderID)
	if err != nil {
		return err
	}
	m, err := e.markets.Get(order.MarketID)
	if err != nil {
		return err
	}
	st, err := e.state(order.MarketID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if m.Status != domain.MarketStatusReadyToClose {
		return domain.ErrInvalidStatusTransition
	}
	if !order.Settled {
		return domain.ErrOrderAlreadyFinal
	}
	e.orders.Delete(orderID)
	m.UnclosedCount--
	return nil
}

// ClosePosition releases a settled position's storage.
func (e *Engine) ClosePosition(marketID, purchaserID string) error {
	m, err := e.markets.Get(marketID)
	if err != nil {
		return err
	}
	st, err := e.state(marketID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if m.Status != domain.MarketStatusReadyToClose {
		return domain.ErrInvalidStatusTransition
	}
	pos, err := e.positions.Get(purchaserID, marketID)
	if err != nil {
		return err
	}
	if !pos.Settled {
		return domain.ErrOrderAlreadyFinal
	}
	e.positions.Delete(purchaserID, marketID)
	m.UnclosedCount--
	return nil
}

// CloseMarket retires a fully drained market. Any residual escrow left by
// dropped queue entries is swept to the market authority's record and
// logged; conservation holds because the residue was paid in and never
// owed back to a live position.
func (e *Engine) CloseMarket(marketID string) (*domain.Market, error) {
	m, err := e.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	st, err := e.state(marketID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if m.Status == domain.MarketStatusClosed {
		return nil, domain.ErrAlreadyClosed
	}
	if m.UnclosedCount != 0 {
		return nil, domain.ErrCountersNotZero
	}
	if err := m.Transition(domain.MarketStatusClosed); err != nil {
		return nil, err
	}
	if residue := st.escrow.Drain(); residue > 0 {
		e.logger.Warn("escrow residue swept at close",
			slog.String("market_id", marketID),
			slog.Int64("amount", residue))
		e.recordPayout(marketID, "sweep", marketID, m.AuthorityID, "sweep", residue)
	}
	return m, nil
}

func (e *Engine) recordPayout(marketID, entityType, entityID, purchaserID string, kind string, amount int64) {
	if e.history == nil {
		return
	}
	rec := store.PayoutRecord{
		MarketID:    marketID,
		EntityType:  entityType,
		EntityID:    entityID,
		PurchaserID: purchaserID,
		Kind:        kind,
		Amount:      amount,
		PaidAt:      time.Now(),
	}
	if err := e.history.RecordPayout(rec); err != nil {
		e.logger.Error("record payout", slog.String("market_id", marketID), slog.String("error", err.Error()))
	}
}
