package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openwager/wagerbook/internal/domain"
	"github.com/openwager/wagerbook/internal/store"
)

// marketState bundles the per-market mutable engine state: the liquidity
// book, the matching queue, and the escrow pool. All mutations of one
// market happen under its lock, giving every operation a total order.
type marketState struct {
	mu     sync.Mutex
	book   *LiquidityBook
	queue  *MatchingQueue
	escrow *Escrow
}

// Engine is the order-matching, liquidity-aggregation, and settlement
// engine. Each operation either fully completes against current state or
// fails atomically with no partial mutation; the conservation invariant
// (escrow balance == sum of position exposures) holds at every return.
type Engine struct {
	markets    *store.MarketStore
	orders     *store.OrderStore
	positions  *store.PositionStore
	purchasers *store.PurchaserStore
	history    *store.HistoryStore // optional audit trail, may be nil
	logger     *slog.Logger

	mu     sync.RWMutex
	states map[string]*marketState
}

// NewEngine creates an Engine with the given dependencies. history may be
// nil to disable the audit trail.
func NewEngine(
	markets *store.MarketStore,
	orders *store.OrderStore,
	positions *store.PositionStore,
	purchasers *store.PurchaserStore,
	history *store.HistoryStore,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		markets:    markets,
		orders:     orders,
		positions:  positions,
		purchasers: purchasers,
		history:    history,
		logger:     logger,
		states:     make(map[string]*marketState),
	}
}

// RegisterMarket stores a new market and initializes its engine state.
func (e *Engine) RegisterMarket(m *domain.Market) {
	e.markets.Create(m)
	e.mu.Lock()
	e.states[m.MarketID] = &marketState{
		book:   NewLiquidityBook(),
		queue:  NewMatchingQueue(),
		escrow: NewEscrow(m.MarketID),
	}
	e.mu.Unlock()
}

// state returns the engine state for a market.
func (e *Engine) state(marketID string) (*marketState, error) {
	e.mu.RLock()
	st, ok := e.states[marketID]
	e.mu.RUnlock()
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return st, nil
}

// PlaceOrderRequest is the input for stake submission.
type PlaceOrderRequest struct {
	MarketID    string
	PurchaserID string
	Outcome     int
	Side        domain.Side
	Price       domain.Price
	Stake       int64
}

// bookMatch is one chunk of resting liquidity consumed by an incoming
// order, collected during the match walk and applied afterwards.
type bookMatch struct {
	entry LiquidityEntry
	stake int64
}

// reservedRiskDelta is the reserved-liability release when an against
// order's unmatched stake drops by stake. Computed as a difference of
// totals so that piecewise releases telescope to the amount originally
// reserved regardless of rounding.
func reservedRiskDelta(unmatched, stake int64, price domain.Price) int64 {
	return domain.RiskFromStake(unmatched, price) - domain.RiskFromStake(unmatched-stake, price)
}

// PlaceOrder processes an incoming stake request. It charges the
// purchaser the marginal increase in their worst-case exposure, matches
// immediately against the best opposing resting liquidity (including
// cross-matched liquidity), enqueues the maker-side pairing work for the
// crank, rests any unmatched remainder on the book, and refunds any
// exposure released by the immediate matches.
func (e *Engine) PlaceOrder(req PlaceOrderRequest) (*domain.Order, error) {
	market, err := e.markets.Get(req.MarketID)
	if err != nil {
		return nil, err
	}
	purchaser, err := e.purchasers.Get(req.PurchaserID)
	if err != nil {
		return nil, err
	}
	st, err := e.state(req.MarketID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !market.AcceptsOrders() {
		if market.Status == domain.MarketStatusLocked {
			return nil, domain.ErrMarketLocked
		}
		return nil, domain.ErrMarketNotOpen
	}
	if !market.ValidOutcome(req.Outcome) {
		return nil, &domain.ValidationError{Message: "outcome index out of range"}
	}
	if req.Side != domain.SideFor && req.Side != domain.SideAgainst {
		return nil, &domain.ValidationError{Message: "side must be 'for' or 'against'"}
	}
	if !market.PriceLadder.Contains(req.Price) {
		return nil, &domain.ValidationError{Message: "price is not on the market's price ladder"}
	}
	if req.Stake <= 0 {
		return nil, &domain.ValidationError{Message: "stake must be a positive amount"}
	}

	pos, created := e.positions.GetOrCreate(req.PurchaserID, req.MarketID, market.OutcomeCount)

	// Charge the marginal worst-case exposure of the full stake up front;
	// immediate matches below refund whatever they release.
	limitRisk := req.Stake
	if req.Side == domain.SideAgainst {
		limitRisk = domain.RiskFromStake(req.Stake, req.Price)
	}
	expBefore := pos.Exposure()
	if req.Side == domain.SideFor {
		pos.AddForStake(req.Outcome, req.Stake)
	} else {
		pos.AddAgainstRisk(req.Outcome, limitRisk)
	}
	payment := pos.Exposure() - expBefore

	if err := purchaser.Debit(payment); err != nil {
		// Reverse the exposure and forget an empty just-created position.
		if req.Side == domain.SideFor {
			pos.RemoveForStake(req.Outcome, req.Stake)
		} else {
			pos.RemoveAgainstRisk(req.Outcome, limitRisk)
		}
		if created {
			e.positions.Delete(req.PurchaserID, req.MarketID)
		}
		return nil, domain.ErrInsufficientFunds
	}
	st.escrow.Deposit(payment)
	expPaid := expBefore + payment

	order := &domain.Order{
		OrderID:        uuid.New().String(),
		MarketID:       req.MarketID,
		PurchaserID:    req.PurchaserID,
		Outcome:        req.Outcome,
		Side:           req.Side,
		Price:          req.Price,
		StakeOriginal:  req.Stake,
		StakeUnmatched: req.Stake,
		Status:         domain.OrderStatusOpen,
		CreatedAt:      time.Now(),
	}

	// Immediate match walk: a for order consumes against liquidity priced
	// at or above its limit, an against order consumes for liquidity
	// priced at or below its limit. Entries iterate best price first.
	oppSide := req.Side.Opposite()
	var matches []bookMatch
	st.book.EntriesFor(oppSide, req.Outcome, func(entry LiquidityEntry) bool {
		if order.StakeUnmatched == 0 {
			return false
		}
		if req.Side == domain.SideFor && entry.Price < req.Price {
			return false
		}
		if req.Side == domain.SideAgainst && entry.Price > req.Price {
			return false
		}

		stake := entry.Stake
		if order.StakeUnmatched < stake {
			stake = order.StakeUnmatched
		}
		if stake == 0 {
			return true
		}

		e.applyTakerMatch(market, st, order, pos, entry, stake)
		matches = append(matches, bookMatch{entry: entry, stake: stake})
		return true
	})

	// Remove the consumed liquidity. For cross-matched entries the stake
	// comes out of each source level; the derived entries themselves are
	// recomputed from what remains.
	for _, m := range matches {
		if err := st.book.Remove(oppSide, req.Outcome, m.entry.Price, m.entry.Sources, m.stake); err != nil {
			return nil, err
		}
		for _, src := range m.entry.Sources {
			srcStake := domain.StakeCross(m.stake, m.entry.Price, src.Price)
			if err := st.book.Remove(req.Side, src.Outcome, src.Price, nil, srcStake); err != nil {
				return nil, err
			}
		}
		market.StakeMatchedTotal += m.stake
	}

	// Rest the remainder and join the FIFO pool for this level.
	if order.StakeUnmatched > 0 {
		st.book.Add(req.Side, req.Outcome, req.Price, order.StakeUnmatched)
		st.queue.PoolEnqueue(PoolKey{Side: req.Side, Outcome: req.Outcome, Price: req.Price}, order.OrderID)
	}

	// Refund exposure released by the immediate matches.
	refund := expPaid - pos.Exposure()
	if refund > 0 {
		if err := st.escrow.Withdraw(refund); err != nil {
			return nil, err
		}
		purchaser.Credit(refund)
	}

	e.orders.Create(order)
	market.UnsettledCount++
	market.UnclosedCount++
	if created {
		market.UnsettledCount++
		market.UnclosedCount++
	}

	return order, nil
}

// applyTakerMatch updates the incoming order and its position for one
// consumed chunk and enqueues the maker-side pairing work: one entry for
// direct liquidity, one entry per source level for cross-matched
// liquidity.
func (e *Engine) applyTakerMatch(market *domain.Market, st *marketState, order *domain.Order, pos *domain.MarketPosition, entry LiquidityEntry, stake int64) {
	if len(entry.Sources) == 0 {
		st.queue.Enqueue(QueueEntry{
			Side:    order.Side.Opposite(),
			Outcome: order.Outcome,
			Price:   entry.Price,
			Stake:   stake,
		})
	} else {
		for _, src := range entry.Sources {
			st.queue.Enqueue(QueueEntry{
				Side:    order.Side,
				Outcome: src.Outcome,
				Price:   src.Price,
				Stake:   domain.StakeCross(stake, entry.Price, src.Price),
			})
		}
	}

	if order.Side == domain.SideFor {
		risk := domain.RiskFromStake(stake, entry.Price)
		pos.MatchFor(order.Outcome, stake, risk)
	} else {
		reserved := reservedRiskDelta(order.StakeUnmatched, stake, order.Price)
		matched := domain.RiskFromStake(stake, entry.Price)
		pos.MatchAgainst(order.Outcome, stake, reserved, matched)
	}
	order.ApplyMatch(stake, entry.Price)

	e.recordTrade(market.MarketID, order, entry.Price, stake)
}

// recordTrade appends an audit row when the history store is configured.
func (e *Engine) recordTrade(marketID string, order *domain.Order, price domain.Price, stake int64) {
	if e.history == nil {
		return
	}
	rec := store.TradeRecord{
		TradeID:    uuid.New().String(),
		MarketID:   marketID,
		OrderID:    order.OrderID,
		Outcome:    order.Outcome,
		Side:       string(order.Side),
		Price:      int64(price),
		Stake:      stake,
		ExecutedAt: time.Now(),
	}
	if err := e.history.RecordTrade(rec); err != nil {
		e.logger.Error("record trade", slog.String("order_id", order.OrderID), slog.String("error", err.Error()))
	}
}

// CancelOrder cancels an order's unmatched remainder, removing it from the
// book and refunding the released exposure. Stake already claimed by a
// pending matching-queue entry is no longer on the book and cannot be
// cancelled: it stays on the order until the crank pairs it. An order
// left with only claimed stake remains open and pooled.
func (e *Engine) CancelOrder(orderID string) (*domain.Order, error) {
	order, err := e.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.IsFinal() || order.Settled {
		return nil, domain.ErrOrderAlreadyFinal
	}

	market, err := e.markets.Get(order.MarketID)
	if err != nil {
		return nil, err
	}
	st, err := e.state(order.MarketID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	// Re-check under the lock: a queue drain may have finished the order.
	if order.IsFinal() || order.Settled {
		return nil, domain.ErrOrderAlreadyFinal
	}
	switch market.Status {
	case domain.MarketStatusOpen, domain.MarketStatusSuspended, domain.MarketStatusLocked:
	default:
		return nil, domain.ErrMarketNotOpen
	}

	purchaser, err := e.purchasers.Get(order.PurchaserID)
	if err != nil {
		return nil, err
	}
	pos, err := e.positions.Get(order.PurchaserID, order.MarketID)
	if err != nil {
		return nil, err
	}

	var available int64
	if entry, ok := st.book.Get(order.Side, order.Outcome, order.Price); ok {
		available = entry.Stake
	}
	cancellable := order.StakeUnmatched
	if available < cancellable {
		cancellable = available
	}
	if cancellable == 0 {
		return nil, domain.ErrInsufficientLiquidity
	}
	if err := st.book.Remove(order.Side, order.Outcome, order.Price, nil, cancellable); err != nil {
		return nil, err
	}

	expBefore := pos.Exposure()
	if order.Side == domain.SideFor {
		pos.RemoveForStake(order.Outcome, cancellable)
	} else {
		pos.RemoveAgainstRisk(order.Outcome, reservedRiskDelta(order.StakeUnmatched, cancellable, order.Price))
	}
	refund := expBefore - pos.Exposure()
	if refund > 0 {
		if err := st.escrow.Withdraw(refund); err != nil {
			return nil, err
		}
		purchaser.Credit(refund)
	}

	order.StakeUnmatched -= cancellable
	order.StakeVoided += cancellable
	if order.StakeUnmatched == 0 {
		st.queue.PoolRemove(PoolKey{Side: order.Side, Outcome: order.Outcome, Price: order.Price}, order.OrderID)
		order.Status = domain.OrderStatusCancelled
		now := time.Now()
		order.CancelledAt = &now
	}

	return order, nil
}

// GetMarket returns a market by ID.
func (e *Engine) GetMarket(marketID string) (*domain.Market, error) {
	return e.markets.Get(marketID)
}

// ListMarkets returns all registered markets.
func (e *Engine) ListMarkets() []*domain.Market {
	return e.markets.List()
}

// GetOrder returns an order by ID.
func (e *Engine) GetOrder(orderID string) (*domain.Order, error) {
	return e.orders.Get(orderID)
}

// BookSnapshot returns the current liquidity of both sides of a market.
func (e *Engine) BookSnapshot(marketID string) (forSide, againstSide []LiquidityEntry, err error) {
	st, err := e.state(marketID)
	if err != nil {
		return nil, nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	f, a := st.book.Snapshot()
	return f, a, nil
}

// QueueLen returns the number of pending matching-queue entries.
func (e *Engine) QueueLen(marketID string) (int, error) {
	st, err := e.state(marketID)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.queue.Len(), nil
}

// EscrowBalance returns the pooled escrow balance of a market.
func (e *Engine) EscrowBalance(marketID string) (int64, error) {
	st, err := e.state(marketID)
	if err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.escrow.Balance(), nil
}

// UpdateCrossLiquidity derives liquidity for target from the given source
// levels. Cross-matching must be enabled on the market.
func (e *Engine) UpdateCrossLiquidity(marketID string, sourceSide domain.Side, sources []LiquidityKey, target LiquidityKey) error {
	market, err := e.markets.Get(marketID)
	if err != nil {
		return err
	}
	if !market.EnableCrossMatching {
		return domain.ErrCrossMatchingDisabled
	}
	st, err := e.state(marketID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if market.Status != domain.MarketStatusOpen {
		return domain.ErrMarketNotOpen
	}
	if !market.ValidOutcome(target.Outcome) {
		return &domain.ValidationError{Message: "outcome index out of range"}
	}
	return st.book.UpdateCrossLiquidity(market.OutcomeCount, sourceSide, sources, target)
}
