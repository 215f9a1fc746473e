package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/openwager/wagerbook/internal/domain"
	"github.com/openwager/wagerbook/internal/store"
)

type testRig struct {
	eng        *Engine
	purchasers *store.PurchaserStore
	orders     *store.OrderStore
	positions  *store.PositionStore
}

func newTestRig() *testRig {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	purchasers := store.NewPurchaserStore()
	orders := store.NewOrderStore()
	positions := store.NewPositionStore()
	eng := NewEngine(store.NewMarketStore(), orders, positions, purchasers, nil, logger)
	return &testRig{eng: eng, purchasers: purchasers, orders: orders, positions: positions}
}

func (r *testRig) newMarket(t *testing.T, outcomes int, ladder []float64, cross bool) *domain.Market {
	t.Helper()
	pl, err := domain.NewPriceLadder(ladder)
	if err != nil {
		t.Fatalf("bad ladder: %v", err)
	}
	m := &domain.Market{
		MarketID:            "m-" + t.Name(),
		Title:               t.Name(),
		AuthorityID:         "authority",
		OutcomeCount:        outcomes,
		OutcomeTitles:       make([]string, outcomes),
		PriceLadder:         pl,
		Status:              domain.MarketStatusOpen,
		EnableCrossMatching: cross,
		CreatedAt:           time.Now(),
	}
	r.eng.RegisterMarket(m)
	return m
}

func (r *testRig) newPurchaser(t *testing.T, id string, balance int64) {
	t.Helper()
	err := r.purchasers.Create(&domain.Purchaser{PurchaserID: id, Balance: balance, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("create purchaser %s: %v", id, err)
	}
}

func (r *testRig) place(t *testing.T, marketID, purchaserID string, outcome int, side domain.Side, price domain.Price, stake int64) *domain.Order {
	t.Helper()
	order, err := r.eng.PlaceOrder(PlaceOrderRequest{
		MarketID:    marketID,
		PurchaserID: purchaserID,
		Outcome:     outcome,
		Side:        side,
		Price:       price,
		Stake:       stake,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return order
}

func (r *testRig) balance(t *testing.T, id string) int64 {
	t.Helper()
	p, err := r.purchasers.Get(id)
	if err != nil {
		t.Fatalf("get purchaser %s: %v", id, err)
	}
	return p.CurrentBalance()
}

func (r *testRig) escrow(t *testing.T, marketID string) int64 {
	t.Helper()
	bal, err := r.eng.EscrowBalance(marketID)
	if err != nil {
		t.Fatalf("escrow: %v", err)
	}
	return bal
}

// checkConservation asserts that the market escrow equals the sum of
// position exposures.
func (r *testRig) checkConservation(t *testing.T, marketID string) {
	t.Helper()
	var total int64
	for _, pos := range r.positions.ListByMarket(marketID) {
		total += pos.Exposure()
	}
	if got := r.escrow(t, marketID); got != total {
		t.Fatalf("escrow %d != sum of exposures %d", got, total)
	}
}

// Backing every outcome of a three-way market at 2.0: the second leg pays
// in full, the third is fully covered by the first two.
func TestPlaceOrder_PaymentSequence(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 3, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 10000)

	r.place(t, m.MarketID, "p1", 0, domain.SideFor, 2000, 1000)
	if got := r.balance(t, "p1"); got != 9000 {
		t.Errorf("after leg 1: balance = %d, want 9000", got)
	}
	if got := r.escrow(t, m.MarketID); got != 1000 {
		t.Errorf("after leg 1: escrow = %d, want 1000", got)
	}

	r.place(t, m.MarketID, "p1", 1, domain.SideFor, 2000, 1000)
	if got := r.balance(t, "p1"); got != 8000 {
		t.Errorf("after leg 2: balance = %d, want 8000", got)
	}
	if got := r.escrow(t, m.MarketID); got != 2000 {
		t.Errorf("after leg 2: escrow = %d, want 2000", got)
	}

	r.place(t, m.MarketID, "p1", 2, domain.SideFor, 2000, 1000)
	if got := r.balance(t, "p1"); got != 8000 {
		t.Errorf("after leg 3: balance = %d, want 8000", got)
	}
	if got := r.escrow(t, m.MarketID); got != 2000 {
		t.Errorf("after leg 3: escrow = %d, want 2000", got)
	}
	r.checkConservation(t, m.MarketID)
}

func TestPlaceOrder_RestsOnBook(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{1.5, 2.0, 3.0}, false)
	r.newPurchaser(t, "p1", 10000)

	order := r.place(t, m.MarketID, "p1", 0, domain.SideAgainst, 3000, 1000)
	if order.Status != domain.OrderStatusOpen || order.StakeUnmatched != 1000 {
		t.Errorf("order status %s unmatched %d, want open 1000", order.Status, order.StakeUnmatched)
	}
	// Laying 10.00 at 3.0 reserves 20.00.
	if got := r.balance(t, "p1"); got != 8000 {
		t.Errorf("balance = %d, want 8000", got)
	}

	forSide, againstSide, err := r.eng.BookSnapshot(m.MarketID)
	if err != nil {
		t.Fatal(err)
	}
	if len(forSide) != 0 || len(againstSide) != 1 {
		t.Fatalf("book sides = %d/%d entries, want 0/1", len(forSide), len(againstSide))
	}
	if againstSide[0].Stake != 1000 || againstSide[0].Price != 3000 {
		t.Errorf("against entry = %+v", againstSide[0])
	}
	r.checkConservation(t, m.MarketID)
}

func TestPlaceOrder_ImmediateMatch(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0, 3.0}, false)
	r.newPurchaser(t, "p1", 10000)
	r.newPurchaser(t, "p2", 10000)

	maker := r.place(t, m.MarketID, "p1", 0, domain.SideAgainst, 3000, 1000)
	taker := r.place(t, m.MarketID, "p2", 0, domain.SideFor, 3000, 1000)

	if taker.Status != domain.OrderStatusMatched || taker.StakeMatched != 1000 {
		t.Errorf("taker status %s matched %d, want matched 1000", taker.Status, taker.StakeMatched)
	}
	// 10.00 at 3.0 pays 30.00 if outcome 0 wins.
	if taker.ExpectedPayout != 3000 {
		t.Errorf("taker expected payout = %d, want 3000", taker.ExpectedPayout)
	}

	// The maker side waits for the crank.
	if maker.StakeMatched != 0 {
		t.Errorf("maker matched %d before crank, want 0", maker.StakeMatched)
	}
	n, err := r.eng.QueueLen(m.MarketID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("queue len = %d, want 1", n)
	}

	// Consumed liquidity leaves the book immediately.
	_, againstSide, err := r.eng.BookSnapshot(m.MarketID)
	if err != nil {
		t.Fatal(err)
	}
	if len(againstSide) != 0 {
		t.Errorf("against side has %d entries, want 0", len(againstSide))
	}

	// Taker risks only their stake.
	if got := r.balance(t, "p2"); got != 9000 {
		t.Errorf("taker balance = %d, want 9000", got)
	}
	if got := r.escrow(t, m.MarketID); got != 3000 {
		t.Errorf("escrow = %d, want 3000", got)
	}
	r.checkConservation(t, m.MarketID)

	res, err := r.eng.Crank(m.MarketID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 || res.Dropped != 0 {
		t.Errorf("crank = %+v, want 1 processed 0 dropped", res)
	}
	if maker.StakeMatched != 1000 || maker.Status != domain.OrderStatusMatched {
		t.Errorf("maker after crank: matched %d status %s", maker.StakeMatched, maker.Status)
	}
	r.checkConservation(t, m.MarketID)
}

// A for order with a low limit still matches resting against liquidity at
// a higher price: higher odds only improve the backer's payout.
func TestPlaceOrder_PriceImprovement(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0, 3.0}, false)
	r.newPurchaser(t, "p1", 10000)
	r.newPurchaser(t, "p2", 10000)

	r.place(t, m.MarketID, "p1", 0, domain.SideAgainst, 3000, 1000)
	taker := r.place(t, m.MarketID, "p2", 0, domain.SideFor, 2000, 1000)

	if taker.StakeMatched != 1000 {
		t.Fatalf("taker matched %d, want 1000", taker.StakeMatched)
	}
	// Matched at 3.0, not the 2.0 limit.
	if taker.ExpectedPayout != 3000 {
		t.Errorf("expected payout = %d, want 3000", taker.ExpectedPayout)
	}
}

// An against order only matches for liquidity at or below its limit.
func TestPlaceOrder_LimitRespected(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0, 3.0}, false)
	r.newPurchaser(t, "p1", 10000)
	r.newPurchaser(t, "p2", 10000)

	r.place(t, m.MarketID, "p1", 0, domain.SideFor, 3000, 1000)
	taker := r.place(t, m.MarketID, "p2", 0, domain.SideAgainst, 2000, 1000)

	if taker.StakeMatched != 0 {
		t.Errorf("taker matched %d against 3.0 liquidity with 2.0 limit, want 0", taker.StakeMatched)
	}
}

func TestPlaceOrder_InsufficientFunds(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 500)

	_, err := r.eng.PlaceOrder(PlaceOrderRequest{
		MarketID:    m.MarketID,
		PurchaserID: "p1",
		Outcome:     0,
		Side:        domain.SideFor,
		Price:       2000,
		Stake:       1000,
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := r.balance(t, "p1"); got != 500 {
		t.Errorf("balance = %d, want 500", got)
	}
	if got := r.escrow(t, m.MarketID); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}
	if _, err := r.positions.Get("p1", m.MarketID); !errors.Is(err, domain.ErrPositionNotFound) {
		t.Errorf("expected no position, got %v", err)
	}
}

func TestPlaceOrder_Validation(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 10000)

	base := PlaceOrderRequest{
		MarketID:    m.MarketID,
		PurchaserID: "p1",
		Outcome:     0,
		Side:        domain.SideFor,
		Price:       2000,
		Stake:       1000,
	}

	bad := base
	bad.Outcome = 5
	if _, err := r.eng.PlaceOrder(bad); err == nil {
		t.Error("expected error for bad outcome")
	}

	bad = base
	bad.Price = 2500 // not on ladder
	if _, err := r.eng.PlaceOrder(bad); err == nil {
		t.Error("expected error for off-ladder price")
	}

	bad = base
	bad.Stake = 0
	if _, err := r.eng.PlaceOrder(bad); err == nil {
		t.Error("expected error for zero stake")
	}

	m.Status = domain.MarketStatusSuspended
	if _, err := r.eng.PlaceOrder(base); !errors.Is(err, domain.ErrMarketNotOpen) {
		t.Errorf("expected ErrMarketNotOpen on suspended market, got %v", err)
	}
	m.Status = domain.MarketStatusLocked
	if _, err := r.eng.PlaceOrder(base); !errors.Is(err, domain.ErrMarketLocked) {
		t.Errorf("expected ErrMarketLocked, got %v", err)
	}
}

func TestCancelOrder_RefundsExposure(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{3.0}, false)
	r.newPurchaser(t, "p1", 10000)

	order := r.place(t, m.MarketID, "p1", 0, domain.SideAgainst, 3000, 1000)
	if got := r.balance(t, "p1"); got != 8000 {
		t.Fatalf("balance = %d, want 8000", got)
	}

	cancelled, err := r.eng.CancelOrder(order.OrderID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || cancelled.StakeVoided != 1000 {
		t.Errorf("status %s voided %d, want cancelled 1000", cancelled.Status, cancelled.StakeVoided)
	}
	if got := r.balance(t, "p1"); got != 10000 {
		t.Errorf("balance = %d, want 10000", got)
	}
	if got := r.escrow(t, m.MarketID); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}

	_, _, err = r.eng.BookSnapshot(m.MarketID)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.eng.CancelOrder(order.OrderID); !errors.Is(err, domain.ErrOrderAlreadyFinal) {
		t.Errorf("expected ErrOrderAlreadyFinal on double cancel, got %v", err)
	}
	r.checkConservation(t, m.MarketID)
}

// Stake claimed by a pending queue entry is off the book and cannot be
// cancelled; the crank still pairs it.
func TestCancelOrder_ClaimedStakeStays(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 10000)
	r.newPurchaser(t, "p2", 10000)

	maker := r.place(t, m.MarketID, "p1", 0, domain.SideFor, 2000, 1000)
	r.place(t, m.MarketID, "p2", 0, domain.SideAgainst, 2000, 1000)

	// The maker's whole stake is claimed: nothing is cancellable.
	if _, err := r.eng.CancelOrder(maker.OrderID); !errors.Is(err, domain.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}

	res, err := r.eng.Crank(m.MarketID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 || res.Dropped != 0 {
		t.Errorf("crank = %+v, want 1 processed", res)
	}
	if maker.StakeMatched != 1000 {
		t.Errorf("maker matched %d, want 1000", maker.StakeMatched)
	}
	r.checkConservation(t, m.MarketID)
}

// Cancelling the unclaimed remainder leaves the claimed part open.
func TestCancelOrder_PartialClaim(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 10000)
	r.newPurchaser(t, "p2", 10000)

	maker := r.place(t, m.MarketID, "p1", 0, domain.SideFor, 2000, 1000)
	r.place(t, m.MarketID, "p2", 0, domain.SideAgainst, 2000, 400)

	cancelled, err := r.eng.CancelOrder(maker.OrderID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.StakeVoided != 600 || cancelled.StakeUnmatched != 400 {
		t.Errorf("voided %d unmatched %d, want 600/400", cancelled.StakeVoided, cancelled.StakeUnmatched)
	}
	if cancelled.Status != domain.OrderStatusOpen {
		t.Errorf("status = %s, want open", cancelled.Status)
	}

	if _, err := r.eng.Crank(m.MarketID, 0); err != nil {
		t.Fatal(err)
	}
	if maker.StakeMatched != 400 || maker.Status != domain.OrderStatusMatched {
		t.Errorf("after crank: matched %d status %s, want 400 matched", maker.StakeMatched, maker.Status)
	}
	if !maker.ConservationHolds() {
		t.Error("stake conservation violated")
	}
	r.checkConservation(t, m.MarketID)
}

// Two makers at the same level fill oldest first.
func TestCrank_PriceTimePriority(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "pa", 10000)
	r.newPurchaser(t, "pb", 10000)
	r.newPurchaser(t, "pc", 10000)

	first := r.place(t, m.MarketID, "pa", 0, domain.SideFor, 2000, 1000)
	second := r.place(t, m.MarketID, "pb", 0, domain.SideFor, 2000, 1000)
	taker := r.place(t, m.MarketID, "pc", 0, domain.SideAgainst, 2000, 1500)

	if taker.StakeMatched != 1500 {
		t.Fatalf("taker matched %d, want 1500", taker.StakeMatched)
	}

	if _, err := r.eng.Crank(m.MarketID, 0); err != nil {
		t.Fatal(err)
	}
	if first.StakeMatched != 1000 {
		t.Errorf("first maker matched %d, want 1000", first.StakeMatched)
	}
	if second.StakeMatched != 500 || second.StakeUnmatched != 500 {
		t.Errorf("second maker matched %d unmatched %d, want 500/500", second.StakeMatched, second.StakeUnmatched)
	}
	r.checkConservation(t, m.MarketID)
}

func TestCrank_MaxEntries(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 10000)
	r.newPurchaser(t, "p2", 10000)

	r.place(t, m.MarketID, "p1", 0, domain.SideFor, 2000, 500)
	r.place(t, m.MarketID, "p2", 0, domain.SideAgainst, 2000, 200)
	r.place(t, m.MarketID, "p2", 0, domain.SideAgainst, 2000, 200)

	res, err := r.eng.Crank(m.MarketID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 {
		t.Errorf("processed = %d, want 1", res.Processed)
	}
	n, _ := r.eng.QueueLen(m.MarketID)
	if n != 1 {
		t.Errorf("queue len = %d, want 1", n)
	}

	res, err = r.eng.Crank(m.MarketID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 {
		t.Errorf("second crank processed = %d, want 1", res.Processed)
	}
	r.checkConservation(t, m.MarketID)
}

// Cross-matched liquidity lets a backer of the remaining outcome match
// against backers of all other outcomes.
func TestPlaceOrder_CrossMatch(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 3, []float64{2.1, 3.0, 5.25}, true)
	r.newPurchaser(t, "p1", 10000)
	r.newPurchaser(t, "p2", 10000)
	r.newPurchaser(t, "p3", 10000)

	r.place(t, m.MarketID, "p1", 1, domain.SideFor, 2100, 10000)
	r.place(t, m.MarketID, "p2", 2, domain.SideFor, 3000, 10000)

	sources := []LiquidityKey{{Outcome: 1, Price: 2100}, {Outcome: 2, Price: 3000}}
	err := r.eng.UpdateCrossLiquidity(m.MarketID, domain.SideFor, sources, LiquidityKey{Outcome: 0, Price: 5250})
	if err != nil {
		t.Fatalf("cross liquidity: %v", err)
	}

	taker := r.place(t, m.MarketID, "p3", 0, domain.SideFor, 5250, 4000)
	if taker.StakeMatched != 4000 {
		t.Fatalf("taker matched %d, want 4000", taker.StakeMatched)
	}
	// 40.00 at 5.25 pays 210.00.
	if taker.ExpectedPayout != 21000 {
		t.Errorf("taker expected payout = %d, want 21000", taker.ExpectedPayout)
	}

	// One queue entry per source leg.
	n, _ := r.eng.QueueLen(m.MarketID)
	if n != 2 {
		t.Errorf("queue len = %d, want 2", n)
	}

	// Source liquidity is consumed pro rata: outcome 1 fully, outcome 2
	// down to 30.00.
	forSide, _, err := r.eng.BookSnapshot(m.MarketID)
	if err != nil {
		t.Fatal(err)
	}
	if len(forSide) != 1 || forSide[0].Outcome != 2 || forSide[0].Stake != 3000 {
		t.Fatalf("for side after cross match = %+v, want one 30.00 entry on outcome 2", forSide)
	}

	res, err := r.eng.Crank(m.MarketID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 2 || res.Dropped != 0 {
		t.Errorf("crank = %+v, want 2 processed", res)
	}

	// Every purchaser's worst case is fully escrowed and nothing more.
	if got := r.escrow(t, m.MarketID); got != 24000 {
		t.Errorf("escrow = %d, want 24000", got)
	}
	r.checkConservation(t, m.MarketID)
}

func TestUpdateCrossLiquidity_Disabled(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 3, []float64{2.1, 3.0, 5.25}, false)

	sources := []LiquidityKey{{Outcome: 1, Price: 2100}, {Outcome: 2, Price: 3000}}
	err := r.eng.UpdateCrossLiquidity(m.MarketID, domain.SideFor, sources, LiquidityKey{Outcome: 0, Price: 5250})
	if !errors.Is(err, domain.ErrCrossMatchingDisabled) {
		t.Errorf("expected ErrCrossMatchingDisabled, got %v", err)
	}
}
