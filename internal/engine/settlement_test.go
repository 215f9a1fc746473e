package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/openwager/wagerbook/internal/domain"
	"github.com/openwager/wagerbook/internal/store"
)

// Full two-way lifecycle: back and lay match at 2.0, outcome 0 wins, the
// backer collects double their stake and every cent leaves escrow.
func TestSettlement_TwoWayLifecycle(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "backer", 10000)
	r.newPurchaser(t, "layer", 10000)

	backOrder := r.place(t, m.MarketID, "backer", 0, domain.SideFor, 2000, 1000)
	layOrder := r.place(t, m.MarketID, "layer", 0, domain.SideAgainst, 2000, 1000)

	if _, err := r.eng.Crank(m.MarketID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.LockMarket(m.MarketID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.SettleMarket(m.MarketID, 0); err != nil {
		t.Fatal(err)
	}

	backPayout, err := r.eng.SettlePosition(m.MarketID, "backer")
	if err != nil {
		t.Fatal(err)
	}
	if backPayout != 2000 {
		t.Errorf("backer payout = %d, want 2000", backPayout)
	}
	layPayout, err := r.eng.SettlePosition(m.MarketID, "layer")
	if err != nil {
		t.Fatal(err)
	}
	if layPayout != 0 {
		t.Errorf("layer payout = %d, want 0", layPayout)
	}

	for _, orderID := range []string{backOrder.OrderID, layOrder.OrderID} {
		if _, err := r.eng.SettleOrder(orderID); err != nil {
			t.Fatalf("settle order: %v", err)
		}
	}

	if got := r.balance(t, "backer"); got != 11000 {
		t.Errorf("backer balance = %d, want 11000", got)
	}
	if got := r.balance(t, "layer"); got != 9000 {
		t.Errorf("layer balance = %d, want 9000", got)
	}
	if got := r.escrow(t, m.MarketID); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}
	if m.UnsettledCount != 0 {
		t.Errorf("unsettled count = %d, want 0", m.UnsettledCount)
	}

	// Drain storage and close.
	if _, err := r.eng.ReadyToClose(m.MarketID); err != nil {
		t.Fatal(err)
	}
	for _, orderID := range []string{backOrder.OrderID, layOrder.OrderID} {
		if err := r.eng.CloseOrder(orderID); err != nil {
			t.Fatalf("close order: %v", err)
		}
	}
	for _, id := range []string{"backer", "layer"} {
		if err := r.eng.ClosePosition(m.MarketID, id); err != nil {
			t.Fatalf("close position: %v", err)
		}
	}
	closed, err := r.eng.CloseMarket(m.MarketID)
	if err != nil {
		t.Fatal(err)
	}
	if closed.Status != domain.MarketStatusClosed || closed.UnclosedCount != 0 {
		t.Errorf("closed market: status %s unclosed %d", closed.Status, closed.UnclosedCount)
	}
	if _, err := r.eng.CloseMarket(m.MarketID); !errors.Is(err, domain.ErrAlreadyClosed) {
		t.Errorf("expected ErrAlreadyClosed, got %v", err)
	}
}

// Cross-matched three-way lifecycle with an unmatched remainder: the
// partially matched backer gets their resting stake back at order
// settlement, and escrow drains to zero.
func TestSettlement_CrossMatchLifecycle(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 3, []float64{2.1, 3.0, 5.25}, true)
	r.newPurchaser(t, "p1", 10000)
	r.newPurchaser(t, "p2", 10000)
	r.newPurchaser(t, "p3", 10000)

	o1 := r.place(t, m.MarketID, "p1", 1, domain.SideFor, 2100, 10000)
	o2 := r.place(t, m.MarketID, "p2", 2, domain.SideFor, 3000, 10000)

	sources := []LiquidityKey{{Outcome: 1, Price: 2100}, {Outcome: 2, Price: 3000}}
	if err := r.eng.UpdateCrossLiquidity(m.MarketID, domain.SideFor, sources, LiquidityKey{Outcome: 0, Price: 5250}); err != nil {
		t.Fatal(err)
	}

	o3 := r.place(t, m.MarketID, "p3", 0, domain.SideFor, 5250, 4000)
	if o3.StakeMatched != 4000 {
		t.Fatalf("taker matched %d, want 4000", o3.StakeMatched)
	}

	if _, err := r.eng.Crank(m.MarketID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.LockMarket(m.MarketID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.SettleMarket(m.MarketID, 0); err != nil {
		t.Fatal(err)
	}

	// p1 matched their full 100.00 backing outcome 1 and lost.
	p1Payout, err := r.eng.SettlePosition(m.MarketID, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p1Payout != 0 {
		t.Errorf("p1 payout = %d, want 0", p1Payout)
	}

	// p2 matched 70.00 of 100.00; the resting 30.00 comes back with the
	// order.
	p2Payout, err := r.eng.SettlePosition(m.MarketID, "p2")
	if err != nil {
		t.Fatal(err)
	}
	if p2Payout != 0 {
		t.Errorf("p2 position payout = %d, want 0", p2Payout)
	}
	p2Refund, err := r.eng.SettleOrder(o2.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if p2Refund != 3000 {
		t.Errorf("p2 order refund = %d, want 3000", p2Refund)
	}

	// p3 backed the winner at 5.25 with 40.00: collects 210.00.
	p3Payout, err := r.eng.SettlePosition(m.MarketID, "p3")
	if err != nil {
		t.Fatal(err)
	}
	if p3Payout != 21000 {
		t.Errorf("p3 payout = %d, want 21000", p3Payout)
	}

	for _, orderID := range []string{o1.OrderID, o3.OrderID} {
		if _, err := r.eng.SettleOrder(orderID); err != nil {
			t.Fatalf("settle order: %v", err)
		}
	}

	if got := r.balance(t, "p1"); got != 0 {
		t.Errorf("p1 balance = %d, want 0", got)
	}
	if got := r.balance(t, "p2"); got != 3000 {
		t.Errorf("p2 balance = %d, want 3000", got)
	}
	if got := r.balance(t, "p3"); got != 27000 {
		t.Errorf("p3 balance = %d, want 27000", got)
	}
	if got := r.escrow(t, m.MarketID); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}
}

// Every executed pairing and every settlement transfer lands in the
// history store: one trade row per matched chunk (taker and maker each
// record their side), one payout row per settled entity.
func TestEngine_RecordsTradeAndPayoutHistory(t *testing.T) {
	history, err := store.NewHistoryStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { history.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	purchasers := store.NewPurchaserStore()
	orders := store.NewOrderStore()
	positions := store.NewPositionStore()
	eng := NewEngine(store.NewMarketStore(), orders, positions, purchasers, history, logger)
	r := &testRig{eng: eng, purchasers: purchasers, orders: orders, positions: positions}

	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "backer", 10000)
	r.newPurchaser(t, "layer", 10000)

	backOrder := r.place(t, m.MarketID, "backer", 0, domain.SideFor, 2000, 1000)
	layOrder := r.place(t, m.MarketID, "layer", 0, domain.SideAgainst, 2000, 1000)
	if _, err := r.eng.Crank(m.MarketID, 0); err != nil {
		t.Fatal(err)
	}

	trades, err := history.TradeCount(m.MarketID)
	if err != nil {
		t.Fatal(err)
	}
	if trades != 2 {
		t.Errorf("trade rows = %d, want 2 (taker leg and maker leg)", trades)
	}

	if _, err := r.eng.LockMarket(m.MarketID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.SettleMarket(m.MarketID, 0); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"backer", "layer"} {
		if _, err := r.eng.SettlePosition(m.MarketID, id); err != nil {
			t.Fatal(err)
		}
	}
	for _, orderID := range []string{backOrder.OrderID, layOrder.OrderID} {
		if _, err := r.eng.SettleOrder(orderID); err != nil {
			t.Fatal(err)
		}
	}

	total, err := history.PayoutTotal(m.MarketID)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2000 {
		t.Errorf("payout total = %d, want 2000", total)
	}
}

func TestSettleMarket_RequiresEmptyQueue(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 10000)
	r.newPurchaser(t, "p2", 10000)

	r.place(t, m.MarketID, "p1", 0, domain.SideFor, 2000, 1000)
	r.place(t, m.MarketID, "p2", 0, domain.SideAgainst, 2000, 1000)

	if _, err := r.eng.LockMarket(m.MarketID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.SettleMarket(m.MarketID, 0); !errors.Is(err, domain.ErrQueueNotEmpty) {
		t.Fatalf("expected ErrQueueNotEmpty, got %v", err)
	}

	if _, err := r.eng.Crank(m.MarketID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.SettleMarket(m.MarketID, 0); err != nil {
		t.Fatalf("settle after crank: %v", err)
	}
}

func TestSettlePosition_Idempotent(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 10000)

	order := r.place(t, m.MarketID, "p1", 0, domain.SideFor, 2000, 1000)

	if _, err := r.eng.LockMarket(m.MarketID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.SettleMarket(m.MarketID, 1); err != nil {
		t.Fatal(err)
	}

	if _, err := r.eng.SettlePosition(m.MarketID, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.SettlePosition(m.MarketID, "p1"); !errors.Is(err, domain.ErrAlreadySettled) {
		t.Errorf("expected ErrAlreadySettled, got %v", err)
	}

	if _, err := r.eng.SettleOrder(order.OrderID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.SettleOrder(order.OrderID); !errors.Is(err, domain.ErrAlreadySettled) {
		t.Errorf("expected ErrAlreadySettled on order, got %v", err)
	}
}

// Settling an order before its position settles the position implicitly.
func TestSettleOrder_ImplicitPositionSettle(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 10000)

	order := r.place(t, m.MarketID, "p1", 0, domain.SideFor, 2000, 1000)

	if _, err := r.eng.LockMarket(m.MarketID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.SettleMarket(m.MarketID, 1); err != nil {
		t.Fatal(err)
	}

	// Fully unmatched losing-side order: the whole stake comes back.
	refund, err := r.eng.SettleOrder(order.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if refund != 1000 {
		t.Errorf("refund = %d, want 1000", refund)
	}
	if got := r.balance(t, "p1"); got != 10000 {
		t.Errorf("balance = %d, want 10000", got)
	}
	pos, err := r.positions.Get("p1", m.MarketID)
	if err != nil {
		t.Fatal(err)
	}
	if !pos.Settled {
		t.Error("position not settled implicitly")
	}
}

// One purchaser backs every outcome at 2.0: they paid 20.00 against a
// 30.00 nominal total, so order-level refunds must not exceed the
// position's refund budget.
func TestSettlement_RefundBudgetCapsOverlappingOrders(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 3, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 10000)

	orders := []*domain.Order{
		r.place(t, m.MarketID, "p1", 0, domain.SideFor, 2000, 1000),
		r.place(t, m.MarketID, "p1", 1, domain.SideFor, 2000, 1000),
		r.place(t, m.MarketID, "p1", 2, domain.SideFor, 2000, 1000),
	}
	if got := r.escrow(t, m.MarketID); got != 2000 {
		t.Fatalf("escrow = %d, want 2000", got)
	}

	if _, err := r.eng.LockMarket(m.MarketID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.SettleMarket(m.MarketID, 0); err != nil {
		t.Fatal(err)
	}

	var refunded int64
	for _, o := range orders {
		refund, err := r.eng.SettleOrder(o.OrderID)
		if err != nil {
			t.Fatal(err)
		}
		refunded += refund
	}
	if refunded != 2000 {
		t.Errorf("total refunded = %d, want 2000", refunded)
	}
	if got := r.balance(t, "p1"); got != 10000 {
		t.Errorf("balance = %d, want 10000", got)
	}
	if got := r.escrow(t, m.MarketID); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}
}

func TestVoidMarket_RefundsEveryone(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 10000)
	r.newPurchaser(t, "p2", 10000)

	o1 := r.place(t, m.MarketID, "p1", 0, domain.SideFor, 2000, 1000)
	o2 := r.place(t, m.MarketID, "p2", 0, domain.SideAgainst, 2000, 1000)

	// The maker leg is still queued: a plain void parks in void_pending.
	voided, err := r.eng.VoidMarket(m.MarketID, false)
	if err != nil {
		t.Fatal(err)
	}
	if voided.Status != domain.MarketStatusVoidPending {
		t.Fatalf("status = %s, want void_pending", voided.Status)
	}

	// Force purges the queue and completes the void.
	voided, err = r.eng.VoidMarket(m.MarketID, true)
	if err != nil {
		t.Fatal(err)
	}
	if voided.Status != domain.MarketStatusVoided {
		t.Fatalf("status = %s, want voided", voided.Status)
	}

	for _, id := range []string{"p1", "p2"} {
		if _, err := r.eng.VoidPosition(m.MarketID, id); err != nil {
			t.Fatalf("void position %s: %v", id, err)
		}
	}
	for _, o := range []*domain.Order{o1, o2} {
		if _, err := r.eng.VoidOrder(o.OrderID); err != nil {
			t.Fatalf("void order: %v", err)
		}
		if o.Status != domain.OrderStatusVoided || !o.ConservationHolds() {
			t.Errorf("order after void: status %s", o.Status)
		}
	}

	if got := r.balance(t, "p1"); got != 10000 {
		t.Errorf("p1 balance = %d, want 10000", got)
	}
	if got := r.balance(t, "p2"); got != 10000 {
		t.Errorf("p2 balance = %d, want 10000", got)
	}
	if got := r.escrow(t, m.MarketID); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}
	if m.UnsettledCount != 0 {
		t.Errorf("unsettled count = %d, want 0", m.UnsettledCount)
	}
}

// Cranking a void_pending market drains the queue and completes the void
// without a force purge.
func TestVoidMarket_CrankCompletes(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 10000)
	r.newPurchaser(t, "p2", 10000)

	r.place(t, m.MarketID, "p1", 0, domain.SideFor, 2000, 1000)
	r.place(t, m.MarketID, "p2", 0, domain.SideAgainst, 2000, 1000)

	if _, err := r.eng.VoidMarket(m.MarketID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.Crank(m.MarketID, 0); err != nil {
		t.Fatal(err)
	}
	if m.Status != domain.MarketStatusVoided {
		t.Errorf("status = %s, want voided after crank", m.Status)
	}
}

func TestReadyToClose_RequiresAllSettled(t *testing.T) {
	r := newTestRig()
	m := r.newMarket(t, 2, []float64{2.0}, false)
	r.newPurchaser(t, "p1", 10000)

	order := r.place(t, m.MarketID, "p1", 0, domain.SideFor, 2000, 1000)

	if _, err := r.eng.LockMarket(m.MarketID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.SettleMarket(m.MarketID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.ReadyToClose(m.MarketID); !errors.Is(err, domain.ErrCountersNotZero) {
		t.Fatalf("expected ErrCountersNotZero, got %v", err)
	}

	if _, err := r.eng.SettleOrder(order.OrderID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.ReadyToClose(m.MarketID); err != nil {
		t.Fatalf("ready-to-close after settling: %v", err)
	}

	if _, err := r.eng.CloseMarket(m.MarketID); !errors.Is(err, domain.ErrCountersNotZero) {
		t.Fatalf("expected ErrCountersNotZero with open storage, got %v", err)
	}
	if err := r.eng.CloseOrder(order.OrderID); err != nil {
		t.Fatal(err)
	}
	if err := r.eng.ClosePosition(m.MarketID, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.eng.CloseMarket(m.MarketID); err != nil {
		t.Fatalf("close market: %v", err)
	}
}
