package service

import (
	"time"

	"github.com/openwager/wagerbook/internal/domain"
	"github.com/openwager/wagerbook/internal/engine"
	"github.com/openwager/wagerbook/internal/store"
)

// PlaceOrderRequest represents the input for stake submission.
type PlaceOrderRequest struct {
	MarketID    string
	PurchaserID string
	Outcome     int
	Side        string
	Price       float64
	Stake       float64
}

// OrderResponse is the external view of an order.
type OrderResponse struct {
	OrderID        string     `json:"order_id"`
	MarketID       string     `json:"market_id"`
	PurchaserID    string     `json:"purchaser_id"`
	Outcome        int        `json:"outcome"`
	Side           string     `json:"side"`
	Price          float64    `json:"price"`
	StakeOriginal  int64      `json:"stake_original"`
	StakeUnmatched int64      `json:"stake_unmatched"`
	StakeMatched   int64      `json:"stake_matched"`
	StakeVoided    int64      `json:"stake_voided"`
	ExpectedPayout int64      `json:"expected_payout"`
	Status         string     `json:"status"`
	Settled        bool       `json:"settled"`
	CreatedAt      time.Time  `json:"created_at"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

// PositionResponse is the external view of a market position.
type PositionResponse struct {
	PurchaserID string  `json:"purchaser_id"`
	MarketID    string  `json:"market_id"`
	Matched     []int64 `json:"matched"`
	Unmatched   []int64 `json:"unmatched"`
	Exposure    int64   `json:"exposure"`
	Settled     bool    `json:"settled"`
}

// OrderService handles stake submission, cancellation, and order queries.
type OrderService struct {
	engine    *engine.Engine
	orders    *store.OrderStore
	positions *store.PositionStore
}

// NewOrderService creates a new OrderService.
func NewOrderService(eng *engine.Engine, orders *store.OrderStore, positions *store.PositionStore) *OrderService {
	return &OrderService{engine: eng, orders: orders, positions: positions}
}

// Place validates the request and submits the stake to the engine.
func (s *OrderService) Place(req PlaceOrderRequest) (*OrderResponse, error) {
	var side domain.Side
	switch req.Side {
	case string(domain.SideFor):
		side = domain.SideFor
	case string(domain.SideAgainst):
		side = domain.SideAgainst
	default:
		return nil, &domain.ValidationError{Message: "side must be 'for' or 'against'"}
	}
	price, err := domain.ParsePrice(req.Price)
	if err != nil {
		return nil, err
	}
	if req.Stake <= 0 {
		return nil, &domain.ValidationError{Message: "stake must be > 0"}
	}
	stake, err := domain.DollarsToCents(req.Stake)
	if err != nil {
		return nil, &domain.ValidationError{
			Message: "stake must have at most 2 decimal places",
		}
	}

	order, err := s.engine.PlaceOrder(engine.PlaceOrderRequest{
		MarketID:    req.MarketID,
		PurchaserID: req.PurchaserID,
		Outcome:     req.Outcome,
		Side:        side,
		Price:       price,
		Stake:       stake,
	})
	if err != nil {
		return nil, err
	}
	return toOrderResponse(order), nil
}

// Cancel cancels an order's unmatched remainder.
func (s *OrderService) Cancel(orderID string) (*OrderResponse, error) {
	order, err := s.engine.CancelOrder(orderID)
	if err != nil {
		return nil, err
	}
	return toOrderResponse(order), nil
}

// Get returns an order by ID.
func (s *OrderService) Get(orderID string) (*OrderResponse, error) {
	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	return toOrderResponse(order), nil
}

// ListByMarket returns all orders of a market in creation order.
func (s *OrderService) ListByMarket(marketID string) []*OrderResponse {
	return toOrderResponses(s.orders.ListByMarket(marketID))
}

// ListByPurchaser returns all orders of a purchaser in creation order.
func (s *OrderService) ListByPurchaser(purchaserID string) []*OrderResponse {
	return toOrderResponses(s.orders.ListByPurchaser(purchaserID))
}

// Position returns a purchaser's position on a market.
func (s *OrderService) Position(marketID, purchaserID string) (*PositionResponse, error) {
	pos, err := s.positions.Get(purchaserID, marketID)
	if err != nil {
		return nil, err
	}
	matched := make([]int64, len(pos.Matched))
	copy(matched, pos.Matched)
	unmatched := make([]int64, len(pos.Unmatched))
	copy(unmatched, pos.Unmatched)
	return &PositionResponse{
		PurchaserID: pos.PurchaserID,
		MarketID:    pos.MarketID,
		Matched:     matched,
		Unmatched:   unmatched,
		Exposure:    pos.Exposure(),
		Settled:     pos.Settled,
	}, nil
}

func toOrderResponse(o *domain.Order) *OrderResponse {
	return &OrderResponse{
		OrderID:        o.OrderID,
		MarketID:       o.MarketID,
		PurchaserID:    o.PurchaserID,
		Outcome:        o.Outcome,
		Side:           string(o.Side),
		Price:          o.Price.Float64(),
		StakeOriginal:  o.StakeOriginal,
		StakeUnmatched: o.StakeUnmatched,
		StakeMatched:   o.StakeMatched,
		StakeVoided:    o.StakeVoided,
		ExpectedPayout: o.ExpectedPayout,
		Status:         string(o.Status),
		Settled:        o.Settled,
		CreatedAt:      o.CreatedAt,
		CancelledAt:    o.CancelledAt,
	}
}

func toOrderResponses(orders []*domain.Order) []*OrderResponse {
	out := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}
