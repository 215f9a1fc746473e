package service

import (
	"github.com/openwager/wagerbook/internal/domain"
	"github.com/openwager/wagerbook/internal/engine"
)

// PayoutResponse reports one settlement-time transfer.
type PayoutResponse struct {
	MarketID    string `json:"market_id"`
	PurchaserID string `json:"purchaser_id"`
	Amount      int64  `json:"amount"`
}

// SettlementService handles the post-trading lifecycle: queue cranking,
// settlement, void, and close. Settling individual positions and orders
// and turning the crank are permissionless; market-level transitions
// require the market authority.
type SettlementService struct {
	engine *engine.Engine
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(eng *engine.Engine) *SettlementService {
	return &SettlementService{engine: eng}
}

// Crank drains up to maxEntries pending matching-queue entries.
func (s *SettlementService) Crank(marketID string, maxEntries int) (engine.CrankResult, error) {
	return s.engine.Crank(marketID, maxEntries)
}

// SettleMarket declares the winning outcome. Authority only.
func (s *SettlementService) SettleMarket(marketID, callerID string, winningOutcome int) (*MarketResponse, error) {
	if err := s.authorize(marketID, callerID); err != nil {
		return nil, err
	}
	m, err := s.engine.SettleMarket(marketID, winningOutcome)
	if err != nil {
		return nil, err
	}
	return toMarketResponse(m), nil
}

// SettlePosition pays out one purchaser's matched position.
func (s *SettlementService) SettlePosition(marketID, purchaserID string) (*PayoutResponse, error) {
	amount, err := s.engine.SettlePosition(marketID, purchaserID)
	if err != nil {
		return nil, err
	}
	return &PayoutResponse{MarketID: marketID, PurchaserID: purchaserID, Amount: amount}, nil
}

// SettleOrder finalizes one order, refunding its unmatched remainder.
func (s *SettlementService) SettleOrder(orderID string) (*PayoutResponse, error) {
	order, err := s.engine.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	amount, err := s.engine.SettleOrder(orderID)
	if err != nil {
		return nil, err
	}
	return &PayoutResponse{MarketID: order.MarketID, PurchaserID: order.PurchaserID, Amount: amount}, nil
}

// VoidMarket aborts a market. Authority only. force purges the matching
// queue instead of waiting for a crank to drain it.
func (s *SettlementService) VoidMarket(marketID, callerID string, force bool) (*MarketResponse, error) {
	if err := s.authorize(marketID, callerID); err != nil {
		return nil, err
	}
	m, err := s.engine.VoidMarket(marketID, force)
	if err != nil {
		return nil, err
	}
	return toMarketResponse(m), nil
}

// VoidPosition refunds one purchaser's full exposure on a voided market.
func (s *SettlementService) VoidPosition(marketID, purchaserID string) (*PayoutResponse, error) {
	amount, err := s.engine.VoidPosition(marketID, purchaserID)
	if err != nil {
		return nil, err
	}
	return &PayoutResponse{MarketID: marketID, PurchaserID: purchaserID, Amount: amount}, nil
}

// VoidOrder finalizes one order on a voided market.
func (s *SettlementService) VoidOrder(orderID string) (*PayoutResponse, error) {
	order, err := s.engine.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.engine.VoidOrder(orderID); err != nil {
		return nil, err
	}
	return &PayoutResponse{MarketID: order.MarketID, PurchaserID: order.PurchaserID, Amount: 0}, nil
}

// ReadyToClose marks a fully settled market ready for cleanup. Authority
// only.
func (s *SettlementService) ReadyToClose(marketID, callerID string) (*MarketResponse, error) {
	if err := s.authorize(marketID, callerID); err != nil {
		return nil, err
	}
	m, err := s.engine.ReadyToClose(marketID)
	if err != nil {
		return nil, err
	}
	return toMarketResponse(m), nil
}

// CloseOrder releases a settled order's storage.
func (s *SettlementService) CloseOrder(orderID string) error {
	return s.engine.CloseOrder(orderID)
}

// ClosePosition releases a settled position's storage.
func (s *SettlementService) ClosePosition(marketID, purchaserID string) error {
	return s.engine.ClosePosition(marketID, purchaserID)
}

// CloseMarket retires a fully drained market. Authority only.
func (s *SettlementService) CloseMarket(marketID, callerID string) (*MarketResponse, error) {
	if err := s.authorize(marketID, callerID); err != nil {
		return nil, err
	}
	m, err := s.engine.CloseMarket(marketID)
	if err != nil {
		return nil, err
	}
	return toMarketResponse(m), nil
}

func (s *SettlementService) authorize(marketID, callerID string) error {
	m, err := s.engine.GetMarket(marketID)
	if err != nil {
		return err
	}
	if callerID != m.AuthorityID {
		return domain.ErrNotAuthorized
	}
	return nil
}
