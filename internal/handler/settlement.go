package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openwager/wagerbook/internal/service"
)

// SettlementHandler handles HTTP requests for the post-trading lifecycle:
// cranking, settlement, void, and close.
type SettlementHandler struct {
	settlementSvc *service.SettlementService
	crankDefault  int
}

// NewSettlementHandler creates a new SettlementHandler. crankDefault is
// the per-request entry cap when the client does not supply one.
func NewSettlementHandler(settlementSvc *service.SettlementService, crankDefault int) *SettlementHandler {
	return &SettlementHandler{settlementSvc: settlementSvc, crankDefault: crankDefault}
}

// crankRequest is the JSON request body for POST /markets/{market_id}/crank.
type crankRequest struct {
	MaxEntries int `json:"max_entries"`
}

// Crank handles POST /markets/{market_id}/crank. Permissionless.
func (h *SettlementHandler) Crank(w http.ResponseWriter, r *http.Request) {
	var req crankRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	maxEntries := req.MaxEntries
	if maxEntries <= 0 {
		maxEntries = h.crankDefault
	}
	res, err := h.settlementSvc.Crank(chi.URLParam(r, "market_id"), maxEntries)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// settleMarketRequest is the JSON request body for
// POST /markets/{market_id}/settle.
type settleMarketRequest struct {
	CallerID       string `json:"caller_id"`
	WinningOutcome int    `json:"winning_outcome"`
}

// SettleMarket handles POST /markets/{market_id}/settle.
func (h *SettlementHandler) SettleMarket(w http.ResponseWriter, r *http.Request) {
	var req settleMarketRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	market, err := h.settlementSvc.SettleMarket(chi.URLParam(r, "market_id"), req.CallerID, req.WinningOutcome)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, market)
}

// voidMarketRequest is the JSON request body for
// POST /markets/{market_id}/void.
type voidMarketRequest struct {
	CallerID string `json:"caller_id"`
	Force    bool   `json:"force"`
}

// VoidMarket handles POST /markets/{market_id}/void.
func (h *SettlementHandler) VoidMarket(w http.ResponseWriter, r *http.Request) {
	var req voidMarketRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	market, err := h.settlementSvc.VoidMarket(chi.URLParam(r, "market_id"), req.CallerID, req.Force)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, market)
}

// SettlePosition handles POST /markets/{market_id}/positions/{purchaser_id}/settle.
func (h *SettlementHandler) SettlePosition(w http.ResponseWriter, r *http.Request) {
	payout, err := h.settlementSvc.SettlePosition(chi.URLParam(r, "market_id"), chi.URLParam(r, "purchaser_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, payout)
}

// VoidPosition handles POST /markets/{market_id}/positions/{purchaser_id}/void.
func (h *SettlementHandler) VoidPosition(w http.ResponseWriter, r *http.Request) {
	payout, err := h.settlementSvc.VoidPosition(chi.URLParam(r, "market_id"), chi.URLParam(r, "purchaser_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, payout)
}

// ClosePosition handles POST /markets/{market_id}/positions/{purchaser_id}/close.
func (h *SettlementHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	err := h.settlementSvc.ClosePosition(chi.URLParam(r, "market_id"), chi.URLParam(r, "purchaser_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// SettleOrder handles POST /orders/{order_id}/settle.
func (h *SettlementHandler) SettleOrder(w http.ResponseWriter, r *http.Request) {
	payout, err := h.settlementSvc.SettleOrder(chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, payout)
}

// VoidOrder handles POST /orders/{order_id}/void.
func (h *SettlementHandler) VoidOrder(w http.ResponseWriter, r *http.Request) {
	payout, err := h.settlementSvc.VoidOrder(chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, payout)
}

// CloseOrder handles POST /orders/{order_id}/close.
func (h *SettlementHandler) CloseOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.settlementSvc.CloseOrder(chi.URLParam(r, "order_id")); err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// ReadyToClose handles POST /markets/{market_id}/ready-to-close.
func (h *SettlementHandler) ReadyToClose(w http.ResponseWriter, r *http.Request) {
	var req statusChangeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	market, err := h.settlementSvc.ReadyToClose(chi.URLParam(r, "market_id"), req.CallerID)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, market)
}

// CloseMarket handles POST /markets/{market_id}/close.
func (h *SettlementHandler) CloseMarket(w http.ResponseWriter, r *http.Request) {
	var req statusChangeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	market, err := h.settlementSvc.CloseMarket(chi.URLParam(r, "market_id"), req.CallerID)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, market)
}
