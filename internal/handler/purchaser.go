package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openwager/wagerbook/internal/service"
)

// PurchaserHandler handles HTTP requests for purchaser endpoints.
type PurchaserHandler struct {
	purchaserSvc *service.PurchaserService
	orderSvc     *service.OrderService
}

// NewPurchaserHandler creates a new PurchaserHandler.
func NewPurchaserHandler(purchaserSvc *service.PurchaserService, orderSvc *service.OrderService) *PurchaserHandler {
	return &PurchaserHandler{purchaserSvc: purchaserSvc, orderSvc: orderSvc}
}

// registerPurchaserRequest is the JSON request body for POST /purchasers.
type registerPurchaserRequest struct {
	PurchaserID    string  `json:"purchaser_id"`
	InitialBalance float64 `json:"initial_balance"`
}

// purchaserResponse is the JSON response for purchaser registration.
type purchaserResponse struct {
	PurchaserID string `json:"purchaser_id"`
	Balance     int64  `json:"balance"`
	CreatedAt   string `json:"created_at"`
}

// Register handles POST /purchasers.
func (h *PurchaserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerPurchaserRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, err := h.purchaserSvc.Register(service.RegisterPurchaserRequest{
		PurchaserID:    req.PurchaserID,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, purchaserResponse{
		PurchaserID: p.PurchaserID,
		Balance:     p.CurrentBalance(),
		CreatedAt:   p.CreatedAt.UTC().Format(timeFormat),
	})
}

// depositRequest is the JSON request body for POST /purchasers/{purchaser_id}/deposit.
type depositRequest struct {
	Amount float64 `json:"amount"`
}

// Deposit handles POST /purchasers/{purchaser_id}/deposit.
func (h *PurchaserHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	balance, err := h.purchaserSvc.Deposit(chi.URLParam(r, "purchaser_id"), req.Amount)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, balance)
}

// GetBalance handles GET /purchasers/{purchaser_id}/balance.
func (h *PurchaserHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.purchaserSvc.Balance(chi.URLParam(r, "purchaser_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, balance)
}

// ListOrders handles GET /purchasers/{purchaser_id}/orders.
func (h *PurchaserHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	purchaserID := chi.URLParam(r, "purchaser_id")
	if _, err := h.purchaserSvc.Balance(purchaserID); err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.orderSvc.ListByPurchaser(purchaserID))
}
