package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openwager/wagerbook/internal/service"
)

// timeFormat is the wire format for timestamps.
const timeFormat = "2006-01-02T15:04:05.000Z"

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// placeOrderRequest is the JSON request body for POST /orders.
type placeOrderRequest struct {
	MarketID    string  `json:"market_id"`
	PurchaserID string  `json:"purchaser_id"`
	Outcome     int     `json:"outcome"`
	Side        string  `json:"side"`
	Price       float64 `json:"price"`
	Stake       float64 `json:"stake"`
}

// Place handles POST /orders.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	order, err := h.orderSvc.Place(service.PlaceOrderRequest{
		MarketID:    req.MarketID,
		PurchaserID: req.PurchaserID,
		Outcome:     req.Outcome,
		Side:        req.Side,
		Price:       req.Price,
		Stake:       req.Stake,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, order)
}

// Get handles GET /orders/{order_id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.Get(chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, order)
}

// Cancel handles DELETE /orders/{order_id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.Cancel(chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, order)
}
