package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openwager/wagerbook/internal/service"
)

// MarketHandler handles HTTP requests for market endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
	orderSvc  *service.OrderService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService, orderSvc *service.OrderService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc, orderSvc: orderSvc}
}

// createMarketRequest is the JSON request body for POST /markets.
type createMarketRequest struct {
	Title               string    `json:"title"`
	AuthorityID         string    `json:"authority_id"`
	OutcomeTitles       []string  `json:"outcome_titles"`
	PriceLadder         []float64 `json:"price_ladder"`
	EnableCrossMatching bool      `json:"enable_cross_matching"`
}

// Create handles POST /markets.
func (h *MarketHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	market, err := h.marketSvc.Create(service.CreateMarketRequest{
		Title:               req.Title,
		AuthorityID:         req.AuthorityID,
		OutcomeTitles:       req.OutcomeTitles,
		PriceLadder:         req.PriceLadder,
		EnableCrossMatching: req.EnableCrossMatching,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, market)
}

// List handles GET /markets.
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.marketSvc.List())
}

// Get handles GET /markets/{market_id}.
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	market, err := h.marketSvc.Get(chi.URLParam(r, "market_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, market)
}

// GetBook handles GET /markets/{market_id}/book.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.marketSvc.Book(chi.URLParam(r, "market_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, book)
}

// ListOrders handles GET /markets/{market_id}/orders.
func (h *MarketHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "market_id")
	if _, err := h.marketSvc.Get(marketID); err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.orderSvc.ListByMarket(marketID))
}

// GetPosition handles GET /markets/{market_id}/positions/{purchaser_id}.
func (h *MarketHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.orderSvc.Position(chi.URLParam(r, "market_id"), chi.URLParam(r, "purchaser_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, pos)
}

// statusChangeRequest is the JSON request body for market status
// transitions. caller_id must be the market authority.
type statusChangeRequest struct {
	CallerID string `json:"caller_id"`
}

// Open handles POST /markets/{market_id}/open.
func (h *MarketHandler) Open(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.marketSvc.Open)
}

// Suspend handles POST /markets/{market_id}/suspend.
func (h *MarketHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.marketSvc.Suspend)
}

// Resume handles POST /markets/{market_id}/resume.
func (h *MarketHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.marketSvc.Resume)
}

// Lock handles POST /markets/{market_id}/lock.
func (h *MarketHandler) Lock(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.marketSvc.Lock)
}

func (h *MarketHandler) statusChange(w http.ResponseWriter, r *http.Request, op func(marketID, callerID string) (*service.MarketResponse, error)) {
	var req statusChangeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	market, err := op(chi.URLParam(r, "market_id"), req.CallerID)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, market)
}

// crossLiquidityRequest is the JSON request body for
// POST /markets/{market_id}/cross-liquidity.
type crossLiquidityRequest struct {
	SourceSide    string            `json:"source_side"`
	Sources       []crossSourceBody `json:"sources"`
	TargetOutcome int               `json:"target_outcome"`
	TargetPrice   float64           `json:"target_price"`
}

type crossSourceBody struct {
	Outcome int     `json:"outcome"`
	Price   float64 `json:"price"`
}

// UpdateCrossLiquidity handles POST /markets/{market_id}/cross-liquidity.
func (h *MarketHandler) UpdateCrossLiquidity(w http.ResponseWriter, r *http.Request) {
	var req crossLiquidityRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sources := make([]service.CrossSource, 0, len(req.Sources))
	for _, src := range req.Sources {
		sources = append(sources, service.CrossSource{Outcome: src.Outcome, Price: src.Price})
	}
	err := h.marketSvc.UpdateCrossLiquidity(service.UpdateCrossLiquidityRequest{
		MarketID:      chi.URLParam(r, "market_id"),
		SourceSide:    req.SourceSide,
		SourcePrices:  sources,
		TargetOutcome: req.TargetOutcome,
		TargetPrice:   req.TargetPrice,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
