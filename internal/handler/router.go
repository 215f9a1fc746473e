package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/openwager/wagerbook/internal/service"
)

// RouterConfig carries the tunables the router needs.
type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	CrankDefault   int
}

// NewRouter creates a chi router with all routes registered, request
// logging, rate limiting, and Content-Type validation middleware.
func NewRouter(
	purchaserSvc *service.PurchaserService,
	marketSvc *service.MarketService,
	orderSvc *service.OrderService,
	settlementSvc *service.SettlementService,
	cfg RouterConfig,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(rateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	r.Use(contentTypeJSON)

	// Create handlers.
	purchaserH := NewPurchaserHandler(purchaserSvc, orderSvc)
	marketH := NewMarketHandler(marketSvc, orderSvc)
	orderH := NewOrderHandler(orderSvc)
	settlementH := NewSettlementHandler(settlementSvc, cfg.CrankDefault)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Purchaser routes.
	r.Post("/purchasers", purchaserH.Register)
	r.Post("/purchasers/{purchaser_id}/deposit", purchaserH.Deposit)
	r.Get("/purchasers/{purchaser_id}/balance", purchaserH.GetBalance)
	r.Get("/purchasers/{purchaser_id}/orders", purchaserH.ListOrders)

	// Market routes.
	r.Post("/markets", marketH.Create)
	r.Get("/markets", marketH.List)
	r.Get("/markets/{market_id}", marketH.Get)
	r.Get("/markets/{market_id}/book", marketH.GetBook)
	r.Get("/markets/{market_id}/orders", marketH.ListOrders)
	r.Post("/markets/{market_id}/open", marketH.Open)
	r.Post("/markets/{market_id}/suspend", marketH.Suspend)
	r.Post("/markets/{market_id}/resume", marketH.Resume)
	r.Post("/markets/{market_id}/lock", marketH.Lock)
	r.Post("/markets/{market_id}/cross-liquidity", marketH.UpdateCrossLiquidity)

	// Lifecycle routes.
	r.Post("/markets/{market_id}/crank", settlementH.Crank)
	r.Post("/markets/{market_id}/settle", settlementH.SettleMarket)
	r.Post("/markets/{market_id}/void", settlementH.VoidMarket)
	r.Post("/markets/{market_id}/ready-to-close", settlementH.ReadyToClose)
	r.Post("/markets/{market_id}/close", settlementH.CloseMarket)

	// Position routes.
	r.Get("/markets/{market_id}/positions/{purchaser_id}", marketH.GetPosition)
	r.Post("/markets/{market_id}/positions/{purchaser_id}/settle", settlementH.SettlePosition)
	r.Post("/markets/{market_id}/positions/{purchaser_id}/void", settlementH.VoidPosition)
	r.Post("/markets/{market_id}/positions/{purchaser_id}/close", settlementH.ClosePosition)

	// Order routes.
	r.Post("/orders", orderH.Place)
	r.Get("/orders/{order_id}", orderH.Get)
	r.Delete("/orders/{order_id}", orderH.Cancel)
	r.Post("/orders/{order_id}/settle", settlementH.SettleOrder)
	r.Post("/orders/{order_id}/void", settlementH.VoidOrder)
	r.Post("/orders/{order_id}/close", settlementH.CloseOrder)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// rateLimit returns middleware enforcing a global request rate. rps <= 0
// disables limiting.
func rateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow() {
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT,
// and PATCH requests before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Request body must be valid JSON with Content-Type: application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
