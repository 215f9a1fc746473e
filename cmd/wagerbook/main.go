package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/openwager/wagerbook/internal/config"
	"github.com/openwager/wagerbook/internal/engine"
	"github.com/openwager/wagerbook/internal/handler"
	"github.com/openwager/wagerbook/internal/service"
	"github.com/openwager/wagerbook/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level and format.
	var logLevel slog.Level
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	var logHandler slog.Handler
	if cfg.Log.Format == "json" {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	// Instantiate stores.
	marketStore := store.NewMarketStore()
	orderStore := store.NewOrderStore()
	positionStore := store.NewPositionStore()
	purchaserStore := store.NewPurchaserStore()

	var historyStore *store.HistoryStore
	if cfg.Storage.HistoryDSN != "" {
		historyStore, err = store.NewHistoryStore(cfg.Storage.HistoryDSN)
		if err != nil {
			logger.Error("failed to open history store", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer historyStore.Close()
	}

	// Engine.
	eng := engine.NewEngine(marketStore, orderStore, positionStore, purchaserStore, historyStore, logger)

	// Services.
	purchaserSvc := service.NewPurchaserService(purchaserStore)
	marketSvc := service.NewMarketService(eng)
	orderSvc := service.NewOrderService(eng, orderStore, positionStore)
	settlementSvc := service.NewSettlementService(eng)

	// Router.
	router := handler.NewRouter(purchaserSvc, marketSvc, orderSvc, settlementSvc, handler.RouterConfig{
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		CrankDefault:   cfg.Engine.CrankMaxEntries,
	}, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
