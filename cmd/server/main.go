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
	"time"

	"github.com/shopspring/decimal"

	"broker_ledger/internal/api"
	"broker_ledger/internal/config"
	"broker_ledger/internal/domain"
	"broker_ledger/internal/engine"
	"broker_ledger/internal/repository/memory"
	"broker_ledger/internal/service"
	"broker_ledger/pkg/crypto"
	"broker_ledger/pkg/metrics"
)

const (
	appName = "broker_ledger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("http_addr", cfg.HTTPAddr))

	metricsCollector := metrics.NewCollector(logger)
	signer := crypto.NewSigner(cfg.SigningSecret, logger)

	accountRepo := memory.NewAccountRepository(domain.AccountDefaults{
		Currency:           cfg.DefaultCurrency,
		DemoBalance:        decimal.NewFromFloat(cfg.DefaultDemoBalance),
		DailyWithdrawLimit: decimal.NewFromFloat(cfg.DailyWithdrawLimit),
	})
	tradeRepo := memory.NewTradeRepository()
	ledgerRepo := memory.NewLedgerRepository()
	notificationRepo := memory.NewNotificationRepository(cfg.NotificationHistory)

	notificationService := setupNotificationService(cfg.NotificationWorkers, logger)

	balanceEngine := engine.NewBalanceEngine(
		accountRepo,
		ledgerRepo,
		notificationRepo,
		notificationService,
		decimal.NewFromFloat(cfg.VIPWithdrawLimit),
		logger,
	)
	rateTable := engine.NewRateTable(rateMap(cfg))
	tradeEngine := engine.NewTradeEngine(
		balanceEngine,
		tradeRepo,
		rateTable,
		decimal.NewFromFloat(cfg.LowBalanceThreshold),
		decimal.NewFromFloat(cfg.ReturnRate),
		logger,
	)
	statsAggregator := engine.NewStatsAggregator(balanceEngine, tradeRepo, logger)

	apiHandler := api.NewAPIHandler(
		balanceEngine,
		tradeEngine,
		statsAggregator,
		rateTable,
		metricsCollector,
		signer,
		logger,
	)

	metricsServer := metricsCollector.StartMetricsServer(cfg.MetricsAddr)
	httpServer := startHTTPServer(cfg.HTTPAddr, apiHandler, logger)

	waitForShutdown(logger, httpServer, metricsServer, notificationService)
	logger.Info("Application shutdown complete")
}

func setupLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func setupNotificationService(workers int, logger *slog.Logger) *service.NotificationService {
	emailSender := &service.MockEmailSender{}
	smsSender := &service.MockSMSSender{}

	return service.NewNotificationService(
		emailSender,
		smsSender,
		nil,
		workers,
		logger,
	)
}

func rateMap(cfg *config.Config) map[string]decimal.Decimal {
	if len(cfg.Rates) == 0 {
		return engine.DefaultRates()
	}
	rates := make(map[string]decimal.Decimal, len(cfg.Rates))
	for code, rate := range cfg.Rates {
		rates[code] = decimal.NewFromFloat(rate)
	}
	return rates
}

func startHTTPServer(addr string, apiHandler *api.APIHandler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	apiHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name": "%s", "status": "ok"}`, appName)
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(
	logger *slog.Logger,
	httpServer *http.Server,
	metricsServer *http.Server,
	notificationService *service.NotificationService,
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}

	if err := notificationService.Shutdown(ctx); err != nil {
		logger.Error("Notification service shutdown failed", slog.String("error", err.Error()))
	}
}
