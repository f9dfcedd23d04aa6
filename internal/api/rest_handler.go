package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"broker_ledger/internal/domain"
	"broker_ledger/internal/engine"
	"broker_ledger/internal/repository"
	"broker_ledger/pkg/crypto"
	"broker_ledger/pkg/metrics"
)

// UserIDHeader carries the caller's verified identity. Authentication itself
// is a collaborator concern; the server trusts this header.
const UserIDHeader = "X-User-ID"

const idempotencyKeyHeader = "Idempotency-Key"

// idempotencyCapacity bounds the per-process replay cache.
const idempotencyCapacity = 10000

type APIHandler struct {
	balance     *engine.BalanceEngine
	trades      *engine.TradeEngine
	stats       *engine.StatsAggregator
	rates       *engine.RateTable
	metrics     *metrics.Collector
	signer      *crypto.Signer
	idempotency *IdempotencyCache

	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(
	balance *engine.BalanceEngine,
	trades *engine.TradeEngine,
	stats *engine.StatsAggregator,
	rates *engine.RateTable,
	metrics *metrics.Collector,
	signer *crypto.Signer,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		balance:        balance,
		trades:         trades,
		stats:          stats,
		rates:          rates,
		metrics:        metrics,
		signer:         signer,
		idempotency:    NewIdempotencyCache(idempotencyCapacity),
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

type WalletRequest struct {
	Kind      domain.AccountKind `json:"type"`
	Amount    decimal.Decimal    `json:"amount"`
	Signature string             `json:"signature,omitempty"`
}

type OpenTradeRequest struct {
	Symbol     string           `json:"symbol"`
	Amount     decimal.Decimal  `json:"amount"`
	Type       domain.TradeType `json:"type"`
	Leverage   decimal.Decimal  `json:"leverage"`
	Currency   string           `json:"currency"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `json:"take_profit,omitempty"`
	Signature  string           `json:"signature,omitempty"`
}

type StatusRequest struct {
	Status domain.AccountStatus `json:"status"`
}

type DashboardResponse struct {
	Account *domain.Account `json:"account"`
	Stats   *domain.Stats   `json:"stats"`
	Trades  []domain.Trade  `json:"trades"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *APIHandler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req WalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if !h.verifySignature(w, userID, "deposit", walletPayload(req), req.Signature) {
		return
	}

	acc, err := h.balance.Deposit(ctx, userID, req.Kind, req.Amount)
	h.metrics.RecordOperation("deposit", time.Since(startTime), err == nil)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.publishBalances(userID, acc)
	h.sendJSON(w, acc, http.StatusOK)
}

func (h *APIHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req WalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if !h.verifySignature(w, userID, "withdraw", walletPayload(req), req.Signature) {
		return
	}

	acc, err := h.balance.Withdraw(ctx, userID, req.Kind, req.Amount)
	h.metrics.RecordOperation("withdraw", time.Since(startTime), err == nil)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.publishBalances(userID, acc)
	h.sendJSON(w, acc, http.StatusOK)
}

func (h *APIHandler) UpgradeHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	acc, err := h.balance.UpgradeToVip(ctx, userID)
	h.metrics.RecordOperation("upgrade", time.Since(startTime), err == nil)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, acc, http.StatusOK)
}

func (h *APIHandler) VerifyKycHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	acc, err := h.balance.VerifyKyc(ctx, userID)
	h.metrics.RecordOperation("verify_kyc", time.Since(startTime), err == nil)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, acc, http.StatusOK)
}

func (h *APIHandler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	acc, err := h.balance.GetAccount(ctx, userID)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, acc, http.StatusOK)
}

func (h *APIHandler) GetLedgerHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	entries, err := h.balance.Ledger(ctx, userID)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, entries, http.StatusOK)
}

// ExportLedgerHandler streams the audit trail as a CSV download.
func (h *APIHandler) ExportLedgerHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	entries, err := h.balance.Ledger(ctx, userID)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "action", "details", "timestamp"})
	for _, entry := range entries {
		_ = cw.Write([]string{
			entry.ID,
			string(entry.Action),
			entry.Details,
			entry.Timestamp.Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("ledger export failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}
}

func (h *APIHandler) GetNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	notes, err := h.balance.Notifications(ctx, userID)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, notes, http.StatusOK)
}

func (h *APIHandler) OpenTradeHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req OpenTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if req.Leverage.IsZero() {
		req.Leverage = decimal.NewFromInt(1)
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	if !h.verifySignature(w, userID, "trade_open", tradePayload(req), req.Signature) {
		return
	}

	trade, err := h.trades.Open(ctx, userID, engine.OpenTradeRequest{
		Symbol:     req.Symbol,
		Amount:     req.Amount,
		Type:       req.Type,
		Leverage:   req.Leverage,
		Currency:   req.Currency,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	})
	h.metrics.RecordOperation("trade_open", time.Since(startTime), err == nil)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, trade, http.StatusCreated)
}

func (h *APIHandler) CloseTradeHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	tradeID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.sendError(w, "Trade ID must be an integer", http.StatusBadRequest, "INVALID_TRADE_ID")
		return
	}

	trade, err := h.trades.Close(ctx, userID, tradeID)
	h.metrics.RecordOperation("trade_close", time.Since(startTime), err == nil)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, trade, http.StatusOK)
}

func (h *APIHandler) ListTradesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	trades, err := h.trades.List(ctx, userID)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, trades, http.StatusOK)
}

// GetStatsHandler computes dashboard statistics and fires the pending
// one-time trade notifications. A suspended account still gets its numbers;
// only the notification drain is skipped.
func (h *APIHandler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	stats, err := h.computeStats(ctx, userID)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, stats, http.StatusOK)
}

func (h *APIHandler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	acc, err := h.balance.GetAccount(ctx, userID)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	stats, err := h.computeStats(ctx, userID)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}
	trades, err := h.trades.List(ctx, userID)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, DashboardResponse{Account: acc, Stats: stats, Trades: trades}, http.StatusOK)
}

func (h *APIHandler) computeStats(ctx context.Context, userID string) (*domain.Stats, error) {
	if err := h.stats.DrainTradeUpdates(ctx, userID); err != nil && !errors.Is(err, repository.ErrAccountSuspended) {
		return nil, err
	}
	stats, err := h.stats.Compute(ctx, userID)
	if err != nil {
		return nil, err
	}
	h.metrics.SetOpenTrades(userID, stats.OpenTrades)
	return stats, nil
}

func (h *APIHandler) MarketHandler(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, h.rates.Snapshot(), http.StatusOK)
}

// SetStatusHandler suspends or reactivates an account. Admin-only in any real
// deployment; access control sits in front of this server.
func (h *APIHandler) SetStatusHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	targetID := r.PathValue("user_id")
	if targetID == "" {
		h.sendError(w, "User ID is required", http.StatusBadRequest, "MISSING_USER")
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	acc, err := h.balance.SetStatus(ctx, targetID, req.Status)
	h.metrics.RecordOperation("set_status", time.Since(startTime), err == nil)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendJSON(w, acc, http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		h.sendError(w, "X-User-ID header is required", http.StatusUnauthorized, "MISSING_USER")
		return "", false
	}
	return userID, true
}

func walletPayload(req WalletRequest) string {
	return fmt.Sprintf("%s:%s", req.Amount, req.Kind)
}

func tradePayload(req OpenTradeRequest) string {
	return fmt.Sprintf("%s:%s:%s:%s", req.Symbol, req.Amount, req.Type, req.Currency)
}

func (h *APIHandler) verifySignature(w http.ResponseWriter, userID, operation, payload, signature string) bool {
	if signature == "" || h.signer == nil {
		return true
	}
	if valid, err := h.signer.VerifyRequest(userID, operation, []byte(payload), signature); !valid || err != nil {
		h.sendError(w, "Invalid signature", http.StatusUnauthorized, "INVALID_SIGNATURE")
		return false
	}
	return true
}

func (h *APIHandler) publishBalances(userID string, acc *domain.Account) {
	h.metrics.UpdateAccountBalance(userID, string(domain.KindReal), acc.RealBalance.InexactFloat64())
	h.metrics.UpdateAccountBalance(userID, string(domain.KindDemo), acc.DemoBalance.InexactFloat64())
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, engine.ErrInvalidTradeRequest):
		return http.StatusBadRequest, "INVALID_TRADE_REQUEST"
	case errors.Is(err, repository.ErrInsufficientFunds):
		return http.StatusBadRequest, "INSUFFICIENT_FUNDS"
	case errors.Is(err, engine.ErrKycRequired):
		return http.StatusForbidden, "KYC_REQUIRED"
	case errors.Is(err, engine.ErrLimitExceeded):
		return http.StatusForbidden, "LIMIT_EXCEEDED"
	case errors.Is(err, engine.ErrHedgingNotAllowed):
		return http.StatusForbidden, "HEDGING_NOT_ALLOWED"
	case errors.Is(err, repository.ErrAccountSuspended):
		return http.StatusForbidden, "ACCOUNT_SUSPENDED"
	case errors.Is(err, engine.ErrTradeNotFound):
		return http.StatusNotFound, "TRADE_NOT_FOUND"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, engine.ErrTradeAlreadyClosed):
		return http.StatusConflict, "TRADE_ALREADY_CLOSED"
	default:
		return http.StatusInternalServerError, "SERVER_ERROR"
	}
}

func (h *APIHandler) sendEngineError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	h.sendError(w, err.Error(), status, code)
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	errorResponse := ErrorResponse{
		Error: message,
		Code:  code,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

// withIdempotency replays the stored response when a mutation retries with
// the same Idempotency-Key and payload. Requests without the header pass
// through untouched.
func (h *APIHandler) withIdempotency(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyKeyHeader)
		if key == "" {
			next(w, r)
			return
		}

		userID := r.Header.Get(UserIDHeader)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		requestHash := crypto.RequestHash(operation, r.URL.Path, string(body))
		rec, err := h.idempotency.Begin(userID, key, requestHash)
		switch {
		case errors.Is(err, errIdempotencyMismatch):
			h.sendError(w, err.Error(), http.StatusUnprocessableEntity, "IDEMPOTENCY_MISMATCH")
			return
		case errors.Is(err, errIdempotencyInProgress):
			h.sendError(w, err.Error(), http.StatusConflict, "REQUEST_IN_PROGRESS")
			return
		}
		if rec != nil {
			h.logger.Info("idempotent replay",
				slog.String("user_id", userID),
				slog.String("operation", operation))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.status)
			w.Write(rec.body)
			return
		}

		cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next(cw, r)

		if cw.status < http.StatusMultipleChoices {
			h.idempotency.Complete(userID, key, cw.status, cw.buf.Bytes())
		} else {
			h.idempotency.Release(userID, key)
		}
	}
}

type captureWriter struct {
	http.ResponseWriter
	status      int
	buf         bytes.Buffer
	wroteHeader bool
}

func (cw *captureWriter) WriteHeader(code int) {
	if cw.wroteHeader {
		return
	}
	cw.wroteHeader = true
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.buf.Write(b)
	return cw.ResponseWriter.Write(b)
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/accounts/deposit", h.withIdempotency("deposit", h.DepositHandler))
	mux.HandleFunc("POST /api/v1/accounts/withdraw", h.withIdempotency("withdraw", h.WithdrawHandler))
	mux.HandleFunc("POST /api/v1/accounts/upgrade", h.UpgradeHandler)
	mux.HandleFunc("POST /api/v1/accounts/verify-kyc", h.VerifyKycHandler)
	mux.HandleFunc("GET /api/v1/accounts/balance", h.GetBalanceHandler)
	mux.HandleFunc("GET /api/v1/accounts/ledger", h.GetLedgerHandler)
	mux.HandleFunc("GET /api/v1/accounts/ledger/export", h.ExportLedgerHandler)
	mux.HandleFunc("GET /api/v1/accounts/notifications", h.GetNotificationsHandler)
	mux.HandleFunc("POST /api/v1/trades", h.withIdempotency("trade_open", h.OpenTradeHandler))
	mux.HandleFunc("POST /api/v1/trades/{id}/close", h.withIdempotency("trade_close", h.CloseTradeHandler))
	mux.HandleFunc("GET /api/v1/trades", h.ListTradesHandler)
	mux.HandleFunc("GET /api/v1/stats", h.GetStatsHandler)
	mux.HandleFunc("GET /api/v1/dashboard", h.DashboardHandler)
	mux.HandleFunc("GET /api/v1/market", h.MarketHandler)
	mux.HandleFunc("POST /api/v1/admin/accounts/{user_id}/status", h.SetStatusHandler)
	mux.HandleFunc("GET /api/health", h.HealthCheckHandler)
}
