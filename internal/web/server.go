/*

This file contains the HTTP orchestration surface for the vault engine. The
backend drives every vault operation through these endpoints; responses carry
the ledger receipt ID so callers can correlate retries.

*/

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tuxedo-ai/yvm/internal/logger"
	"github.com/tuxedo-ai/yvm/internal/metrics"
	"github.com/tuxedo-ai/yvm/internal/state"
	"github.com/tuxedo-ai/yvm/internal/types"
	"github.com/tuxedo-ai/yvm/internal/utils"
	"github.com/tuxedo-ai/yvm/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the vault engine over HTTP.
type WebServer struct {
	router  *mux.Router
	port    string
	engine  *vault.Engine
	vaultID types.VaultID

	// dbBacked gates the endpoints that read persisted history.
	dbBacked bool
	started  time.Time
}

// NewWebServer creates a web server bound to one engine and a default vault.
func NewWebServer(port string, engine *vault.Engine, vaultID types.VaultID, dbBacked bool) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:   mux.NewRouter(),
		port:     port,
		engine:   engine,
		vaultID:  vaultID,
		dbBacked: dbBacked,
		started:  time.Now(),
	}

	server.setupRoutes()
	return server
}

// Router returns the configured handler. Exposed for tests.
func (ws *WebServer) Router() http.Handler {
	return ws.router
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health and metrics (direct routes)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/vault/deposit", ws.handleDeposit).Methods("POST")
	api.HandleFunc("/vault/withdraw", ws.handleWithdraw).Methods("POST")
	api.HandleFunc("/vault/distribute", ws.handleDistribute).Methods("POST")
	api.HandleFunc("/vault/agent", ws.handleSetAgent).Methods("POST")
	api.HandleFunc("/vault/stats", ws.handleGetStats).Methods("GET")
	api.HandleFunc("/vault/share-value", ws.handleGetShareValue).Methods("GET")
	api.HandleFunc("/vault/activity", ws.handleGetActivity).Methods("GET")
	api.HandleFunc("/vault/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/users/{address}/shares", ws.handleGetUserShares).Methods("GET")
	api.HandleFunc("/agent/supply", ws.handleAgentSupply).Methods("POST")
	api.HandleFunc("/agent/unwind", ws.handleAgentUnwind).Methods("POST")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")

	// Middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
	ws.router.Use(ws.metricsMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// --- request/response shapes ---

type depositRequest struct {
	Depositor string `json:"depositor"`
	Amount    string `json:"amount"`
}

type withdrawRequest struct {
	Owner  string `json:"owner"`
	Shares string `json:"shares"`
}

type strategyRequest struct {
	Caller string `json:"caller"`
	Pool   string `json:"pool"`
	Amount string `json:"amount"`
}

type distributeRequest struct {
	Caller string `json:"caller"`
}

type setAgentRequest struct {
	Caller   string `json:"caller"`
	NewAgent string `json:"new_agent"`
}

// handleDeposit pulls funds from the depositor and mints shares.
func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Malformed request body")
		return
	}

	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	minted, txID, err := ws.engine.Deposit(r.Context(), ws.vaultID, types.Address(req.Depositor), amount)
	if err != nil {
		ws.writeVaultError(w, txID, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"tx_id":         txID,
		"shares_minted": minted.String(),
	})
}

// handleWithdraw burns shares and returns the proportional underlying.
func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Malformed request body")
		return
	}

	shares, err := utils.ParseAmount(req.Shares)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	amountOut, txID, err := ws.engine.Withdraw(r.Context(), ws.vaultID, types.Address(req.Owner), shares)
	if err != nil {
		ws.writeVaultError(w, txID, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"tx_id":           txID,
		"amount_returned": amountOut.String(),
	})
}

// handleAgentSupply deploys idle funds into a venue pool.
func (ws *WebServer) handleAgentSupply(w http.ResponseWriter, r *http.Request) {
	ws.handleStrategy(w, r, types.StrategySupply)
}

// handleAgentUnwind pulls deployed funds back from a venue pool.
func (ws *WebServer) handleAgentUnwind(w http.ResponseWriter, r *http.Request) {
	ws.handleStrategy(w, r, types.StrategyUnwind)
}

func (ws *WebServer) handleStrategy(w http.ResponseWriter, r *http.Request, action types.StrategyAction) {
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Malformed request body")
		return
	}

	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	newDeployed, txID, err := ws.engine.AgentExecute(r.Context(), ws.vaultID, types.Address(req.Caller), action, types.PoolID(req.Pool), amount)
	if err != nil {
		ws.writeVaultError(w, txID, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"tx_id":        txID,
		"action":       string(action),
		"new_deployed": newDeployed.String(),
	})
}

// handleDistribute settles the platform's cut of accrued yield.
func (ws *WebServer) handleDistribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Malformed request body")
		return
	}

	fee, txID, err := ws.engine.DistributeYield(r.Context(), ws.vaultID, types.Address(req.Caller))
	if err != nil {
		ws.writeVaultError(w, txID, err)
		return
	}

	// A distribution with no accrued yield settles nothing and gets no
	// receipt; report that without a hollow tx_id.
	response := map[string]interface{}{
		"fee_collected": fee.String(),
		"distributed":   txID != "",
	}
	if txID != "" {
		response["tx_id"] = txID
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleSetAgent rotates the vault's agent credential.
func (ws *WebServer) handleSetAgent(w http.ResponseWriter, r *http.Request) {
	var req setAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Malformed request body")
		return
	}

	if err := ws.engine.SetAgent(ws.vaultID, types.Address(req.Caller), types.Address(req.NewAgent)); err != nil {
		ws.writeVaultError(w, "", err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"agent": req.NewAgent,
	})
}

// handleGetStats returns the vault's balance snapshot.
func (ws *WebServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := ws.engine.GetVaultStats(ws.vaultID)
	if err != nil {
		ws.writeVaultError(w, "", err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, stats)
}

// handleGetShareValue returns the current share exchange rate.
func (ws *WebServer) handleGetShareValue(w http.ResponseWriter, r *http.Request) {
	value, err := ws.engine.GetShareValue(ws.vaultID)
	if err != nil {
		ws.writeVaultError(w, "", err)
		return
	}

	display, _ := utils.IntToFloat64(value, 7)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"share_value":         value.String(),
		"share_value_display": display,
		"scale":               types.Scale.String(),
	})
}

// handleGetUserShares returns the share balance of one address.
func (ws *WebServer) handleGetUserShares(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if address == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid_address", "Address is required")
		return
	}

	shares, err := ws.engine.GetUserShares(types.Address(address))
	if err != nil {
		ws.writeVaultError(w, "", err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"shares":  shares.String(),
	})
}

// handleGetActivity returns aggregate operation counts from the database.
func (ws *WebServer) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	if !ws.dbBacked {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "no_database", "History endpoints require a database")
		return
	}

	summary, err := state.GetVaultActivitySummary(ws.vaultID)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get vault activity summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve activity summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetReceipts returns recent operation receipts from the database.
func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	if !ws.dbBacked {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "no_database", "History endpoints require a database")
		return
	}

	limit := parseLimit(r, 20, 100)
	receipts, err := state.GetRecentReceipts(ws.vaultID, limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve receipts")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	})
}

// handleGetCycles returns recent automation cycles from the database.
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	if !ws.dbBacked {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "no_database", "History endpoints require a database")
		return
	}

	limit := parseLimit(r, 20, 100)
	cycles, err := state.GetRecentCycles(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve cycles")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	})
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	healthy := true
	dbHealthy := true
	if ws.dbBacked {
		if err := state.TestDBConnection(); err != nil {
			dbHealthy = false
			healthy = false
		}
	}

	engineHealthy := true
	if _, err := ws.engine.GetVaultStats(ws.vaultID); err != nil {
		engineHealthy = false
		healthy = false
	}

	status := "OK"
	statusCode := http.StatusOK
	if !healthy {
		status = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "yvm-yield-vault-manager",
			"version": "1.0.0",
		},
		"yvm_status": map[string]interface{}{
			"database_backed":  ws.dbBacked,
			"database_healthy": dbHealthy,
			"engine_healthy":   engineHealthy,
			"vault_id":         ws.vaultID,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// parseLimit reads a bounded ?limit= query parameter.
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= max {
			limit = parsed
		}
	}
	return limit
}

// writeVaultError maps engine error kinds onto HTTP status codes. The
// current vault stats ride along so the caller can see the (unchanged)
// balances after a rejected operation.
func (ws *WebServer) writeVaultError(w http.ResponseWriter, txID string, err error) {
	var statusCode int
	var kind string

	switch {
	case errors.Is(err, vault.ErrUnauthorized):
		statusCode, kind = http.StatusForbidden, "unauthorized"
	case errors.Is(err, vault.ErrInvalidAmount):
		statusCode, kind = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, vault.ErrInvalidAddress):
		statusCode, kind = http.StatusBadRequest, "invalid_address"
	case errors.Is(err, vault.ErrOverflow):
		statusCode, kind = http.StatusBadRequest, "overflow"
	case errors.Is(err, vault.ErrInsufficientShares):
		statusCode, kind = http.StatusConflict, "insufficient_shares"
	case errors.Is(err, vault.ErrInsufficientLiquidity):
		statusCode, kind = http.StatusConflict, "insufficient_liquidity"
	case errors.Is(err, vault.ErrAlreadyInitialized):
		statusCode, kind = http.StatusConflict, "already_initialized"
	case errors.Is(err, vault.ErrVaultNotFound):
		statusCode, kind = http.StatusNotFound, "vault_not_found"
	case errors.Is(err, vault.ErrStrategyCallFailed):
		statusCode, kind = http.StatusBadGateway, "strategy_call_failed"
	case errors.Is(err, vault.ErrTransferFailed):
		statusCode, kind = http.StatusInternalServerError, "transfer_failed"
	default:
		statusCode, kind = http.StatusInternalServerError, "internal_error"
	}

	response := map[string]interface{}{
		"error":     true,
		"kind":      kind,
		"message":   err.Error(),
		"timestamp": time.Now().UTC(),
	}
	if txID != "" {
		response["tx_id"] = txID
	}
	if stats, statsErr := ws.engine.GetVaultStats(ws.vaultID); statsErr == nil {
		response["vault_stats"] = stats
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, kind, message string) {
	response := map[string]interface{}{
		"error":     true,
		"kind":      kind,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// metricsMiddleware counts requests by route template and status.
func (ws *WebServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(wrapper.statusCode)).Inc()
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
