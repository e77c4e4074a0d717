package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/tuxedo-ai/yvm/internal/token"
	"github.com/tuxedo-ai/yvm/internal/types"
	"github.com/tuxedo-ai/yvm/internal/vault"
	"github.com/tuxedo-ai/yvm/internal/venue"
)

const testVaultID = types.VaultID(1)

func newTestServer(t *testing.T) (*WebServer, *token.MemLedger) {
	t.Helper()

	underlying := token.NewMemLedger("USDC")
	shares := token.NewMemLedger("yvUSDC")

	simVenue, err := venue.NewSimVenue(underlying, vault.AccountFor(testVaultID), []types.PoolID{"pool-a"})
	require.NoError(t, err)

	engine, err := vault.NewEngine(vault.Config{
		Underlying: underlying,
		Shares:     shares,
		Venue:      simVenue,
		Recorder:   vault.NopRecorder{},
		FeeBps:     200,
	})
	require.NoError(t, err)
	require.NoError(t, engine.Initialize(testVaultID, "admin", "agent", "platform"))

	return NewWebServer("0", engine, testVaultID, false), underlying
}

func doJSON(t *testing.T, ws *WebServer, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	ws.Router().ServeHTTP(recorder, req)

	decoded := map[string]interface{}{}
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	}
	return recorder, decoded
}

func TestDepositEndpoint(t *testing.T) {
	ws, underlying := newTestServer(t)
	require.NoError(t, underlying.Mint("alice", sdkmath.NewInt(1_000)))

	recorder, body := doJSON(t, ws, "POST", "/api/vault/deposit", map[string]string{
		"depositor": "alice",
		"amount":    "1000",
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "1000", body["shares_minted"])
	require.NotEmpty(t, body["tx_id"])
}

func TestDepositRejectsBadAmount(t *testing.T) {
	ws, _ := newTestServer(t)

	recorder, body := doJSON(t, ws, "POST", "/api/vault/deposit", map[string]string{
		"depositor": "alice",
		"amount":    "not-a-number",
	})

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, "invalid_amount", body["kind"])
}

func TestWithdrawInsufficientSharesReturnsConflict(t *testing.T) {
	ws, underlying := newTestServer(t)
	require.NoError(t, underlying.Mint("alice", sdkmath.NewInt(100)))

	_, _ = doJSON(t, ws, "POST", "/api/vault/deposit", map[string]string{
		"depositor": "alice",
		"amount":    "100",
	})

	recorder, body := doJSON(t, ws, "POST", "/api/vault/withdraw", map[string]string{
		"owner":  "alice",
		"shares": "500",
	})

	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Equal(t, "insufficient_shares", body["kind"])
	// The error response carries the unchanged vault stats.
	require.Contains(t, body, "vault_stats")
}

func TestStrategyEndpointsEnforceAgentCredential(t *testing.T) {
	ws, underlying := newTestServer(t)
	require.NoError(t, underlying.Mint("alice", sdkmath.NewInt(1_000)))
	_, _ = doJSON(t, ws, "POST", "/api/vault/deposit", map[string]string{
		"depositor": "alice",
		"amount":    "1000",
	})

	recorder, body := doJSON(t, ws, "POST", "/api/agent/supply", map[string]string{
		"caller": "alice",
		"pool":   "pool-a",
		"amount": "500",
	})
	require.Equal(t, http.StatusForbidden, recorder.Code)
	require.Equal(t, "unauthorized", body["kind"])

	recorder, body = doJSON(t, ws, "POST", "/api/agent/supply", map[string]string{
		"caller": "agent",
		"pool":   "pool-a",
		"amount": "500",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "500", body["new_deployed"])

	recorder, body = doJSON(t, ws, "POST", "/api/agent/unwind", map[string]string{
		"caller": "agent",
		"pool":   "pool-a",
		"amount": "200",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "300", body["new_deployed"])
}

func TestDistributeEndpointAuthorization(t *testing.T) {
	ws, _ := newTestServer(t)

	recorder, body := doJSON(t, ws, "POST", "/api/vault/distribute", map[string]string{
		"caller": "stranger",
	})
	require.Equal(t, http.StatusForbidden, recorder.Code)
	require.Equal(t, "unauthorized", body["kind"])

	// No yield has accrued, so nothing settles: no fee, no receipt.
	recorder, body = doJSON(t, ws, "POST", "/api/vault/distribute", map[string]string{
		"caller": "admin",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "0", body["fee_collected"])
	require.Equal(t, false, body["distributed"])
	require.NotContains(t, body, "tx_id")
}

func TestReadEndpoints(t *testing.T) {
	ws, underlying := newTestServer(t)
	require.NoError(t, underlying.Mint("alice", sdkmath.NewInt(250)))
	_, _ = doJSON(t, ws, "POST", "/api/vault/deposit", map[string]string{
		"depositor": "alice",
		"amount":    "250",
	})

	recorder, body := doJSON(t, ws, "GET", "/api/vault/stats", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "250", body["total_value"])
	require.Equal(t, "250", body["share_supply"])

	recorder, body = doJSON(t, ws, "GET", "/api/vault/share-value", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, types.Scale.String(), body["share_value"])

	recorder, body = doJSON(t, ws, "GET", "/api/users/alice/shares", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "250", body["shares"])
}

func TestHistoryEndpointsWithoutDatabase(t *testing.T) {
	ws, _ := newTestServer(t)

	for _, path := range []string{"/api/vault/receipts", "/api/vault/activity", "/api/cycles"} {
		recorder, body := doJSON(t, ws, "GET", path, nil)
		require.Equal(t, http.StatusNotImplemented, recorder.Code, path)
		require.Equal(t, "no_database", body["kind"], path)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ws, _ := newTestServer(t)

	recorder, body := doJSON(t, ws, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "OK", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	ws, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	recorder := httptest.NewRecorder()
	ws.Router().ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "yvm_")
}
