package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/tuxedo-ai/yvm/internal/logger"
	"github.com/tuxedo-ai/yvm/internal/types"
)

const (
	rpcTimeout = 20 * time.Second
)

var blendLogger = logger.GetForComponent("blend_client")

// --- JSON-RPC Structures ---

// JSONRPCRequest defines the structure of a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int            `json:"id"`
	Method  string         `json:"method"`
	Params  PoolCallParams `json:"params"`
}

// PoolCallParams defines the parameters for pool methods.
type PoolCallParams struct {
	Pool    string `json:"pool"`
	Account string `json:"account"`
	Amount  string `json:"amount,omitempty"`
}

// JSONRPCResponse defines the structure of a JSON-RPC response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError defines the structure of a JSON-RPC error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// poolAmountResult is the result payload for methods returning an amount.
type poolAmountResult struct {
	Amount string `json:"amount"`
}

// poolAPYResult is the result payload for pool_getReserveApy.
type poolAPYResult struct {
	APY float64 `json:"apy"`
}

// BlendClient is the live client for a Blend-style lending venue exposed over
// JSON-RPC. All vault positions are held under a single venue-side account.
type BlendClient struct {
	endpoint string
	account  string
	client   *http.Client
}

// NewBlendClient creates a live venue client with comprehensive validation.
func NewBlendClient(endpoint, account string) (*BlendClient, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("venue RPC endpoint cannot be empty")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("venue RPC endpoint must be an HTTP(S) URL, got %q", endpoint)
	}
	if strings.TrimSpace(account) == "" {
		return nil, errors.New("venue account cannot be empty")
	}

	client := &BlendClient{
		endpoint: endpoint,
		account:  account,
		client:   &http.Client{Timeout: rpcTimeout},
	}

	blendLogger.Info().
		Str("endpoint", endpoint).
		Str("account", account).
		Msg("BlendClient initialized")
	return client, nil
}

func (c *BlendClient) Supply(ctx context.Context, pool types.PoolID, amount sdkmath.Int) error {
	if err := validateCall(pool, amount); err != nil {
		return err
	}

	result, err := c.call(ctx, "pool_supply", PoolCallParams{
		Pool:    string(pool),
		Account: c.account,
		Amount:  amount.String(),
	})
	if err != nil {
		return errors.Join(ErrCallFailed, err)
	}

	var supplied poolAmountResult
	if err := json.Unmarshal(result, &supplied); err != nil {
		return errors.Join(ErrInvalidResponse, fmt.Errorf("failed to decode supply result: %w", err))
	}

	blendLogger.Info().
		Str("pool", string(pool)).
		Str("amount", amount.String()).
		Msg("Supplied to venue pool")
	return nil
}

func (c *BlendClient) Withdraw(ctx context.Context, pool types.PoolID, amount sdkmath.Int) (sdkmath.Int, error) {
	if err := validateCall(pool, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}

	result, err := c.call(ctx, "pool_withdraw", PoolCallParams{
		Pool:    string(pool),
		Account: c.account,
		Amount:  amount.String(),
	})
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrCallFailed, err)
	}

	var withdrawn poolAmountResult
	if err := json.Unmarshal(result, &withdrawn); err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidResponse, fmt.Errorf("failed to decode withdraw result: %w", err))
	}

	received, ok := sdkmath.NewIntFromString(withdrawn.Amount)
	if !ok || received.IsNegative() {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidResponse,
			fmt.Errorf("venue returned invalid withdrawn amount %q", withdrawn.Amount))
	}

	// The venue may return less than requested under partial liquidity.
	// Surface the actual amount; the caller must not assume it equals the request.
	if received.LT(amount) {
		blendLogger.Warn().
			Str("pool", string(pool)).
			Str("requested", amount.String()).
			Str("received", received.String()).
			Msg("Venue returned less than requested on withdraw")
	}
	return received, nil
}

func (c *BlendClient) GetBalance(ctx context.Context, pool types.PoolID) (sdkmath.Int, error) {
	if pool == "" {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidPool, errors.New("pool ID cannot be empty"))
	}

	result, err := c.call(ctx, "pool_getPosition", PoolCallParams{
		Pool:    string(pool),
		Account: c.account,
	})
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrCallFailed, err)
	}

	var position poolAmountResult
	if err := json.Unmarshal(result, &position); err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidResponse, fmt.Errorf("failed to decode position result: %w", err))
	}

	balance, ok := sdkmath.NewIntFromString(position.Amount)
	if !ok || balance.IsNegative() {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidResponse,
			fmt.Errorf("venue returned invalid position balance %q", position.Amount))
	}
	return balance, nil
}

func (c *BlendClient) GetAPY(ctx context.Context, pool types.PoolID) (float64, error) {
	if pool == "" {
		return 0, errors.Join(ErrInvalidPool, errors.New("pool ID cannot be empty"))
	}

	result, err := c.call(ctx, "pool_getReserveApy", PoolCallParams{
		Pool:    string(pool),
		Account: c.account,
	})
	if err != nil {
		return 0, errors.Join(ErrCallFailed, err)
	}

	var apy poolAPYResult
	if err := json.Unmarshal(result, &apy); err != nil {
		return 0, errors.Join(ErrInvalidResponse, fmt.Errorf("failed to decode APY result: %w", err))
	}

	if math.IsNaN(apy.APY) || math.IsInf(apy.APY, 0) || apy.APY < 0 {
		return 0, errors.Join(ErrInvalidResponse, fmt.Errorf("venue returned invalid APY %f", apy.APY))
	}
	return apy.APY, nil
}

// call performs a single JSON-RPC round trip.
func (c *BlendClient) call(ctx context.Context, method string, params PoolCallParams) (json.RawMessage, error) {
	request := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON-RPC request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to venue failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read venue response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("venue returned HTTP %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response JSONRPCResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON-RPC response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("venue RPC error %d: %s", response.Error.Code, response.Error.Message)
	}
	if len(response.Result) == 0 {
		return nil, errors.New("venue RPC response has empty result")
	}
	return response.Result, nil
}

func validateCall(pool types.PoolID, amount sdkmath.Int) error {
	if pool == "" {
		return errors.Join(ErrInvalidPool, errors.New("pool ID cannot be empty"))
	}
	if amount.IsNil() {
		return errors.Join(ErrInvalidAmount, errors.New("amount is nil"))
	}
	if !amount.IsPositive() {
		return errors.Join(ErrInvalidAmount, errors.New("amount must be positive"))
	}
	return nil
}
