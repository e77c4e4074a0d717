package venue

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/tuxedo-ai/yvm/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPool     = errors.New("pool ID is invalid")
	ErrInvalidAmount   = errors.New("venue amount is invalid")
	ErrCallFailed      = errors.New("venue call failed")
	ErrInvalidResponse = errors.New("venue response is invalid")
)

// YieldVenue abstracts the external lending venue the agent supplies vault
// funds into. GetBalance is the venue's authoritative view of the vault's
// position and is what reconciliation trusts over any cached estimate.
//
// Withdraw returns the amount actually received, which may be less than
// requested due to venue-side rounding or partial liquidity. Callers must
// use the returned amount, never assume it equals the request.
type YieldVenue interface {
	Supply(ctx context.Context, pool types.PoolID, amount sdkmath.Int) error
	Withdraw(ctx context.Context, pool types.PoolID, amount sdkmath.Int) (sdkmath.Int, error)
	GetBalance(ctx context.Context, pool types.PoolID) (sdkmath.Int, error)
	GetAPY(ctx context.Context, pool types.PoolID) (float64, error)
}
