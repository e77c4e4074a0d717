package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tuxedo-ai/yvm/internal/logger"
	"github.com/tuxedo-ai/yvm/internal/types"
	"github.com/tuxedo-ai/yvm/internal/venue"
)

var poolLogger = logger.GetForComponent("pool_retriever")
var ErrInvalidPoolData = errors.New("invalid pool data")
var ErrMissingCriticalData = errors.New("missing critical pool data for financial calculations")

// GetPools fetches the configured venue pools with strict validation - no
// partial results for financial calculations. A single unreadable pool fails
// the whole fetch: allocating against stale or partial data is worse than
// skipping a cycle.
func GetPools(ctx context.Context, yieldVenue venue.YieldVenue, poolIDs []string) ([]types.PoolInfo, error) {
	poolLogger.Info().Int("configuredPoolCount", len(poolIDs)).Msg("Starting strict pool retrieval process")

	if yieldVenue == nil {
		return nil, errors.New("yield venue cannot be nil")
	}
	if len(poolIDs) == 0 {
		return nil, errors.New("configured pool list cannot be empty")
	}

	seen := make(map[string]bool, len(poolIDs))
	pools := make([]types.PoolInfo, 0, len(poolIDs))

	for _, raw := range poolIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, errors.New("configured pools cannot contain empty IDs")
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate pool ID %s", ErrInvalidPoolData, id)
		}
		seen[id] = true

		pool := types.PoolID(id)

		apy, err := yieldVenue.GetAPY(ctx, pool)
		if err != nil {
			poolLogger.Error().Err(err).Str("pool", id).Msg("Failed to fetch pool APY")
			return nil, fmt.Errorf("APY query for pool %s failed: %w", id, err)
		}
		if math.IsNaN(apy) || math.IsInf(apy, 0) || apy < 0 {
			return nil, fmt.Errorf("%w: pool %s reported APY %f", ErrMissingCriticalData, id, apy)
		}

		balance, err := yieldVenue.GetBalance(ctx, pool)
		if err != nil {
			poolLogger.Error().Err(err).Str("pool", id).Msg("Failed to fetch pool position balance")
			return nil, fmt.Errorf("balance query for pool %s failed: %w", id, err)
		}
		if balance.IsNil() || balance.IsNegative() {
			return nil, fmt.Errorf("%w: pool %s reported balance %s", ErrInvalidPoolData, id, balance)
		}

		pools = append(pools, types.PoolInfo{
			ID:           pool,
			APY:          apy,
			VaultBalance: balance,
		})
	}

	poolLogger.Info().Int("poolCount", len(pools)).Msg("Successfully fetched and validated all configured pools")
	return pools, nil
}

// BestPool returns the pool with the highest APY. Ties break toward the
// lexicographically smaller pool ID so allocation is deterministic.
func BestPool(pools []types.PoolInfo) (types.PoolInfo, error) {
	if len(pools) == 0 {
		return types.PoolInfo{}, errors.New("cannot select a pool from an empty list")
	}

	best := pools[0]
	for _, pool := range pools[1:] {
		if pool.APY > best.APY || (pool.APY == best.APY && pool.ID < best.ID) {
			best = pool
		}
	}
	return best, nil
}
