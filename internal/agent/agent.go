/*

This file contains the automation agent: the off-ledger process holding the
agent credential. Each cycle it reconciles the vault against the venue,
fetches and validates the configured pools, and deploys idle funds above the
configured buffer into the highest-yielding pool. Yield distribution runs on
its own cron schedule so the platform fee settles at predictable times
regardless of the cycle interval.

*/

package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tuxedo-ai/yvm/internal/datafetcher"
	"github.com/tuxedo-ai/yvm/internal/logger"
	"github.com/tuxedo-ai/yvm/internal/state"
	"github.com/tuxedo-ai/yvm/internal/types"
	"github.com/tuxedo-ai/yvm/internal/vault"
	"github.com/tuxedo-ai/yvm/internal/venue"
)

// Agent drives the vault's strategy autonomously using the agent credential.
type Agent struct {
	logger     zerolog.Logger
	engine     *vault.Engine
	venue      venue.YieldVenue
	vaultID    types.VaultID
	credential types.Address
	poolIDs    []string
	idleBuffer sdkmath.Int

	// dbBacked gates cycle-counter and cycle-snapshot persistence.
	dbBacked   bool
	cycleCount int

	cron *cron.Cron
}

// Config holds the configuration for creating a new Agent instance
type Config struct {
	Engine     *vault.Engine
	Venue      venue.YieldVenue
	VaultID    types.VaultID
	Credential types.Address
	PoolIDs    []string
	IdleBuffer sdkmath.Int
	DBBacked   bool
}

// NewAgent creates an agent instance with dependency injection.
func NewAgent(cfg Config) (*Agent, error) {
	if err := validateAgentConfig(cfg); err != nil {
		return nil, fmt.Errorf("agent configuration validation failed: %w", err)
	}

	a := &Agent{
		logger:     logger.GetForComponent("agent_core"),
		engine:     cfg.Engine,
		venue:      cfg.Venue,
		vaultID:    cfg.VaultID,
		credential: cfg.Credential,
		poolIDs:    cfg.PoolIDs,
		idleBuffer: cfg.IdleBuffer,
		dbBacked:   cfg.DBBacked,
	}

	a.logger.Info().
		Uint64("vaultId", uint64(a.vaultID)).
		Strs("pools", a.poolIDs).
		Str("idleBuffer", a.idleBuffer.String()).
		Msg("Agent instance created successfully with dependency injection")

	return a, nil
}

// validateAgentConfig validates the agent configuration
func validateAgentConfig(cfg Config) error {
	if cfg.Engine == nil {
		return fmt.Errorf("vault engine cannot be nil")
	}
	if cfg.Venue == nil {
		return fmt.Errorf("yield venue cannot be nil")
	}
	if cfg.Credential == "" {
		return fmt.Errorf("agent credential cannot be empty")
	}
	if len(cfg.PoolIDs) == 0 {
		return fmt.Errorf("pool list cannot be empty")
	}
	if cfg.IdleBuffer.IsNil() || cfg.IdleBuffer.IsNegative() {
		return fmt.Errorf("idle buffer must be zero or positive")
	}
	return nil
}

// RunLoop starts the main agent loop with the specified interval. Blocks
// until the context is cancelled.
func (a *Agent) RunLoop(ctx context.Context, interval time.Duration) {
	a.logger.Info().
		Dur("interval", interval).
		Msg("Starting agent main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	a.cycleCount++
	a.logger.Info().Int("cycle", a.cycleCount).Msg("Initiating agent cycle")
	a.RunCycle(ctx)
	a.logger.Info().Int("cycle", a.cycleCount).Msg("Agent cycle completed")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Agent loop stopped due to context cancellation")
			return
		case <-ticker.C:
			a.cycleCount++
			a.logger.Info().Int("cycle", a.cycleCount).Msg("Initiating agent cycle")
			a.RunCycle(ctx)
			a.logger.Info().Int("cycle", a.cycleCount).Msg("Agent cycle completed")
		}
	}
}

// StartDistributionSchedule registers the yield-distribution cron job and
// starts the scheduler. Schedules use standard five-field cron syntax.
func (a *Agent) StartDistributionSchedule(ctx context.Context, spec string) error {
	a.cron = cron.New()
	_, err := a.cron.AddFunc(spec, func() {
		fee, txID, err := a.engine.DistributeYield(ctx, a.vaultID, a.credential)
		if err != nil {
			a.logger.Error().Err(err).Msg("Scheduled yield distribution failed")
			return
		}
		if txID == "" {
			a.logger.Info().Msg("Scheduled yield distribution: no yield accrued")
			return
		}
		a.logger.Info().
			Str("txId", txID).
			Str("fee", fee.String()).
			Msg("Scheduled yield distribution completed")
	})
	if err != nil {
		return fmt.Errorf("invalid distribution schedule %q: %w", spec, err)
	}

	a.cron.Start()
	a.logger.Info().Str("schedule", spec).Msg("Yield distribution schedule started")
	return nil
}

// StopDistributionSchedule stops the cron scheduler and waits for any running
// job to finish.
func (a *Agent) StopDistributionSchedule() {
	if a.cron == nil {
		return
	}
	<-a.cron.Stop().Done()
	a.logger.Info().Msg("Yield distribution schedule stopped")
}

// RunCycle executes one complete allocation cycle.
func (a *Agent) RunCycle(ctx context.Context) {
	cycleStartTime := time.Now()

	// Unique cycle ID for tracing logs across the entire cycle
	cycleID := uuid.New().String()
	cycleLogger := a.logger.With().Str("cycle_id", cycleID).Logger()

	cycleLogger.Info().Msg("--- Starting agent cycle ---")

	snapshot := types.CycleSnapshot{
		CycleNumber:    a.nextCycleNumber(cycleLogger),
		CycleID:        cycleID,
		Timestamp:      cycleStartTime,
		VaultID:        a.vaultID,
		SuppliedAmount: sdkmath.ZeroInt(),
		FeeCollected:   sdkmath.ZeroInt(),
	}

	// --- Step 1: Reconciliation ---
	cycleLogger.Info().Msg("Step 1: Reconciling vault against venue positions...")
	if err := a.engine.Reconcile(ctx, a.vaultID); err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to reconcile vault.")
		return
	}

	stats, err := a.engine.GetVaultStats(a.vaultID)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to read vault stats.")
		return
	}
	snapshot.InitialIdle = stats.IdleBalance
	snapshot.InitialDeployed = stats.DeployedBalance

	cycleLogger.Info().
		Str("idle", stats.IdleBalance.String()).
		Str("deployed", stats.DeployedBalance.String()).
		Str("shareValue", stats.ShareValue.String()).
		Msg("Step 1: Vault state assessed.")

	// --- Step 2: Pool data fetching ---
	cycleLogger.Info().Msg("Step 2: Fetching live pool data...")
	pools, err := datafetcher.GetPools(ctx, a.venue, a.poolIDs)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to fetch pools.")
		return
	}
	cycleLogger.Info().Int("pools", len(pools)).Msg("Step 2: Pool data fetching complete.")

	// --- Step 3: Allocation decision ---
	deployable := stats.IdleBalance.Sub(a.idleBuffer)
	if !deployable.IsPositive() {
		cycleLogger.Info().
			Str("idle", stats.IdleBalance.String()).
			Str("buffer", a.idleBuffer.String()).
			Msg("No idle funds above the buffer. No allocation needed.")
		snapshot.FinalIdle = stats.IdleBalance
		snapshot.FinalDeployed = stats.DeployedBalance
		a.saveCycleSnapshot(snapshot, cycleLogger)
		a.logEndOfCycleState(cycleStartTime, cycleLogger)
		return
	}

	best, err := datafetcher.BestPool(pools)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to select a pool.")
		return
	}
	snapshot.SelectedPool = best.ID

	cycleLogger.Info().
		Str("pool", string(best.ID)).
		Float64("apy", best.APY).
		Str("deployable", deployable.String()).
		Msg("Step 3: Allocation target selected.")

	// --- Step 4: Strategy execution ---
	newDeployed, txID, err := a.supplyWithRetry(ctx, cycleLogger, best.ID, deployable)
	if err != nil {
		cycleLogger.Error().Err(err).
			Str("pool", string(best.ID)).
			Str("amount", deployable.String()).
			Msg("Supply execution failed.")
		a.saveCycleSnapshot(snapshot, cycleLogger)
		return
	}
	snapshot.SuppliedAmount = deployable
	snapshot.Receipts = append(snapshot.Receipts, txID)

	cycleLogger.Info().
		Str("txId", txID).
		Str("newDeployed", newDeployed.String()).
		Msg("Step 4: Supply executed.")

	// --- Final snapshot ---
	finalStats, err := a.engine.GetVaultStats(a.vaultID)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to read final vault stats for cycle snapshot.")
		finalStats = stats
	}
	snapshot.FinalIdle = finalStats.IdleBalance
	snapshot.FinalDeployed = finalStats.DeployedBalance

	a.saveCycleSnapshot(snapshot, cycleLogger)
	a.logEndOfCycleState(cycleStartTime, cycleLogger)
}

// supplyWithRetry retries transient venue failures with linear backoff. Any
// other failure kind (authorization, liquidity) is not retryable and aborts
// immediately.
func (a *Agent) supplyWithRetry(ctx context.Context, cycleLogger zerolog.Logger, pool types.PoolID, amount sdkmath.Int) (sdkmath.Int, string, error) {
	const maxAttempts = 3

	var newDeployed sdkmath.Int
	var txID string
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		newDeployed, txID, err = a.engine.AgentExecute(ctx, a.vaultID, a.credential, types.StrategySupply, pool, amount)
		if err == nil || !errors.Is(err, vault.ErrStrategyCallFailed) {
			return newDeployed, txID, err
		}

		cycleLogger.Warn().Err(err).
			Int("attempt", attempt).
			Str("pool", string(pool)).
			Msg("Venue supply call failed, retrying")

		select {
		case <-ctx.Done():
			return sdkmath.ZeroInt(), "", ctx.Err()
		case <-time.After(time.Duration(attempt) * 5 * time.Second):
		}
	}
	return newDeployed, txID, err
}

// nextCycleNumber advances the persistent cycle counter when a database is
// configured, falling back to the in-process counter otherwise.
func (a *Agent) nextCycleNumber(cycleLogger zerolog.Logger) int {
	if !a.dbBacked {
		return a.cycleCount
	}
	number, err := state.IncrementCycleNumber()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to increment persistent cycle counter")
		return a.cycleCount
	}
	return number
}

func (a *Agent) saveCycleSnapshot(snapshot types.CycleSnapshot, cycleLogger zerolog.Logger) {
	if !a.dbBacked {
		return
	}
	if _, err := state.SaveCycleSnapshot(snapshot); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to save cycle snapshot")
	}
}

func (a *Agent) logEndOfCycleState(cycleStartTime time.Time, cycleLogger zerolog.Logger) {
	cycleLogger.Info().
		Dur("duration", time.Since(cycleStartTime)).
		Msg("--- Agent cycle finished ---")
}
