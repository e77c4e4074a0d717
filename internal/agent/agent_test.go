package agent

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/tuxedo-ai/yvm/internal/token"
	"github.com/tuxedo-ai/yvm/internal/types"
	"github.com/tuxedo-ai/yvm/internal/vault"
	"github.com/tuxedo-ai/yvm/internal/venue"
)

const testVaultID = types.VaultID(1)

func newTestAgent(t *testing.T, idleBuffer int64) (*Agent, *vault.Engine, *venue.SimVenue, *token.MemLedger) {
	t.Helper()

	underlying := token.NewMemLedger("USDC")
	shares := token.NewMemLedger("yvUSDC")

	simVenue, err := venue.NewSimVenue(underlying, vault.AccountFor(testVaultID), []types.PoolID{"pool-a", "pool-b"})
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

	a, err := NewAgent(Config{
		Engine:     engine,
		Venue:      simVenue,
		VaultID:    testVaultID,
		Credential: "agent",
		PoolIDs:    []string{"pool-a", "pool-b"},
		IdleBuffer: sdkmath.NewInt(idleBuffer),
		DBBacked:   false,
	})
	require.NoError(t, err)

	return a, engine, simVenue, underlying
}

func TestRunCycleSuppliesIdleAboveBufferToBestPool(t *testing.T) {
	a, engine, simVenue, underlying := newTestAgent(t, 100)
	ctx := context.Background()

	simVenue.SetAPY("pool-a", 0.04)
	simVenue.SetAPY("pool-b", 0.09)

	require.NoError(t, underlying.Mint("alice", sdkmath.NewInt(1_000)))
	_, _, err := engine.Deposit(ctx, testVaultID, "alice", sdkmath.NewInt(1_000))
	require.NoError(t, err)

	a.RunCycle(ctx)

	stats, err := engine.GetVaultStats(testVaultID)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100), stats.IdleBalance)
	require.Equal(t, sdkmath.NewInt(900), stats.DeployedBalance)

	// The higher-APY pool got the allocation.
	position, err := simVenue.GetBalance(ctx, "pool-b")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(900), position)
}

func TestRunCycleDoesNothingBelowBuffer(t *testing.T) {
	a, engine, _, underlying := newTestAgent(t, 500)
	ctx := context.Background()

	require.NoError(t, underlying.Mint("alice", sdkmath.NewInt(400)))
	_, _, err := engine.Deposit(ctx, testVaultID, "alice", sdkmath.NewInt(400))
	require.NoError(t, err)

	a.RunCycle(ctx)

	stats, err := engine.GetVaultStats(testVaultID)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(400), stats.IdleBalance)
	require.True(t, stats.DeployedBalance.IsZero())
}

func TestRunCycleReconcilesBeforeAllocating(t *testing.T) {
	a, engine, simVenue, underlying := newTestAgent(t, 0)
	ctx := context.Background()

	require.NoError(t, underlying.Mint("alice", sdkmath.NewInt(1_000)))
	_, _, err := engine.Deposit(ctx, testVaultID, "alice", sdkmath.NewInt(1_000))
	require.NoError(t, err)

	a.RunCycle(ctx)
	require.NoError(t, simVenue.AccrueYield("pool-a", sdkmath.NewInt(50)))

	a.RunCycle(ctx)

	// The second cycle picked up the venue-side growth.
	stats, err := engine.GetVaultStats(testVaultID)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1_050), stats.TotalValue)
}

func TestNewAgentValidatesConfig(t *testing.T) {
	_, engine, simVenue, _ := newTestAgent(t, 0)

	_, err := NewAgent(Config{Venue: simVenue, VaultID: testVaultID, Credential: "agent", PoolIDs: []string{"pool-a"}, IdleBuffer: sdkmath.ZeroInt()})
	require.Error(t, err)

	_, err = NewAgent(Config{Engine: engine, VaultID: testVaultID, Credential: "agent", PoolIDs: []string{"pool-a"}, IdleBuffer: sdkmath.ZeroInt()})
	require.Error(t, err)

	_, err = NewAgent(Config{Engine: engine, Venue: simVenue, VaultID: testVaultID, PoolIDs: []string{"pool-a"}, IdleBuffer: sdkmath.ZeroInt()})
	require.Error(t, err)

	_, err = NewAgent(Config{Engine: engine, Venue: simVenue, VaultID: testVaultID, Credential: "agent", IdleBuffer: sdkmath.ZeroInt()})
	require.Error(t, err)

	_, err = NewAgent(Config{Engine: engine, Venue: simVenue, VaultID: testVaultID, Credential: "agent", PoolIDs: []string{"pool-a"}, IdleBuffer: sdkmath.NewInt(-1)})
	require.Error(t, err)
}
