package vault_test

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

const (
	testVaultID = types.VaultID(1)

	adminAddr    = types.Address("admin")
	agentAddr    = types.Address("agent")
	platformAddr = types.Address("platform")
	aliceAddr    = types.Address("alice")
	bobAddr      = types.Address("bob")

	poolA = types.PoolID("pool-a")
	poolB = types.PoolID("pool-b")
)

type testHarness struct {
	engine     *vault.Engine
	underlying *token.MemLedger
	shares     *token.MemLedger
	venue      *venue.SimVenue
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	underlying := token.NewMemLedger("USDC")
	shares := token.NewMemLedger("yvUSDC")

	simVenue, err := venue.NewSimVenue(underlying, vault.AccountFor(testVaultID), []types.PoolID{poolA, poolB})
	require.NoError(t, err)

	engine, err := vault.NewEngine(vault.Config{
		Underlying: underlying,
		Shares:     shares,
		Venue:      simVenue,
		Recorder:   vault.NopRecorder{},
		FeeBps:     200,
	})
	require.NoError(t, err)

	require.NoError(t, engine.Initialize(testVaultID, adminAddr, agentAddr, platformAddr))

	return &testHarness{
		engine:     engine,
		underlying: underlying,
		shares:     shares,
		venue:      simVenue,
	}
}

func (h *testHarness) fund(t *testing.T, account types.Address, amount int64) {
	t.Helper()
	require.NoError(t, h.underlying.Mint(account, sdkmath.NewInt(amount)))
}

func (h *testHarness) deposit(t *testing.T, depositor types.Address, amount int64) sdkmath.Int {
	t.Helper()
	minted, txID, err := h.engine.Deposit(context.Background(), testVaultID, depositor, sdkmath.NewInt(amount))
	require.NoError(t, err)
	require.NotEmpty(t, txID)
	return minted
}

func (h *testHarness) balance(t *testing.T, account types.Address) sdkmath.Int {
	t.Helper()
	balance, err := h.underlying.BalanceOf(account)
	require.NoError(t, err)
	return balance
}

func (h *testHarness) shareBalance(t *testing.T, account types.Address) sdkmath.Int {
	t.Helper()
	balance, err := h.shares.BalanceOf(account)
	require.NoError(t, err)
	return balance
}

func (h *testHarness) stats(t *testing.T) types.VaultStats {
	t.Helper()
	stats, err := h.engine.GetVaultStats(testVaultID)
	require.NoError(t, err)
	return stats
}

func TestBootstrapDepositMintsOneToOne(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)

	minted := h.deposit(t, aliceAddr, 1_000)
	require.Equal(t, sdkmath.NewInt(1_000), minted)

	stats := h.stats(t)
	require.Equal(t, sdkmath.NewInt(1_000), stats.ShareSupply)
	require.Equal(t, sdkmath.NewInt(1_000), stats.IdleBalance)
	require.Equal(t, sdkmath.NewInt(1_000), stats.TotalValue)
	require.Equal(t, types.Scale, stats.ShareValue)

	require.True(t, h.balance(t, aliceAddr).IsZero())
	require.Equal(t, sdkmath.NewInt(1_000), h.shareBalance(t, aliceAddr))
}

func TestDoubleInitializeRejected(t *testing.T) {
	h := newTestHarness(t)

	err := h.engine.Initialize(testVaultID, adminAddr, agentAddr, platformAddr)
	require.ErrorIs(t, err, vault.ErrAlreadyInitialized)
}

func TestDepositProportionalAfterYield(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.fund(t, bobAddr, 550)

	h.deposit(t, aliceAddr, 1_000)
	_, _, err := h.engine.AgentExecute(context.Background(), testVaultID, agentAddr, types.StrategySupply, poolA, sdkmath.NewInt(1_000))
	require.NoError(t, err)
	require.NoError(t, h.venue.AccrueYield(poolA, sdkmath.NewInt(100)))

	// NAV is now 1100 against 1000 shares, so bob's 550 buys exactly 500.
	minted := h.deposit(t, bobAddr, 550)
	require.Equal(t, sdkmath.NewInt(500), minted)

	stats := h.stats(t)
	require.Equal(t, sdkmath.NewInt(1_500), stats.ShareSupply)
	require.Equal(t, sdkmath.NewInt(1_650), stats.TotalValue)

	aliceShares := h.shareBalance(t, aliceAddr)
	bobShares := h.shareBalance(t, bobAddr)
	require.Equal(t, stats.ShareSupply, aliceShares.Add(bobShares))
}

func TestWithdrawFullRoundTrip(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)

	minted := h.deposit(t, aliceAddr, 1_000)

	amountOut, txID, err := h.engine.Withdraw(context.Background(), testVaultID, aliceAddr, minted)
	require.NoError(t, err)
	require.NotEmpty(t, txID)
	require.Equal(t, sdkmath.NewInt(1_000), amountOut)

	require.Equal(t, sdkmath.NewInt(1_000), h.balance(t, aliceAddr))
	require.True(t, h.shareBalance(t, aliceAddr).IsZero())

	// A full redemption leaves the supply numerically zero; compare by value,
	// not representation.
	stats := h.stats(t)
	require.True(t, stats.ShareSupply.IsZero())
	require.True(t, stats.TotalValue.IsZero())
	require.Equal(t, types.Scale, stats.ShareValue)
}

func TestWithdrawRoundTripLosesAtMostRoundingDust(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.fund(t, bobAddr, 100)

	h.deposit(t, aliceAddr, 1_000)
	_, _, err := h.engine.AgentExecute(context.Background(), testVaultID, agentAddr, types.StrategySupply, poolA, sdkmath.NewInt(1_000))
	require.NoError(t, err)
	require.NoError(t, h.venue.AccrueYield(poolA, sdkmath.NewInt(57)))

	// 100 buys floor(100 * 1000 / 1057) = 94 shares.
	minted := h.deposit(t, bobAddr, 100)
	require.Equal(t, sdkmath.NewInt(94), minted)

	// Redeeming them immediately returns floor(94 * 1157 / 1094) = 99:
	// rounding dust stays in the vault, never leaves it.
	amountOut, _, err := h.engine.Withdraw(context.Background(), testVaultID, bobAddr, minted)
	require.NoError(t, err)
	require.True(t, amountOut.GTE(sdkmath.NewInt(99)), "round trip returned %s, below tolerance", amountOut)
	require.True(t, amountOut.LTE(sdkmath.NewInt(100)), "round trip returned %s, above deposit", amountOut)
}

func TestWithdrawMoreSharesThanOwnedRejected(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.deposit(t, aliceAddr, 1_000)

	before := h.stats(t)

	_, _, err := h.engine.Withdraw(context.Background(), testVaultID, aliceAddr, sdkmath.NewInt(1_001))
	require.ErrorIs(t, err, vault.ErrInsufficientShares)

	after := h.stats(t)
	require.Equal(t, before.ShareSupply, after.ShareSupply)
	require.Equal(t, before.TotalValue, after.TotalValue)
	require.Equal(t, sdkmath.NewInt(1_000), h.shareBalance(t, aliceAddr))
}

func TestWithdrawBeyondVenueLiquidityLeavesHoldersWhole(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.deposit(t, aliceAddr, 1_000)

	_, _, err := h.engine.AgentExecute(context.Background(), testVaultID, agentAddr, types.StrategySupply, poolA, sdkmath.NewInt(1_000))
	require.NoError(t, err)

	// The venue can only release 300 per call, so a full withdrawal cannot
	// be satisfied.
	h.venue.SetLiquidityCap(poolA, sdkmath.NewInt(300))

	_, _, err = h.engine.Withdraw(context.Background(), testVaultID, aliceAddr, sdkmath.NewInt(1_000))
	require.ErrorIs(t, err, vault.ErrInsufficientLiquidity)

	// The partial unwind moved funds venue-to-idle, which is NAV-neutral:
	// share count, share value, and the owner's balances are untouched.
	stats := h.stats(t)
	require.Equal(t, sdkmath.NewInt(1_000), stats.ShareSupply)
	require.Equal(t, sdkmath.NewInt(1_000), stats.TotalValue)
	require.Equal(t, types.Scale, stats.ShareValue)
	require.Equal(t, sdkmath.NewInt(1_000), h.shareBalance(t, aliceAddr))
	require.True(t, h.balance(t, aliceAddr).IsZero())

	// The venue still holds the unfilled 700 and the vault still tracks it,
	// so reconciliation confirms the position instead of forgetting it.
	require.NoError(t, h.engine.Reconcile(context.Background(), testVaultID))
	stats = h.stats(t)
	require.Equal(t, sdkmath.NewInt(300), stats.IdleBalance)
	require.Equal(t, sdkmath.NewInt(700), stats.DeployedBalance)
	require.Equal(t, sdkmath.NewInt(1_000), stats.TotalValue)
}

func TestPartialUnwindKeepsRemainderTracked(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.deposit(t, aliceAddr, 1_000)
	ctx := context.Background()

	_, _, err := h.engine.AgentExecute(ctx, testVaultID, agentAddr, types.StrategySupply, poolA, sdkmath.NewInt(1_000))
	require.NoError(t, err)

	// The venue fills only 300 of a 500 unwind request.
	h.venue.SetLiquidityCap(poolA, sdkmath.NewInt(300))

	newDeployed, _, err := h.engine.AgentExecute(ctx, testVaultID, agentAddr, types.StrategyUnwind, poolA, sdkmath.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(700), newDeployed)

	stats := h.stats(t)
	require.Equal(t, sdkmath.NewInt(300), stats.IdleBalance)
	require.Equal(t, sdkmath.NewInt(700), stats.DeployedBalance)
	require.Equal(t, sdkmath.NewInt(1_000), stats.TotalValue)

	// The cached position matches the venue, so reconciliation is a no-op
	// and no value vanishes.
	require.NoError(t, h.engine.Reconcile(ctx, testVaultID))
	stats = h.stats(t)
	require.Equal(t, sdkmath.NewInt(700), stats.DeployedBalance)
	require.Equal(t, sdkmath.NewInt(1_000), stats.TotalValue)
	require.Equal(t, types.Scale, stats.ShareValue)
}

func TestAgentExecuteRequiresAgentCredential(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.deposit(t, aliceAddr, 1_000)

	before := h.stats(t)

	_, _, err := h.engine.AgentExecute(context.Background(), testVaultID, aliceAddr, types.StrategySupply, poolA, sdkmath.NewInt(500))
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	_, _, err = h.engine.AgentExecute(context.Background(), testVaultID, adminAddr, types.StrategySupply, poolA, sdkmath.NewInt(500))
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	after := h.stats(t)
	require.Equal(t, before.IdleBalance, after.IdleBalance)
	require.Equal(t, before.DeployedBalance, after.DeployedBalance)
}

func TestAgentSupplyAndUnwind(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.deposit(t, aliceAddr, 1_000)
	ctx := context.Background()

	newDeployed, txID, err := h.engine.AgentExecute(ctx, testVaultID, agentAddr, types.StrategySupply, poolA, sdkmath.NewInt(600))
	require.NoError(t, err)
	require.NotEmpty(t, txID)
	require.Equal(t, sdkmath.NewInt(600), newDeployed)

	stats := h.stats(t)
	require.Equal(t, sdkmath.NewInt(400), stats.IdleBalance)
	require.Equal(t, sdkmath.NewInt(600), stats.DeployedBalance)
	require.Equal(t, sdkmath.NewInt(1_000), stats.TotalValue)

	newDeployed, _, err = h.engine.AgentExecute(ctx, testVaultID, agentAddr, types.StrategyUnwind, poolA, sdkmath.NewInt(200))
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(400), newDeployed)

	stats = h.stats(t)
	require.Equal(t, sdkmath.NewInt(600), stats.IdleBalance)
	require.Equal(t, sdkmath.NewInt(400), stats.DeployedBalance)
	require.Equal(t, sdkmath.NewInt(1_000), stats.TotalValue)
}

func TestAgentSupplyBeyondIdleRejected(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.deposit(t, aliceAddr, 1_000)

	_, _, err := h.engine.AgentExecute(context.Background(), testVaultID, agentAddr, types.StrategySupply, poolA, sdkmath.NewInt(1_001))
	require.ErrorIs(t, err, vault.ErrInsufficientLiquidity)

	stats := h.stats(t)
	require.Equal(t, sdkmath.NewInt(1_000), stats.IdleBalance)
	require.True(t, stats.DeployedBalance.IsZero())
}

func TestAgentSupplyVenueFailureLeavesStateUnchanged(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.deposit(t, aliceAddr, 1_000)

	h.venue.SetFailSupply(true)

	_, _, err := h.engine.AgentExecute(context.Background(), testVaultID, agentAddr, types.StrategySupply, poolA, sdkmath.NewInt(500))
	require.ErrorIs(t, err, vault.ErrStrategyCallFailed)

	stats := h.stats(t)
	require.Equal(t, sdkmath.NewInt(1_000), stats.IdleBalance)
	require.True(t, stats.DeployedBalance.IsZero())
}

func TestDistributeYieldSettlesPlatformFee(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.deposit(t, aliceAddr, 1_000)
	ctx := context.Background()

	_, _, err := h.engine.AgentExecute(ctx, testVaultID, agentAddr, types.StrategySupply, poolA, sdkmath.NewInt(1_000))
	require.NoError(t, err)
	require.NoError(t, h.venue.AccrueYield(poolA, sdkmath.NewInt(100)))

	// 100 of yield at 200 bps gives the platform 2; the remaining 98 stays
	// in the vault and lifts share value for all holders.
	fee, txID, err := h.engine.DistributeYield(ctx, testVaultID, adminAddr)
	require.NoError(t, err)
	require.NotEmpty(t, txID)
	require.Equal(t, sdkmath.NewInt(2), fee)

	require.Equal(t, sdkmath.NewInt(2), h.balance(t, platformAddr))

	stats := h.stats(t)
	require.Equal(t, sdkmath.NewInt(1_098), stats.TotalValue)
	require.Equal(t, sdkmath.NewInt(1_098), stats.LastRecordedNAV)
	expectedShareValue := sdkmath.NewInt(1_098).Mul(types.Scale).Quo(sdkmath.NewInt(1_000))
	require.Equal(t, expectedShareValue, stats.ShareValue)

	// A second distribution with no further accrual is a no-op.
	fee, txID, err = h.engine.DistributeYield(ctx, testVaultID, adminAddr)
	require.NoError(t, err)
	require.Empty(t, txID)
	require.True(t, fee.IsZero())
	require.Equal(t, sdkmath.NewInt(2), h.balance(t, platformAddr))
}

func TestDistributeYieldAuthorization(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.deposit(t, aliceAddr, 1_000)
	ctx := context.Background()

	_, _, err := h.engine.DistributeYield(ctx, testVaultID, bobAddr)
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	// Both the admin and the agent may trigger distribution.
	_, _, err = h.engine.DistributeYield(ctx, testVaultID, adminAddr)
	require.NoError(t, err)
	_, _, err = h.engine.DistributeYield(ctx, testVaultID, agentAddr)
	require.NoError(t, err)
}

func TestDistributeYieldChargesNothingOnLoss(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.deposit(t, aliceAddr, 1_000)
	ctx := context.Background()

	_, _, err := h.engine.AgentExecute(ctx, testVaultID, agentAddr, types.StrategySupply, poolA, sdkmath.NewInt(1_000))
	require.NoError(t, err)
	require.NoError(t, h.venue.ApplyLoss(poolA, sdkmath.NewInt(100)))

	fee, txID, err := h.engine.DistributeYield(ctx, testVaultID, adminAddr)
	require.NoError(t, err)
	require.Empty(t, txID)
	require.True(t, fee.IsZero())
	require.True(t, h.balance(t, platformAddr).IsZero())

	// The loss is reflected in share value after reconciliation.
	stats := h.stats(t)
	require.Equal(t, sdkmath.NewInt(900), stats.TotalValue)
	expectedShareValue := sdkmath.NewInt(900).Mul(types.Scale).Quo(sdkmath.NewInt(1_000))
	require.Equal(t, expectedShareValue, stats.ShareValue)
}

func TestSetAgentRotatesCredential(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.deposit(t, aliceAddr, 1_000)
	ctx := context.Background()

	newAgent := types.Address("agent-v2")

	err := h.engine.SetAgent(testVaultID, aliceAddr, newAgent)
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	require.NoError(t, h.engine.SetAgent(testVaultID, adminAddr, newAgent))

	current, err := h.engine.Agent(testVaultID)
	require.NoError(t, err)
	require.Equal(t, newAgent, current)

	// The old credential is dead immediately; the new one works.
	_, _, err = h.engine.AgentExecute(ctx, testVaultID, agentAddr, types.StrategySupply, poolA, sdkmath.NewInt(100))
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	_, _, err = h.engine.AgentExecute(ctx, testVaultID, newAgent, types.StrategySupply, poolA, sdkmath.NewInt(100))
	require.NoError(t, err)
}

func TestReconcileSurfacesVenueDrift(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.deposit(t, aliceAddr, 1_000)
	ctx := context.Background()

	_, _, err := h.engine.AgentExecute(ctx, testVaultID, agentAddr, types.StrategySupply, poolA, sdkmath.NewInt(1_000))
	require.NoError(t, err)
	require.NoError(t, h.venue.ApplyLoss(poolA, sdkmath.NewInt(250)))

	// The cached estimate still says 1000 until a reconciliation runs.
	value, err := h.engine.GetShareValue(testVaultID)
	require.NoError(t, err)
	require.Equal(t, types.Scale, value)

	require.NoError(t, h.engine.Reconcile(ctx, testVaultID))

	value, err = h.engine.GetShareValue(testVaultID)
	require.NoError(t, err)
	expected := sdkmath.NewInt(750).Mul(types.Scale).Quo(sdkmath.NewInt(1_000))
	require.Equal(t, expected, value)
}

func TestInvalidInputsRejected(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	ctx := context.Background()

	_, _, err := h.engine.Deposit(ctx, testVaultID, aliceAddr, sdkmath.ZeroInt())
	require.ErrorIs(t, err, vault.ErrInvalidAmount)

	_, _, err = h.engine.Deposit(ctx, testVaultID, aliceAddr, sdkmath.NewInt(-5))
	require.ErrorIs(t, err, vault.ErrInvalidAmount)

	_, _, err = h.engine.Deposit(ctx, testVaultID, types.Address(""), sdkmath.NewInt(100))
	require.ErrorIs(t, err, vault.ErrInvalidAddress)

	tooBig, ok := sdkmath.NewIntFromString("170141183460469231731687303715884105728")
	require.True(t, ok)
	_, _, err = h.engine.Deposit(ctx, testVaultID, aliceAddr, tooBig)
	require.ErrorIs(t, err, vault.ErrOverflow)

	_, _, err = h.engine.Deposit(ctx, types.VaultID(99), aliceAddr, sdkmath.NewInt(100))
	require.ErrorIs(t, err, vault.ErrVaultNotFound)
}

func TestUnderlyingConservation(t *testing.T) {
	h := newTestHarness(t)
	h.fund(t, aliceAddr, 1_000)
	h.fund(t, bobAddr, 500)
	ctx := context.Background()

	h.deposit(t, aliceAddr, 1_000)
	h.deposit(t, bobAddr, 500)

	_, _, err := h.engine.AgentExecute(ctx, testVaultID, agentAddr, types.StrategySupply, poolA, sdkmath.NewInt(900))
	require.NoError(t, err)
	require.NoError(t, h.venue.AccrueYield(poolA, sdkmath.NewInt(60)))

	_, _, err = h.engine.DistributeYield(ctx, testVaultID, adminAddr)
	require.NoError(t, err)

	bobShares := h.shareBalance(t, bobAddr)
	_, _, err = h.engine.Withdraw(ctx, testVaultID, bobAddr, bobShares)
	require.NoError(t, err)

	// Every underlying unit is in exactly one place: user wallets, the
	// vault account, the venue pools, or the platform account.
	total, err := h.underlying.TotalSupply()
	require.NoError(t, err)

	sum := sdkmath.ZeroInt()
	for _, account := range []types.Address{
		aliceAddr, bobAddr, platformAddr,
		vault.AccountFor(testVaultID),
		types.Address("venue:" + poolA), types.Address("venue:" + poolB),
	} {
		sum = sum.Add(h.balance(t, account))
	}
	require.Equal(t, total, sum)
}
