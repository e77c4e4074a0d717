/*

This file contains the vault engine: a share-based ledger that lets many
depositors co-own a pool of a single underlying asset. All state is keyed by
vault ID even though a deployment typically runs one vault. Each operation on
a vault runs under that vault's mutex, reproducing the one-transaction-at-a-
time execution model the accounting discipline assumes: all derived values are
computed before any external call, and ledger state is committed only after
the external call's result is known.

*/

package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tuxedo-ai/yvm/internal/logger"
	"github.com/tuxedo-ai/yvm/internal/token"
	"github.com/tuxedo-ai/yvm/internal/types"
	"github.com/tuxedo-ai/yvm/internal/venue"
)

// maxAmount bounds every externally supplied amount and every computed
// product to the i128 range of the underlying asset ledger.
var maxAmount, _ = sdkmath.NewIntFromString("170141183460469231731687303715884105727")

// instance is one vault's ledger state. Fields are guarded by mu; only the
// engine touches them.
type instance struct {
	mu sync.Mutex

	id       types.VaultID
	admin    types.Address
	agent    types.Address
	platform types.Address

	// account is the underlying-ledger account holding the vault's idle funds.
	account types.Address

	shareSupply     sdkmath.Int
	idleBalance     sdkmath.Int
	deployed        map[types.PoolID]sdkmath.Int
	lastRecordedNAV sdkmath.Int
}

// Engine owns all vault instances and the collaborators they move value
// through. Per-user share ownership lives entirely on the shares ledger; the
// engine never tracks it.
type Engine struct {
	mu     sync.RWMutex
	vaults map[types.VaultID]*instance

	underlying token.Ledger
	shares     token.Ledger
	venue      venue.YieldVenue
	recorder   Recorder

	feeBps sdkmath.Int
	logger zerolog.Logger
}

// Config holds the dependencies for creating an Engine.
type Config struct {
	Underlying token.Ledger
	Shares     token.Ledger
	Venue      venue.YieldVenue
	Recorder   Recorder
	FeeBps     int64
}

// NewEngine creates an engine with dependency injection and validates every
// collaborator up front.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Underlying == nil {
		return nil, errors.New("underlying asset ledger cannot be nil")
	}
	if cfg.Shares == nil {
		return nil, errors.New("share token ledger cannot be nil")
	}
	if cfg.Venue == nil {
		return nil, errors.New("yield venue cannot be nil")
	}
	if cfg.Recorder == nil {
		return nil, errors.New("recorder cannot be nil")
	}
	if cfg.FeeBps < 0 || cfg.FeeBps > 10_000 {
		return nil, fmt.Errorf("fee bps must be between 0 and 10000, got %d", cfg.FeeBps)
	}

	return &Engine{
		vaults:     make(map[types.VaultID]*instance),
		underlying: cfg.Underlying,
		shares:     cfg.Shares,
		venue:      cfg.Venue,
		recorder:   cfg.Recorder,
		feeBps:     sdkmath.NewInt(cfg.FeeBps),
		logger:     logger.GetForComponent("vault_engine"),
	}, nil
}

// Initialize creates a vault with its three fixed principal identities.
// Fails with ErrAlreadyInitialized if the vault ID is already in use.
func (e *Engine) Initialize(id types.VaultID, admin, agent, platform types.Address) error {
	if admin == "" || agent == "" || platform == "" {
		return errors.Join(ErrInvalidAddress, errors.New("admin, agent, and platform identities are all required"))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.vaults[id]; exists {
		return ErrAlreadyInitialized
	}

	v := &instance{
		id:              id,
		admin:           admin,
		agent:           agent,
		platform:        platform,
		account:         AccountFor(id),
		shareSupply:     sdkmath.ZeroInt(),
		idleBalance:     sdkmath.ZeroInt(),
		deployed:        make(map[types.PoolID]sdkmath.Int),
		lastRecordedNAV: sdkmath.ZeroInt(),
	}
	e.vaults[id] = v

	if err := e.recorder.SaveSnapshot(v.snapshot()); err != nil {
		delete(e.vaults, id)
		return fmt.Errorf("failed to persist initial vault snapshot: %w", err)
	}

	e.logger.Info().
		Uint64("vaultId", uint64(id)).
		Str("admin", string(admin)).
		Str("agent", string(agent)).
		Str("platform", string(platform)).
		Msg("Vault initialized")
	return nil
}

// Restore loads a persisted vault back into the engine at boot.
func (e *Engine) Restore(snapshot types.VaultSnapshot) error {
	if snapshot.Admin == "" || snapshot.Agent == "" || snapshot.Platform == "" {
		return errors.Join(ErrInvalidAddress, errors.New("snapshot is missing principal identities"))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.vaults[snapshot.VaultID]; exists {
		return ErrAlreadyInitialized
	}

	deployed := make(map[types.PoolID]sdkmath.Int, len(snapshot.Deployed))
	for pool, balance := range snapshot.Deployed {
		deployed[pool] = balance
	}

	e.vaults[snapshot.VaultID] = &instance{
		id:              snapshot.VaultID,
		admin:           snapshot.Admin,
		agent:           snapshot.Agent,
		platform:        snapshot.Platform,
		account:         AccountFor(snapshot.VaultID),
		shareSupply:     snapshot.ShareSupply,
		idleBalance:     snapshot.IdleBalance,
		deployed:        deployed,
		lastRecordedNAV: snapshot.LastRecordedNAV,
	}

	e.logger.Info().
		Uint64("vaultId", uint64(snapshot.VaultID)).
		Str("shareSupply", snapshot.ShareSupply.String()).
		Msg("Vault restored from snapshot")
	return nil
}

// SetAgent rotates the agent credential. Only the admin may call this.
func (e *Engine) SetAgent(id types.VaultID, caller, newAgent types.Address) error {
	if newAgent == "" {
		return errors.Join(ErrInvalidAddress, errors.New("new agent identity cannot be empty"))
	}

	v, err := e.vault(id)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.admin {
		return errors.Join(ErrUnauthorized, fmt.Errorf("caller %s is not the vault admin", caller))
	}

	previous := v.agent
	v.agent = newAgent
	if err := e.recorder.SaveSnapshot(v.snapshot()); err != nil {
		v.agent = previous
		return fmt.Errorf("failed to persist agent rotation: %w", err)
	}

	e.record(v, types.OpSetAgent, caller, "", sdkmath.ZeroInt(), sdkmath.ZeroInt(), true, string(newAgent))
	e.logger.Warn().
		Uint64("vaultId", uint64(id)).
		Str("previousAgent", string(previous)).
		Str("newAgent", string(newAgent)).
		Msg("Agent credential rotated")
	return nil
}

// GetShareValue returns the current exchange rate between shares and the
// underlying asset, scaled by types.Scale. Returns Scale (1.0) for an empty
// vault. Read-only; uses the cached deployed estimate.
func (e *Engine) GetShareValue(id types.VaultID) (sdkmath.Int, error) {
	v, err := e.vault(id)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.shareValue(), nil
}

// GetVaultStats returns a read-only snapshot of the vault's balances.
func (e *Engine) GetVaultStats(id types.VaultID) (types.VaultStats, error) {
	v, err := e.vault(id)
	if err != nil {
		return types.VaultStats{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	return types.VaultStats{
		VaultID:         v.id,
		TotalValue:      v.nav(),
		ShareSupply:     v.shareSupply,
		IdleBalance:     v.idleBalance,
		DeployedBalance: v.deployedTotal(),
		ShareValue:      v.shareValue(),
		LastRecordedNAV: v.lastRecordedNAV,
	}, nil
}

// GetUserShares returns the owner's balance on the share-token ledger.
func (e *Engine) GetUserShares(owner types.Address) (sdkmath.Int, error) {
	return e.shares.BalanceOf(owner)
}

// Agent returns the vault's current agent identity.
func (e *Engine) Agent(id types.VaultID) (types.Address, error) {
	v, err := e.vault(id)
	if err != nil {
		return "", err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.agent, nil
}

// Reconcile replaces the cached deployed estimates with the venue's
// authoritative position balances. Drift is logged, never hidden: a venue
// loss shows up here as a NAV dip.
func (e *Engine) Reconcile(ctx context.Context, id types.VaultID) error {
	v, err := e.vault(id)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return e.reconcileLocked(ctx, v)
}

// reconcileLocked queries the venue for every pool with a tracked position.
// Caller must hold v.mu.
func (e *Engine) reconcileLocked(ctx context.Context, v *instance) error {
	for _, pool := range v.poolsSorted() {
		cached := v.deployed[pool]
		authoritative, err := e.venue.GetBalance(ctx, pool)
		if err != nil {
			return errors.Join(ErrStrategyCallFailed, fmt.Errorf("reconciliation query for pool %s: %w", pool, err))
		}
		if !authoritative.Equal(cached) {
			e.logger.Warn().
				Uint64("vaultId", uint64(v.id)).
				Str("pool", string(pool)).
				Str("cached", cached.String()).
				Str("authoritative", authoritative.String()).
				Msg("Deployed balance drift corrected at reconciliation")
		}
		if authoritative.IsZero() {
			delete(v.deployed, pool)
		} else {
			v.deployed[pool] = authoritative
		}
	}
	return nil
}

// vault looks up an instance by ID.
func (e *Engine) vault(id types.VaultID) (*instance, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.vaults[id]
	if !ok {
		return nil, errors.Join(ErrVaultNotFound, fmt.Errorf("vault %d does not exist", id))
	}
	return v, nil
}

// record writes an operation receipt. Receipt persistence failures are logged
// and swallowed: the ledger mutation has already committed.
func (e *Engine) record(v *instance, op types.OperationType, caller types.Address, pool types.PoolID, amountIn, amountOut sdkmath.Int, success bool, message string) string {
	receipt := types.OperationReceipt{
		TxID:      uuid.New().String(),
		VaultID:   v.id,
		Type:      op,
		Caller:    caller,
		PoolID:    pool,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Success:   success,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := e.recorder.SaveReceipt(receipt); err != nil {
		e.logger.Error().Err(err).
			Str("txId", receipt.TxID).
			Str("type", string(op)).
			Msg("Failed to persist operation receipt")
	}
	return receipt.TxID
}

// persist saves the vault snapshot after a committed mutation. A persistence
// failure here is logged but does not undo the mutation: the in-memory ledger
// is the source of truth within a process lifetime.
func (e *Engine) persist(v *instance) {
	if err := e.recorder.SaveSnapshot(v.snapshot()); err != nil {
		e.logger.Error().Err(err).
			Uint64("vaultId", uint64(v.id)).
			Msg("Failed to persist vault snapshot")
	}
}

// AccountFor returns the underlying-ledger account a vault's idle funds sit
// in. Simulation mode and tests point the venue at the same account.
func AccountFor(id types.VaultID) types.Address {
	return types.Address(fmt.Sprintf("vault:%d", id))
}

// --- instance helpers (caller must hold mu) ---

func (v *instance) nav() sdkmath.Int {
	return v.idleBalance.Add(v.deployedTotal())
}

func (v *instance) deployedTotal() sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, balance := range v.deployed {
		total = total.Add(balance)
	}
	return total
}

func (v *instance) shareValue() sdkmath.Int {
	if v.shareSupply.IsZero() {
		return types.Scale
	}
	return v.nav().Mul(types.Scale).Quo(v.shareSupply)
}

// poolsSorted returns the pools with tracked positions in deterministic order.
func (v *instance) poolsSorted() []types.PoolID {
	pools := make([]types.PoolID, 0, len(v.deployed))
	for pool := range v.deployed {
		pools = append(pools, pool)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i] < pools[j] })
	return pools
}

func (v *instance) snapshot() types.VaultSnapshot {
	deployed := make(map[types.PoolID]sdkmath.Int, len(v.deployed))
	for pool, balance := range v.deployed {
		deployed[pool] = balance
	}
	return types.VaultSnapshot{
		VaultID:         v.id,
		Admin:           v.admin,
		Agent:           v.agent,
		Platform:        v.platform,
		ShareSupply:     v.shareSupply,
		IdleBalance:     v.idleBalance,
		Deployed:        deployed,
		LastRecordedNAV: v.lastRecordedNAV,
		UpdatedAt:       time.Now().UTC(),
	}
}

// validateAmount bounds-checks an externally supplied amount.
func validateAmount(amount sdkmath.Int) error {
	if amount.IsNil() {
		return errors.Join(ErrInvalidAmount, errors.New("amount is nil"))
	}
	if !amount.IsPositive() {
		return errors.Join(ErrInvalidAmount, errors.New("amount must be positive"))
	}
	if amount.GT(maxAmount) {
		return errors.Join(ErrOverflow, fmt.Errorf("amount %s exceeds the i128 bound", amount))
	}
	return nil
}
