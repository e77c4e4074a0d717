package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/tuxedo-ai/yvm/internal/logger"
	"github.com/tuxedo-ai/yvm/internal/token"
	"github.com/tuxedo-ai/yvm/internal/types"
)

var simLogger = logger.GetForComponent("sim_venue")

// SimVenue is a deterministic in-process yield venue used when YVM_MODE is
// not "live" and by tests. It moves real units on the underlying asset ledger
// so conservation properties hold across the whole system, and it supports
// injected yield accrual, capped liquidity, and forced call failures.
type SimVenue struct {
	mu sync.Mutex

	underlying   token.Ledger
	vaultAccount types.Address

	positions map[types.PoolID]sdkmath.Int // authoritative vault position per pool
	apy       map[types.PoolID]float64

	// liquidityCap, when set for a pool, bounds how much a single Withdraw
	// can return regardless of position size.
	liquidityCap map[types.PoolID]sdkmath.Int

	failSupply   bool
	failWithdraw bool
}

// NewSimVenue creates a simulated venue holding positions for the given vault
// account on the given underlying ledger.
func NewSimVenue(underlying token.Ledger, vaultAccount types.Address, pools []types.PoolID) (*SimVenue, error) {
	if underlying == nil {
		return nil, errors.New("underlying ledger cannot be nil")
	}
	if vaultAccount == "" {
		return nil, errors.New("vault account cannot be empty")
	}
	if len(pools) == 0 {
		return nil, errors.New("at least one pool is required")
	}

	v := &SimVenue{
		underlying:   underlying,
		vaultAccount: vaultAccount,
		positions:    make(map[types.PoolID]sdkmath.Int),
		apy:          make(map[types.PoolID]float64),
		liquidityCap: make(map[types.PoolID]sdkmath.Int),
	}
	for _, pool := range pools {
		if pool == "" {
			return nil, errors.Join(ErrInvalidPool, errors.New("pool ID cannot be empty"))
		}
		v.positions[pool] = sdkmath.ZeroInt()
		v.apy[pool] = 0.05
	}
	return v, nil
}

// poolAccount is the ledger account the pool's funds sit in.
func (v *SimVenue) poolAccount(pool types.PoolID) types.Address {
	return types.Address("venue:" + string(pool))
}

func (v *SimVenue) Supply(ctx context.Context, pool types.PoolID, amount sdkmath.Int) error {
	if err := v.validatePoolAmount(pool, amount); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.failSupply {
		return errors.Join(ErrCallFailed, errors.New("simulated supply failure"))
	}

	position, ok := v.positions[pool]
	if !ok {
		return errors.Join(ErrInvalidPool, fmt.Errorf("unknown pool %s", pool))
	}

	if err := v.underlying.Transfer(v.vaultAccount, v.poolAccount(pool), amount); err != nil {
		return errors.Join(ErrCallFailed, err)
	}
	v.positions[pool] = position.Add(amount)

	simLogger.Debug().
		Str("pool", string(pool)).
		Str("amount", amount.String()).
		Msg("Simulated supply executed")
	return nil
}

func (v *SimVenue) Withdraw(ctx context.Context, pool types.PoolID, amount sdkmath.Int) (sdkmath.Int, error) {
	if err := v.validatePoolAmount(pool, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.failWithdraw {
		return sdkmath.ZeroInt(), errors.Join(ErrCallFailed, errors.New("simulated withdraw failure"))
	}

	position, ok := v.positions[pool]
	if !ok {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidPool, fmt.Errorf("unknown pool %s", pool))
	}

	received := sdkmath.MinInt(amount, position)
	if limit, capped := v.liquidityCap[pool]; capped {
		received = sdkmath.MinInt(received, limit)
	}
	if received.IsZero() {
		return sdkmath.ZeroInt(), nil
	}

	if err := v.underlying.Transfer(v.poolAccount(pool), v.vaultAccount, received); err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrCallFailed, err)
	}
	v.positions[pool] = position.Sub(received)

	simLogger.Debug().
		Str("pool", string(pool)).
		Str("requested", amount.String()).
		Str("received", received.String()).
		Msg("Simulated withdraw executed")
	return received, nil
}

func (v *SimVenue) GetBalance(ctx context.Context, pool types.PoolID) (sdkmath.Int, error) {
	if pool == "" {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidPool, errors.New("pool ID cannot be empty"))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	position, ok := v.positions[pool]
	if !ok {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidPool, fmt.Errorf("unknown pool %s", pool))
	}
	return position, nil
}

func (v *SimVenue) GetAPY(ctx context.Context, pool types.PoolID) (float64, error) {
	if pool == "" {
		return 0, errors.Join(ErrInvalidPool, errors.New("pool ID cannot be empty"))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	apy, ok := v.apy[pool]
	if !ok {
		return 0, errors.Join(ErrInvalidPool, fmt.Errorf("unknown pool %s", pool))
	}
	return apy, nil
}

// AccrueYield simulates external yield: new underlying units appear in the
// pool and the vault's position grows by the same amount.
func (v *SimVenue) AccrueYield(pool types.PoolID, amount sdkmath.Int) error {
	if err := v.validatePoolAmount(pool, amount); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	position, ok := v.positions[pool]
	if !ok {
		return errors.Join(ErrInvalidPool, fmt.Errorf("unknown pool %s", pool))
	}
	if err := v.underlying.Mint(v.poolAccount(pool), amount); err != nil {
		return err
	}
	v.positions[pool] = position.Add(amount)
	return nil
}

// ApplyLoss simulates a venue-side loss: the vault's position shrinks.
func (v *SimVenue) ApplyLoss(pool types.PoolID, amount sdkmath.Int) error {
	if err := v.validatePoolAmount(pool, amount); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	position, ok := v.positions[pool]
	if !ok {
		return errors.Join(ErrInvalidPool, fmt.Errorf("unknown pool %s", pool))
	}
	if position.LT(amount) {
		return errors.Join(ErrInvalidAmount, errors.New("loss exceeds position"))
	}
	if err := v.underlying.Burn(v.poolAccount(pool), amount); err != nil {
		return err
	}
	v.positions[pool] = position.Sub(amount)
	return nil
}

// SetAPY overrides a pool's reported APY.
func (v *SimVenue) SetAPY(pool types.PoolID, apy float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.apy[pool] = apy
}

// SetLiquidityCap bounds how much a single Withdraw can return for a pool.
func (v *SimVenue) SetLiquidityCap(pool types.PoolID, limit sdkmath.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.liquidityCap[pool] = limit
}

// SetFailSupply forces subsequent Supply calls to fail.
func (v *SimVenue) SetFailSupply(fail bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failSupply = fail
}

// SetFailWithdraw forces subsequent Withdraw calls to fail.
func (v *SimVenue) SetFailWithdraw(fail bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failWithdraw = fail
}

func (v *SimVenue) validatePoolAmount(pool types.PoolID, amount sdkmath.Int) error {
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
