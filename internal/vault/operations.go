/*

This file contains the four mutating vault entry points: deposit, withdraw,
agent strategy execution, and yield distribution. Shared discipline: validate,
reconcile where a user-facing amount depends on the deployed estimate, compute
every derived value, perform external calls, and only then commit ledger
state. Floor division is used everywhere so rounding dust stays in the vault.

*/

package vault

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/tuxedo-ai/yvm/internal/metrics"
	"github.com/tuxedo-ai/yvm/internal/types"
	"github.com/tuxedo-ai/yvm/internal/utils"
)

// Deposit pulls amount of the underlying asset from the depositor and mints
// proportional shares. The first deposit into an empty vault mints 1:1.
func (e *Engine) Deposit(ctx context.Context, id types.VaultID, depositor types.Address, amount sdkmath.Int) (sdkmath.Int, string, error) {
	v, err := e.vault(id)
	if err != nil {
		return sdkmath.ZeroInt(), "", err
	}
	if depositor == "" {
		return sdkmath.ZeroInt(), "", errors.Join(ErrInvalidAddress, errors.New("depositor cannot be empty"))
	}
	if err := validateAmount(amount); err != nil {
		return sdkmath.ZeroInt(), "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// The minted share count depends on the deployed estimate; trust the
	// venue, not the cache.
	if err := e.reconcileLocked(ctx, v); err != nil {
		metrics.DepositsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return sdkmath.ZeroInt(), e.record(v, types.OpDeposit, depositor, "", amount, sdkmath.ZeroInt(), false, err.Error()), err
	}

	sharesToMint, err := v.sharesForDeposit(amount)
	if err != nil {
		metrics.DepositsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return sdkmath.ZeroInt(), e.record(v, types.OpDeposit, depositor, "", amount, sdkmath.ZeroInt(), false, err.Error()), err
	}

	if err := e.underlying.Transfer(depositor, v.account, amount); err != nil {
		err = errors.Join(ErrTransferFailed, err)
		metrics.DepositsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return sdkmath.ZeroInt(), e.record(v, types.OpDeposit, depositor, "", amount, sdkmath.ZeroInt(), false, err.Error()), err
	}

	if err := e.shares.Mint(depositor, sharesToMint); err != nil {
		// Return the pulled funds; the deposit must leave no trace.
		if returnErr := e.underlying.Transfer(v.account, depositor, amount); returnErr != nil {
			e.logger.Error().Err(returnErr).
				Uint64("vaultId", uint64(id)).
				Str("depositor", string(depositor)).
				Msg("Failed to return funds after share mint failure")
		}
		err = errors.Join(ErrTransferFailed, err)
		metrics.DepositsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return sdkmath.ZeroInt(), e.record(v, types.OpDeposit, depositor, "", amount, sdkmath.ZeroInt(), false, err.Error()), err
	}

	v.idleBalance = v.idleBalance.Add(amount)
	v.shareSupply = v.shareSupply.Add(sharesToMint)
	// Principal inflow is not yield; move the distribution baseline with it.
	v.lastRecordedNAV = v.lastRecordedNAV.Add(amount)
	e.persist(v)
	e.updateGauges(v)
	metrics.DepositsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()

	txID := e.record(v, types.OpDeposit, depositor, "", amount, sharesToMint, true, "")
	e.logger.Info().
		Uint64("vaultId", uint64(id)).
		Str("depositor", string(depositor)).
		Str("amount", amount.String()).
		Str("sharesMinted", sharesToMint.String()).
		Msg("Deposit completed")
	return sharesToMint, txID, nil
}

// sharesForDeposit computes the share count a deposit mints. Caller must hold
// v.mu with a reconciled deployed estimate.
func (v *instance) sharesForDeposit(amount sdkmath.Int) (sdkmath.Int, error) {
	nav := v.nav()
	if v.shareSupply.IsZero() || nav.IsZero() {
		// Bootstrap: the first depositor sets the exchange rate at 1:1.
		// nav zero with shares outstanding means a total venue loss; the
		// next depositor re-bootstraps rather than dividing by zero.
		return amount, nil
	}

	shares := amount.Mul(v.shareSupply).Quo(nav)
	if shares.IsZero() {
		return sdkmath.ZeroInt(), errors.Join(ErrInvalidAmount, errors.New("deposit too small to mint any shares"))
	}
	if shares.GT(maxAmount) {
		return sdkmath.ZeroInt(), errors.Join(ErrOverflow, errors.New("minted shares exceed the i128 bound"))
	}
	return shares, nil
}

// Withdraw burns shares and returns the proportional amount of underlying,
// unwinding venue positions first when the idle balance cannot cover it.
func (e *Engine) Withdraw(ctx context.Context, id types.VaultID, owner types.Address, shares sdkmath.Int) (sdkmath.Int, string, error) {
	v, err := e.vault(id)
	if err != nil {
		return sdkmath.ZeroInt(), "", err
	}
	if owner == "" {
		return sdkmath.ZeroInt(), "", errors.Join(ErrInvalidAddress, errors.New("owner cannot be empty"))
	}
	if err := validateAmount(shares); err != nil {
		return sdkmath.ZeroInt(), "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	fail := func(err error) (sdkmath.Int, string, error) {
		metrics.WithdrawalsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return sdkmath.ZeroInt(), e.record(v, types.OpWithdraw, owner, "", shares, sdkmath.ZeroInt(), false, err.Error()), err
	}

	ownerShares, err := e.shares.BalanceOf(owner)
	if err != nil {
		return fail(errors.Join(ErrTransferFailed, err))
	}
	if ownerShares.LT(shares) {
		return fail(errors.Join(ErrInsufficientShares,
			fmt.Errorf("owner holds %s shares, requested %s", ownerShares, shares)))
	}
	if v.shareSupply.IsZero() {
		return fail(errors.Join(ErrInsufficientShares, errors.New("vault has no shares outstanding")))
	}

	// amountOut depends on the deployed estimate; trust the venue, not the cache.
	if err := e.reconcileLocked(ctx, v); err != nil {
		return fail(err)
	}

	amountOut := shares.Mul(v.nav()).Quo(v.shareSupply)
	if amountOut.IsZero() {
		return fail(errors.Join(ErrInvalidAmount, errors.New("shares too few to redeem any underlying")))
	}

	if amountOut.GT(v.idleBalance) {
		shortfall := amountOut.Sub(v.idleBalance)
		if err := e.unwindLocked(ctx, v, shortfall); err != nil {
			return fail(err)
		}
	}

	if err := e.shares.Burn(owner, shares); err != nil {
		return fail(errors.Join(ErrTransferFailed, err))
	}

	if err := e.underlying.Transfer(v.account, owner, amountOut); err != nil {
		// Re-mint the burned shares; the withdrawal must leave the owner whole.
		if mintErr := e.shares.Mint(owner, shares); mintErr != nil {
			e.logger.Error().Err(mintErr).
				Uint64("vaultId", uint64(id)).
				Str("owner", string(owner)).
				Msg("Failed to restore shares after payout failure")
		}
		return fail(errors.Join(ErrTransferFailed, err))
	}

	v.shareSupply = v.shareSupply.Sub(shares)
	v.idleBalance = v.idleBalance.Sub(amountOut)
	// Principal outflow is not negative yield; move the baseline with it.
	v.lastRecordedNAV = sdkmath.MaxInt(v.lastRecordedNAV.Sub(amountOut), sdkmath.ZeroInt())
	e.persist(v)
	e.updateGauges(v)
	metrics.WithdrawalsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()

	txID := e.record(v, types.OpWithdraw, owner, "", shares, amountOut, true, "")
	e.logger.Info().
		Uint64("vaultId", uint64(id)).
		Str("owner", string(owner)).
		Str("sharesBurned", shares.String()).
		Str("amountReturned", amountOut.String()).
		Msg("Withdrawal completed")
	return amountOut, txID, nil
}

// unwindLocked pulls at least shortfall underlying units back from the venue
// into the idle balance. Caller must hold v.mu with reconciled positions.
//
// If the venue cannot cover the shortfall, the caller's operation fails with
// ErrInsufficientLiquidity. Funds already unwound stay in the idle balance:
// moving value between deployed and idle never changes NAV or share value, so
// the failure is invisible to shareholders.
func (e *Engine) unwindLocked(ctx context.Context, v *instance, shortfall sdkmath.Int) error {
	if shortfall.GT(v.deployedTotal()) {
		return errors.Join(ErrInsufficientLiquidity,
			fmt.Errorf("shortfall %s exceeds deployed balance %s", shortfall, v.deployedTotal()))
	}

	remaining := shortfall
	for _, pool := range v.poolsSorted() {
		if !remaining.IsPositive() {
			break
		}
		position := v.deployed[pool]
		request := sdkmath.MinInt(remaining, position)
		if !request.IsPositive() {
			continue
		}

		received, err := e.venue.Withdraw(ctx, pool, request)
		if err != nil {
			return errors.Join(ErrStrategyCallFailed, fmt.Errorf("unwind from pool %s: %w", pool, err))
		}

		// The venue may return less than requested; reduce the cached
		// position only by what actually arrived so the remainder stays
		// visible to reconciliation.
		updated := position.Sub(received)
		if updated.IsPositive() {
			v.deployed[pool] = updated
		} else {
			delete(v.deployed, pool)
		}
		v.idleBalance = v.idleBalance.Add(received)
		remaining = remaining.Sub(received)
	}

	if remaining.IsPositive() {
		e.persist(v)
		return errors.Join(ErrInsufficientLiquidity,
			fmt.Errorf("venue returned %s less than the required shortfall", remaining))
	}
	return nil
}

// AgentExecute moves vault funds into or out of the external venue. Only the
// agent identity may call it. Returns the new total deployed balance.
func (e *Engine) AgentExecute(ctx context.Context, id types.VaultID, caller types.Address, action types.StrategyAction, pool types.PoolID, amount sdkmath.Int) (sdkmath.Int, string, error) {
	v, err := e.vault(id)
	if err != nil {
		return sdkmath.ZeroInt(), "", err
	}
	if pool == "" {
		return sdkmath.ZeroInt(), "", errors.Join(ErrInvalidAddress, errors.New("pool ID cannot be empty"))
	}
	if err := validateAmount(amount); err != nil {
		return sdkmath.ZeroInt(), "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.agent {
		return sdkmath.ZeroInt(), "", errors.Join(ErrUnauthorized,
			fmt.Errorf("caller %s is not the vault agent", caller))
	}

	var op types.OperationType
	switch action {
	case types.StrategySupply:
		op = types.OpSupply
	case types.StrategyUnwind:
		op = types.OpUnwind
	default:
		return sdkmath.ZeroInt(), "", errors.Join(ErrInvalidAmount, fmt.Errorf("unknown strategy action %q", action))
	}

	fail := func(err error) (sdkmath.Int, string, error) {
		metrics.StrategyExecutionsTotal.WithLabelValues(string(action), metrics.OutcomeFailure).Inc()
		return sdkmath.ZeroInt(), e.record(v, op, caller, pool, amount, sdkmath.ZeroInt(), false, err.Error()), err
	}

	var moved sdkmath.Int
	switch action {
	case types.StrategySupply:
		if amount.GT(v.idleBalance) {
			return fail(errors.Join(ErrInsufficientLiquidity,
				fmt.Errorf("supply %s exceeds idle balance %s", amount, v.idleBalance)))
		}
		if err := e.venue.Supply(ctx, pool, amount); err != nil {
			return fail(errors.Join(ErrStrategyCallFailed, err))
		}
		v.idleBalance = v.idleBalance.Sub(amount)
		if existing, ok := v.deployed[pool]; ok {
			v.deployed[pool] = existing.Add(amount)
		} else {
			v.deployed[pool] = amount
		}
		moved = amount

	case types.StrategyUnwind:
		position, ok := v.deployed[pool]
		if !ok || amount.GT(position) {
			return fail(errors.Join(ErrInsufficientLiquidity,
				fmt.Errorf("unwind %s exceeds deployed balance in pool %s", amount, pool)))
		}
		received, err := e.venue.Withdraw(ctx, pool, amount)
		if err != nil {
			return fail(errors.Join(ErrStrategyCallFailed, err))
		}
		// Deployed shrinks by what the venue actually released, never the
		// request, so a partial fill leaves the remainder tracked.
		updated := position.Sub(received)
		if updated.IsPositive() {
			v.deployed[pool] = updated
		} else {
			delete(v.deployed, pool)
		}
		v.idleBalance = v.idleBalance.Add(received)
		moved = received
	}

	e.persist(v)
	e.updateGauges(v)
	metrics.StrategyExecutionsTotal.WithLabelValues(string(action), metrics.OutcomeSuccess).Inc()

	newDeployed := v.deployedTotal()
	txID := e.record(v, op, caller, pool, amount, moved, true, "")
	e.logger.Info().
		Uint64("vaultId", uint64(id)).
		Str("action", string(action)).
		Str("pool", string(pool)).
		Str("amount", amount.String()).
		Str("newDeployed", newDeployed.String()).
		Msg("Strategy executed")
	return newDeployed, txID, nil
}

// DistributeYield measures NAV growth since the last distribution, settles
// the platform's cut, and leaves the remainder in the vault so share value
// rises for all holders. Callable by admin or agent. No fee is ever charged
// on losses.
func (e *Engine) DistributeYield(ctx context.Context, id types.VaultID, caller types.Address) (sdkmath.Int, string, error) {
	v, err := e.vault(id)
	if err != nil {
		return sdkmath.ZeroInt(), "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.admin && caller != v.agent {
		return sdkmath.ZeroInt(), "", errors.Join(ErrUnauthorized,
			fmt.Errorf("caller %s is neither admin nor agent", caller))
	}

	fail := func(err error) (sdkmath.Int, string, error) {
		metrics.DistributionsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return sdkmath.ZeroInt(), e.record(v, types.OpDistribute, caller, "", sdkmath.ZeroInt(), sdkmath.ZeroInt(), false, err.Error()), err
	}

	if err := e.reconcileLocked(ctx, v); err != nil {
		return fail(err)
	}

	nav := v.nav()
	accrued := nav.Sub(v.lastRecordedNAV)
	if !accrued.IsPositive() {
		e.logger.Info().
			Uint64("vaultId", uint64(id)).
			Str("nav", nav.String()).
			Str("lastRecordedNav", v.lastRecordedNAV.String()).
			Msg("No yield accrued since last distribution")
		return sdkmath.ZeroInt(), "", nil
	}

	fee := accrued.Mul(e.feeBps).Quo(types.FeeDenominator)
	if fee.IsZero() {
		return sdkmath.ZeroInt(), "", nil
	}

	if fee.GT(v.idleBalance) {
		shortfall := fee.Sub(v.idleBalance)
		if err := e.unwindLocked(ctx, v, shortfall); err != nil {
			return fail(err)
		}
	}

	if err := e.underlying.Transfer(v.account, v.platform, fee); err != nil {
		return fail(errors.Join(ErrTransferFailed, err))
	}

	v.idleBalance = v.idleBalance.Sub(fee)
	v.lastRecordedNAV = nav.Sub(fee)
	e.persist(v)
	e.updateGauges(v)
	metrics.DistributionsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	if feeFloat, err := utils.IntToFloat64(fee, 0); err == nil {
		metrics.FeesCollected.Add(feeFloat)
	}

	txID := e.record(v, types.OpDistribute, caller, "", accrued, fee, true, "")
	e.logger.Info().
		Uint64("vaultId", uint64(id)).
		Str("accrued", accrued.String()).
		Str("fee", fee.String()).
		Str("newRecordedNav", v.lastRecordedNAV.String()).
		Msg("Yield distributed")
	return fee, txID, nil
}

// updateGauges refreshes the exported share-value and NAV gauges. Caller must
// hold v.mu.
func (e *Engine) updateGauges(v *instance) {
	if value, err := utils.IntToFloat64(v.shareValue(), 7); err == nil {
		metrics.ShareValue.Set(value)
	}
	if nav, err := utils.IntToFloat64(v.nav(), 0); err == nil {
		metrics.VaultTotalValue.Set(nav)
	}
}
