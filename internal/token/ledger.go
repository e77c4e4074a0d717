/*

This package holds the fungible token ledgers the vault engine moves value
through. The vault never tracks per-user ownership itself: depositors' claims
live entirely on the share-token ledger, and the underlying asset moves on the
asset ledger. Both are instances of the same Ledger interface.

*/

package token

import (
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/tuxedo-ai/yvm/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidAmount     = errors.New("token amount is invalid")
	ErrInvalidAccount    = errors.New("account identity is invalid")
	ErrInsufficientFunds = errors.New("insufficient token balance")
)

// Ledger is a fungible token balance book. Implementations must reject
// debits that exceed the account balance and must never let supply drift
// from the sum of balances.
type Ledger interface {
	// Mint credits newly issued units to an account and grows total supply.
	Mint(account types.Address, amount sdkmath.Int) error

	// Burn debits units from an account and shrinks total supply.
	Burn(account types.Address, amount sdkmath.Int) error

	// Transfer moves units between accounts. Fails without any balance
	// change if the source cannot cover the amount.
	Transfer(from, to types.Address, amount sdkmath.Int) error

	// BalanceOf returns the account's balance. Unknown accounts hold zero.
	BalanceOf(account types.Address) (sdkmath.Int, error)

	// TotalSupply returns the total units outstanding.
	TotalSupply() (sdkmath.Int, error)
}

// validateAmount rejects nil, zero, and negative amounts before any ledger
// mutation is attempted.
func validateAmount(amount sdkmath.Int) error {
	if amount.IsNil() {
		return errors.Join(ErrInvalidAmount, errors.New("amount is nil"))
	}
	if !amount.IsPositive() {
		return errors.Join(ErrInvalidAmount, errors.New("amount must be positive"))
	}
	return nil
}

// validateAccount rejects empty account identities.
func validateAccount(account types.Address) error {
	if account == "" {
		return errors.Join(ErrInvalidAccount, errors.New("account cannot be empty"))
	}
	return nil
}
