package token

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/tuxedo-ai/yvm/internal/state"
	"github.com/tuxedo-ai/yvm/internal/types"
)

// StoreLedger is a Postgres-backed Ledger. Balances survive process restarts;
// every debit is conditional on sufficient funds at the database level.
type StoreLedger struct {
	symbol string
}

// NewStoreLedger creates a persistent ledger for the given token symbol.
// state.InitDB and state.EnsureSchema must have run first.
func NewStoreLedger(symbol string) (*StoreLedger, error) {
	if symbol == "" {
		return nil, errors.New("token symbol cannot be empty")
	}
	return &StoreLedger{symbol: symbol}, nil
}

func (l *StoreLedger) Mint(account types.Address, amount sdkmath.Int) error {
	if err := validateAccount(account); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	return state.CreditTokenBalance(l.symbol, string(account), amount)
}

func (l *StoreLedger) Burn(account types.Address, amount sdkmath.Int) error {
	if err := validateAccount(account); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if err := state.DebitTokenBalance(l.symbol, string(account), amount); err != nil {
		return errors.Join(ErrInsufficientFunds, fmt.Errorf("%s: burn from %s: %w", l.symbol, account, err))
	}
	return nil
}

func (l *StoreLedger) Transfer(from, to types.Address, amount sdkmath.Int) error {
	if err := validateAccount(from); err != nil {
		return err
	}
	if err := validateAccount(to); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if err := state.TransferTokenBalance(l.symbol, string(from), string(to), amount); err != nil {
		return errors.Join(ErrInsufficientFunds, fmt.Errorf("%s: transfer %s -> %s: %w", l.symbol, from, to, err))
	}
	return nil
}

func (l *StoreLedger) BalanceOf(account types.Address) (sdkmath.Int, error) {
	if err := validateAccount(account); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return state.GetTokenBalance(l.symbol, string(account))
}

func (l *StoreLedger) TotalSupply() (sdkmath.Int, error) {
	return state.GetTokenSupply(l.symbol)
}
