package token

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/tuxedo-ai/yvm/internal/types"
)

// MemLedger is an in-memory Ledger used by simulation mode and tests.
type MemLedger struct {
	mu       sync.Mutex
	symbol   string
	balances map[types.Address]sdkmath.Int
	supply   sdkmath.Int
}

// NewMemLedger creates an empty in-memory ledger for the given token symbol.
func NewMemLedger(symbol string) *MemLedger {
	return &MemLedger{
		symbol:   symbol,
		balances: make(map[types.Address]sdkmath.Int),
		supply:   sdkmath.ZeroInt(),
	}
}

func (l *MemLedger) Mint(account types.Address, amount sdkmath.Int) error {
	if err := validateAccount(account); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[account] = l.balanceLocked(account).Add(amount)
	l.supply = l.supply.Add(amount)
	return nil
}

func (l *MemLedger) Burn(account types.Address, amount sdkmath.Int) error {
	if err := validateAccount(account); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balanceLocked(account)
	if balance.LT(amount) {
		return errors.Join(ErrInsufficientFunds,
			fmt.Errorf("%s: burn %s exceeds balance %s of %s", l.symbol, amount, balance, account))
	}

	remaining := balance.Sub(amount)
	if remaining.IsZero() {
		delete(l.balances, account)
	} else {
		l.balances[account] = remaining
	}
	l.supply = l.supply.Sub(amount)
	return nil
}

func (l *MemLedger) Transfer(from, to types.Address, amount sdkmath.Int) error {
	if err := validateAccount(from); err != nil {
		return err
	}
	if err := validateAccount(to); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balanceLocked(from)
	if balance.LT(amount) {
		return errors.Join(ErrInsufficientFunds,
			fmt.Errorf("%s: transfer %s exceeds balance %s of %s", l.symbol, amount, balance, from))
	}

	remaining := balance.Sub(amount)
	if remaining.IsZero() {
		delete(l.balances, from)
	} else {
		l.balances[from] = remaining
	}
	l.balances[to] = l.balanceLocked(to).Add(amount)
	return nil
}

func (l *MemLedger) BalanceOf(account types.Address) (sdkmath.Int, error) {
	if err := validateAccount(account); err != nil {
		return sdkmath.ZeroInt(), err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(account), nil
}

func (l *MemLedger) TotalSupply() (sdkmath.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply, nil
}

// balanceLocked returns the balance for an account. Caller must hold l.mu.
func (l *MemLedger) balanceLocked(account types.Address) sdkmath.Int {
	if balance, ok := l.balances[account]; ok {
		return balance
	}
	return sdkmath.ZeroInt()
}
