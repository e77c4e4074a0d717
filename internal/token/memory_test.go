package token

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/tuxedo-ai/yvm/internal/types"
)

const (
	alice = types.Address("alice")
	bob   = types.Address("bob")
)

func TestMintAndBalance(t *testing.T) {
	l := NewMemLedger("USDC")

	require.NoError(t, l.Mint(alice, sdkmath.NewInt(500)))
	require.NoError(t, l.Mint(alice, sdkmath.NewInt(250)))

	balance, err := l.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(750), balance)

	supply, err := l.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(750), supply)
}

func TestBurnReducesSupplyAndRejectsOverdraw(t *testing.T) {
	l := NewMemLedger("USDC")
	require.NoError(t, l.Mint(alice, sdkmath.NewInt(100)))

	require.NoError(t, l.Burn(alice, sdkmath.NewInt(40)))

	balance, err := l.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(60), balance)

	err = l.Burn(alice, sdkmath.NewInt(61))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	supply, err := l.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(60), supply)
}

func TestTransferMovesExactUnits(t *testing.T) {
	l := NewMemLedger("USDC")
	require.NoError(t, l.Mint(alice, sdkmath.NewInt(100)))

	require.NoError(t, l.Transfer(alice, bob, sdkmath.NewInt(30)))

	aliceBalance, err := l.BalanceOf(alice)
	require.NoError(t, err)
	bobBalance, err := l.BalanceOf(bob)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(70), aliceBalance)
	require.Equal(t, sdkmath.NewInt(30), bobBalance)

	err = l.Transfer(alice, bob, sdkmath.NewInt(71))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Supply is untouched by transfers, failed or not.
	supply, err := l.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100), supply)
}

func TestValidationRejectsBadInputs(t *testing.T) {
	l := NewMemLedger("USDC")

	require.ErrorIs(t, l.Mint(types.Address(""), sdkmath.NewInt(1)), ErrInvalidAccount)
	require.ErrorIs(t, l.Mint(alice, sdkmath.ZeroInt()), ErrInvalidAmount)
	require.ErrorIs(t, l.Mint(alice, sdkmath.NewInt(-1)), ErrInvalidAmount)

	var nilAmount sdkmath.Int
	require.ErrorIs(t, l.Mint(alice, nilAmount), ErrInvalidAmount)
}

func TestZeroBalancesAreNotRetained(t *testing.T) {
	l := NewMemLedger("USDC")
	require.NoError(t, l.Mint(alice, sdkmath.NewInt(10)))
	require.NoError(t, l.Transfer(alice, bob, sdkmath.NewInt(10)))

	balance, err := l.BalanceOf(alice)
	require.NoError(t, err)
	require.True(t, balance.IsZero())
	require.NotContains(t, l.balances, alice)
}
