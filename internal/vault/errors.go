package vault

import "errors"

// Error taxonomy for vault operations. Every error aborts the operation with
// no user-visible state change; retries are the caller's responsibility.
var (
	// ErrUnauthorized is returned when the caller does not match the
	// principal required for the entry point.
	ErrUnauthorized = errors.New("caller is not authorized")

	// ErrInvalidAmount is returned for zero, negative, or otherwise
	// meaningless amounts, including amounts that would round to zero.
	ErrInvalidAmount = errors.New("amount is invalid")

	// ErrInvalidAddress is returned for empty or malformed principal identities.
	ErrInvalidAddress = errors.New("address is invalid")

	// ErrInsufficientShares is returned when a withdrawal exceeds the
	// owner's share balance.
	ErrInsufficientShares = errors.New("insufficient share balance")

	// ErrInsufficientLiquidity is returned when idle plus unwindable funds
	// cannot cover a withdrawal or fee settlement.
	ErrInsufficientLiquidity = errors.New("insufficient vault liquidity")

	// ErrStrategyCallFailed is returned when the external venue rejects a
	// supply or withdraw sub-call.
	ErrStrategyCallFailed = errors.New("strategy venue call failed")

	// ErrAlreadyInitialized is returned when initializing a vault ID that
	// already exists.
	ErrAlreadyInitialized = errors.New("vault already initialized")

	// ErrVaultNotFound is returned for operations against an unknown vault ID.
	ErrVaultNotFound = errors.New("vault not found")

	// ErrTransferFailed is returned when an underlying asset or share token
	// movement is rejected.
	ErrTransferFailed = errors.New("token transfer failed")

	// ErrOverflow is returned when an amount exceeds the fixed-point
	// arithmetic bounds.
	ErrOverflow = errors.New("fixed-point arithmetic bounds exceeded")
)
