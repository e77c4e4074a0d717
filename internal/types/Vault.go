/*

This file contains the core vault types: the ledger snapshot persisted after
every mutation, the read-only stats surface, and the receipts recorded for
every vault operation.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// VaultID identifies a vault instance. All engine state is keyed by it even
// though a deployment typically runs a single vault.
type VaultID uint64

// Address is an authenticated principal identity (depositor, admin, agent,
// platform fee recipient). The engine compares these by simple equality.
type Address string

// Scale is the fixed-point scale of the underlying asset (7 decimals).
// A share value of Scale means 1.0 underlying units per share.
var Scale = sdkmath.NewInt(10_000_000)

// FeeDenominator is the basis-point denominator for the platform fee.
var FeeDenominator = sdkmath.NewInt(10_000)

// StrategyAction is the operation the agent asks the executor to perform
// against the external yield venue.
type StrategyAction string

const (
	StrategySupply StrategyAction = "SUPPLY"
	StrategyUnwind StrategyAction = "UNWIND"
)

// VaultStats is the read-only snapshot returned by GetVaultStats.
type VaultStats struct {
	VaultID         VaultID     `json:"vault_id"`
	TotalValue      sdkmath.Int `json:"total_value"`       // idle + deployed
	ShareSupply     sdkmath.Int `json:"share_supply"`      // total shares outstanding
	IdleBalance     sdkmath.Int `json:"idle_balance"`      // withdrawable without unwinding
	DeployedBalance sdkmath.Int `json:"deployed_balance"`  // last-known estimate of venue-held funds
	ShareValue      sdkmath.Int `json:"share_value"`       // NAV * Scale / supply, Scale when supply is zero
	LastRecordedNAV sdkmath.Int `json:"last_recorded_nav"` // NAV as of the last yield distribution
}

// VaultSnapshot is the persisted form of a vault's full state, written to the
// database after every successful mutation and restored at boot.
type VaultSnapshot struct {
	VaultID         VaultID                `json:"vault_id"`
	Admin           Address                `json:"admin"`
	Agent           Address                `json:"agent"`
	Platform        Address                `json:"platform"`
	ShareSupply     sdkmath.Int            `json:"share_supply"`
	IdleBalance     sdkmath.Int            `json:"idle_balance"`
	Deployed        map[PoolID]sdkmath.Int `json:"deployed"` // per-pool deployed estimates
	LastRecordedNAV sdkmath.Int            `json:"last_recorded_nav"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// OperationType classifies an OperationReceipt.
type OperationType string

const (
	OpDeposit    OperationType = "DEPOSIT"
	OpWithdraw   OperationType = "WITHDRAW"
	OpSupply     OperationType = "SUPPLY"
	OpUnwind     OperationType = "UNWIND"
	OpDistribute OperationType = "DISTRIBUTE"
	OpSetAgent   OperationType = "SET_AGENT"
)

// OperationReceipt is the ledger-assigned record of a single vault operation.
// Its TxID is what the orchestration surface reports back to callers.
type OperationReceipt struct {
	TxID      string        `json:"tx_id"`
	VaultID   VaultID       `json:"vault_id"`
	Type      OperationType `json:"type"`
	Caller    Address       `json:"caller"`
	PoolID    PoolID        `json:"pool_id,omitempty"`
	AmountIn  sdkmath.Int   `json:"amount_in"`  // requested amount or shares burned
	AmountOut sdkmath.Int   `json:"amount_out"` // shares minted, amount returned, or fee settled
	Success   bool          `json:"success"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// CycleSnapshot records one pass of the automation agent's loop.
type CycleSnapshot struct {
	CycleNumber     int         `json:"cycle_number"`
	CycleID         string      `json:"cycle_id"`
	Timestamp       time.Time   `json:"timestamp"`
	VaultID         VaultID     `json:"vault_id"`
	InitialIdle     sdkmath.Int `json:"initial_idle"`
	InitialDeployed sdkmath.Int `json:"initial_deployed"`
	FinalIdle       sdkmath.Int `json:"final_idle"`
	FinalDeployed   sdkmath.Int `json:"final_deployed"`
	SelectedPool    PoolID      `json:"selected_pool,omitempty"`
	SuppliedAmount  sdkmath.Int `json:"supplied_amount"`
	FeeCollected    sdkmath.Int `json:"fee_collected"`
	Receipts        []string    `json:"receipts,omitempty"` // tx IDs produced during the cycle
}
