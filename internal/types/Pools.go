/*

This is a custom type for yield venue pools which contains all the state
needed for selecting where the agent deploys idle funds.

*/

package types

import (
	"cosmossdk.io/math"
)

// PoolID identifies a lending pool on the external yield venue.
type PoolID string

type PoolInfo struct {
	ID           PoolID   `json:"id"`            // Venue-assigned pool identifier
	APY          float64  `json:"apy"`           // Current supply APY as a fraction (0.05 = 5%)
	VaultBalance math.Int `json:"vault_balance"` // Venue's authoritative balance for the vault's position
}
