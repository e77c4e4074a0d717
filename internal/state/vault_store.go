// ./internal/state/vault_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/tuxedo-ai/yvm/internal/types"
)

// SaveVaultSnapshot persists the full ledger state of a vault, replacing any
// previous snapshot for the same vault ID.
func SaveVaultSnapshot(snapshot types.VaultSnapshot) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	deployedJSON, err := json.Marshal(snapshot.Deployed)
	if err != nil {
		return fmt.Errorf("failed to marshal deployed balances: %w", err)
	}

	stmt := `
		INSERT INTO vault_snapshots (
			vault_id, admin_address, agent_address, platform_address,
			share_supply, idle_balance, deployed, last_recorded_nav, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (vault_id) DO UPDATE SET
			admin_address = EXCLUDED.admin_address,
			agent_address = EXCLUDED.agent_address,
			platform_address = EXCLUDED.platform_address,
			share_supply = EXCLUDED.share_supply,
			idle_balance = EXCLUDED.idle_balance,
			deployed = EXCLUDED.deployed,
			last_recorded_nav = EXCLUDED.last_recorded_nav,
			updated_at = EXCLUDED.updated_at;`

	_, err = DB.Exec(stmt,
		int64(snapshot.VaultID), string(snapshot.Admin), string(snapshot.Agent), string(snapshot.Platform),
		snapshot.ShareSupply.String(), snapshot.IdleBalance.String(), deployedJSON,
		snapshot.LastRecordedNAV.String(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save vault snapshot: %w", err)
	}

	log.Debug().
		Uint64("vaultId", uint64(snapshot.VaultID)).
		Str("shareSupply", snapshot.ShareSupply.String()).
		Str("idleBalance", snapshot.IdleBalance.String()).
		Msg("Saved vault snapshot")
	return nil
}

// LoadVaultSnapshot restores the persisted ledger state for a vault.
// Returns (nil, nil) if no snapshot exists yet.
func LoadVaultSnapshot(vaultID types.VaultID) (*types.VaultSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT admin_address, agent_address, platform_address,
		       share_supply, idle_balance, deployed, last_recorded_nav, updated_at
		FROM vault_snapshots
		WHERE vault_id = $1;`

	var (
		admin, agent, platform         string
		supplyStr, idleStr, lastNAVStr string
		deployedJSON                   []byte
		updatedAt                      time.Time
	)
	err := DB.QueryRow(query, int64(vaultID)).Scan(
		&admin, &agent, &platform, &supplyStr, &idleStr, &deployedJSON, &lastNAVStr, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vault snapshot: %w", err)
	}

	supply, err := parseNumeric(supplyStr, "share_supply")
	if err != nil {
		return nil, err
	}
	idle, err := parseNumeric(idleStr, "idle_balance")
	if err != nil {
		return nil, err
	}
	lastNAV, err := parseNumeric(lastNAVStr, "last_recorded_nav")
	if err != nil {
		return nil, err
	}

	deployed := make(map[types.PoolID]sdkmath.Int)
	if len(deployedJSON) > 0 {
		if err := json.Unmarshal(deployedJSON, &deployed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal deployed balances: %w", err)
		}
	}

	snapshot := &types.VaultSnapshot{
		VaultID:         vaultID,
		Admin:           types.Address(admin),
		Agent:           types.Address(agent),
		Platform:        types.Address(platform),
		ShareSupply:     supply,
		IdleBalance:     idle,
		Deployed:        deployed,
		LastRecordedNAV: lastNAV,
		UpdatedAt:       updatedAt,
	}

	log.Info().
		Uint64("vaultId", uint64(vaultID)).
		Str("shareSupply", supply.String()).
		Time("updatedAt", updatedAt).
		Msg("Restored vault snapshot")
	return snapshot, nil
}

// parseNumeric converts a NUMERIC column value into an sdkmath.Int, rejecting
// anything the driver hands back that is not a plain integer string.
func parseNumeric(s, column string) (sdkmath.Int, error) {
	value, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("column %s holds invalid numeric value %q", column, s)
	}
	return value, nil
}
