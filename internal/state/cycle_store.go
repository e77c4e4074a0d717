/*

This file manages agent cycle persistence: the persistent global cycle counter
and per-cycle snapshots. The counter is stored in the database to ensure
continuity across restarts.

*/

package state

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/tuxedo-ai/yvm/internal/types"
)

// SaveCycleSnapshot records one agent cycle and returns its database ID.
func SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	stmt := `
		INSERT INTO agent_cycles (
			cycle_number, cycle_id, cycle_timestamp, vault_id,
			initial_idle, initial_deployed, final_idle, final_deployed,
			selected_pool, supplied_amount, fee_collected, receipt_tx_ids
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING cycle_snapshot_id;`

	var selectedPool sql.NullString
	if snapshot.SelectedPool != "" {
		selectedPool = sql.NullString{String: string(snapshot.SelectedPool), Valid: true}
	}

	var snapshotID int64
	err := DB.QueryRow(stmt,
		snapshot.CycleNumber, snapshot.CycleID, snapshot.Timestamp, int64(snapshot.VaultID),
		snapshot.InitialIdle.String(), snapshot.InitialDeployed.String(),
		snapshot.FinalIdle.String(), snapshot.FinalDeployed.String(),
		selectedPool, snapshot.SuppliedAmount.String(), snapshot.FeeCollected.String(),
		pq.Array(snapshot.Receipts),
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert cycle snapshot: %w", err)
	}

	log.Info().
		Int("cycleNumber", snapshot.CycleNumber).
		Int64("snapshotId", snapshotID).
		Msg("Saved agent cycle snapshot")
	return snapshotID, nil
}

// GetRecentCycles retrieves recent agent cycle snapshots.
func GetRecentCycles(limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 || limit > 100 {
		limit = 10
	}

	query := `
		SELECT cycle_number, cycle_id, cycle_timestamp, vault_id,
		       initial_idle, initial_deployed, final_idle, final_deployed,
		       COALESCE(selected_pool, ''), supplied_amount, fee_collected, receipt_tx_ids
		FROM agent_cycles
		ORDER BY cycle_timestamp DESC
		LIMIT $1;`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	var cycles []types.CycleSnapshot
	for rows.Next() {
		var (
			cycle                                        types.CycleSnapshot
			vaultID                                      int64
			initIdle, initDeployed, finIdle, finDeployed string
			selectedPool, supplied, fee                  string
		)
		err := rows.Scan(
			&cycle.CycleNumber, &cycle.CycleID, &cycle.Timestamp, &vaultID,
			&initIdle, &initDeployed, &finIdle, &finDeployed,
			&selectedPool, &supplied, &fee, pq.Array(&cycle.Receipts),
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan cycle row")
			continue
		}

		cycle.VaultID = types.VaultID(vaultID)
		cycle.SelectedPool = types.PoolID(selectedPool)
		if cycle.InitialIdle, err = parseNumeric(initIdle, "initial_idle"); err != nil {
			continue
		}
		if cycle.InitialDeployed, err = parseNumeric(initDeployed, "initial_deployed"); err != nil {
			continue
		}
		if cycle.FinalIdle, err = parseNumeric(finIdle, "final_idle"); err != nil {
			continue
		}
		if cycle.FinalDeployed, err = parseNumeric(finDeployed, "final_deployed"); err != nil {
			continue
		}
		if cycle.SuppliedAmount, err = parseNumeric(supplied, "supplied_amount"); err != nil {
			continue
		}
		if cycle.FeeCollected, err = parseNumeric(fee, "fee_collected"); err != nil {
			continue
		}

		cycles = append(cycles, cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during cycle row iteration: %w", err)
	}

	return cycles, nil
}

// GetCurrentCycleNumber retrieves the current cycle number from the database
func GetCurrentCycleNumber() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var currentCycle int
	err := DB.QueryRow(`SELECT current_cycle FROM cycle_counter WHERE id = 1;`).Scan(&currentCycle)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Warn().Msg("No cycle counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}

	return currentCycle, nil
}

// IncrementCycleNumber increments the cycle counter and returns the new value
func IncrementCycleNumber() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	updateQuery := `
		UPDATE cycle_counter
		SET current_cycle = current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_cycle;`

	var newCycle int
	err := DB.QueryRow(updateQuery).Scan(&newCycle)
	if err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}

	log.Info().Int("newCycle", newCycle).Msg("Incremented cycle counter")
	return newCycle, nil
}

// ResetCycleNumber resets the cycle counter to a specific value (for testing/maintenance)
func ResetCycleNumber(cycleNumber int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if cycleNumber < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", cycleNumber)
	}

	result, err := DB.Exec(
		`UPDATE cycle_counter SET current_cycle = $1, updated_at = CURRENT_TIMESTAMP WHERE id = 1;`,
		cycleNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to reset cycle number to %d: %w", cycleNumber, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting cycle number")
	}

	log.Warn().Int("cycleNumber", cycleNumber).Msg("Reset cycle counter")
	return nil
}
