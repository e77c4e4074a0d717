// ./internal/state/receipt_store.go
package state

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tuxedo-ai/yvm/internal/types"
)

// SaveOperationReceipt records a single vault operation and returns the
// database receipt ID.
func SaveOperationReceipt(receipt types.OperationReceipt) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	stmt := `
		INSERT INTO operation_receipts (
			tx_id, vault_id, operation_type, caller_address, pool_id,
			amount_in, amount_out, success, message, operation_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING receipt_id;`

	var poolID sql.NullString
	if receipt.PoolID != "" {
		poolID = sql.NullString{String: string(receipt.PoolID), Valid: true}
	}

	var receiptID int64
	err := DB.QueryRow(stmt,
		receipt.TxID, int64(receipt.VaultID), string(receipt.Type), string(receipt.Caller), poolID,
		receipt.AmountIn.String(), receipt.AmountOut.String(), receipt.Success, receipt.Message,
		receipt.Timestamp,
	).Scan(&receiptID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert operation receipt: %w", err)
	}

	log.Debug().
		Str("txId", receipt.TxID).
		Str("type", string(receipt.Type)).
		Bool("success", receipt.Success).
		Msg("Saved operation receipt")
	return receiptID, nil
}

// GetRecentReceipts retrieves the most recent operation receipts for a vault.
func GetRecentReceipts(vaultID types.VaultID, limit int) ([]types.OperationReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT tx_id, operation_type, caller_address, COALESCE(pool_id, ''),
		       amount_in, amount_out, success, COALESCE(message, ''), operation_timestamp
		FROM operation_receipts
		WHERE vault_id = $1
		ORDER BY operation_timestamp DESC
		LIMIT $2;`

	rows, err := DB.Query(query, int64(vaultID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.OperationReceipt
	for rows.Next() {
		var (
			receipt             types.OperationReceipt
			opType, caller      string
			poolID              string
			amountIn, amountOut string
		)
		err := rows.Scan(
			&receipt.TxID, &opType, &caller, &poolID,
			&amountIn, &amountOut, &receipt.Success, &receipt.Message, &receipt.Timestamp,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt row")
			continue
		}

		receipt.VaultID = vaultID
		receipt.Type = types.OperationType(opType)
		receipt.Caller = types.Address(caller)
		receipt.PoolID = types.PoolID(poolID)
		if receipt.AmountIn, err = parseNumeric(amountIn, "amount_in"); err != nil {
			log.Error().Err(err).Str("txId", receipt.TxID).Msg("Invalid amount_in in receipt")
			continue
		}
		if receipt.AmountOut, err = parseNumeric(amountOut, "amount_out"); err != nil {
			log.Error().Err(err).Str("txId", receipt.TxID).Msg("Invalid amount_out in receipt")
			continue
		}

		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during receipt row iteration: %w", err)
	}

	return receipts, nil
}

// VaultActivitySummary aggregates lifetime operation totals for a vault.
type VaultActivitySummary struct {
	TotalDeposits      int64  `json:"total_deposits"`
	TotalWithdrawals   int64  `json:"total_withdrawals"`
	TotalDistributions int64  `json:"total_distributions"`
	TotalDeposited     string `json:"total_deposited"`
	TotalWithdrawn     string `json:"total_withdrawn"`
	TotalFeesCollected string `json:"total_fees_collected"`
}

// GetVaultActivitySummary computes lifetime operation totals from receipts.
func GetVaultActivitySummary(vaultID types.VaultID) (*VaultActivitySummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT
			COUNT(*) FILTER (WHERE operation_type = 'DEPOSIT' AND success),
			COUNT(*) FILTER (WHERE operation_type = 'WITHDRAW' AND success),
			COUNT(*) FILTER (WHERE operation_type = 'DISTRIBUTE' AND success),
			COALESCE(SUM(amount_in) FILTER (WHERE operation_type = 'DEPOSIT' AND success), 0),
			COALESCE(SUM(amount_out) FILTER (WHERE operation_type = 'WITHDRAW' AND success), 0),
			COALESCE(SUM(amount_out) FILTER (WHERE operation_type = 'DISTRIBUTE' AND success), 0)
		FROM operation_receipts
		WHERE vault_id = $1;`

	summary := &VaultActivitySummary{}
	err := DB.QueryRow(query, int64(vaultID)).Scan(
		&summary.TotalDeposits, &summary.TotalWithdrawals, &summary.TotalDistributions,
		&summary.TotalDeposited, &summary.TotalWithdrawn, &summary.TotalFeesCollected,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute vault activity summary: %w", err)
	}

	return summary, nil
}
