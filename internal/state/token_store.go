// ./internal/state/token_store.go
package state

import (
	"database/sql"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Token balance persistence backing the postgres token ledger. Every mutation
// runs in a single database transaction so a failed debit leaves no trace.

// GetTokenBalance returns the stored balance for (symbol, account).
// Unknown accounts hold zero.
func GetTokenBalance(symbol, account string) (sdkmath.Int, error) {
	if DB == nil {
		return sdkmath.ZeroInt(), fmt.Errorf("database not initialized")
	}

	var balanceStr string
	err := DB.QueryRow(
		`SELECT balance FROM token_balances WHERE symbol = $1 AND account_address = $2;`,
		symbol, account,
	).Scan(&balanceStr)
	if err == sql.ErrNoRows {
		return sdkmath.ZeroInt(), nil
	}
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to query token balance: %w", err)
	}

	return parseNumeric(balanceStr, "balance")
}

// GetTokenSupply returns the sum of all balances for a symbol.
func GetTokenSupply(symbol string) (sdkmath.Int, error) {
	if DB == nil {
		return sdkmath.ZeroInt(), fmt.Errorf("database not initialized")
	}

	var supplyStr string
	err := DB.QueryRow(
		`SELECT COALESCE(SUM(balance), 0) FROM token_balances WHERE symbol = $1;`,
		symbol,
	).Scan(&supplyStr)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to query token supply: %w", err)
	}

	return parseNumeric(supplyStr, "supply")
}

// CreditTokenBalance adds amount to (symbol, account), creating the row if needed.
func CreditTokenBalance(symbol, account string, amount sdkmath.Int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
		INSERT INTO token_balances (symbol, account_address, balance, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (symbol, account_address) DO UPDATE SET
			balance = token_balances.balance + EXCLUDED.balance,
			updated_at = CURRENT_TIMESTAMP;`
	if _, err := DB.Exec(stmt, symbol, account, amount.String()); err != nil {
		return fmt.Errorf("failed to credit token balance: %w", err)
	}
	return nil
}

// DebitTokenBalance subtracts amount from (symbol, account). Fails without
// mutation if the balance cannot cover the amount.
func DebitTokenBalance(symbol, account string, amount sdkmath.Int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	result, err := DB.Exec(
		`UPDATE token_balances SET balance = balance - $3, updated_at = CURRENT_TIMESTAMP
		 WHERE symbol = $1 AND account_address = $2 AND balance >= $3;`,
		symbol, account, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to debit token balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check debit result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("account %s holds insufficient %s balance for debit of %s", account, symbol, amount)
	}
	return nil
}

// TransferTokenBalance atomically moves amount between two accounts of the
// same symbol. The debit and credit commit together or not at all.
func TransferTokenBalance(symbol, from, to string, amount sdkmath.Int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transfer transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	var result sql.Result
	result, err = tx.Exec(
		`UPDATE token_balances SET balance = balance - $3, updated_at = CURRENT_TIMESTAMP
		 WHERE symbol = $1 AND account_address = $2 AND balance >= $3;`,
		symbol, from, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to debit %s during transfer: %w", from, err)
	}
	var affected int64
	affected, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check transfer debit result: %w", err)
	}
	if affected == 0 {
		err = fmt.Errorf("account %s holds insufficient %s balance for transfer of %s", from, symbol, amount)
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO token_balances (symbol, account_address, balance, updated_at)
		 VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		 ON CONFLICT (symbol, account_address) DO UPDATE SET
			balance = token_balances.balance + EXCLUDED.balance,
			updated_at = CURRENT_TIMESTAMP;`,
		symbol, to, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to credit %s during transfer: %w", to, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}
