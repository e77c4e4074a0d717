// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		-- Vault ledger state, one row per vault, replaced after every mutation.
		CREATE TABLE IF NOT EXISTS vault_snapshots (
			vault_id BIGINT PRIMARY KEY,
			admin_address VARCHAR(128) NOT NULL,
			agent_address VARCHAR(128) NOT NULL,
			platform_address VARCHAR(128) NOT NULL,
			share_supply NUMERIC(40, 0) NOT NULL,
			idle_balance NUMERIC(40, 0) NOT NULL,
			deployed JSONB NOT NULL,
			last_recorded_nav NUMERIC(40, 0) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- One row per vault operation; tx_id is the identifier the API reports.
		CREATE TABLE IF NOT EXISTS operation_receipts (
			receipt_id SERIAL PRIMARY KEY,
			tx_id UUID NOT NULL UNIQUE,
			vault_id BIGINT NOT NULL,
			operation_type VARCHAR(32) NOT NULL,
			caller_address VARCHAR(128) NOT NULL,
			pool_id VARCHAR(128),
			amount_in NUMERIC(40, 0) NOT NULL,
			amount_out NUMERIC(40, 0) NOT NULL,
			success BOOLEAN NOT NULL,
			message TEXT,
			operation_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_operation_receipts_vault ON operation_receipts(vault_id, operation_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_operation_receipts_type ON operation_receipts(operation_type);

		-- Backing store for persistent token ledgers (underlying asset + shares).
		CREATE TABLE IF NOT EXISTS token_balances (
			symbol VARCHAR(32) NOT NULL,
			account_address VARCHAR(128) NOT NULL,
			balance NUMERIC(40, 0) NOT NULL CHECK (balance >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (symbol, account_address)
		);

		-- Agent cycle history.
		CREATE TABLE IF NOT EXISTS agent_cycles (
			cycle_snapshot_id SERIAL PRIMARY KEY,
			cycle_number INTEGER NOT NULL,
			cycle_id UUID NOT NULL,
			cycle_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			vault_id BIGINT NOT NULL,
			initial_idle NUMERIC(40, 0) NOT NULL,
			initial_deployed NUMERIC(40, 0) NOT NULL,
			final_idle NUMERIC(40, 0) NOT NULL,
			final_deployed NUMERIC(40, 0) NOT NULL,
			selected_pool VARCHAR(128),
			supplied_amount NUMERIC(40, 0) NOT NULL,
			fee_collected NUMERIC(40, 0) NOT NULL,
			receipt_tx_ids TEXT[]
		);
		CREATE INDEX IF NOT EXISTS idx_agent_cycles_timestamp ON agent_cycles(cycle_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_agent_cycles_number ON agent_cycles(cycle_number DESC);

		-- Cycle counter table for persistent global cycle tracking
		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
