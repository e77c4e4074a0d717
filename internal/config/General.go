package config

import (
	"errors"
	"os"
	"strconv"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultID is the ID of the vault this YVM instance manages.
	VaultID uint64

	// AdminAddress is the identity allowed to rotate the agent credential and
	// trigger distributions.
	AdminAddress string
	// AgentAddress is the identity authorized to execute strategies.
	AgentAddress string
	// PlatformAddress receives the platform's cut of distributed yield.
	PlatformAddress string

	// PlatformFeeBps is the platform's share of accrued yield in basis points.
	PlatformFeeBps int64
	// AssetDecimals is the fixed-point precision of the underlying asset.
	AssetDecimals int

	// IdleBufferAmount is the minimum idle balance (in base units) the agent
	// keeps liquid instead of supplying to the venue.
	IdleBufferAmount int64

	// DistributionCron is the cron expression for scheduled yield distribution.
	DistributionCron string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set unless noted otherwise.
func LoadConfig() error {
	var err error

	VaultID, err = getEnvAsUint64("YVM_VAULT_ID")
	if err != nil {
		return err
	}

	AdminAddress, err = getEnv("ADMIN_ADDRESS")
	if err != nil {
		return err
	}

	AgentAddress, err = getEnv("AGENT_ADDRESS")
	if err != nil {
		return err
	}

	PlatformAddress, err = getEnv("PLATFORM_ADDRESS")
	if err != nil {
		return err
	}

	PlatformFeeBps, err = getEnvAsInt64("PLATFORM_FEE_BPS")
	if err != nil {
		return err
	}
	if PlatformFeeBps < 0 || PlatformFeeBps > 10_000 {
		return errors.New("PLATFORM_FEE_BPS must be between 0 and 10000")
	}

	AssetDecimals, err = getEnvAsInt("ASSET_DECIMALS")
	if err != nil {
		return err
	}
	if AssetDecimals < 0 || AssetDecimals > 18 {
		return errors.New("ASSET_DECIMALS must be between 0 and 18")
	}

	IdleBufferAmount, err = getEnvAsInt64("IDLE_BUFFER_AMOUNT")
	if err != nil {
		return err
	}
	if IdleBufferAmount < 0 {
		return errors.New("IDLE_BUFFER_AMOUNT cannot be negative")
	}

	// Optional: defaults to daily at midnight UTC.
	DistributionCron = os.Getenv("DISTRIBUTION_CRON")
	if DistributionCron == "" {
		DistributionCron = "0 0 * * *"
	}

	// Load venue endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " is not a valid uint64: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt64 retrieves an environment variable as int64. Returns error if not set or invalid.
func getEnvAsInt64(key string) (int64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " is not a valid int64: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	value, err := getEnvAsInt64(key)
	if err != nil {
		return 0, err
	}
	return int(value), nil
}
