package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tuxedo-ai/yvm/internal/agent"
	"github.com/tuxedo-ai/yvm/internal/config"
	"github.com/tuxedo-ai/yvm/internal/logger"
	"github.com/tuxedo-ai/yvm/internal/state"
	"github.com/tuxedo-ai/yvm/internal/token"
	"github.com/tuxedo-ai/yvm/internal/types"
	"github.com/tuxedo-ai/yvm/internal/vault"
	"github.com/tuxedo-ai/yvm/internal/venue"
	"github.com/tuxedo-ai/yvm/internal/web"

	sdkmath "cosmossdk.io/math"
)

const (
	LOOP_INTERVAL = 10 * time.Minute

	UNDERLYING_SYMBOL = "USDC"
	SHARE_SYMBOL      = "yvUSDC"
)

// main is the entry point for the YVM system.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("YVM Core Logic Starting...")

	yvmMode := os.Getenv("YVM_MODE")
	dbBacked := yvmMode == "live"

	// --- 2. Storage and Ledger Initialization (with Safety Switch) ---
	var underlying, shares token.Ledger
	var recorder vault.Recorder

	if dbBacked {
		log.Warn().Msg("Initializing YVM in LIVE mode. Real venue calls will be made.")

		dbCfg := state.DBConfig{
			Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
			User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
			DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}

		underlyingLedger, err := token.NewStoreLedger(UNDERLYING_SYMBOL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize underlying asset ledger")
		}
		shareLedger, err := token.NewStoreLedger(SHARE_SYMBOL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize share token ledger")
		}
		underlying, shares = underlyingLedger, shareLedger
		recorder = vault.StateRecorder{}
	} else if yvmMode == "sim" {
		log.Info().Msg("Initializing YVM in SIM mode. All ledgers are in-memory, venue is simulated.")
		underlying = token.NewMemLedger(UNDERLYING_SYMBOL)
		shares = token.NewMemLedger(SHARE_SYMBOL)
		recorder = vault.NopRecorder{}
	} else {
		log.Fatal().Msg("YVM_MODE must be 'live' or 'sim'. Halting to prevent accidental execution.")
	}

	// --- 3. Venue Initialization ---
	vaultID := types.VaultID(config.VaultID)
	poolIDs := make([]types.PoolID, 0, len(config.VenuePoolIDs))
	for _, id := range config.VenuePoolIDs {
		poolIDs = append(poolIDs, types.PoolID(id))
	}

	var yieldVenue venue.YieldVenue
	if dbBacked {
		blendClient, err := venue.NewBlendClient(config.VenueRPCEndpoint, config.VaultAccount)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize venue client")
		}
		yieldVenue = blendClient
		log.Info().Str("endpoint", config.VenueRPCEndpoint).Msg("Venue client connected")
	} else {
		simVenue, err := venue.NewSimVenue(underlying, vault.AccountFor(vaultID), poolIDs)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize simulated venue")
		}
		yieldVenue = simVenue
	}

	// --- 4. Vault Engine Initialization ---
	engine, err := vault.NewEngine(vault.Config{
		Underlying: underlying,
		Shares:     shares,
		Venue:      yieldVenue,
		Recorder:   recorder,
		FeeBps:     config.PlatformFeeBps,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault engine")
	}

	restored := false
	if dbBacked {
		snapshot, err := state.LoadVaultSnapshot(vaultID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load persisted vault snapshot")
		}
		if snapshot != nil {
			if err := engine.Restore(*snapshot); err != nil {
				log.Fatal().Err(err).Msg("Failed to restore vault from snapshot")
			}
			restored = true
			log.Info().Uint64("vaultId", config.VaultID).Msg("Vault restored from persisted snapshot")
		}
	}
	if !restored {
		err := engine.Initialize(vaultID,
			types.Address(config.AdminAddress),
			types.Address(config.AgentAddress),
			types.Address(config.PlatformAddress),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize vault")
		}
		log.Info().Uint64("vaultId", config.VaultID).Msg("Vault initialized")
	}

	// --- 5. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, engine, vaultID, dbBacked)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting YVM orchestration API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 6. Create Agent Instance with Dependency Injection ---
	log.Info().Msg("Creating agent instance with dependency injection...")

	agentInstance, err := agent.NewAgent(agent.Config{
		Engine:     engine,
		Venue:      yieldVenue,
		VaultID:    vaultID,
		Credential: types.Address(config.AgentAddress),
		PoolIDs:    config.VenuePoolIDs,
		IdleBuffer: sdkmath.NewInt(config.IdleBufferAmount),
		DBBacked:   dbBacked,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent instance")
	}

	log.Info().Msg("Agent instance created successfully")

	// --- 7. Start Agent Main Loop ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agentInstance.StartDistributionSchedule(ctx, config.DistributionCron); err != nil {
		log.Fatal().Err(err).Msg("Failed to start yield distribution schedule")
	}
	defer agentInstance.StopDistributionSchedule()

	log.Info().Str("interval", LOOP_INTERVAL.String()).Msg("Starting agent main loop")
	agentInstance.RunLoop(ctx, LOOP_INTERVAL)
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
