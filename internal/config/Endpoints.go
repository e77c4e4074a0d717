package config

import (
	"errors"
	"os"
	"strings"
)

// Endpoint configuration for the external yield venue.
var (
	// VenueRPCEndpoint is the JSON-RPC endpoint of the external lending venue.
	VenueRPCEndpoint string

	// VenuePoolIDs is the set of venue pools the agent is permitted to supply to.
	VenuePoolIDs []string

	// VaultAccount is the venue-side account identity the vault's positions
	// are held under.
	VaultAccount string
)

// loadEndpointConfig loads venue endpoint configuration from environment variables.
func loadEndpointConfig() error {
	var err error

	VenueRPCEndpoint, err = getEnv("VENUE_RPC_ENDPOINT")
	if err != nil {
		return err
	}

	VaultAccount, err = getEnv("VAULT_ACCOUNT")
	if err != nil {
		return err
	}

	poolsRaw, exists := os.LookupEnv("VENUE_POOL_IDS")
	if !exists || strings.TrimSpace(poolsRaw) == "" {
		return errors.New("environment variable VENUE_POOL_IDS is required but not set")
	}

	VenuePoolIDs = VenuePoolIDs[:0]
	for _, id := range strings.Split(poolsRaw, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		VenuePoolIDs = append(VenuePoolIDs, id)
	}
	if len(VenuePoolIDs) == 0 {
		return errors.New("VENUE_POOL_IDS must contain at least one pool ID")
	}

	return nil
}
