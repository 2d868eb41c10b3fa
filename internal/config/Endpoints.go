package config

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Endpoints holds the remote services the monitor talks to.
type Endpoints struct {
	// RPCURL is the JSON-RPC endpoint of the chain node.
	RPCURL string
	// APIBaseURL is the base of the task intake API (POST {base}/bot/activity).
	APIBaseURL string
	// APIKey is sent as X-Api-Key on task submission.
	APIKey string
	// PriceFeedURL is the base of the price API (GET {base}/prices). Defaults to APIBaseURL.
	PriceFeedURL string
}

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by Load() in General.go.
func loadEndpointConfig() (Endpoints, error) {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var (
		e   Endpoints
		err error
	)

	e.RPCURL, err = getEnv("RPC_URL")
	if err != nil {
		return Endpoints{}, err
	}

	e.APIBaseURL, err = getEnv("API_BASE_URL")
	if err != nil {
		return Endpoints{}, err
	}
	e.APIBaseURL = strings.TrimRight(e.APIBaseURL, "/")

	e.APIKey = getEnvOrDefault("API_KEY", "")
	if e.APIKey == "" {
		log.Warn().Msg("API_KEY is not set; task submissions will be sent without an API key")
	}

	e.PriceFeedURL = strings.TrimRight(getEnvOrDefault("PRICE_FEED_URL", e.APIBaseURL), "/")

	log.Debug().
		Str("RPCURL", e.RPCURL).
		Str("APIBaseURL", e.APIBaseURL).
		Str("PriceFeedURL", e.PriceFeedURL).
		Msg("Endpoint configuration loaded successfully.")

	return e, nil
}
