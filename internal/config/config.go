// Package config loads agent configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the sync agent needs to talk to the backend
// and run locally. Values come from environment variables, with .env
// loading handled by the caller before Load runs.
type Config struct {
	// APIBaseURL is the backend REST base, e.g. https://api.example.com/v1.
	APIBaseURL string `env:"API_BASE_URL,required"`
	// WSURL is the realtime status endpoint, e.g. wss://api.example.com/v1/splits/ws.
	WSURL string `env:"WS_URL,required"`
	// AuthToken is the backend-issued JWT presented on every call.
	AuthToken string `env:"AUTH_TOKEN,required"`

	DBPath string `env:"DB_PATH" envDefault:"data/orders.db"`

	// JWTSecret, when set, makes the agent validate AuthToken locally
	// and log the session identity from its claims.
	JWTSecret string `env:"JWT_SECRET"`

	// SplitID, when set, makes the agent load that split session and
	// follow its realtime status channel.
	SplitID int64 `env:"SPLIT_ID"`

	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"30s"`
	MetricsAddr     string        `env:"METRICS_ADDR" envDefault:":9190"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
