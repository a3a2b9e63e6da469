package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env"
)

// Config holds every tunable of the matching core. The cooldown and staleness
// windows are deployment-tuned values, not invariants, so they all come from
// the environment.
type Config struct {
	Port           string `env:"PORT"              envDefault:"8080"`
	LogLevel       string `env:"LOG_LEVEL"         envDefault:"info"`
	AWSRegion      string `env:"AWS_REGION"        envDefault:"us-east-1"`
	UseMemoryStore bool   `env:"USE_MEMORY_STORE"  envDefault:"false"`

	RoomProviderURL    string `env:"ROOM_PROVIDER_URL"     envDefault:""`
	RoomProviderAPIKey string `env:"ROOM_PROVIDER_API_KEY" envDefault:""`

	NormalCooldown    time.Duration `env:"NORMAL_COOLDOWN"    envDefault:"30s"`
	SkipCooldown      time.Duration `env:"SKIP_COOLDOWN"      envDefault:"2m"`
	TicketMaxAge      time.Duration `env:"TICKET_MAX_AGE"     envDefault:"5m"`
	MatchMaxAge       time.Duration `env:"MATCH_MAX_AGE"      envDefault:"10m"`
	PairLockTTL       time.Duration `env:"PAIR_LOCK_TTL"      envDefault:"10s"`
	DisconnectGrace   time.Duration `env:"DISCONNECT_GRACE"   envDefault:"2s"`
	LeftBehindTTL     time.Duration `env:"LEFT_BEHIND_TTL"    envDefault:"2m"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`
	ReconcileDebounce time.Duration `env:"RECONCILE_DEBOUNCE" envDefault:"3s"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}
	return cfg, nil
}
