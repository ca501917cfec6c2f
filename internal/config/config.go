package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Cache    CacheConfig
	Capacity CapacityConfig
	ESI      ESIConfig
	SSO      SSOConfig
	Server   ServerConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// SSOConfig holds the EVE SSO OAuth2 application settings.
type SSOConfig struct {
	ClientID     string `env:"SSO_CLIENT_ID, required"`
	ClientSecret string `env:"SSO_CLIENT_SECRET, required"`

	// RedirectURL is the callback registered with the SSO application.
	RedirectURL string `env:"SSO_REDIRECT_URL, required"`

	AuthorizeURL string `env:"SSO_AUTHORIZE_URL, default=https://login.eveonline.com/v2/oauth/authorize"`
	TokenURL     string `env:"SSO_TOKEN_URL, default=https://login.eveonline.com/v2/oauth/token"`
	VerifyURL    string `env:"SSO_VERIFY_URL, default=https://login.eveonline.com/oauth/verify"`

	// Scopes is the space-separated scope set requested on login.
	Scopes string `env:"SSO_SCOPES, default=publicData esi-skills.read_skills.v1 esi-assets.read_assets.v1 esi-planets.manage_planets.v1 esi-industry.read_character_jobs.v1 esi-characters.read_blueprints.v1"`
}

// ESIConfig specifies the upstream data API.
type ESIConfig struct {
	APIURL string `env:"ESI_API_URL, default=https://esi.evetech.net/latest"`

	// RequestTimeoutSeconds bounds every outbound ESI call.
	RequestTimeoutSeconds int `env:"ESI_REQUEST_TIMEOUT_SECS, default=15"`
}

// CacheConfig specifies tiered cache configuration.
type CacheConfig struct {
	// DatabasePath is the SQLite file backing the durable tier and the
	// identity store. ":memory:" is accepted for tests.
	DatabasePath string `env:"CACHE_DATABASE_PATH, default=forgetrack.db"`

	// MemoryMaxEntries bounds the fast in-process tier.
	MemoryMaxEntries int `env:"CACHE_MEMORY_MAX_ENTRIES, default=10000"`

	// SweepIntervalSeconds controls the periodic expired-entry sweep.
	SweepIntervalSeconds int `env:"CACHE_SWEEP_INTERVAL_SECS, default=300"`
}

// CapacityConfig locates the capacity profile mapping skills and
// activities to slot buckets. Empty uses the built-in defaults.
type CapacityConfig struct {
	ProfilePath string `env:"CAPACITY_PROFILE_PATH"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Cache.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the cache configuration is usable.
func (c *CacheConfig) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("CACHE_DATABASE_PATH must not be empty")
	}
	if c.MemoryMaxEntries <= 0 {
		return fmt.Errorf("CACHE_MEMORY_MAX_ENTRIES must be positive")
	}
	return nil
}
