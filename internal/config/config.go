package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	FedhubEnv   string

	EntityID         string
	SigningKeyPEM    string
	SigningKeyID     string
	AdminAPIKey      string
	OrganizationName string

	VerifyMode        string
	JSONStatements    bool
	DiscoveryTimeout  int
	DiscoveryCacheTTL int

	ChainMaxDepth    int
	ChainConcurrency int

	IdPCoreURL         string
	IdPCoreMaxAttempts int

	RegistrationPolicyBundle string

	RateLimitRequests      int
	RateLimitWindowSeconds int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                 addr,
		PostgresDSN:              os.Getenv("POSTGRES_DSN"),
		FedhubEnv:                envDefault("FEDHUB_ENV", "production"),
		EntityID:                 os.Getenv("FEDHUB_ENTITY_ID"),
		SigningKeyPEM:            os.Getenv("FEDHUB_SIGNING_KEY_PEM"),
		SigningKeyID:             envDefault("FEDHUB_SIGNING_KEY_ID", "fedhub-1"),
		AdminAPIKey:              os.Getenv("ADMIN_API_KEY"),
		OrganizationName:         envDefault("FEDHUB_ORGANIZATION_NAME", "fedhub"),
		VerifyMode:               envDefault("VERIFY_MODE", "strict"),
		JSONStatements:           envBoolDefault("FEDHUB_JSON_STATEMENTS", false),
		DiscoveryTimeout:         envIntDefault("DISCOVERY_TIMEOUT_SECONDS", 5),
		DiscoveryCacheTTL:        envIntDefault("DISCOVERY_CACHE_TTL_SECONDS", 0),
		ChainMaxDepth:            envIntDefault("CHAIN_MAX_DEPTH", 5),
		ChainConcurrency:         envIntDefault("CHAIN_CONCURRENCY", 4),
		IdPCoreURL:               os.Getenv("IDP_CORE_URL"),
		IdPCoreMaxAttempts:       envIntDefault("IDP_CORE_MAX_ATTEMPTS", 5),
		RegistrationPolicyBundle: os.Getenv("REGISTRATION_POLICY_BUNDLE"),
		RateLimitRequests:        envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:   envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  envIntDefault("REDIS_DB", 0),
	}
}

// Production reports whether test-only relaxations (http entity ids, JSON
// statements, the insecure verifier) must stay disabled.
func (c Config) Production() bool {
	return c.FedhubEnv == "production"
}

func (c Config) DiscoveryTimeoutDuration() time.Duration {
	if c.DiscoveryTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.DiscoveryTimeout) * time.Second
}

func (c Config) DiscoveryCacheTTLDuration() time.Duration {
	if c.DiscoveryCacheTTL <= 0 {
		return 0
	}
	return time.Duration(c.DiscoveryCacheTTL) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}
