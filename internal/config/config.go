package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const minSigningSecretBytes = 32

// Config is the env-driven runtime configuration. Load reads every knob
// once; collaborators receive plain values, never the environment.
type Config struct {
	DatabaseDSN    string
	ReadReplicaDSN string
	RedisEndpoint  string
	RedisPoolSize  int
	RedisTimeout   time.Duration

	JWTIssuer        string
	JWTSigningSecret string
	TokenPepper      string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	MaxSessions     int

	LockoutThreshold      int
	LockoutDuration       time.Duration
	LockoutBackoffEnabled bool
	LockoutMaxDuration    time.Duration

	IPRateLimit       int
	IPRateWindow      time.Duration
	UserRateLimit     int
	UserRateWindow    time.Duration
	RateLimitFailOpen bool

	ResetTokenTTL time.Duration

	CookieSecure bool
	CookieDomain string
}

// Load builds the configuration from the environment. When envFile is
// non-empty it is loaded first; variables already set win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{
		DatabaseDSN:    os.Getenv("DATABASE_URL"),
		ReadReplicaDSN: os.Getenv("DATABASE_REPLICA_URL"),
		RedisEndpoint:  os.Getenv("REDIS_ENDPOINT"),
		RedisPoolSize:  envInt("REDIS_POOL_SIZE", 10),
		RedisTimeout:   envDuration("REDIS_TIMEOUT", 2*time.Second),

		JWTIssuer:        envOrDefault("JWT_ISSUER", "timekeeper-authcore"),
		JWTSigningSecret: os.Getenv("JWT_SIGNING_SECRET"),
		TokenPepper:      os.Getenv("TOKEN_PEPPER"),

		AccessTokenTTL:  envDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL: envDuration("REFRESH_TOKEN_TTL", 168*time.Hour),
		MaxSessions:     envInt("MAX_SESSIONS_PER_USER", 3),

		LockoutThreshold:      envInt("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:       envDuration("LOCKOUT_DURATION", 15*time.Minute),
		LockoutBackoffEnabled: envBool("LOCKOUT_BACKOFF_ENABLED", true),
		LockoutMaxDuration:    envDuration("LOCKOUT_MAX_DURATION", 24*time.Hour),

		IPRateLimit:       envInt("RATE_LIMIT_IP_MAX", 15),
		IPRateWindow:      envDuration("RATE_LIMIT_IP_WINDOW", 15*time.Minute),
		UserRateLimit:     envInt("RATE_LIMIT_USER_MAX", 20),
		UserRateWindow:    envDuration("RATE_LIMIT_USER_WINDOW", time.Hour),
		RateLimitFailOpen: envBool("RATE_LIMIT_FAIL_OPEN", false),

		ResetTokenTTL: envDuration("RESET_TOKEN_TTL", time.Hour),

		CookieSecure: envBool("COOKIE_SECURE", true),
		CookieDomain: os.Getenv("COOKIE_DOMAIN"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(c.JWTSigningSecret) < minSigningSecretBytes {
		return fmt.Errorf("JWT_SIGNING_SECRET must be at least %d bytes", minSigningSecretBytes)
	}
	if c.TokenPepper == "" {
		return fmt.Errorf("TOKEN_PEPPER is required")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.RefreshTokenTTL < c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL must not be shorter than ACCESS_TOKEN_TTL")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envDuration accepts Go duration syntax ("15m") or a bare second count.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
