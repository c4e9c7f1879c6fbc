package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const minJWTSecretLen = 32

// Config is the flat application configuration read from the environment.
type Config struct {
	ServerPort  int    `env:"SERVER_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret           string        `env:"JWT_SECRET"`
	JWTIssuer           string        `env:"JWT_ISSUER" envDefault:"iotpilot"`
	JWTTTL              time.Duration `env:"JWT_TTL" envDefault:"12h"`
	SessionCookieName   string        `env:"SESSION_COOKIE_NAME" envDefault:"iotpilot_session"`
	SessionCookieSecure bool          `env:"SESSION_COOKIE_SECURE" envDefault:"true"`
	BcryptCost          int           `env:"BCRYPT_COST" envDefault:"12"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"100"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// WSAllowedOrigins are extra origin patterns accepted for the metrics
	// WebSocket; same-origin requests are always accepted.
	WSAllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`

	// CacheBackend is "memory" (single instance) or "redis" (shared).
	CacheBackend       string        `env:"CACHE_BACKEND" envDefault:"memory"`
	RedisURL           string        `env:"REDIS_URL"`
	CacheTTL           time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"1m"`

	DeviceMonitorInterval    time.Duration `env:"DEVICE_MONITOR_INTERVAL" envDefault:"1m"`
	SessionReaperInterval    time.Duration `env:"SESSION_REAPER_INTERVAL" envDefault:"1m"`
	MetricsRetentionInterval time.Duration `env:"METRICS_RETENTION_INTERVAL" envDefault:"1h"`

	SSHKnownHosts            string        `env:"SSH_KNOWN_HOSTS"`
	SSHInsecureIgnoreHostKey bool          `env:"SSH_INSECURE_IGNORE_HOST_KEY" envDefault:"false"`
	SSHPrivateKeyPath        string        `env:"SSH_PRIVATE_KEY_PATH"`
	SSHDialTimeout           time.Duration `env:"SSH_DIAL_TIMEOUT" envDefault:"10s"`
	SSHCommandTimeout        time.Duration `env:"SSH_COMMAND_TIMEOUT" envDefault:"60s"`
	SSHMaxOutputBytes        int           `env:"SSH_MAX_OUTPUT_BYTES" envDefault:"65536"`
}

// Load reads the .env file specified by IOTPILOT_ENV (or .env by default),
// then loads the corresponding .secret file if it exists, and parses the
// resulting environment into a Config.
// Variables already present in the process environment win over both files.
func Load() (*Config, error) {
	envFile := os.Getenv("IOTPILOT_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine (containers set everything through the environment)
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return Parse()
}

// Parse builds a Config from the current process environment and validates it.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required")
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("config: JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	if c.JWTTTL <= 0 {
		return errors.New("config: JWT_TTL must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("config: SERVER_PORT %d out of range", c.ServerPort)
	}
	switch c.CacheBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL is required when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("config: unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = 100
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 20
	}
	if c.SSHMaxOutputBytes <= 0 {
		c.SSHMaxOutputBytes = 64 * 1024
	}
	return nil
}

// ServerAddr returns the listen address for the HTTP server.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
