package config

import (
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the runtime settings read from the environment.
type Config struct {
	Port string `env:"PORT,default=8080"`

	DBHost     string `env:"DB_HOST,default=localhost"`
	DBPort     string `env:"DB_PORT,default=5432"`
	DBUser     string `env:"DB_USER,default=postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME,default=fieldhub"`
	DBSSLMode  string `env:"DB_SSLMODE,default=disable"`

	Storage  string `env:"STORAGE,default=postgres"`
	SeedFile string `env:"SEED_FILE"`

	JWTSecret     string `env:"JWT_SECRET"`
	RedisAddr     string `env:"REDIS_ADDR,default=127.0.0.1:6379"`
	EventsEnabled bool   `env:"EVENTS_ENABLED,default=false"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	RateLimitRPS float64 `env:"RATE_LIMIT_RPS,default=20"`

	// AllowCancelAfterAccept lets a requester cancel once a provider is bound.
	AllowCancelAfterAccept bool `env:"ALLOW_CANCEL_AFTER_ACCEPT,default=true"`
}

// Load reads an optional .env file and decodes the environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have a closed set of values.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("invalid STORAGE %q: want %q or %q", c.Storage, StoragePostgres, StorageMemory)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("invalid RATE_LIMIT_RPS %v", c.RateLimitRPS)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	return nil
}

// DatabaseURL builds the postgres DSN from the DB_* settings.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}
