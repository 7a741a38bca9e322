package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	RunAddress   string
	DatabaseURI  string
	JWTSecret    string
	RedisAddress string
	NatsURL      string
	SyncInterval time.Duration
	CacheTTL     time.Duration
}

// NewConfig reads flags, then lets the environment (and an optional .env
// file) override them.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := parseFlags(os.Args[0], os.Args[1:])
	if err != nil {
		return nil, err
	}

	if err := ReadServerEnvironment(cfg); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required (-k or JWT_SECRET)")
	}

	return cfg, nil
}

func parseFlags(name string, args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.RunAddress, "a", "localhost:8080", "HTTP server address")
	fs.StringVar(&cfg.DatabaseURI, "d", "", "DB connection string, empty for in-memory storage")
	fs.StringVar(&cfg.JWTSecret, "k", "", "JWT signing secret")
	fs.StringVar(&cfg.RedisAddress, "r", "", "Redis address for the service cache")
	fs.StringVar(&cfg.NatsURL, "n", "", "NATS URL for order events")
	fs.DurationVar(&cfg.SyncInterval, "s", 5*time.Second, "provider sync interval")
	cfg.CacheTTL = time.Minute

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ReadServerEnvironment(cfg *Config) error {
	if runAddress := os.Getenv("RUN_ADDRESS"); runAddress != "" {
		cfg.RunAddress = runAddress
	}

	if databaseURI := os.Getenv("DATABASE_URI"); databaseURI != "" {
		cfg.DatabaseURI = databaseURI
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}

	if redisAddress := os.Getenv("REDIS_ADDRESS"); redisAddress != "" {
		cfg.RedisAddress = redisAddress
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		cfg.NatsURL = natsURL
	}

	if v := os.Getenv("SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("SYNC_INTERVAL: invalid duration %q", v)
		}
		cfg.SyncInterval = d
	}

	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("CACHE_TTL: invalid duration %q", v)
		}
		cfg.CacheTTL = d
	}

	return nil
}
