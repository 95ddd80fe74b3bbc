package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"naskahcollab/internal/document/model"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is parsed from NASKAH_ prefixed environment variables,
// e.g. NASKAH_HTTP_ADDR, NASKAH_AUTOSAVE_DELAY.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	JWTSecret   string `envconfig:"JWT_SECRET" default:""`
	RedisURL    string `envconfig:"REDIS_URL" default:""`
	CORSOrigin  string `envconfig:"CORS_ORIGIN" default:"*"`
	AppURL      string `envconfig:"APP_URL" default:"http://localhost:3000"`

	AutoSaveDelay time.Duration `envconfig:"AUTOSAVE_DELAY" default:"2s"`
	GracePeriod   time.Duration `envconfig:"GRACE_PERIOD" default:"30s"`
	PresenceTTL   time.Duration `envconfig:"PRESENCE_TTL" default:"2m"`
	SendBuffer    int           `envconfig:"SEND_BUFFER" default:"256"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE" default:""`

	SMTPHost     string `envconfig:"SMTP_HOST" default:""`
	SMTPPort     string `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:""`
	SMTPFromName string `envconfig:"SMTP_FROM_NAME" default:"Satu Naskah"`

	// SeedUsers preloads the memory store, as "id:name:email" entries.
	SeedUsers []string `envconfig:"SEED_USERS"`
}

// Load reads an optional .env file and then the process environment.
// The bool result reports whether a .env file was found.
func Load() (*Config, bool, error) {
	foundDotEnv := godotenv.Load() == nil

	var cfg Config
	if err := envconfig.Process("NASKAH", &cfg); err != nil {
		return nil, foundDotEnv, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, foundDotEnv, err
	}
	return &cfg, foundDotEnv, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("NASKAH_JWT_SECRET must be set")
	}
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("NASKAH_DATABASE_URL is required for the postgres store")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported NASKAH_STORE_DRIVER: %s", c.StoreDriver)
	}
	if c.AutoSaveDelay <= 0 {
		return errors.New("NASKAH_AUTOSAVE_DELAY must be positive")
	}
	if c.GracePeriod <= 0 {
		return errors.New("NASKAH_GRACE_PERIOD must be positive")
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if _, err := c.Users(); err != nil {
		return err
	}
	return nil
}

// Users parses SeedUsers. The email part is optional.
func (c *Config) Users() ([]model.User, error) {
	users := make([]model.User, 0, len(c.SeedUsers))
	for _, entry := range c.SeedUsers {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
			return nil, fmt.Errorf("invalid NASKAH_SEED_USERS entry %q, want id:name[:email]", entry)
		}
		u := model.User{ID: parts[0], Name: parts[1]}
		if len(parts) == 3 {
			u.Email = parts[2]
		}
		users = append(users, u)
	}
	return users, nil
}

// NewForTesting returns a memory-backed configuration with short timers.
func NewForTesting() *Config {
	return &Config{
		HTTPAddr:      ":0",
		StoreDriver:   "memory",
		JWTSecret:     "test-secret",
		CORSOrigin:    "*",
		AppURL:        "http://localhost:3000",
		AutoSaveDelay: 50 * time.Millisecond,
		GracePeriod:   100 * time.Millisecond,
		PresenceTTL:   time.Minute,
		SendBuffer:    64,
		LogLevel:      "error",
		SMTPPort:      "587",
	}
}
