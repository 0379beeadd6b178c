package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrMissingSecret is returned when no token signing secret is configured.
var ErrMissingSecret = errors.New("TOKEN_SECRET must be set")

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME" envDefault:"PurchaseConfirm"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	AuditTimeout   time.Duration `env:"AUDIT_TIMEOUT" envDefault:"3s"`

	Tokens TokenConfig
	Notify NotifyConfig
}

// TokenConfig holds the signing secret and the sizing of both token tiers.
type TokenConfig struct {
	Secret            string        `env:"TOKEN_SECRET"`
	PendingTTL        time.Duration `env:"PENDING_TTL" envDefault:"5h"`
	ConfirmedTTL      time.Duration `env:"CONFIRMED_TTL" envDefault:"10h"`
	PendingCapacity   int           `env:"PENDING_CAPACITY" envDefault:"1000"`
	ConfirmedCapacity int           `env:"CONFIRMED_CAPACITY" envDefault:"1000"`
	PurgeInterval     time.Duration `env:"PURGE_INTERVAL" envDefault:"1m"`
	VerifyOnLookup    bool          `env:"VERIFY_ON_LOOKUP" envDefault:"false"`
	ListAPIKey        string        `env:"LIST_API_KEY"`
}

// NotifyConfig holds the email gateway settings.
type NotifyConfig struct {
	PublicBaseURL        string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	Timeout              time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	ContactRateLimit     int           `env:"CONTACT_RATE_LIMIT" envDefault:"5"`
	PostmarkServerToken  string        `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string        `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string        `env:"SENDER_EMAIL"`
	SupportEmail         string        `env:"SUPPORT_EMAIL"`
}

// Load reads configuration values from the environment (and an optional .env
// file) and populates a Config instance.
func Load() (Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Tokens.Secret == "" {
		return ErrMissingSecret
	}
	if c.Tokens.PendingTTL <= 0 || c.Tokens.ConfirmedTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.Tokens.PendingCapacity <= 0 || c.Tokens.ConfirmedCapacity <= 0 {
		return fmt.Errorf("store capacities must be positive")
	}
	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be positive")
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// PostmarkEnabled reports whether enough credentials are present to send real email.
func (c NotifyConfig) PostmarkEnabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
