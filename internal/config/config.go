package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Role is the process a configuration is validated for.
type Role string

const (
	RoleRegistry Role = "registry"
	RoleGateway  Role = "gateway"
	RoleClient   Role = "client"
	RoleMigrate  Role = "migrate"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Registry service
	Port          string `mapstructure:"PORT"`
	RegistryStore string `mapstructure:"REGISTRY_STORE"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string   `mapstructure:"BODY_LIMIT"`

	// Gateway
	GatewayPort     string        `mapstructure:"GATEWAY_PORT"`
	DecisionTimeout time.Duration `mapstructure:"DECISION_TIMEOUT"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	CacheLimit      int           `mapstructure:"CACHE_LIMIT"`
	CacheTTL        time.Duration `mapstructure:"CACHE_TTL"`
	KafkaBrokers    []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic      string        `mapstructure:"KAFKA_TOPIC"`
	WebhookURL      string        `mapstructure:"WEBHOOK_URL"`
	WebhookSecret   string        `mapstructure:"WEBHOOK_SECRET"`

	// Registry client, used by the gateway and the CLI
	RegistryURL     string        `mapstructure:"REGISTRY_URL"`
	RegistryToken   string        `mapstructure:"REGISTRY_TOKEN"`
	RegistryTimeout time.Duration `mapstructure:"REGISTRY_TIMEOUT"`
	RegistryRPS     float64       `mapstructure:"REGISTRY_RPS"`
	RegistryBurst   int           `mapstructure:"REGISTRY_BURST"`
}

var keys = []string{
	"ENV", "LOG_LEVEL",
	"PORT", "REGISTRY_STORE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"GATEWAY_PORT", "DECISION_TIMEOUT", "REDIS_URL", "CACHE_LIMIT", "CACHE_TTL",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "WEBHOOK_URL", "WEBHOOK_SECRET",
	"REGISTRY_URL", "REGISTRY_TOKEN", "REGISTRY_TIMEOUT", "REGISTRY_RPS", "REGISTRY_BURST",
}

// Load reads the environment and an optional .env file. It does not
// validate; call Validate with the role of the process.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "8000")
	v.SetDefault("REGISTRY_STORE", StorePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("BODY_LIMIT", "64K")
	v.SetDefault("GATEWAY_PORT", "8080")
	v.SetDefault("DECISION_TIMEOUT", "10m")
	v.SetDefault("CACHE_LIMIT", 50)
	v.SetDefault("CACHE_TTL", "720h")
	v.SetDefault("KAFKA_TOPIC", "registry.resolutions")
	v.SetDefault("REGISTRY_URL", "http://localhost:8000")
	v.SetDefault("REGISTRY_TIMEOUT", "15s")
	v.SetDefault("REGISTRY_RPS", 10)
	v.SetDefault("REGISTRY_BURST", 5)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// The .env file is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))
	return cfg, nil
}

// splitList parses a comma separated env value.
func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is usable by the given role.
func (c *Config) Validate(role Role) error {
	var errs []error
	switch role {
	case RoleRegistry:
		switch c.RegistryStore {
		case StorePostgres:
			if c.DatabaseURL == "" {
				errs = append(errs, errors.New("DATABASE_URL is required when REGISTRY_STORE=postgres"))
			}
		case StoreMemory:
			if c.IsProduction() {
				errs = append(errs, errors.New("REGISTRY_STORE=memory is not allowed in production"))
			}
		default:
			errs = append(errs, fmt.Errorf("REGISTRY_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.RegistryStore))
		}
		errs = append(errs, c.validateAuth()...)
	case RoleGateway:
		errs = append(errs, c.validateAuth()...)
		if c.RegistryURL == "" {
			errs = append(errs, errors.New("REGISTRY_URL is required"))
		}
		if c.DecisionTimeout <= 0 {
			errs = append(errs, errors.New("DECISION_TIMEOUT must be positive"))
		}
		if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
			errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
		}
		if c.WebhookURL != "" && c.WebhookSecret == "" {
			errs = append(errs, errors.New("WEBHOOK_SECRET is required when WEBHOOK_URL is set"))
		}
	case RoleClient:
		if c.RegistryURL == "" {
			errs = append(errs, errors.New("REGISTRY_URL is required"))
		}
		if c.RegistryToken == "" {
			errs = append(errs, errors.New("REGISTRY_TOKEN is required"))
		}
	case RoleMigrate:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required"))
		}
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	return errors.Join(errs...)
}

// validateAuth requires a signing key outside development, where requests
// without a token fall back to a development identity.
func (c *Config) validateAuth() []error {
	if c.IsDev() {
		return nil
	}
	if len(c.AuthSigningKey) < 32 {
		return []error{errors.New("AUTH_SIGNING_KEY must be at least 32 characters outside development")}
	}
	return nil
}
