package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL    string        `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret      string        `usage:"HS256 signing secret for access tokens (SHOP_JWT_SECRET)" flag:"jwt-secret"`
	PasswordPepper string        `usage:"HMAC pepper for password hashing (SHOP_PASSWORD_PEPPER)" flag:"password-pepper"`
	TokenTTL       time.Duration `default:"24h" usage:"Access token lifetime" flag:"token-ttl"`
	Events         EventsConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// EventsConfig controls the notification dispatcher and its optional sinks.
type EventsConfig struct {
	Buffer       int      `default:"256" usage:"Event dispatch buffer size"`
	KafkaBrokers []string `usage:"Kafka brokers for the event sink (empty disables it)" flag:"kafka-brokers"`
	KafkaTopic   string   `default:"shop-events" usage:"Kafka topic for emitted events" flag:"kafka-topic"`
}

// RateLimitConfig bounds request rates per client IP.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Requests allowed per window"`
	Window time.Duration `default:"1m"  usage:"Sliding window length"`
}

// CORSConfig shapes the cross-origin response headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Origins allowed to call the API"`
	AllowCredentials bool     `default:"false" usage:"Permit cookies and auth headers cross-origin" flag:"cors-credentials"`
}

// GracefulConfig tunes the shutdown sequence.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Drain period after readiness flips off" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Hard deadline for in-flight requests" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT secret is required: set SHOP_JWT_SECRET")
	}
	if cfg.PasswordPepper == "" {
		return nil, errors.New("password pepper is required: set SHOP_PASSWORD_PEPPER")
	}

	return &cfg, nil
}

// applyPlatformDefaults fills settings PaaS providers hand out under their
// conventional names (DATABASE_URL, PORT) when no explicit value was given.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
