package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (POS_DATABASE_URL or DATABASE_URL); empty keeps everything in memory" flag:"database-url"`
	CatalogSeed string `default:"" usage:"JSON catalog loaded into the in-memory store at startup" flag:"catalog-seed"`
	Redis       RedisConfig
	Auth        AuthConfig
	Journal     JournalConfig
	Report      ReportConfig
	Sales       SalesConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RateLimitConfig controls the per-client sliding window rate limiter on /api.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max API requests per client and window; 0 disables limiting"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers for the browser till.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// RedisConfig selects the Redis stock ledger when Addr is set.
type RedisConfig struct {
	Addr     string `default:"" usage:"Redis address for the stock ledger" flag:"redis-addr"`
	Password string `default:"" usage:"Redis password" flag:"redis-password"`
	DB       int    `default:"0" usage:"Redis database" flag:"redis-db"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret string `usage:"HS256 secret shared with the token issuer (POS_AUTH_SECRET)" flag:"auth-secret"`
	Issuer string `default:"" usage:"Expected token issuer; empty accepts any" flag:"auth-issuer"`
}

// JournalConfig controls the receipt journal and its circuit breaker.
type JournalConfig struct {
	Dir      string        `default:"" usage:"Directory for gzip receipt journals; empty disables the journal" flag:"journal-dir"`
	Failures uint32        `default:"5" usage:"Consecutive delivery failures before the breaker opens" flag:"journal-failures"`
	Cooldown time.Duration `default:"30s" usage:"How long the breaker stays open" flag:"journal-cooldown"`
}

// ReportConfig controls the reporting aggregator.
type ReportConfig struct {
	Timezone      string `default:"Local" usage:"IANA timezone for daily and monthly windows" flag:"report-timezone"`
	NetOfDiscount bool   `default:"false" usage:"Compute revenue and profit net of the sale discount" flag:"report-net-of-discount"`
}

// SalesConfig controls sale administration.
type SalesConfig struct {
	RestockOnDelete bool `default:"false" usage:"Return a deleted sale's quantities to stock" flag:"restock-on-delete"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"pos.yaml", "/etc/pos/pos.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if len(c.Auth.Secret) < 16 {
		return errors.New("auth secret must be at least 16 bytes: set POS_AUTH_SECRET")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.RateLimit.Max < 0 {
		return errors.New("rate limit max must not be negative")
	}
	if c.RateLimit.Max > 0 && c.RateLimit.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	if c.Journal.Dir != "" && c.Journal.Failures == 0 {
		return errors.New("journal breaker failures must be positive")
	}
	return nil
}

// Location resolves the reporting timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "report timezone %q", c.Report.Timezone)
	}
	return loc, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's POS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
