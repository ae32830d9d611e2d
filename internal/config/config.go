package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Market   MarketConfig
	Catalog  CatalogConfig
	Jobs     JobsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string `env:"DB_DRIVER"      envDefault:"postgres"`
	Host       string `env:"DB_HOST"        envDefault:"localhost"`
	Port       string `env:"DB_PORT"        envDefault:"5432"`
	User       string `env:"DB_USER"        envDefault:"postgres"`
	Password   string `env:"DB_PASSWORD"`
	Name       string `env:"DB_NAME"        envDefault:"idle_economy"`
	SSLMode    string `env:"DB_SSLMODE"     envDefault:"disable"`
	SQLitePath string `env:"DB_SQLITE_PATH" envDefault:"idle-economy.db"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL form for database/sql.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string   `env:"SERVER_PORT"          envDefault:"8080"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET,required"`
	TokenTTL  time.Duration `env:"JWT_TTL" envDefault:"168h"`
}

type MarketConfig struct {
	// DefaultCommission applies to currencies without a catalog rate.
	DefaultCommission decimal.Decimal `env:"MARKET_DEFAULT_COMMISSION" envDefault:"0"`
}

type CatalogConfig struct {
	// Path to a catalog YAML file; empty uses the embedded defaults.
	Path string `env:"CATALOG_PATH"`
}

type JobsConfig struct {
	EvaluateEvery     time.Duration `env:"JOBS_EVALUATE_EVERY"      envDefault:"1m"`
	ExpireOffersEvery time.Duration `env:"JOBS_EXPIRE_OFFERS_EVERY" envDefault:"5m"`
	// ActiveWindow limits scheduled evaluation to recently seen players.
	ActiveWindow time.Duration `env:"JOBS_ACTIVE_WINDOW" envDefault:"24h"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadFrom parses configuration from the given variables only.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	rate := c.Market.DefaultCommission
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("MARKET_DEFAULT_COMMISSION must be in [0,1], got %s", rate)
	}
	for name, d := range map[string]time.Duration{
		"JOBS_EVALUATE_EVERY":      c.Jobs.EvaluateEvery,
		"JOBS_EXPIRE_OFFERS_EVERY": c.Jobs.ExpireOffersEvery,
		"JOBS_ACTIVE_WINDOW":       c.Jobs.ActiveWindow,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}
