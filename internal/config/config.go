// Package config loads ArticlePulse configuration from the environment, an optional .env file and
// an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Environment string `env:"APP_ENV,default=development" yaml:"environment"`

	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `env:"PORT,default=3001" yaml:"port"`
	BasePath        string        `env:"HTTP_BASE_PATH,default=/api" yaml:"basePath"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=15s" yaml:"readTimeout"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s" yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s" yaml:"shutdownTimeout"`
}

// DatabaseConfig selects the store. An empty URL runs the in-memory demo store.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" yaml:"url"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=20" yaml:"maxOpenConns"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=5" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=30m" yaml:"connMaxLifetime"`
	AutoMigrate     bool          `env:"DATABASE_AUTO_MIGRATE,default=true" yaml:"autoMigrate"`
}

// RedisConfig enables the access grant cache when Addr is set.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR" yaml:"addr"`
	Password string        `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int           `env:"REDIS_DB,default=0" yaml:"db"`
	GrantTTL time.Duration `env:"ACCESS_GRANT_TTL,default=24h" yaml:"grantTTL"`
}

// LedgerConfig points at the Neo N3 node and the deployed contracts. An empty RPCURL disables the
// ledger; every ledger call then reports LEDGER_UNAVAILABLE.
type LedgerConfig struct {
	RPCURL          string        `env:"NEO_RPC_URL" yaml:"rpcURL"`
	NetworkID       uint32        `env:"NEO_NETWORK_MAGIC,default=0" yaml:"networkMagic"`
	ContractsFile   string        `env:"CONTRACTS_FILE,default=config/contracts.json" yaml:"contractsFile"`
	TokenAddress    string        `env:"TOKEN_CONTRACT_ADDRESS" yaml:"tokenAddress"`
	PurchaseAddress string        `env:"PURCHASE_CONTRACT_ADDRESS" yaml:"purchaseAddress"`
	Timeout         time.Duration `env:"LEDGER_TIMEOUT,default=5s" yaml:"timeout"`
	TxWait          time.Duration `env:"LEDGER_TX_WAIT,default=2m" yaml:"txWait"`
	PollInterval    time.Duration `env:"LEDGER_POLL_INTERVAL,default=2s" yaml:"pollInterval"`
	TokenDecimals   int           `env:"TOKEN_DECIMALS,default=18" yaml:"tokenDecimals"`
	// CustodialKeys are comma-separated WIF or hex keys of wallets the server may purchase for.
	CustodialKeys string `env:"LEDGER_CUSTODIAL_KEYS" yaml:"custodialKeys"`
	// OperatorKey signs administrative token transfers.
	OperatorKey string `env:"PRIVATE_KEY" yaml:"operatorKey"`
}

type AuthConfig struct {
	AdminJWTSecret string `env:"ADMIN_JWT_SECRET" yaml:"adminJWTSecret"`
	AdminRole      string `env:"ADMIN_ROLE,default=admin" yaml:"adminRole"`
}

type CORSConfig struct {
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:3000" yaml:"allowedOrigins"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `env:"RATE_LIMIT_RPS,default=20" yaml:"requestsPerSecond"`
	Burst             int `env:"RATE_LIMIT_BURST,default=40" yaml:"burst"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"LOG_FORMAT,default=json" yaml:"format"`
}

// Load reads .env (if present), decodes the environment and applies CONFIG_FILE when set.
// Values in the YAML file override the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.ApplyYAMLFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyYAMLFile overlays the fields present in path onto cfg.
func (c *Config) ApplyYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Server.Port)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("HTTP_BASE_PATH must start with /")
	}
	if c.Ledger.Timeout <= 0 {
		return fmt.Errorf("LEDGER_TIMEOUT must be positive")
	}
	if c.Ledger.TokenDecimals < 0 || c.Ledger.TokenDecimals > 36 {
		return fmt.Errorf("TOKEN_DECIMALS out of range: %d", c.Ledger.TokenDecimals)
	}
	if c.IsProduction() && c.Auth.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is required in production")
	}
	if c.Auth.AdminJWTSecret != "" && len(c.Auth.AdminJWTSecret) < 32 {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least 32 bytes")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// AllowedOrigins splits the comma-separated CORS origin list.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORS.AllowedOrigins)
}

// CustodialKeyList splits the comma-separated custodial key list.
func (c *LedgerConfig) CustodialKeyList() []string {
	return splitList(c.CustodialKeys)
}

// LedgerEnabled reports whether a ledger node is configured.
func (c *Config) LedgerEnabled() bool {
	return c.Ledger.RPCURL != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
