// Package config defines the top-level configuration for the pascal backend
// and provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PASCAL_* environment variables.
type Config struct {
	Operator   OperatorConfig   `toml:"operator"`
	Program    ProgramConfig    `toml:"program"`
	Documents  DatabaseConfig   `toml:"documents"`
	Supabase   DatabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	TokenPrice TokenPriceConfig `toml:"token_price"`
	Lending    LendingConfig    `toml:"lending"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// OperatorConfig holds the operator wallet used to submit program
// instructions. The key is a hex-encoded 32-byte ed25519 seed.
type OperatorConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// HasKey reports whether any operator key source is configured.
func (o OperatorConfig) HasKey() bool {
	return o.PrivateKey != "" || o.EncryptedKeyPath != ""
}

// ProgramConfig points at the on-chain program gateway.
type ProgramConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	ProgramID      string   `toml:"program_id"`
	QuoteMint      string   `toml:"quote_mint"`
	PriceBatchSize int      `toml:"price_batch_size"`
	CallTimeout    duration `toml:"call_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters. A config with
// neither DSN nor Host is treated as "not configured".
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Configured reports whether enough connection detail was provided to dial.
func (d DatabaseConfig) Configured() bool {
	return strings.TrimSpace(d.DSN) != "" || strings.TrimSpace(d.Host) != ""
}

// RedisConfig holds Redis connection parameters. An empty Addr disables
// Redis and the in-process fallbacks are used instead.
type RedisConfig struct {
	Addr          string `toml:"addr"`
	Password      string `toml:"password"`
	DB            int    `toml:"db"`
	PoolSize      int    `toml:"pool_size"`
	MaxRetries    int    `toml:"max_retries"`
	TLSEnabled    bool   `toml:"tls_enabled"`
	CatalogTTLSec int    `toml:"catalog_ttl_sec"`
	StreamMaxLen  int    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters. An empty Bucket
// disables catalog export.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TokenPriceConfig configures the token price proxy.
type TokenPriceConfig struct {
	NodeURL       string   `toml:"node_url"`
	Mint          string   `toml:"mint"`
	FallbackPrice float64  `toml:"fallback_price"`
	CacheTTL      duration `toml:"cache_ttl"`
	Timeout       duration `toml:"timeout"`
}

// LendingConfig holds the lending dashboard parameters.
type LendingConfig struct {
	// LTV is the loan-to-value ratio applied to collateral value, in (0,1].
	LTV float64 `toml:"ltv"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKeys is the allow-list checked against the x-api-key header on gated
	// routes. An empty list rejects every gated request.
	APIKeys []string `toml:"api_keys"`
	// GateCreateMarket additionally gates POST /api/createMarket.
	GateCreateMarket bool `toml:"gate_create_market"`
	RateLimit        int  `toml:"rate_limit"`
	RateWindowSec    int  `toml:"rate_window_sec"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Program: ProgramConfig{
			RPCURL:         "",
			QuoteMint:      "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			PriceBatchSize: 50,
			CallTimeout:    duration{60 * time.Second},
		},
		Documents: DatabaseConfig{
			Port:          5432,
			Database:      "pascal",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Supabase: DatabaseConfig{
			Port:         5432,
			Database:     "postgres",
			User:         "postgres",
			SSLMode:      "require",
			PoolMaxConns: 5,
			PoolMinConns: 0,
		},
		Redis: RedisConfig{
			DB:            0,
			PoolSize:      20,
			MaxRetries:    3,
			CatalogTTLSec: 30,
			StreamMaxLen:  1000,
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
		},
		TokenPrice: TokenPriceConfig{
			Mint:          "CB9dDufT3ZuQXqqSfa1c5kY935TEreyBw9XJXxHKpump",
			FallbackPrice: 0.001,
			CacheTTL:      duration{30 * time.Second},
			Timeout:       duration{5 * time.Second},
		},
		Lending: LendingConfig{
			LTV: 0.5,
		},
		Server: ServerConfig{
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000"},
			RateLimit:     120,
			RateWindowSec: 60,
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "reconcile_required"},
		},
		Mode:     "api",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"api":  true,
	"full": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: api, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Full mode runs the creation orchestrator and needs a wallet and a
	// program gateway.
	if strings.ToLower(c.Mode) == "full" {
		if !c.Operator.HasKey() {
			add("operator: either private_key or encrypted_key_path must be set for mode full")
		}
		if c.Program.RPCURL == "" {
			add("program: rpc_url must be set for mode full")
		}
	}
	if c.Operator.EncryptedKeyPath != "" && c.Operator.KeyPassword == "" {
		add("operator: key_password is required when encrypted_key_path is set")
	}
	if c.Program.PriceBatchSize < 1 {
		add("program: price_batch_size must be >= 1")
	}

	for name, db := range map[string]DatabaseConfig{"documents": c.Documents, "supabase": c.Supabase} {
		if !db.Configured() {
			continue
		}
		if strings.TrimSpace(db.DSN) == "" {
			if db.Port <= 0 || db.Port > 65535 {
				add("%s: port must be 1-65535, got %d", name, db.Port)
			}
			if db.Database == "" {
				add("%s: database must not be empty", name)
			}
		}
		if db.PoolMaxConns < 1 {
			add("%s: pool_max_conns must be >= 1", name)
		}
		if db.PoolMinConns < 0 || db.PoolMinConns > db.PoolMaxConns {
			add("%s: pool_min_conns must be between 0 and pool_max_conns", name)
		}
	}

	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		add("redis: pool_size must be >= 1")
	}
	if c.S3.Bucket != "" && c.S3.Region == "" {
		add("s3: region must not be empty when bucket is set")
	}

	if c.TokenPrice.FallbackPrice <= 0 {
		add("token_price: fallback_price must be > 0")
	}
	if c.Lending.LTV <= 0 || c.Lending.LTV > 1 {
		add("lending: ltv must be in (0, 1], got %v", c.Lending.LTV)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		add("server: rate_limit must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return nil
}
