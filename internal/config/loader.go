package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PASCAL_* environment variable overrides, and
// returns the final Config. A missing file is not an error: the defaults plus
// environment make a complete configuration. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PASCAL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Operator ──
	setStr(&cfg.Operator.PrivateKey, "PASCAL_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "PASCAL_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "PASCAL_OPERATOR_KEY_PASSWORD")

	// ── Program ──
	setStr(&cfg.Program.RPCURL, "NEXT_PUBLIC_NODE") // compatibility alias
	setStr(&cfg.Program.RPCURL, "PASCAL_PROGRAM_RPC_URL")
	setStr(&cfg.Program.ProgramID, "NEXT_PUBLIC_PROGRAM_ID") // compatibility alias
	setStr(&cfg.Program.ProgramID, "PASCAL_PROGRAM_ID")
	setStr(&cfg.Program.QuoteMint, "PASCAL_PROGRAM_QUOTE_MINT")
	setInt(&cfg.Program.PriceBatchSize, "PASCAL_PROGRAM_PRICE_BATCH_SIZE")
	setDuration(&cfg.Program.CallTimeout, "PASCAL_PROGRAM_CALL_TIMEOUT")

	// ── Document store ──
	setDatabase(&cfg.Documents, "PASCAL_DOCUMENTS")

	// ── Supabase row store ──
	setDatabase(&cfg.Supabase, "PASCAL_SUPABASE")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PASCAL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PASCAL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PASCAL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PASCAL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PASCAL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PASCAL_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CatalogTTLSec, "PASCAL_REDIS_CATALOG_TTL_SEC")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PASCAL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PASCAL_S3_REGION")
	setStr(&cfg.S3.Bucket, "PASCAL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PASCAL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PASCAL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PASCAL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PASCAL_S3_FORCE_PATH_STYLE")

	// ── Token price ──
	setStr(&cfg.TokenPrice.NodeURL, "NEXT_PUBLIC_NODE") // compatibility alias
	setStr(&cfg.TokenPrice.NodeURL, "PASCAL_TOKEN_PRICE_NODE_URL")
	setStr(&cfg.TokenPrice.Mint, "PASCAL_TOKEN_PRICE_MINT")
	setFloat64(&cfg.TokenPrice.FallbackPrice, "PASCAL_TOKEN_PRICE_FALLBACK_PRICE")
	setDuration(&cfg.TokenPrice.CacheTTL, "PASCAL_TOKEN_PRICE_CACHE_TTL")

	// ── Lending ──
	setFloat64(&cfg.Lending.LTV, "PASCAL_LENDING_LTV")

	// ── Server ──
	setInt(&cfg.Server.Port, "PASCAL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PASCAL_SERVER_CORS_ORIGINS")
	setStringSlice(&cfg.Server.APIKeys, "CREATE_MARKET_API_KEY") // compatibility alias
	setStringSlice(&cfg.Server.APIKeys, "PASCAL_SERVER_API_KEYS")
	setBool(&cfg.Server.GateCreateMarket, "PASCAL_SERVER_GATE_CREATE_MARKET")
	setInt(&cfg.Server.RateLimit, "PASCAL_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateWindowSec, "PASCAL_SERVER_RATE_WINDOW_SEC")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PASCAL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PASCAL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PASCAL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PASCAL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PASCAL_MODE")
	setStr(&cfg.LogLevel, "PASCAL_LOG_LEVEL")
}

// setDatabase applies the <prefix>_* overrides shared by both Postgres pools.
func setDatabase(db *DatabaseConfig, prefix string) {
	setStr(&db.DSN, prefix+"_DSN")
	setStr(&db.Host, prefix+"_HOST")
	setInt(&db.Port, prefix+"_PORT")
	setStr(&db.Database, prefix+"_DATABASE")
	setStr(&db.User, prefix+"_USER")
	setStr(&db.Password, prefix+"_PASSWORD")
	setStr(&db.SSLMode, prefix+"_SSL_MODE")
	setInt(&db.PoolMaxConns, prefix+"_POOL_MAX_CONNS")
	setInt(&db.PoolMinConns, prefix+"_POOL_MIN_CONNS")
	setBool(&db.RunMigrations, prefix+"_RUN_MIGRATIONS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
