package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HYPERLOCAL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HYPERLOCAL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Storage ──
	setStr(&cfg.Storage.Backend, "HYPERLOCAL_STORAGE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "HYPERLOCAL_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Postgres.Host, "HYPERLOCAL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HYPERLOCAL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HYPERLOCAL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HYPERLOCAL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HYPERLOCAL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HYPERLOCAL_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HYPERLOCAL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HYPERLOCAL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HYPERLOCAL_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HYPERLOCAL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HYPERLOCAL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HYPERLOCAL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HYPERLOCAL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HYPERLOCAL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HYPERLOCAL_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLMinutes, "HYPERLOCAL_REDIS_CACHE_TTL_MINUTES")
	setInt(&cfg.Redis.StreamMaxLen, "HYPERLOCAL_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "HYPERLOCAL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HYPERLOCAL_S3_REGION")
	setStr(&cfg.S3.Bucket, "HYPERLOCAL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HYPERLOCAL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HYPERLOCAL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HYPERLOCAL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HYPERLOCAL_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setBool(&cfg.Engine.LockOverrideAfterClaims, "HYPERLOCAL_ENGINE_LOCK_OVERRIDE_AFTER_CLAIMS")

	// ── Agent ──
	setDuration(&cfg.Agent.PollInterval, "HYPERLOCAL_AGENT_POLL_INTERVAL")
	setInt(&cfg.Agent.Concurrency, "HYPERLOCAL_AGENT_CONCURRENCY")
	setFloat64(&cfg.Agent.MinConfidence, "HYPERLOCAL_AGENT_MIN_CONFIDENCE")
	setBool(&cfg.Agent.EscalateUnsure, "HYPERLOCAL_AGENT_ESCALATE_UNSURE")
	setDuration(&cfg.Agent.LockTTL, "HYPERLOCAL_AGENT_LOCK_TTL")
	setBool(&cfg.Agent.ArchiveSettlements, "HYPERLOCAL_AGENT_ARCHIVE_SETTLEMENTS")
	setStr(&cfg.Agent.OracleURL, "HYPERLOCAL_AGENT_ORACLE_URL")
	setStr(&cfg.Agent.OracleAPIKey, "HYPERLOCAL_AGENT_ORACLE_API_KEY")
	setDuration(&cfg.Agent.OracleTimeout, "HYPERLOCAL_AGENT_ORACLE_TIMEOUT")

	// ── Resolver ──
	setStr(&cfg.Resolver.PrivateKey, "HYPERLOCAL_RESOLVER_PRIVATE_KEY")
	setStr(&cfg.Resolver.EncryptedKeyPath, "HYPERLOCAL_RESOLVER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Resolver.KeyPassword, "HYPERLOCAL_RESOLVER_KEY_PASSWORD")

	// ── Server ──
	setInt(&cfg.Server.Port, "HYPERLOCAL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "HYPERLOCAL_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "HYPERLOCAL_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "HYPERLOCAL_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.SignatureMaxSkew, "HYPERLOCAL_SERVER_SIGNATURE_MAX_SKEW")
	setStringSlice(&cfg.Server.TrustedProxies, "HYPERLOCAL_SERVER_TRUSTED_PROXIES")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HYPERLOCAL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HYPERLOCAL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HYPERLOCAL_NOTIFY_DISCORD_WEBHOOK_URL")
	setInt(&cfg.Notify.QueueSize, "HYPERLOCAL_NOTIFY_QUEUE_SIZE")
	setStringSlice(&cfg.Notify.Events, "HYPERLOCAL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HYPERLOCAL_MODE")
	setStr(&cfg.LogLevel, "HYPERLOCAL_LOG_LEVEL")
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
