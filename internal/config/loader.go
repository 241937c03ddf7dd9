package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds a Config from the defaults, the TOML file at path (skipped
// when path is empty) and NFTMARKET_* environment variables, in that order
// of precedence. A .env file in the working directory is read first if
// present. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	for _, b := range envBindings(&cfg) {
		v, ok := os.LookupEnv(b.key)
		if !ok || v == "" {
			continue
		}
		// Unparseable values leave the field as it was.
		_ = b.set(v)
	}
	return &cfg, nil
}

// binding maps one environment variable onto a Config field.
type binding struct {
	key string
	set func(string) error
}

func bind[T any](key string, dst *T, parse func(string) (T, error)) binding {
	return binding{key: key, set: func(v string) error {
		x, err := parse(v)
		if err != nil {
			return err
		}
		*dst = x
		return nil
	}}
}

func envBindings(c *Config) []binding {
	return []binding{
		bind("NFTMARKET_MODE", &c.Mode, asString),
		bind("NFTMARKET_LOG_LEVEL", &c.LogLevel, asString),

		bind("NFTMARKET_CHAIN_ID", &c.Chain.ChainID, asInt64),
		bind("NFTMARKET_CHAIN_STATE_BACKEND", &c.Chain.StateBackend, asString),
		bind("NFTMARKET_CHAIN_STATE_PATH", &c.Chain.StatePath, asString),

		bind("NFTMARKET_GENESIS_ADMIN_OWNER", &c.Genesis.AdminOwner, asString),
		bind("NFTMARKET_GENESIS_DEPLOYER", &c.Genesis.Deployer, asString),

		bind("NFTMARKET_WALLET_PRIVATE_KEY", &c.Wallet.PrivateKey, asString),
		bind("NFTMARKET_WALLET_ENCRYPTED_KEY_PATH", &c.Wallet.EncryptedKeyPath, asString),
		bind("NFTMARKET_WALLET_KEY_PASSWORD", &c.Wallet.KeyPassword, asString),

		// DATABASE_URL is the conventional name; the prefixed key wins.
		bind("DATABASE_URL", &c.Postgres.DSN, asString),
		bind("NFTMARKET_POSTGRES_DSN", &c.Postgres.DSN, asString),
		bind("NFTMARKET_POSTGRES_HOST", &c.Postgres.Host, asString),
		bind("NFTMARKET_POSTGRES_PORT", &c.Postgres.Port, strconv.Atoi),
		bind("NFTMARKET_POSTGRES_DATABASE", &c.Postgres.Database, asString),
		bind("NFTMARKET_POSTGRES_USER", &c.Postgres.User, asString),
		bind("NFTMARKET_POSTGRES_PASSWORD", &c.Postgres.Password, asString),
		bind("NFTMARKET_POSTGRES_SSL_MODE", &c.Postgres.SSLMode, asString),
		bind("NFTMARKET_POSTGRES_POOL_MAX_CONNS", &c.Postgres.PoolMaxConns, strconv.Atoi),
		bind("NFTMARKET_POSTGRES_POOL_MIN_CONNS", &c.Postgres.PoolMinConns, strconv.Atoi),
		bind("NFTMARKET_POSTGRES_RUN_MIGRATIONS", &c.Postgres.RunMigrations, strconv.ParseBool),

		bind("NFTMARKET_REDIS_ADDR", &c.Redis.Addr, asString),
		bind("NFTMARKET_REDIS_PASSWORD", &c.Redis.Password, asString),
		bind("NFTMARKET_REDIS_DB", &c.Redis.DB, strconv.Atoi),
		bind("NFTMARKET_REDIS_POOL_SIZE", &c.Redis.PoolSize, strconv.Atoi),
		bind("NFTMARKET_REDIS_MAX_RETRIES", &c.Redis.MaxRetries, strconv.Atoi),
		bind("NFTMARKET_REDIS_TLS_ENABLED", &c.Redis.TLSEnabled, strconv.ParseBool),
		bind("NFTMARKET_REDIS_STREAM_MAX_LEN", &c.Redis.StreamMax, asInt64),

		bind("NFTMARKET_S3_ENDPOINT", &c.S3.Endpoint, asString),
		bind("NFTMARKET_S3_REGION", &c.S3.Region, asString),
		bind("NFTMARKET_S3_BUCKET", &c.S3.Bucket, asString),
		bind("NFTMARKET_S3_ACCESS_KEY", &c.S3.AccessKey, asString),
		bind("NFTMARKET_S3_SECRET_KEY", &c.S3.SecretKey, asString),
		bind("NFTMARKET_S3_USE_SSL", &c.S3.UseSSL, strconv.ParseBool),
		bind("NFTMARKET_S3_FORCE_PATH_STYLE", &c.S3.ForcePathStyle, strconv.ParseBool),
		bind("NFTMARKET_S3_PART_SIZE_MB", &c.S3.PartSizeMB, strconv.Atoi),

		bind("NFTMARKET_KAFKA_ENABLED", &c.Kafka.Enabled, strconv.ParseBool),
		bind("NFTMARKET_KAFKA_BROKERS", &c.Kafka.Brokers, asList),
		bind("NFTMARKET_KAFKA_TOPIC", &c.Kafka.Topic, asString),
		bind("NFTMARKET_KAFKA_DLQ_TOPIC", &c.Kafka.DLQTopic, asString),

		bind("NFTMARKET_SNAPSHOT_ENABLED", &c.Snapshot.Enabled, strconv.ParseBool),
		bind("NFTMARKET_SNAPSHOT_INTERVAL", &c.Snapshot.Interval, asDuration),
		bind("NFTMARKET_SNAPSHOT_PREFIX", &c.Snapshot.Prefix, asString),
		bind("NFTMARKET_SNAPSHOT_RESTORE_ON_BOOT", &c.Snapshot.RestoreOnBoot, strconv.ParseBool),
		bind("NFTMARKET_SNAPSHOT_KEEP", &c.Snapshot.Keep, strconv.Atoi),

		bind("NFTMARKET_SERVER_ENABLED", &c.Server.Enabled, strconv.ParseBool),
		bind("NFTMARKET_SERVER_PORT", &c.Server.Port, strconv.Atoi),
		bind("NFTMARKET_SERVER_CORS_ORIGINS", &c.Server.CORSOrigins, asList),
		bind("NFTMARKET_SERVER_ADMIN_TOKEN", &c.Server.AdminToken, asString),
		bind("NFTMARKET_SERVER_TX_RATE_LIMIT", &c.Server.TxRateLimit, strconv.Atoi),
		bind("NFTMARKET_SERVER_TX_RATE_WINDOW", &c.Server.TxRateWindow, asDuration),
		bind("NFTMARKET_SERVER_TRUSTED_PROXIES", &c.Server.TrustedProxies, asList),

		bind("NFTMARKET_NOTIFY_TELEGRAM_TOKEN", &c.Notify.TelegramToken, asString),
		bind("NFTMARKET_NOTIFY_TELEGRAM_CHAT_ID", &c.Notify.TelegramChatID, asString),
		bind("NFTMARKET_NOTIFY_DISCORD_WEBHOOK_URL", &c.Notify.DiscordWebhookURL, asString),
		bind("NFTMARKET_NOTIFY_EVENTS", &c.Notify.Events, asList),
	}
}

func asString(v string) (string, error) { return v, nil }

func asInt64(v string) (int64, error) { return strconv.ParseInt(v, 10, 64) }

func asDuration(v string) (duration, error) {
	d, err := time.ParseDuration(v)
	return duration{d}, err
}

// asList splits a comma-separated value, dropping blanks. An all-blank
// value is rejected so the field keeps its previous contents.
func asList(v string) ([]string, error) {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty list %q", v)
	}
	return out, nil
}
