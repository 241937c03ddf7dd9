// Package config defines the top-level configuration for the marketplace
// node and provides validation helpers.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by NFTMARKET_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Genesis  GenesisConfig  `toml:"genesis"`
	Wallet   WalletConfig   `toml:"wallet"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig selects the world-state backend.
type ChainConfig struct {
	ChainID      int64  `toml:"chain_id"`
	StateBackend string `toml:"state_backend"`
	StatePath    string `toml:"state_path"`
}

// GenesisAccount is a funded development account. Balance is in ether.
type GenesisAccount struct {
	Address string `toml:"address"`
	Ether   string `toml:"ether"`
}

// GenesisConfig drives the one-time deployment.
type GenesisConfig struct {
	AdminOwner  string           `toml:"admin_owner"`
	Deployer    string           `toml:"deployer"`
	TokenName   string           `toml:"token_name"`
	TokenSymbol string           `toml:"token_symbol"`
	Accounts    []GenesisAccount `toml:"accounts"`
}

// WalletConfig holds the signing key used by CLI transaction commands.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds read-model database connection parameters.
type PostgresConfig struct {
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

// RedisConfig configures the signal bus, locks, rate limits and receipt
// cache.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	StreamMax  int64  `toml:"stream_max_len"`
}

// S3Config points at the snapshot bucket.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PartSizeMB     int    `toml:"part_size_mb"`
}

// KafkaConfig controls event export.
type KafkaConfig struct {
	Enabled  bool     `toml:"enabled"`
	Brokers  []string `toml:"brokers"`
	Topic    string   `toml:"topic"`
	DLQTopic string   `toml:"dlq_topic"`
	ClientID string   `toml:"client_id"`
}

// SnapshotConfig controls world-state exports to object storage.
type SnapshotConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	Prefix        string   `toml:"prefix"`
	RestoreOnBoot bool     `toml:"restore_on_boot"`
	// Keep is how many snapshots survive pruning; 0 keeps all.
	Keep int `toml:"keep"`
}

// duration lets TOML carry Go duration strings such as "15m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig configures the HTTP and WebSocket API.
type ServerConfig struct {
	Enabled      bool     `toml:"enabled"`
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	AdminToken   string   `toml:"admin_token"`
	TxRateLimit  int      `toml:"tx_rate_limit"`
	TxRateWindow duration `toml:"tx_rate_window"`
	// TrustedProxies are CIDRs or addresses of reverse proxies allowed to
	// set X-Forwarded-For. Empty keys the tx limiter on the socket peer.
	TrustedProxies []string `toml:"trusted_proxies"`
}

// NotifyConfig selects chat alerts for market events. Events lists event
// names, with "Proposal*" style prefixes allowed; empty means all.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults is a local development setup: a full node against Postgres,
// Redis and MinIO on localhost.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:      31337,
			StateBackend: "pebble",
			StatePath:    "data/state",
		},
		Genesis: GenesisConfig{
			TokenName:   "Test NFT",
			TokenSymbol: "TNFT",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "nftmarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			StreamMax:  100_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "nftmarket-snapshots",
			ForcePathStyle: true,
			PartSizeMB:     16,
		},
		Kafka: KafkaConfig{
			Topic:    "nftmarket.events",
			DLQTopic: "nftmarket.events.dlq",
			ClientID: "nftmarket",
		},
		Snapshot: SnapshotConfig{
			Interval: duration{time.Hour},
			Prefix:   "snapshots",
			Keep:     24,
		},
		Server: ServerConfig{
			Enabled:      true,
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			TxRateLimit:  30,
			TxRateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"NFTTransferred", "ProposalAccepted", "Upgraded"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Operating modes.
const (
	ModeNode    = "node"
	ModeIndexer = "indexer"
	ModeFull    = "full"
)

var validModes = map[string]bool{
	ModeNode:    true,
	ModeIndexer: true,
	ModeFull:    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"memory":    true,
	"goleveldb": true,
	"pebble":    true,
}

// RunsNode reports whether the mode executes transactions.
func (c *Config) RunsNode() bool {
	m := strings.ToLower(c.Mode)
	return m == ModeNode || m == ModeFull
}

// RunsIndexer reports whether the mode projects events into Postgres.
func (c *Config) RunsIndexer() bool {
	m := strings.ToLower(c.Mode)
	return m == ModeIndexer || m == ModeFull
}

// Validate reports every problem in c at once, one per line. Sections a
// mode does not use are only checked when enabled.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: node, indexer, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.RunsNode() {
		if c.Chain.ChainID <= 0 {
			errs = append(errs, "chain: chain_id must be positive")
		}
		if !validBackends[c.Chain.StateBackend] {
			errs = append(errs, fmt.Sprintf("chain: unknown state_backend %q (valid: memory, goleveldb, pebble)", c.Chain.StateBackend))
		}
		if c.Chain.StateBackend != "memory" && c.Chain.StatePath == "" {
			errs = append(errs, "chain: state_path must be set for persistent backends")
		}
		if !common.IsHexAddress(c.Genesis.AdminOwner) {
			errs = append(errs, fmt.Sprintf("genesis: admin_owner %q is not an address", c.Genesis.AdminOwner))
		}
		if c.Genesis.Deployer != "" && !common.IsHexAddress(c.Genesis.Deployer) {
			errs = append(errs, fmt.Sprintf("genesis: deployer %q is not an address", c.Genesis.Deployer))
		}
		for i, a := range c.Genesis.Accounts {
			if !common.IsHexAddress(a.Address) {
				errs = append(errs, fmt.Sprintf("genesis: accounts[%d].address %q is not an address", i, a.Address))
			}
			if d, err := decimal.NewFromString(a.Ether); err != nil || d.IsNegative() {
				errs = append(errs, fmt.Sprintf("genesis: accounts[%d].ether %q is not a non-negative amount", i, a.Ether))
			}
		}
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Snapshot.Enabled || c.Snapshot.RestoreOnBoot {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}
	if c.Snapshot.Enabled && c.Snapshot.Interval.Duration <= 0 {
		errs = append(errs, "snapshot: interval must be positive")
	}
	if c.Snapshot.Keep < 0 {
		errs = append(errs, "snapshot: keep must not be negative")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty when enabled")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty when enabled")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.TxRateLimit < 0 {
			errs = append(errs, "server: tx_rate_limit must be >= 0")
		}
		for _, p := range c.Server.TrustedProxies {
			if !validProxy(p) {
				errs = append(errs, fmt.Sprintf("server: trusted_proxies entry %q is not an address or CIDR", p))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validProxy(s string) bool {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
