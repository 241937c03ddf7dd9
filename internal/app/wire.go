package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/nftmarket/internal/blob/s3"
	"github.com/alanyoungcy/nftmarket/internal/broker/kafka"
	"github.com/alanyoungcy/nftmarket/internal/cache/redis"
	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/config"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/genesis"
	"github.com/alanyoungcy/nftmarket/internal/metrics"
	"github.com/alanyoungcy/nftmarket/internal/notify"
	"github.com/alanyoungcy/nftmarket/internal/server/handler"
	"github.com/alanyoungcy/nftmarket/internal/service"
	"github.com/alanyoungcy/nftmarket/internal/state"
	"github.com/alanyoungcy/nftmarket/internal/store/postgres"
)

// Dependencies bundles every concrete component the application modes need.
// Components a mode does not use are left nil. It is constructed by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	Metrics *metrics.Metrics
	// Probes back the readiness endpoint.
	Probes map[string]handler.Pinger

	// Execution (node modes)
	Env         *chain.Env
	Deployments genesis.Deployments

	// Read model (indexer modes)
	OrderIndex domain.OrderIndex
	Cursors    domain.CursorStore
	AuditStore domain.AuditStore

	// Redis
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	Receipts    *redis.ReceiptCache

	// Snapshots (when enabled)
	Snapshots *service.SnapshotService

	// Event export (when enabled)
	Exporter *kafka.Exporter

	// Notifications (nil when no sender is configured)
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func() error
	cleanup := func() {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		if err := errors.Join(errs...); err != nil {
			logger.Warn("wire: cleanup", slog.String("error", err.Error()))
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Metrics: metrics.New(), Probes: map[string]handler.Pinger{}}

	// --- PostgreSQL (read model and audit log) ---
	if cfg.RunsIndexer() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, func() error { pgClient.Close(); return nil })
		deps.Probes["postgres"] = pgClient

		if cfg.Postgres.RunMigrations {
			if err := pgClient.Migrate(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.OrderIndex = postgres.NewOrderIndex(pool)
		deps.Cursors = postgres.NewCursorStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MaxRetries:   cfg.Redis.MaxRetries,
		TLSEnabled:   cfg.Redis.TLSEnabled,
		StreamMaxLen: cfg.Redis.StreamMax,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: redis: %w", err))
	}
	closers = append(closers, redisClient.Close)
	deps.Probes["redis"] = redisClient

	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.Receipts = redis.NewReceiptCache(redisClient)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	if !cfg.RunsNode() {
		return deps, cleanup, nil
	}

	// --- World state ---
	backend, err := state.Open(cfg.Chain.StateBackend, cfg.Chain.StatePath)
	if err != nil {
		return fail(fmt.Errorf("wire: state: %w", err))
	}
	closers = append(closers, backend.Close)

	deps.Env = chain.NewEnv(backend, big.NewInt(cfg.Chain.ChainID), logger)
	genesis.RegisterCodes(deps.Env)

	// --- S3 snapshots ---
	if cfg.Snapshot.Enabled || cfg.Snapshot.RestoreOnBoot {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}

		snapshotter := s3blob.NewSnapshotter(
			s3blob.NewBucket(s3Client, int64(cfg.S3.PartSizeMB)<<20),
			deps.AuditStore,
			cfg.Snapshot.Prefix,
			cfg.Snapshot.Keep,
			logger,
		)
		deps.Snapshots = service.NewSnapshotService(snapshotter, deps.Env, deps.LockManager, deps.Metrics, logger)

		if cfg.Snapshot.RestoreOnBoot {
			if err := restoreOnBoot(ctx, deps, logger); err != nil {
				return fail(err)
			}
		}
	}

	// --- Genesis ---
	gcfg, err := genesisConfig(cfg.Genesis)
	if err != nil {
		return fail(fmt.Errorf("wire: genesis: %w", err))
	}
	deps.Deployments, err = genesis.Ensure(ctx, deps.Env, gcfg, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: genesis: %w", err))
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, logger,
			kafka.NewProducerMetrics(deps.Metrics.Registry()))
		if err != nil {
			return fail(fmt.Errorf("wire: kafka: %w", err))
		}
		var pub kafka.Publisher = producer
		if cfg.Kafka.DLQTopic != "" {
			pub = kafka.NewDLQPublisher(producer, producer, cfg.Kafka.DLQTopic, logger)
		}
		deps.Exporter = kafka.NewExporter(pub, cfg.Kafka.Topic)
		closers = append(closers, deps.Exporter.Close)
	}

	return deps, cleanup, nil
}

// restoreOnBoot loads the newest snapshot into a state that has never
// committed a transaction.
func restoreOnBoot(ctx context.Context, deps *Dependencies, logger *slog.Logger) error {
	height, err := deps.Env.Height()
	if err != nil {
		return fmt.Errorf("wire: state height: %w", err)
	}
	if height > 0 {
		logger.InfoContext(ctx, "state already populated, skipping snapshot restore", slog.Uint64("height", height))
		return nil
	}
	restored, err := deps.Snapshots.RestoreLatest(ctx)
	if err != nil {
		return fmt.Errorf("wire: restore snapshot: %w", err)
	}
	if !restored {
		logger.InfoContext(ctx, "no snapshot to restore")
	}
	return nil
}

func genesisConfig(g config.GenesisConfig) (genesis.Config, error) {
	allocs, err := g.Allocations()
	if err != nil {
		return genesis.Config{}, err
	}
	out := genesis.Config{
		AdminOwner:  common.HexToAddress(g.AdminOwner),
		TokenName:   g.TokenName,
		TokenSymbol: g.TokenSymbol,
	}
	if g.Deployer != "" {
		out.Deployer = common.HexToAddress(g.Deployer)
	}
	for _, a := range allocs {
		out.Accounts = append(out.Accounts, genesis.Account{Address: a.Address, Balance: a.Wei})
	}
	return out, nil
}
