package di

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	domrepo "MarketEngine/internal/domain/repository"
	"MarketEngine/internal/handler/api"
	"MarketEngine/internal/repository"
	"MarketEngine/internal/resolver"
	icache "MarketEngine/internal/service/cache"
	"MarketEngine/internal/service/fetch"
	"MarketEngine/internal/service/manifest"
	"MarketEngine/internal/service/market"
	"MarketEngine/internal/service/mirror"
	"MarketEngine/internal/service/ratelimit"
	"MarketEngine/internal/usecase"
	pkgcache "MarketEngine/pkg/cache"
	pkgch "MarketEngine/pkg/clickhouse"
	"MarketEngine/pkg/config"
	"MarketEngine/pkg/database"
	xhttp "MarketEngine/pkg/http"
	pkgkafka "MarketEngine/pkg/kafka"
	xlogger "MarketEngine/pkg/logger"
	"MarketEngine/pkg/metrics"
	"MarketEngine/pkg/server"
)

const (
	serviceName     = "marketengine"
	startupDeadline = 30 * time.Second
)

// ProvideLogger creates the application logger. With Kafka and the
// collector enabled, warnings and errors are also folded and shipped to the
// logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*xlogger.Logger, error) {
	logger, err := xlogger.New(&xlogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, err
	}
	if producer != nil && cfg.Kafka.Collector.Enabled {
		logger.AddCollector(&xlogger.CollectionConfig{
			TimeInterval:   cfg.Kafka.Collector.Interval,
			CountThreshold: cfg.Kafka.Collector.CountThreshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Service:        serviceName,
			Publisher:      producer,
		})
	}
	return logger, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideCacheService creates the response cache backend.
func ProvideCacheService(cfg *config.Config) (pkgcache.Service, error) {
	if cfg.Cache.Backend == "memory" {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Cache.MemorySize)), nil
	}
	redisCache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Cache.Redis.Host),
		pkgcache.WithRedisPort(cfg.Cache.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
		pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	if cfg.Cache.Backend == "redis" {
		return redisCache, nil
	}
	return pkgcache.NewLayeredCache(redisCache,
		pkgcache.WithLayeredMemorySize(cfg.Cache.MemorySize),
		pkgcache.WithLayeredMemoryTTL(cfg.Cache.MemoryTTL),
	), nil
}

// ProvideLimiter creates the limiter shared by every outbound request.
func ProvideLimiter(cfg *config.Config) domrepo.Limiter {
	if cfg.RateLimit.Mode == "smooth" {
		return ratelimit.NewSmooth(cfg.RateLimit.Capacity, cfg.RateLimit.Period)
	}
	return ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.Period)
}

// ProvideFetcher composes cache, limiter and retry policy over the HTTP client.
func ProvideFetcher(cfg *config.Config, svc pkgcache.Service, limiter domrepo.Limiter, m domrepo.Metrics, logger *xlogger.Logger) domrepo.Fetcher {
	backoff := fetch.FixedBackoff(cfg.Fetch.Backoff)
	if cfg.Fetch.BackoffKind == "linear" {
		backoff = fetch.LinearBackoff(cfg.Fetch.Backoff)
	}
	client := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Fetch.Timeout),
		xhttp.WithUserAgent(cfg.Fetch.UserAgent),
	)
	return fetch.New(client,
		fetch.WithCache(icache.NewFetchCache(svc)),
		fetch.WithLimiter(limiter),
		fetch.WithRetryPolicy(fetch.RetryPolicy{
			MaxAttempts: cfg.Fetch.MaxAttempts,
			Backoff:     backoff,
			Retryable:   fetch.IsRetryable,
		}),
		fetch.WithTTL(cfg.Fetch.CacheTTL),
		fetch.WithLogger(logger.With("component", "fetch")),
		fetch.WithMetrics(m),
	)
}

// ProvideMarketClient creates the marketplace API client.
func ProvideMarketClient(cfg *config.Config, fetcher domrepo.Fetcher) *market.Client {
	return market.NewClient(fetcher, cfg.Market.BaseURL, cfg.Market.Platform, cfg.Market.Language)
}

// ProvideMirrorSource returns the community mirror, or nil when disabled.
func ProvideMirrorSource(cfg *config.Config, fetcher domrepo.Fetcher) usecase.MirrorSource {
	if !cfg.Mirror.Enabled {
		return nil
	}
	return mirror.NewClient(fetcher, cfg.Mirror.BaseURL)
}

// ProvideClassifierLoader returns the manifest classifier, or nil when
// classification is disabled.
func ProvideClassifierLoader(cfg *config.Config, fetcher domrepo.Fetcher, logger *xlogger.Logger) usecase.ClassifierLoader {
	if !cfg.Manifest.Enabled {
		return nil
	}
	client := manifest.NewClient(fetcher, cfg.Manifest.IndexURL, cfg.Manifest.BaseURL, logger.With("component", "manifest"))
	return usecase.NewManifestClassifierLoader(client)
}

// ProvideDatabase opens the relational store.
func ProvideDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(
		database.WithDriver(cfg.Store.Driver),
		database.WithDSN(cfg.Store.DSN),
		database.WithPool(cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns, cfg.Store.ConnMaxLifetime),
		database.WithQueryLog(cfg.Store.LogQueries),
	)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return db, nil
}

// ProvideStore migrates the schema and seeds the default word aliases.
func ProvideStore(cfg *config.Config, db *gorm.DB) (*repository.GormStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupDeadline)
	defer cancel()

	store := repository.NewGormStore(db, repository.WithBatchSize(cfg.Store.BatchSize))
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	if err := store.SeedWordAliases(ctx, resolver.DefaultWordAliases); err != nil {
		return nil, fmt.Errorf("seed word aliases: %w", err)
	}
	return store, nil
}

// ProvideArtifactStore opens the artifact directory of the configured platform.
func ProvideArtifactStore(cfg *config.Config) (*repository.FileArtifactStore, error) {
	return repository.NewFileArtifactStore(cfg.Output.Dir, cfg.Market.Platform)
}

// ProvideResolver creates the identity resolver loaded from the store.
func ProvideResolver(cfg *config.Config, store *repository.GormStore, logger *xlogger.Logger) (*resolver.Resolver, error) {
	res, err := resolver.New(store, cfg.Resolver.LRUSize,
		resolver.WithThreshold(cfg.Resolver.Threshold),
		resolver.WithLogger(logger.With("component", "resolver")),
	)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupDeadline)
	defer cancel()
	if err := res.Reload(ctx); err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	return res, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts, cfg.Kafka.Compression),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher announces on Kafka, or drops events when Kafka is
// disabled.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.EventPublisher {
	if producer == nil {
		return repository.NopEventPublisher{}
	}
	return repository.NewKafkaEventPublisher(producer, cfg.Kafka.Topics.Artifacts, cfg.Kafka.Topics.Loaded)
}

// ProvideKafkaConsumer creates the follow-mode consumer, or nil when Kafka
// is disabled.
func ProvideKafkaConsumer(cfg *config.Config, logger *xlogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.OffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(logger.With("component", "kafka_consumer")),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TracingHook(),
		pkgkafka.FailureLogHook(logger.With("component", "kafka_consumer")),
	))
	return consumer, nil
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// mirror is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.QueryTimeout),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert),
		pkgch.WithMaxConns(cfg.ClickHouse.MaxConns),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideStatisticsMirror initializes the ClickHouse schema and returns the
// mirror, or nil when ClickHouse is disabled.
func ProvideStatisticsMirror(cfg *config.Config, client *pkgch.Client, logger *xlogger.Logger) (domrepo.StatisticsMirror, error) {
	if client == nil {
		return nil, nil
	}
	m := repository.NewClickHouseMirror(client, repository.MirrorOptions{
		Table:     cfg.ClickHouse.Table,
		BatchSize: cfg.ClickHouse.BatchSize,
		Retention: cfg.ClickHouse.Retention,
	}, logger.With("component", "clickhouse_mirror"))

	ctx, cancel := context.WithTimeout(context.Background(), startupDeadline)
	defer cancel()
	if err := m.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return m, nil
}

// ProvideAggregator creates the aggregation use case.
func ProvideAggregator(
	cfg *config.Config,
	marketClient *market.Client,
	mirrorSource usecase.MirrorSource,
	res *resolver.Resolver,
	artifacts *repository.FileArtifactStore,
	events domrepo.EventPublisher,
	m domrepo.Metrics,
	logger *xlogger.Logger,
) *usecase.Aggregator {
	return usecase.NewAggregator(marketClient, mirrorSource, res, artifacts, events, m, logger, cfg.Resolver.TranslationFile)
}

// ProvideBackfiller creates the mirror backfill, or nil without a mirror.
func ProvideBackfiller(
	cfg *config.Config,
	mirrorSource usecase.MirrorSource,
	res *resolver.Resolver,
	artifacts *repository.FileArtifactStore,
	events domrepo.EventPublisher,
	m domrepo.Metrics,
	logger *xlogger.Logger,
) *usecase.Backfiller {
	if mirrorSource == nil {
		return nil
	}
	return usecase.NewBackfiller(mirrorSource, res, artifacts, events, m, logger, cfg.Market.Platform, cfg.Resolver.TranslationFile)
}

// ProvideLoader creates the persistence use case.
func ProvideLoader(
	cfg *config.Config,
	store *repository.GormStore,
	artifacts *repository.FileArtifactStore,
	res *resolver.Resolver,
	classifier usecase.ClassifierLoader,
	statsMirror domrepo.StatisticsMirror,
	events domrepo.EventPublisher,
	m domrepo.Metrics,
	logger *xlogger.Logger,
) *usecase.Loader {
	return usecase.NewLoader(store, artifacts, res, classifier, statsMirror, events, m, logger, usecase.CommitMode(cfg.Store.CommitMode))
}

// ProvideArtifactsHandler creates the follow-mode message handler.
func ProvideArtifactsHandler(cfg *config.Config, loader *usecase.Loader, m domrepo.Metrics, logger *xlogger.Logger) *usecase.ArtifactsHandler {
	return usecase.NewArtifactsHandler(cfg.Kafka.Topics.Artifacts, cfg.Market.Platform, loader, m, logger)
}

// ProvideOpsHandler creates the operator HTTP routes.
func ProvideOpsHandler(logger *xlogger.Logger, res *resolver.Resolver, store *repository.GormStore) xhttp.Handler {
	return api.NewOpsHandler(logger, res, store)
}

// ProvideApp creates the application server and hands it every resource it
// must release.
func ProvideApp(
	cfg *config.Config,
	logger *xlogger.Logger,
	aggregator *usecase.Aggregator,
	backfiller *usecase.Backfiller,
	loader *usecase.Loader,
	follower *usecase.ArtifactsHandler,
	consumer *pkgkafka.Consumer,
	ops xhttp.Handler,
	db *gorm.DB,
	cacheSvc pkgcache.Service,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	events domrepo.EventPublisher,
) *server.App {
	app := server.New(cfg, logger, aggregator, backfiller, loader, follower, consumer, ops)

	app.AddCloser(server.Closer{Name: "database", Close: func() error { return database.Close(db) }})
	app.AddHealthCheck("store", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	app.AddCloser(server.CloserOf("cache", cacheSvc))
	if p, ok := cacheSvc.(pkgcache.Pinger); ok {
		app.AddHealthCheck("cache", p.Ping)
	}
	if chClient != nil {
		app.AddCloser(server.CloserOf("clickhouse", chClient))
		app.AddHealthCheck("clickhouse", chClient.Health)
	}
	// events owns the producer; the collector flushes through it first
	app.AddCloser(server.CloserOf("events", events))
	if producer != nil {
		app.AddCloser(server.Closer{Name: "log_collector", Close: func() error {
			logger.RemoveCollector()
			return nil
		}})
	}
	return app
}
