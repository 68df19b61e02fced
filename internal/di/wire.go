//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"MarketEngine/pkg/config"
	"MarketEngine/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideCacheService,
		ProvideLimiter,
		ProvideFetcher,
		ProvideDatabase,
		ProvideClickHouseClient,
		ProvideKafkaConsumer,

		// Sources
		ProvideMarketClient,
		ProvideMirrorSource,
		ProvideClassifierLoader,

		// Repositories
		ProvideStore,
		ProvideArtifactStore,
		ProvideEventPublisher,
		ProvideStatisticsMirror,
		ProvideResolver,

		// Use cases
		ProvideAggregator,
		ProvideBackfiller,
		ProvideLoader,
		ProvideArtifactsHandler,

		// Transport and application
		ProvideOpsHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
