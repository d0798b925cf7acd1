//go:build wireinject
// +build wireinject

package di

import (
	"RankPulse/pkg/config"
	"RankPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideCacheService,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideRankingStore,

		// Analytics services
		ProvideResolver,
		ProvideAggregator,
		ProvideAttributor,

		// Forecast services
		ProvideRegistry,
		ProvideDatasetBuilder,
		ProvideTrainer,

		// Use cases
		ProvideAnalyticsUseCase,
		ProvideForecastUseCase,
		ProvideTrainUseCase,
		ProvideTrainQueue,
		ProvideQueueService,

		// Ingestion
		ProvideIngestPipeline,
		ProvideSnapshotsHandler,

		// HTTP surface and application server
		ProvideRouter,
		ProvideApp,
	)
	return &server.App{}, nil
}
