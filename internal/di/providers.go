package di

import (
	"context"
	"fmt"
	"time"

	"RankPulse/internal/domain/repository"
	"RankPulse/internal/handler/api"
	mid "RankPulse/internal/middleware"
	internalrepo "RankPulse/internal/repository"
	"RankPulse/internal/services/forecast"
	"RankPulse/internal/services/rankstats"
	"RankPulse/internal/usecase"
	"RankPulse/pkg/cache"
	pkgch "RankPulse/pkg/clickhouse"
	"RankPulse/pkg/config"
	xhttp "RankPulse/pkg/http"
	pkgkafka "RankPulse/pkg/kafka"
	applogger "RankPulse/pkg/logger"
	"RankPulse/pkg/metrics"
	"RankPulse/pkg/queue"
	"RankPulse/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := cfg.Logging.Level
	if level == "" {
		level = "info"
	}
	format := cfg.Logging.Format
	if format == "" {
		format = "console"
	}
	output := cfg.Logging.Output
	if output == "" {
		output = "stdout"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: output})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the
// rankings schema exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.SchemaStatements); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideRankingStore creates the ClickHouse-backed ranking store.
func ProvideRankingStore(chClient *pkgch.Client, l *applogger.Logger) repository.RankingStore {
	store := internalrepo.NewCHRankingStore(chClient)
	store.SetLogger(l)
	return store
}

// ProvideRedisClient creates a shared Redis connection, or nil when
// Redis is disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Analytics.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Analytics.Redis.Host, cfg.Analytics.Redis.Port),
		Password: cfg.Analytics.Redis.Password,
		DB:       cfg.Analytics.Redis.DB,
	})
}

// ProvideCacheService creates the analytics response cache. Redis
// backed with an in-process layer when enabled, memory-only otherwise.
func ProvideCacheService(cfg *config.Config) (cache.Service, error) {
	if !cfg.Analytics.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Analytics.Redis.Host),
		cache.WithRedisPort(cfg.Analytics.Redis.Port),
		cache.WithRedisPassword(cfg.Analytics.Redis.Password),
		cache.WithRedisDB(cfg.Analytics.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc), nil
}

// ProvideResolver creates the window resolver.
func ProvideResolver(store repository.RankingStore) *rankstats.Resolver {
	return rankstats.NewResolver(store)
}

// ProvideAggregator creates the windowed aggregator.
func ProvideAggregator(res *rankstats.Resolver) *rankstats.Aggregator {
	return rankstats.NewAggregator(res)
}

// ProvideAttributor creates the feature attributor.
func ProvideAttributor(res *rankstats.Resolver) *rankstats.Attributor {
	return rankstats.NewAttributor(res)
}

// ProvideRegistry creates the filesystem model registry.
func ProvideRegistry(cfg *config.Config, l *applogger.Logger) *forecast.Registry {
	return forecast.NewRegistry(forecast.RegistryConfig{
		TrainedDir:     cfg.Forecast.TrainedDir,
		LegacyDir:      cfg.Forecast.LegacyDir,
		UploadDir:      cfg.Forecast.UploadDir,
		MaxUploadBytes: cfg.Forecast.MaxUploadBytes,
	}, l)
}

// ProvideDatasetBuilder creates the normalization and windowing helper.
func ProvideDatasetBuilder(cfg *config.Config) *forecast.DatasetBuilder {
	return forecast.NewDatasetBuilder(cfg.Forecast.MaxRank)
}

// ProvideTrainer creates the GRU trainer.
func ProvideTrainer(l *applogger.Logger) *forecast.Trainer {
	return forecast.NewTrainer(l)
}

// ProvideAnalyticsUseCase wires the analytics read path.
func ProvideAnalyticsUseCase(
	agg *rankstats.Aggregator,
	attr *rankstats.Attributor,
	res *rankstats.Resolver,
	store repository.RankingStore,
	cacheSvc cache.Service,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.AnalyticsUseCase {
	return usecase.NewAnalyticsUseCase(agg, attr, res, store, cacheSvc, m, l, cfg.Analytics.CacheTTL)
}

// ProvideForecastUseCase wires the inference path.
func ProvideForecastUseCase(
	store repository.RankingStore,
	registry *forecast.Registry,
	builder *forecast.DatasetBuilder,
	agg *rankstats.Aggregator,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.ForecastUseCase {
	return usecase.NewForecastUseCase(store, registry, builder, agg, m, l, cfg.Forecast.ModelCacheTTL)
}

// ProvideTrainUseCase wires the offline training path.
func ProvideTrainUseCase(
	store repository.RankingStore,
	registry *forecast.Registry,
	builder *forecast.DatasetBuilder,
	trainer *forecast.Trainer,
	l *applogger.Logger,
) *usecase.TrainUseCase {
	return usecase.NewTrainUseCase(store, registry, builder, trainer, l)
}

// ProvideTrainQueue creates the Redis-backed training job queue, or
// nil when Redis is disabled.
func ProvideTrainQueue(cfg *config.Config, l *applogger.Logger, rc *redis.Client, trainUC *usecase.TrainUseCase) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    1,
		RetryLimit: 1,
		RetryDelay: time.Minute,
	}, rc, queue.ModeProducerConsumer, queue.WithKeyPrefix("rankpulse:train"))
	q.RegisterJob(usecase.NewTrainJob(trainUC, l))
	return q
}

// ProvideQueueService exposes the train queue to the HTTP layer
// without a typed-nil interface when the queue is absent.
func ProvideQueueService(q *queue.RedisQueue) queue.QueueService {
	if q == nil {
		return nil
	}
	return q
}

// ProvideKafkaProducer creates a Kafka producer, or nil without
// brokers.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil when ingestion
// is not configured.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideIngestPipeline buffers snapshot batches in front of the store.
func ProvideIngestPipeline(store repository.RankingStore, m repository.Metrics, cfg *config.Config) *mid.IngestPipeline {
	opts := []mid.PipelineOption{}
	if cfg.Ingest.MaxBatchesPerSecond > 0 {
		opts = append(opts, mid.WithMaxBatchesPerSecond(cfg.Ingest.MaxBatchesPerSecond))
	}
	if cfg.Ingest.BufferSize > 0 {
		opts = append(opts, mid.WithBufferSize(cfg.Ingest.BufferSize))
	}
	return mid.NewIngestPipeline(store, m, opts...)
}

// ProvideSnapshotsHandler registers the snapshot consumer behind the
// ingest pipeline.
func ProvideSnapshotsHandler(pipeline *mid.IngestPipeline, m repository.Metrics, cfg *config.Config) pkgkafka.MessageHandler {
	return usecase.NewKafkaSnapshotsHandler(cfg.Kafka.Topic, pipeline, m)
}

// ProvideRouter assembles the HTTP surface.
func ProvideRouter(
	l *applogger.Logger,
	analyticsUC *usecase.AnalyticsUseCase,
	forecastUC *usecase.ForecastUseCase,
	trainQueue queue.QueueService,
) xhttp.Handler {
	return api.NewRouter(
		api.NewAnalyticsEchoHandler(l, analyticsUC),
		api.NewForecastEchoHandler(l, forecastUC, trainQueue),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	pipeline *mid.IngestPipeline,
	trainQueue *queue.RedisQueue,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	return server.New(cfg, l, handler, consumer, kh, pipeline, trainQueue, producer, chClient)
}
