package di

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"RiskPulse/internal/domain/repository"
	domsvc "RiskPulse/internal/domain/service"
	"RiskPulse/internal/handler/api"
	internalrepo "RiskPulse/internal/repository"
	"RiskPulse/internal/service/ratelimit"
	"RiskPulse/internal/services/analytics"
	"RiskPulse/internal/usecase"
	"RiskPulse/pkg/cache"
	pkgch "RiskPulse/pkg/clickhouse"
	"RiskPulse/pkg/config"
	xhttp "RiskPulse/pkg/http"
	pkgkafka "RiskPulse/pkg/kafka"
	applogger "RiskPulse/pkg/logger"
	"RiskPulse/pkg/metrics"
	"RiskPulse/pkg/server"
)

// ProvideLogger creates the application logger. Data-quality findings are
// batched to the quality topic when Kafka is enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	collect := &applogger.CollectionConfig{
		TimeInterval:   time.Minute,
		CountThreshold: 50,
		Topic:          cfg.Kafka.QualityTopic,
		OnError: func(err error) {
			l.Warn("quality findings publish failed", applogger.Error(err))
		},
	}
	if producer != nil {
		collect.Publisher = producer
	}
	l.AddCollector(collect)
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client for the clickhouse
// backend and nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Backend.Type != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

func sampleConfig(cfg *config.Config) internalrepo.SampleConfig {
	return internalrepo.SampleConfig{
		Loans: cfg.Backend.SampleSize,
		Seed:  cfg.Backend.Seed,
		AsOf:  time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// ProvideEntityStore returns the warehouse reader selected by backend.type.
// With clickhouse.init_schema the star schema is created and seeded with the
// synthetic sample.
func ProvideEntityStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.EntityStore, error) {
	if ch == nil {
		l.Info("using synthetic sample portfolio",
			applogger.Int("loans", cfg.Backend.SampleSize),
			applogger.Int64("seed", cfg.Backend.Seed))
		return internalrepo.NewSampleStore(sampleConfig(cfg)), nil
	}

	store := internalrepo.NewCHEntityStore(ch, cfg.ClickHouse.Database)
	store.SetLogger(l)
	if !cfg.ClickHouse.InitSchema {
		return store, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := ch.InitSchema(ctx, internalrepo.StarSchema(cfg.ClickHouse.Database)); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	if cfg.Backend.SampleSize > 0 {
		if err := store.StoreSnapshot(ctx, internalrepo.GenerateSample(sampleConfig(cfg))); err != nil {
			return nil, fmt.Errorf("clickhouse seed: %w", err)
		}
		l.Info("clickhouse seeded", applogger.Int("loans", cfg.Backend.SampleSize))
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideReportPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.ReportPublisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaReportPublisher(producer, cfg.Kafka.Topic)
}

// ProvideCache returns Redis behind a small in-process layer when Redis is
// enabled, otherwise a process-local cache.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(256)), nil
	}
	remote, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(remote, cache.WithLayeredMemory(64, 30*time.Second)), nil
}

func ProvideReportCache(c cache.Service, cfg *config.Config) repository.ReportCache {
	return internalrepo.NewReportCache(c, cfg.Redis.TTL)
}

func ProvideRegistry(cfg *config.Config) *analytics.Registry {
	return analytics.NewRegistry(analytics.WithAlertThreshold(decimal.NewFromFloat(cfg.Reports.Alerts.DefaultRatePct)))
}

func ProvideAssembler(cfg *config.Config, reg *analytics.Registry, l *applogger.Logger) *usecase.ReportAssembler {
	return usecase.NewReportAssembler(reg,
		usecase.CatalogDefinitions(cfg.Reports.MinGroupSize, cfg.Reports.Custom),
		usecase.WithWorkers(cfg.Reports.Workers),
		usecase.WithReportTimeout(cfg.Reports.Timeout),
		usecase.WithAssemblerLogger(l),
	)
}

func ProvideReportFeed(l *applogger.Logger) *api.ReportFeed {
	return api.NewReportFeed(l)
}

func ProvideReportService(
	store repository.EntityStore,
	asm *usecase.ReportAssembler,
	m repository.Metrics,
	rc repository.ReportCache,
	pub repository.ReportPublisher,
	feed *api.ReportFeed,
	l *applogger.Logger,
) *usecase.ReportService {
	return usecase.NewReportService(store, asm, m,
		usecase.WithCache(rc),
		usecase.WithPublisher(pub),
		usecase.WithNotifier(feed),
		usecase.WithLogger(l),
	)
}

// ProvideRefreshScheduler returns nil when reports.refresh_cron is empty.
func ProvideRefreshScheduler(cfg *config.Config, gen domsvc.ReportGenerator, l *applogger.Logger) (*usecase.RefreshScheduler, error) {
	if cfg.Reports.RefreshCron == "" {
		return nil, nil
	}
	return usecase.NewRefreshScheduler(cfg.Reports.RefreshCron, gen, 10*cfg.Reports.Timeout, l)
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.RefreshTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
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

// ProvideSnapshotHandler refreshes the catalog on warehouse reload events.
func ProvideSnapshotHandler(cfg *config.Config, gen domsvc.ReportGenerator, m repository.Metrics, l *applogger.Logger) pkgkafka.MessageHandler {
	return usecase.NewSnapshotRefreshHandler(cfg.Kafka.RefreshTopic, gen, m, l)
}

func ProvideReportsHandler(
	cfg *config.Config,
	l *applogger.Logger,
	gen domsvc.ReportGenerator,
	store repository.EntityStore,
	feed *api.ReportFeed,
) *api.ReportsEchoHandler {
	return api.NewReportsEchoHandler(l, gen, store, ratelimit.PerMinute(cfg.RateLimit.RefreshPerMinute), feed)
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.ReportsEchoHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	gen domsvc.ReportGenerator,
	scheduler *usecase.RefreshScheduler,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	httpServer *xhttp.Server,
	store repository.EntityStore,
	pub repository.ReportPublisher,
	chClient *pkgch.Client,
	c cache.Service,
	feed *api.ReportFeed,
) *server.App {
	app := server.New(cfg, l, gen, scheduler, consumer, kh, httpServer, store, pub, chClient)
	app.OnShutdown(feed)
	app.OnShutdown(c)
	return app
}
