package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/opencourses/catalog-service/internal/cache"
	"github.com/opencourses/catalog-service/internal/config"
	"github.com/opencourses/catalog-service/internal/event"
	handler "github.com/opencourses/catalog-service/internal/handler/http"
	"github.com/opencourses/catalog-service/internal/ingest"
	"github.com/opencourses/catalog-service/internal/repository/migrations"
	"github.com/opencourses/catalog-service/internal/repository/postgres"
	"github.com/opencourses/catalog-service/internal/search"
	esengine "github.com/opencourses/catalog-service/internal/search/elasticsearch"
	"github.com/opencourses/catalog-service/internal/search/memory"
	"github.com/opencourses/catalog-service/internal/service"
	"github.com/opencourses/catalog-service/pkg/database"
	"github.com/opencourses/catalog-service/pkg/health"
	pkgkafka "github.com/opencourses/catalog-service/pkg/kafka"
	"github.com/opencourses/catalog-service/pkg/middleware"
)

// App wires together all dependencies and runs the catalog service.
type App struct {
	cfg         *config.Config
	logger      *slog.Logger
	pool        *pgxpool.Pool
	redisClient *redis.Client
	producer    *pkgkafka.Producer
	resyncer    *service.Resyncer
	httpServer  *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	// PostgreSQL connection pool.
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init postgres pool: %w", err)
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Redis cache. A failed connection is fatal at startup; at runtime the
	// cache layer absorbs outages.
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis client: %w", err)
	}

	// Search engine based on configuration. The elasticsearch engine runs
	// behind a circuit breaker so a flapping cluster fails fast.
	var eng search.Engine
	var esEng *esengine.Engine
	switch cfg.SearchEngine {
	case "elasticsearch":
		esEng, err = esengine.New(cfg.ElasticsearchURL, cfg.ElasticsearchIndex, logger)
		if err != nil {
			pool.Close()
			redisClient.Close()
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		eng = search.NewBreakerEngine(esEng, search.DefaultBreakerConfig("elasticsearch"), logger)
		logger.Info("elasticsearch search engine initialized",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index", cfg.ElasticsearchIndex),
		)
	default:
		eng = memory.New()
		logger.Info("in-memory search engine initialized")
	}

	// Kafka producer for catalog events.
	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	producer := event.NewProducer(kafkaProducer, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Service layer.
	repo := postgres.NewCourseRepository(pool)
	store := cache.NewRedisStore(redisClient)
	invalidator := cache.NewInvalidator(store, logger)

	catalogService := service.NewCatalogService(repo, store, invalidator, eng, producer, logger)
	pipeline := ingest.NewPipeline(repo, eng, invalidator, producer, logger)
	resyncer := service.NewResyncer(repo, eng, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", pool.Ping)
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	if esEng != nil {
		healthHandler.Register("elasticsearch", esEng.Ping)
	}
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
	})

	// HTTP router.
	router := handler.NewRouter(
		catalogService,
		pipeline,
		resyncer,
		healthHandler,
		middleware.HMACValidator([]byte(cfg.JWTSecret)),
		logger,
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		redisClient: redisClient,
		producer:    kafkaProducer,
		resyncer:    resyncer,
		httpServer:  httpServer,
	}, nil
}

// Run starts the HTTP server and the resync loop, blocking until the context
// is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go a.resyncer.Run(ctx, a.cfg.ResyncInterval)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.redisClient.Close()
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
