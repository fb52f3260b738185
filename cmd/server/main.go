// Package main - точка входа для HTTP API сервиса PMCraft Hub.
//
// PMCraft Hub - движок прогресса и достижений для платформы обучения
// продакт-менеджменту: XP, уровни, серии активности (streaks) и
// достижения. Сервис принимает события обучения от доверенных
// сервисов-партнёров и отдаёт проекции прогресса фронтенду.
//
// Слои разделены по канону DDD: domain ничего не знает про транспорт
// и хранилища, application оркестрирует команды и запросы,
// infrastructure реализует репозитории и внешние клиенты,
// interface/http отвечает за REST-поверхность.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pmcraft/pmcraft-hub/config"
	"github.com/pmcraft/pmcraft-hub/internal/application/command"
	"github.com/pmcraft/pmcraft-hub/internal/application/query"
	"github.com/pmcraft/pmcraft-hub/internal/domain/achievement"
	"github.com/pmcraft/pmcraft-hub/internal/domain/progress"
	"github.com/pmcraft/pmcraft-hub/internal/infrastructure/external/evaluator"
	"github.com/pmcraft/pmcraft-hub/internal/infrastructure/messaging"
	"github.com/pmcraft/pmcraft-hub/internal/infrastructure/persistence/postgres"
	"github.com/pmcraft/pmcraft-hub/internal/infrastructure/persistence/redis"
	httpserver "github.com/pmcraft/pmcraft-hub/internal/interface/http"
	"github.com/pmcraft/pmcraft-hub/internal/interface/http/handlers"
	"github.com/pmcraft/pmcraft-hub/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// Конфигурация и логи
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting PMCraft Hub",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// PostgreSQL: единственный источник истины для прогресса
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to PostgreSQL...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.PoolSettings{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing PostgreSQL pool...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("PostgreSQL connection established")

	log.Info("applying schema migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		log.Warn("could not read migration status", "error", err)
	} else {
		appliedCount := 0
		for _, m := range status {
			if m.IsApplied {
				appliedCount++
			}
		}
		log.Info("schema migrations applied", "applied", appliedCount, "total", len(status))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis: необязательный слой проекций
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis cache...")
		redisCache, err = redis.NewCache(buildRedisConfig(cfg.Redis))
		if err != nil {
			// Redis только кеширует проекции; без него сервис работает,
			// но каждый запрос статистики идёт в PostgreSQL.
			log.Warn("Redis unavailable, serving projections from PostgreSQL", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis cache ready")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Репозитории и кеши поверх них
	// ─────────────────────────────────────────────────────────────────────────
	progressRepo := postgres.NewUserProgressRepository(dbConn)

	var catalogRepo achievement.CatalogRepository = postgres.NewAchievementCatalogRepository(dbConn)
	var statsCache progress.StatsCache

	if redisCache != nil {
		if cfg.Features.IsEnabledGlobally(config.FeatureStatsCache) {
			statsCache = redis.NewStatsCache(redisCache)
		}
		if cfg.Features.IsEnabledGlobally(config.FeatureCatalogCache) {
			catalogRepo = redis.NewCachedCatalogRepository(
				catalogRepo,
				redis.NewCatalogCache(redisCache),
				cfg.Redis.CatalogCacheTTL,
			)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Шина доменных событий
	// ─────────────────────────────────────────────────────────────────────────
	localBusConfig := messaging.DefaultInMemoryEventBusConfig()
	localBusConfig.Logger = log
	localBusConfig.AsyncMode = true

	var eventBus messaging.EventBus
	if redisCache != nil && cfg.Features.IsEnabledGlobally(config.FeatureRedisEventBus) {
		// Несколько инстансов делят события через Redis Pub/Sub.
		eventBus, err = messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewGoRedisClient(redisCache.Client()),
			LocalBusConfig: localBusConfig,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize redis event bus: %w", err)
		}
		log.Info("using redis event bus")
	} else {
		eventBus = messaging.NewInMemoryEventBus(localBusConfig)
	}
	defer func() {
		log.Info("draining event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// Клиент сервиса оценки (LLM) - только когда он сконфигурирован
	// ─────────────────────────────────────────────────────────────────────────
	var evaluatorClient *evaluator.Client

	scenarioAnalysisEnabled := cfg.Features.IsEnabledGlobally(config.FeatureScenarioAnalysis) &&
		cfg.Evaluator.BaseURL != ""

	if scenarioAnalysisEnabled {
		log.Info("initializing scoring service client...", "base_url", cfg.Evaluator.BaseURL)

		evalConfig := evaluator.DefaultClientConfig(cfg.Evaluator.BaseURL)
		evalConfig.APIKey = cfg.Evaluator.APIKey
		evalConfig.Timeout = cfg.Evaluator.RequestTimeout
		evalConfig.RateLimiterConfig = evaluator.RateLimiterConfig{
			RequestsPerSecond: cfg.Evaluator.RequestsPerSecond,
			BurstSize:         cfg.Evaluator.BurstSize,
			MinInterval:       cfg.Evaluator.MinInterval,
			WaitTimeout:       cfg.Evaluator.WaitTimeout,
		}
		evalConfig.Logger = log
		evalConfig.Debug = cfg.App.Debug

		evaluatorClient = evaluator.NewClient(evalConfig)
	} else {
		log.Info("scenario analysis disabled, scoring service client not created")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Application layer: команды и запросы
	// ─────────────────────────────────────────────────────────────────────────
	createProgressCmd := command.NewCreateInitialProgressHandler(progressRepo, eventBus)
	recordLessonCmd := command.NewRecordLessonEventHandler(progressRepo, catalogRepo, statsCache, eventBus)
	recordScenarioCmd := command.NewRecordScenarioEventHandler(progressRepo, catalogRepo, statsCache, eventBus)
	deleteProgressCmd := command.NewDeleteProgressHandler(progressRepo, statsCache)

	var analyzeScenarioCmd *command.AnalyzeScenarioResponseHandler
	if evaluatorClient != nil {
		analyzeScenarioCmd = command.NewAnalyzeScenarioResponseHandler(
			evaluator.NewScenarioEvaluatorAdapter(evaluatorClient),
			recordScenarioCmd,
		)
	}

	statsQuery := query.NewGetStatsHandler(progressRepo, statsCache, cfg.Redis.StatsCacheTTL)
	achievementsQuery := query.NewGetAchievementsHandler(progressRepo, catalogRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// Health checks: только реально подключённые зависимости
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	if redisCache != nil {
		healthChecker.AddCheck("cache", handlers.NewCacheCheck(redisCache))
	}
	if evaluatorClient != nil {
		healthChecker.AddCheck("evaluator", handlers.NewEvaluatorCheck(evaluatorClient))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.ServiceKeyHeader = cfg.HTTP.ServiceKeyHeader
	httpConfig.ServiceKeyHashes = cfg.HTTP.ServiceKeyHashes

	httpDeps := httpserver.Dependencies{
		CreateInitialProgressHandler:   createProgressCmd,
		RecordLessonEventHandler:       recordLessonCmd,
		RecordScenarioEventHandler:     recordScenarioCmd,
		AnalyzeScenarioResponseHandler: analyzeScenarioCmd,
		DeleteProgressHandler:          deleteProgressCmd,
		GetStatsHandler:                statsQuery,
		GetAchievementsHandler:         achievementsQuery,
		Logger:                         buildHTTPLogger(cfg),
		HealthChecker:                  healthChecker,
	}

	httpServer := httpserver.NewServer(httpConfig, httpDeps)

	errCh := make(chan error, 1)

	go func() {
		log.Info("starting HTTP server", "address", httpServer.Address())
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	log.Info("PMCraft Hub is running",
		"http_address", httpServer.Address(),
		"scenario_analysis", scenarioAnalysisEnabled,
	)

	// Завершаемся по сигналу или по фатальной ошибке сервера
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	// Сначала перестаём принимать запросы; шина, Redis и база закрываются
	// через defer в обратном порядке.
	log.Info("stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		shutdownErr = err
	}

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

	return nil
}

// setupLogger собирает slog: JSON для агрегаторов в production,
// текст для глаз в development. Debug-режим побеждает LOG_LEVEL.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := parseSlogLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// parseSlogLevel переводит строковый уровень из конфигурации в slog.Level.
func parseSlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildHTTPLogger создаёт логгер для HTTP access-логов.
func buildHTTPLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	return logger.New(opts)
}

// buildRedisConfig переводит конфигурацию приложения в конфигурацию Redis-клиента.
func buildRedisConfig(cfg config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	rc.PoolSize = cfg.PoolSize
	rc.MinIdleConns = cfg.MinIdleConns
	rc.DialTimeout = cfg.DialTimeout
	rc.ReadTimeout = cfg.ReadTimeout
	rc.WriteTimeout = cfg.WriteTimeout
	return rc
}
