// Package main - фоновый процесс (worker) PMCraft Hub.
//
// Единственная обязанность воркера - периодические задачи поверх уже
// сохранённого прогресса. Сейчас это вечерний обход серий: пользователи,
// которые сегодня не занимались и к полуночи UTC потеряют серию, получают
// событие streak_at_risk, из которого нотификационный сервис делает
// пуш-напоминание.
//
// Воркер не принимает HTTP-запросов и никогда не меняет прогресс: он
// только читает состояние и публикует события.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pmcraft/pmcraft-hub/config"
	"github.com/pmcraft/pmcraft-hub/internal/infrastructure/messaging"
	"github.com/pmcraft/pmcraft-hub/internal/infrastructure/persistence/postgres"
	"github.com/pmcraft/pmcraft-hub/internal/infrastructure/scheduler"
	"github.com/pmcraft/pmcraft-hub/internal/infrastructure/scheduler/jobs"
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
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newWorkerLogger(cfg)
	log.Info("starting PMCraft Hub Worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	if !cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled, nothing for the worker to do")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// База данных. Воркер прогоняет миграции сам: он может стартовать
	// раньше API-сервера на свежей базе.
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

	if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	progressRepo := postgres.NewUserProgressRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// Шина событий. Воркеру достаточно локальной шины: его события
	// потребляют подписчики в этом же процессе.
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.AsyncMode = true
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("draining event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// Планировщик и задачи.
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := buildScheduler(cfg, log, progressRepo, eventBus)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("PMCraft Hub Worker is running", "jobs", len(sched.ListJobs()))

	// ─────────────────────────────────────────────────────────────────────────
	// Завершение по сигналу.
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", "error", err)
	}

	// Шина и база закрываются через defer.
	log.Info("shutdown completed successfully")
	return nil
}

// buildScheduler регистрирует включённые флагами задачи.
func buildScheduler(cfg *config.Config, log *slog.Logger, progressRepo *postgres.UserProgressRepository, eventBus messaging.EventBus) (*scheduler.Scheduler, error) {
	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = log
	sched := scheduler.NewScheduler(schedConfig)

	if !cfg.Features.IsEnabledGlobally(config.FeatureStreakSweep) {
		log.Info("streak sweep disabled by feature flag")
		return sched, nil
	}

	sweepJob := jobs.NewStreakSweepJob(progressRepo, eventBus, log, jobs.StreakSweepConfig{
		MaxUsers: cfg.Scheduler.StreakSweepMaxUsers,
		Timeout:  cfg.Scheduler.JobTimeout,
	})

	schedule, err := scheduler.ParseCronExpression(cfg.Scheduler.StreakSweepCron)
	if err != nil {
		return nil, fmt.Errorf("invalid streak sweep cron %q: %w", cfg.Scheduler.StreakSweepCron, err)
	}
	if err := sched.Register(sweepJob, schedule); err != nil {
		return nil, fmt.Errorf("failed to register streak sweep job: %w", err)
	}
	log.Info("registered streak sweep job",
		"cron", cfg.Scheduler.StreakSweepCron,
		"max_users", cfg.Scheduler.StreakSweepMaxUsers,
	)
	return sched, nil
}

// newWorkerLogger собирает slog в том же виде, что и API-сервер: JSON в
// production, текст в development.
func newWorkerLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.App.Debug || cfg.Observability.LogLevel == "debug" {
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
