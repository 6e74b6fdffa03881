package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hession/mentorjournal/internal/background"
	"github.com/hession/mentorjournal/internal/config"
	"github.com/hession/mentorjournal/internal/kv"
	"github.com/hession/mentorjournal/internal/live"
	"github.com/hession/mentorjournal/internal/llm"
	"github.com/hession/mentorjournal/internal/logger"
	"github.com/hession/mentorjournal/internal/mentor"
	"github.com/hession/mentorjournal/internal/metrics"
	"github.com/hession/mentorjournal/internal/orchestrator"
)

// app holds the wired components shared by every command
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   *kv.Store
	svc     *orchestrator.Service
	hub     *live.Hub

	closeLog func() error
}

// newApp wires config, logging, storage, the model and the orchestrator
func newApp(ctx context.Context, cfg *config.Config, console bool) (*app, error) {
	level, err := config.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logDir := cfg.Log.Dir
	if logDir == "" {
		logDir = config.LogDir()
	}
	log, closeLog, err := logger.New(logger.Config{
		LogDir:  logDir,
		Level:   level,
		MaxDays: cfg.Log.MaxDays,
		Console: console && cfg.Log.Console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	slog.SetDefault(log)
	logConfigInfo(log, cfg)

	a := &app{cfg: cfg, logger: log, closeLog: closeLog, metrics: metrics.New()}

	a.store, err = kv.Open(ctx, cfg.Storage, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	catalog := mentor.DefaultCatalog()
	if cfg.Mentors.CatalogPath != "" {
		if catalog, err = mentor.LoadCatalog(cfg.Mentors.CatalogPath); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load mentor catalog: %w", err)
		}
	}

	prompts, err := config.LoadPromptConfig()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load prompt config: %w", err)
	}

	provider, err := llm.NewProvider(cfg.Model)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize model provider: %w", err)
	}
	router := llm.NewRouter(provider, cfg.Model, llm.WithObserver(a.metrics), llm.WithLogger(log))

	registry := mentor.NewRegistry(catalog, a.store)
	a.svc = orchestrator.New(orchestrator.Options{
		Store:     a.store,
		Engine:    mentor.NewEngine(registry, router, prompts, log),
		Completer: router,
		Prompts:   prompts,
		Tasks:     background.NewGroup(log, a.metrics),
		Logger:    log,
	})
	a.hub = live.NewHub(a.svc, live.WithObserver(a.metrics), live.WithLogger(log))
	return a, nil
}

// Close waits for background work, then closes storage and the log file
func (a *app) Close() error {
	var errs []error
	if a.svc != nil {
		if err := a.svc.Wait(); err != nil {
			a.logger.Warn("background work failed", "error", err)
		}
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.closeLog != nil {
		errs = append(errs, a.closeLog())
	}
	return errors.Join(errs...)
}

// logConfigInfo logs the effective configuration without secrets
func logConfigInfo(log *slog.Logger, cfg *config.Config) {
	log.Info("configuration loaded",
		"provider", cfg.Model.Provider,
		"smart_model", cfg.Model.SmartModel,
		"fast_model", cfg.Model.FastModel,
		"api_key_set", cfg.Model.APIKey != "",
		"storage", cfg.Storage.Backend,
		"cache_ttl_seconds", cfg.Storage.CacheTTLSeconds,
	)
}
