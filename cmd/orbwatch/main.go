package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/orbital/orbwatch/internal/api"
	"github.com/orbital/orbwatch/internal/collab"
	"github.com/orbital/orbwatch/internal/cycle"
	"github.com/orbital/orbwatch/internal/elements"
	"github.com/orbital/orbwatch/internal/propagation"
	sig "github.com/orbital/orbwatch/internal/signal"
	"github.com/orbital/orbwatch/internal/source"
	"github.com/orbital/orbwatch/internal/view"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("ORBWATCH_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cycleCfg := loadCycleConfig(logger)

	elementStore, signalStore, reader, err := buildStores(ctx, logger)
	if err != nil {
		logger.Error("store setup failed", "error", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if redisAddr := os.Getenv("ORBWATCH_REDIS_ADDR"); redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		logger.Info("redis view mirror enabled", "addr", redisAddr)
	}
	tracker := view.NewTracker(rdb, logger)

	adapters := buildAdapters(logger)

	engine, err := sig.NewEngine(signalStore, sig.Registry(), logger)
	if err != nil {
		logger.Error("engine setup failed", "error", err)
		os.Exit(1)
	}

	workers := runtime.NumCPU()
	if v := os.Getenv("ORBWATCH_PROP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORBWATCH_PROP_WORKERS value, using default", "value", v, "default", workers)
		} else {
			workers = n
		}
	}
	pool := propagation.NewPool(workers, logger)

	runner := cycle.NewRunner(cycleCfg, adapters, elementStore, reader, engine, tracker, pool, logger)
	go runner.Start(ctx)

	srv := api.NewServer(addr, logger, tracker, signalStore, runner)

	go func() {
		logger.Info("starting server", "addr", addr, "objects", len(cycleCfg.CatalogIDs))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("stopped")
}

// buildStores wires PostgreSQL when ORBWATCH_DATABASE_URL is set, otherwise
// falls back to the in-memory implementations (useful for local runs).
func buildStores(ctx context.Context, logger *slog.Logger) (elements.Store, sig.Store, collab.Reader, error) {
	dbURL := os.Getenv("ORBWATCH_DATABASE_URL")
	if dbURL == "" {
		logger.Warn("ORBWATCH_DATABASE_URL not set, using in-memory stores")
		return elements.NewMemory(), sig.NewMemory(), collab.NewMemory(), nil
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, nil, nil, err
	}

	elementStore := elements.NewPostgres(pool)
	if err := elementStore.EnsureSchema(ctx); err != nil {
		return nil, nil, nil, err
	}
	signalStore := sig.NewPostgres(pool)
	if err := signalStore.EnsureSchema(ctx); err != nil {
		return nil, nil, nil, err
	}

	logger.Info("postgres stores ready")
	return elementStore, signalStore, collab.NewPostgres(pool), nil
}

func buildAdapters(logger *slog.Logger) []source.Adapter {
	celestrak := source.NewCelestrak(source.CelestrakConfig{
		BaseURL:   os.Getenv("ORBWATCH_CELESTRAK_URL"),
		RateLimit: envDuration(logger, "ORBWATCH_CELESTRAK_RATE_LIMIT", 2*time.Second),
	}, logger)

	spacetrack := source.NewSpaceTrack(source.SpaceTrackConfig{
		BaseURL:   os.Getenv("ORBWATCH_SPACETRACK_URL"),
		Identity:  os.Getenv("ORBWATCH_SPACETRACK_IDENTITY"),
		Password:  os.Getenv("ORBWATCH_SPACETRACK_PASSWORD"),
		RateLimit: envDuration(logger, "ORBWATCH_SPACETRACK_RATE_LIMIT", 12*time.Second),
	}, logger)

	return []source.Adapter{celestrak, spacetrack}
}

func loadCycleConfig(logger *slog.Logger) cycle.Config {
	cfg := cycle.Config{
		IngestInterval:     envDuration(logger, "ORBWATCH_INGEST_INTERVAL", 4*time.Hour),
		ReconcileInterval:  envDuration(logger, "ORBWATCH_RECONCILE_INTERVAL", 15*time.Minute),
		SynthesizeInterval: envDuration(logger, "ORBWATCH_SYNTHESIZE_INTERVAL", 6*time.Hour),
		IngestBudget:       envDuration(logger, "ORBWATCH_INGEST_BUDGET", 30*time.Minute),
		ReconcileBudget:    envDuration(logger, "ORBWATCH_RECONCILE_BUDGET", 5*time.Minute),
		SynthesizeBudget:   envDuration(logger, "ORBWATCH_SYNTHESIZE_BUDGET", 10*time.Minute),
		HistoryLimit:       120,
		CollabLookback:     90 * 24 * time.Hour,
		MarketSymbol:       os.Getenv("ORBWATCH_MARKET_SYMBOL"),
		MarketBarLimit:     60,
	}

	if v := os.Getenv("ORBWATCH_CATALOG_IDS"); v != "" {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.Atoi(part)
			if err != nil {
				logger.Warn("invalid catalog id ignored", "value", part)
				continue
			}
			cfg.CatalogIDs = append(cfg.CatalogIDs, id)
		}
	}
	if len(cfg.CatalogIDs) == 0 {
		logger.Warn("ORBWATCH_CATALOG_IDS not set, nothing will be tracked")
	}

	if v := os.Getenv("ORBWATCH_HISTORY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORBWATCH_HISTORY_LIMIT value, using default", "value", v, "default", cfg.HistoryLimit)
		} else {
			cfg.HistoryLimit = n
		}
	}

	logger.Info("cycle config",
		"catalog_ids", len(cfg.CatalogIDs),
		"ingest_interval", cfg.IngestInterval.String(),
		"reconcile_interval", cfg.ReconcileInterval.String(),
		"synthesize_interval", cfg.SynthesizeInterval.String(),
	)

	return cfg
}

func envDuration(logger *slog.Logger, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.Warn("invalid duration value, using default", "key", key, "value", v, "default", def.String())
		return def
	}
	return d
}
