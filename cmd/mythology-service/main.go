// Command mythology-service runs the bestiary statistics and classification service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mythologyapi "github.com/aimd54/lorekeeper/internal/api/mythology"
	"github.com/aimd54/lorekeeper/internal/cache"
	loreclient "github.com/aimd54/lorekeeper/internal/client/lore"
	"github.com/aimd54/lorekeeper/internal/config"
	"github.com/aimd54/lorekeeper/internal/observability"
	"github.com/aimd54/lorekeeper/internal/server"
	"github.com/aimd54/lorekeeper/internal/service/classification"
	"github.com/aimd54/lorekeeper/internal/service/mythology"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"), config.ServiceMythology)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log = log.Named(string(cfg.Service))

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Mythology service stopped")
	}
	log.Info().Msg("Mythology service stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(cfg.Tracing, cfg.Service, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	lore := loreclient.NewClient(cfg.Mythology.LoreURL, cfg.Mythology.LoreTimeout, log.Named("lore-client"))

	var statsCache mythology.StatsCache
	if cfg.Database.Redis.Enabled && cfg.Mythology.StatsCacheTTL > 0 {
		store, err := cache.New(ctx, &cfg.Database.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, stats cache disabled")
		} else {
			defer func() { _ = store.Close() }()
			statsCache = store
		}
	}

	stats := mythology.NewService(lore, statsCache, cfg.Mythology.StatsCacheTTL, cfg.Mythology.Concurrency, log.Named("stats"))
	classifier := classification.NewService(lore, classification.NewClassifier(nil), log.Named("classification"))

	router := server.NewEngine(cfg, log.Named("http"))
	mythologyapi.RegisterRoutes(router, mythologyapi.NewHandler(stats, classifier, log.Named("api")))

	return server.Run(ctx, router, cfg.Server.Port, cfg.Server.ShutdownTimeout, log)
}
