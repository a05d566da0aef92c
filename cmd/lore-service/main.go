// Command lore-service runs the creature catalog and testimony moderation service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aimd54/lorekeeper/internal/api/lore"
	"github.com/aimd54/lorekeeper/internal/api/middleware"
	"github.com/aimd54/lorekeeper/internal/cache"
	"github.com/aimd54/lorekeeper/internal/client/identity"
	"github.com/aimd54/lorekeeper/internal/config"
	"github.com/aimd54/lorekeeper/internal/observability"
	"github.com/aimd54/lorekeeper/internal/repository"
	"github.com/aimd54/lorekeeper/internal/server"
	"github.com/aimd54/lorekeeper/internal/service/auditlog"
	"github.com/aimd54/lorekeeper/internal/service/creatures"
	"github.com/aimd54/lorekeeper/internal/service/moderation"
	"github.com/aimd54/lorekeeper/internal/service/scheduler"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"), config.ServiceLore)
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
		log.Fatal().Err(err).Msg("Lore service stopped")
	}
	log.Info().Msg("Lore service stopped")
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

	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}()
	if err := db.MigrateLore(); err != nil {
		return err
	}

	tokenCache, closeCache := openTokenCache(ctx, cfg, log)
	defer closeCache()

	creatureRepo := repository.NewCreatureRepository(db)
	testimonyRepo := repository.NewTestimonyRepository(db)
	scorer := creatures.NewScorer(testimonyRepo, creatureRepo)
	identityClient := identity.NewClient(cfg.Lore.IdentityURL, cfg.Lore.IdentityTimeout, cfg.Auth.InternalToken, log.Named("identity-client"))
	audit := auditlog.NewService(repository.NewModerationLogRepository(db), log.Named("audit"))

	engine := moderation.NewEngine(
		testimonyRepo,
		creatureRepo,
		scorer,
		identityClient,
		audit,
		moderation.Options{Cooldown: cfg.Lore.TestimonyCooldown},
		log.Named("moderation"),
	)

	reconciler := scheduler.NewService(cfg.Lore.Reconcile, creatureRepo, scorer, log.Named("scheduler"))
	if err := reconciler.Start(); err != nil {
		return err
	}
	defer reconciler.Stop()

	router := server.NewEngine(cfg, log.Named("http"))
	lore.RegisterRoutes(
		router,
		lore.NewHandler(creatures.NewService(creatureRepo, log.Named("creatures")), engine, audit, log.Named("api")),
		middleware.NewAuthenticator(identityClient, tokenCache, log.Named("auth")),
	)

	return server.Run(ctx, router, cfg.Server.Port, cfg.Server.ShutdownTimeout, log)
}

// openTokenCache connects to Redis when enabled. Failure degrades to verifying
// every request with the identity service.
func openTokenCache(ctx context.Context, cfg *config.Config, log *logger.Logger) (*cache.TokenCache, func()) {
	noop := func() {}
	if !cfg.Database.Redis.Enabled || cfg.Lore.TokenCacheTTL <= 0 {
		return nil, noop
	}
	store, err := cache.New(ctx, &cfg.Database.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, token cache disabled")
		return nil, noop
	}
	log.Info().Dur("ttl", cfg.Lore.TokenCacheTTL).Msg("Token cache enabled")
	return cache.NewTokenCache(store, cfg.Lore.TokenCacheTTL), func() { _ = store.Close() }
}
