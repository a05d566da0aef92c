// Command auth-service runs the identity service: accounts, tokens and reputation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aimd54/lorekeeper/internal/api/accounts"
	"github.com/aimd54/lorekeeper/internal/api/middleware"
	"github.com/aimd54/lorekeeper/internal/auth"
	"github.com/aimd54/lorekeeper/internal/config"
	"github.com/aimd54/lorekeeper/internal/observability"
	"github.com/aimd54/lorekeeper/internal/repository"
	"github.com/aimd54/lorekeeper/internal/server"
	"github.com/aimd54/lorekeeper/internal/service/identity"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"), config.ServiceAuth)
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
		log.Fatal().Err(err).Msg("Auth service stopped")
	}
	log.Info().Msg("Auth service stopped")
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
	if err := db.MigrateIdentity(); err != nil {
		return err
	}

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	identitySvc := identity.NewService(repository.NewUserRepository(db), tokens, log.Named("identity"))

	router := server.NewEngine(cfg, log.Named("http"))
	accounts.RegisterRoutes(
		router,
		accounts.NewHandler(identitySvc, cfg.Auth.InternalToken, log.Named("api")),
		middleware.NewAuthenticator(identitySvc, nil, log.Named("auth")),
	)

	return server.Run(ctx, router, cfg.Server.Port, cfg.Server.ShutdownTimeout, log)
}
