package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/api"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/service"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/config"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/db/mongo"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/http/handlers"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/messaging"
)

// authStack is the wiring shared by the auth API and create-user.
type authStack struct {
	auth    *service.AuthService
	tokens  *service.TokenService
	manager *messaging.Manager
	checks  map[string]handlers.Check
	close   func()
}

func buildAuthStack(ctx context.Context, cfg *config.Config, log zerolog.Logger) authStack {
	client, db := mustInitMongo(ctx, cfg, log)

	// repositories
	var (
		userRepo  = mongo.NewUserRepository(db)
		tokenRepo = mongo.NewRefreshTokenRepository(db)
	)
	mustEnsureIndexes(ctx, log, userRepo, tokenRepo)

	// broker
	mgr := newManager("publisher", cfg, log)
	publisher := messaging.NewPublisher(mgr, cfg.ServiceName, log)
	mgr.Start(ctx)

	// services
	var (
		auditService = service.NewAuditService(publisher, log)
		tokenService = service.NewTokenService(tokenRepo, userRepo, service.TokenConfig{
			AccessSecret:  cfg.Auth.AccessSecret,
			RefreshSecret: cfg.Auth.RefreshSecret,
			AccessTTL:     cfg.Auth.AccessTTL,
			RefreshTTL:    cfg.Auth.RefreshTTL,
		}, log)
		authService = service.NewAuthService(userRepo, tokenService, publisher, auditService, service.AuthConfig{
			BcryptCost:      cfg.Auth.BcryptCost,
			MaxFailedLogins: cfg.Auth.MaxFailedLogins,
			LockoutDuration: cfg.Auth.LockoutDuration,
		}, log)
	)

	return authStack{
		auth:    authService,
		tokens:  tokenService,
		manager: mgr,
		checks: map[string]handlers.Check{
			"mongodb": handlers.MongoCheck(db),
		},
		close: func() {
			mgr.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = client.Disconnect(shutdownCtx)
		},
	}
}

// runAuth serves the HTTP API. The broker is not a readiness dependency:
// logins keep working while events are dropped and counted.
func runAuth(cliCtx *cli.Context) error {
	cfg, log := mustInit(cliCtx, "")
	if err := cfg.ValidateAuth(); err != nil {
		log.Fatal().Err(err).Msg("invalid auth configuration")
	}

	ctx, stop := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack := buildAuthStack(ctx, cfg, log)
	defer stack.close()

	router := api.NewRouter(api.Dependencies{
		Auth:     stack.auth,
		Verifier: stack.tokens,
		Checks:   stack.checks,
		Log:      log,
	})
	return serve(ctx, router, ":"+cfg.Port, log)
}
