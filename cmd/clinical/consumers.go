package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	mongodrv "go.mongodb.org/mongo-driver/mongo"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/ports"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/service"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/config"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/db/mongo"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/db/redis"
	ophttp "github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/http"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/http/handlers"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/messaging"
)

const (
	userServiceName  = "user-service"
	auditServiceName = "audit-service"
)

// runUserSync keeps the user projection of user-service in step with the
// auth service's user events.
func runUserSync(cliCtx *cli.Context) error {
	return runConsumer(cliCtx, userServiceName, func(ctx context.Context, db *mongodrv.Database, log zerolog.Logger) (string, map[string]ports.EventHandler) {
		repo := mongo.NewProjectionRepository(db)
		mustEnsureIndexes(ctx, log, repo)
		return domain.ExchangeEvents, service.NewUserProjectionService(repo, log).Handlers()
	})
}

// runAuditSink persists audit envelopes for compliance queries.
func runAuditSink(cliCtx *cli.Context) error {
	return runConsumer(cliCtx, auditServiceName, func(ctx context.Context, db *mongodrv.Database, log zerolog.Logger) (string, map[string]ports.EventHandler) {
		repo := mongo.NewAuditLogRepository(db)
		mustEnsureIndexes(ctx, log, repo)
		return domain.ExchangeAudit, service.NewAuditTrailService(repo, log).Handlers()
	})
}

type bindFunc func(ctx context.Context, db *mongodrv.Database, log zerolog.Logger) (exchange string, bindings map[string]ports.EventHandler)

func runConsumer(cliCtx *cli.Context, name string, bind bindFunc) error {
	cfg, log := mustInit(cliCtx, name)

	ctx, stop := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, db := mustInitMongo(ctx, cfg, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = client.Disconnect(shutdownCtx)
	}()
	rdb := mustInitRedis(ctx, cfg, log)
	defer rdb.Close()

	mgr := newManager("consumer", cfg, log)
	consumer := messaging.NewConsumer(mgr, consumerConfig(cfg), redis.NewDeliveryTracker(rdb), log)
	exchange, hs := bind(ctx, db, log)
	consumer.BindAll(exchange, hs)
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	defer consumer.Close()

	router := ophttp.NewRouter(map[string]handlers.Check{
		"mongodb": handlers.MongoCheck(db),
		"redis":   handlers.RedisCheck(rdb),
		"broker":  handlers.BrokerCheck(mgr),
	})

	// A manager that ran out of retries will not recover on its own, so
	// exit and let the supervisor restart the process.
	go func() {
		select {
		case <-mgr.Done():
			if err := mgr.Err(); err != nil {
				log.Error().Err(err).Msg("consumer connection lost for good, stopping")
			}
			stop()
		case <-ctx.Done():
		}
	}()

	return serve(ctx, router, ":"+cfg.Port, log)
}

func consumerConfig(cfg *config.Config) messaging.ConsumerConfig {
	return messaging.ConsumerConfig{
		Service:       cfg.ServiceName,
		Prefetch:      cfg.Broker.Prefetch,
		Workers:       cfg.Broker.Workers,
		MaxDeliveries: cfg.Broker.MaxDeliveries,
	}
}
