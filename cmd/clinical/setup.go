package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	mongodrv "go.mongodb.org/mongo-driver/mongo"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/config"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/db/mongo"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/db/redis"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/messaging"
	"github.com/Joshsnailz/hospitalflow-sub002/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// mustInit loads configuration and the logger for one command. serviceName
// overrides SERVICE_NAME for the consumer daemons.
func mustInit(ctx *cli.Context, serviceName string) (*config.Config, zerolog.Logger) {
	cfg, err := config.Load(ctx.Context)
	if err != nil {
		bootLog := logger.Get()
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}
	if serviceName != "" {
		cfg.ServiceName = serviceName
	}

	level := cfg.LogLevel
	if ctx.Bool(debugFlag.Name) {
		level = "debug"
	}
	log := logger.Init(logger.Options{
		Level:   level,
		Pretty:  cfg.IsDevelopment(),
		Service: cfg.ServiceName,
		Version: version(),
	})
	return cfg, log
}

func mustInitMongo(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*mongodrv.Client, *mongodrv.Database) {
	client, db, err := mongo.Connect(ctx, mongo.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		AppName:  cfg.ServiceName,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	return client, db
}

func mustEnsureIndexes(ctx context.Context, log zerolog.Logger, repos ...mongo.Indexed) {
	if err := mongo.EnsureIndexes(ctx, repos...); err != nil {
		log.Fatal().Err(err).Msg("failed to create indexes")
	}
}

func mustInitRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) *goredis.Client {
	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	return rdb
}

func newManager(name string, cfg *config.Config, log zerolog.Logger) *messaging.Manager {
	return messaging.NewManager(messaging.ManagerConfig{
		Name:                 name,
		URL:                  cfg.Broker.URL,
		ReconnectDelay:       cfg.Broker.ReconnectDelay,
		MaxReconnectAttempts: cfg.Broker.MaxReconnectAttempts,
	}, messaging.AMQPDialer{}, log)
}

// waitConnected blocks until mgr is Connected, it gives up, or timeout passes.
func waitConnected(ctx context.Context, mgr *messaging.Manager, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if mgr.State() == messaging.StateConnected {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-mgr.Done():
			return false
		case <-tick.C:
		}
	}
}

// serve runs e on addr until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, e *echo.Echo, addr string, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info().Msg("shutting down http server")
	return e.Shutdown(shutdownCtx)
}
