// Command api runs the control plane: the REST API, webhook ingress, and
// deployment orchestration.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/thakurlabs/thakur/internal/api"
	"github.com/thakurlabs/thakur/internal/crypto"
	"github.com/thakurlabs/thakur/internal/deploy"
	"github.com/thakurlabs/thakur/internal/integrations/github"
	"github.com/thakurlabs/thakur/internal/logs"
	"github.com/thakurlabs/thakur/internal/queue"
	redisqueue "github.com/thakurlabs/thakur/internal/queue/redis"
	"github.com/thakurlabs/thakur/internal/shutdown"
	"github.com/thakurlabs/thakur/internal/store/postgres"
	"github.com/thakurlabs/thakur/pkg/config"
	"github.com/thakurlabs/thakur/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if !cfg.IsProduction() {
		level = slog.LevelDebug
	}
	log := logger.New(level, cfg.IsProduction()).WithComponent("api")

	st, err := postgres.NewPostgresStore(postgres.DefaultConfig(cfg.DatabaseURL), log.Logger)
	if err != nil {
		return err
	}

	var q queue.Queue
	if cfg.RedisURL != "" {
		rq, err := redisqueue.NewRedisQueue(cfg.RedisURL, log.Logger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		q = rq
	} else {
		log.Warn("REDIS_URL not set, builds will be dispatched directly to the worker")
	}

	broker := logs.NewBroker(log.Logger)

	cipher, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		return err
	}

	deployer := deploy.NewHTTPDeployer(cfg.DeployEngineURL, log.Logger)
	deploySvc := deploy.NewService(st, deployer, cipher, broker, log.Logger)

	gh := github.NewClient(cfg.GitHub.AppID, cfg.GitHub.PrivateKeyPath)

	server := api.NewServer(cfg, st, q, broker, cipher, deploySvc, gh, log.Logger)

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coordinator.Register(shutdown.NewCloserComponent("database", st))
	if q != nil {
		coordinator.Register(shutdown.NewCloserComponent("queue", q))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var serverErr error
	serverDone := make(chan struct{})
	go func() {
		serverErr = server.Start(ctx)
		close(serverDone)
	}()
	go func() {
		<-serverDone
		if serverErr != nil {
			log.Error("http server failed", "error", serverErr)
		}
		coordinator.Shutdown()
	}()

	coordinator.Register(shutdown.NewFuncComponent("http-server", func(sctx context.Context) error {
		cancel()
		select {
		case <-serverDone:
			return serverErr
		case <-sctx.Done():
			return sctx.Err()
		}
	}))

	go coordinator.WaitForSignal()
	coordinator.Wait()

	if serverErr != nil {
		return serverErr
	}
	if coordinator.ExitCode() != 0 {
		return fmt.Errorf("shutdown timed out")
	}
	return nil
}
