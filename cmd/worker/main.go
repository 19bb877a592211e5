// Command worker runs the build worker: it consumes build jobs from the
// queue (or direct HTTP triggers), clones, builds, packages, and uploads
// artifacts to the deploy engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/thakurlabs/thakur/internal/builder"
	"github.com/thakurlabs/thakur/internal/integrations/github"
	"github.com/thakurlabs/thakur/internal/queue"
	redisqueue "github.com/thakurlabs/thakur/internal/queue/redis"
	"github.com/thakurlabs/thakur/internal/shutdown"
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
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if !cfg.IsProduction() {
		level = slog.LevelDebug
	}
	log := logger.New(level, cfg.IsProduction()).WithComponent("worker")

	var q queue.Queue
	if cfg.RedisURL != "" {
		rq, err := redisqueue.NewRedisQueue(cfg.RedisURL, log.Logger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		q = rq
	} else {
		log.Warn("REDIS_URL not set, accepting builds over HTTP only")
	}

	cp := builder.NewControlPlaneClient(cfg.Worker.ControlAPIURL, log.Logger)
	engineClient := builder.NewEngineClient(cfg.Worker.DeployEngineURL, log.Logger)
	gh := github.NewClient(cfg.GitHub.AppID, cfg.GitHub.PrivateKeyPath)

	runner := builder.NewRunner(cp, engineClient, gh, cfg.Worker.WorkspaceDir, log.Logger)
	worker := builder.NewWorker(q, runner, log.Logger)
	server := builder.NewServer(worker, log.Logger)

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	if q != nil {
		coordinator.Register(shutdown.NewCloserComponent("queue", q))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	var serverErr error
	serverDone := make(chan struct{})
	go func() {
		serverErr = server.Start(ctx, cfg.Host, cfg.Port)
		close(serverDone)
	}()
	go func() {
		<-serverDone
		if serverErr != nil {
			log.Error("http server failed", "error", serverErr)
		}
		coordinator.Shutdown()
	}()

	coordinator.Register(shutdown.NewFuncComponent("worker", func(sctx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	}))
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
