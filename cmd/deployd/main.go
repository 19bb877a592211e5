// Command deployd runs the deploy engine on the deploy host: it receives
// build artifacts, activates deployments as processes or containers, and
// maintains the reverse proxy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/thakurlabs/thakur/internal/engine"
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
	if err := cfg.ValidateEngine(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if !cfg.IsProduction() {
		level = slog.LevelDebug
	}
	log := logger.New(level, cfg.IsProduction()).WithComponent("deployd")

	eng, err := engine.New(engine.Config{
		ArtifactsDir:  cfg.Engine.ArtifactsDir,
		AppsDir:       cfg.Engine.AppsDir,
		UseDocker:     cfg.Engine.UseDocker,
		Production:    cfg.IsProduction(),
		BaseDomain:    cfg.BaseDomain,
		NginxSitesDir: cfg.Engine.NginxSitesDir,
		NginxLinkDir:  cfg.Engine.NginxLinkDir,
		ControlAPIURL: cfg.Engine.ControlAPIURL,
	}, log.Logger)
	if err != nil {
		return err
	}

	eng.Recover()

	server := engine.NewServer(eng, log.Logger)

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
