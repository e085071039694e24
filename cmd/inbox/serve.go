package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/telemetry"
	"github.com/RunLittleTurtle/agent-inbox-sub001/pkg/inbox"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the inbox over HTTP",
	Long: `Serve the inbox REST API. The inbox list is reloaded when the config
file changes; server and storage settings need a restart.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app, err := inbox.New(
		inbox.WithLogger(logger),
		inbox.WithFileConfig(configPath),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := app.Init(ctx); err != nil {
		return err
	}

	if tcfg := app.Config().Telemetry; tcfg.Enabled {
		shutdown, err := telemetry.InitTracer(tcfg.ServiceName, os.Stdout, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	if err := app.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping inbox")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	return app.Shutdown(shutdownCtx)
}
