package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coffersTech/als/internal/inspector"
	"github.com/coffersTech/als/internal/registry"
	"github.com/coffersTech/als/internal/server"
	"github.com/coffersTech/als/internal/storage"
)

var (
	serveAddr     string
	serveRole     string
	objectTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the viewer HTTP API, log ingestion and the object inspector",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveRole, "role", "DedicatedServer", "Role of this process in its instance name")
	serveCmd.Flags().DurationVar(&objectTimeout, "object-timeout", 2*time.Minute, "Drop remote objects not kept alive for this long")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	report := store.Rotate(cfg.MaxFileAgeDays, cfg.MaxParseSizeMiB)
	logger.Info("Startup rotation finished", "archived", len(report.Archived), "failures", len(report.Failures))

	instance := store.ResolveInstanceName(storage.CurrentProcess(storage.ParseRole(serveRole)))
	if cfg.EnableFileLog {
		if err := store.StartSession(instance); err != nil {
			logger.Error(err, "Failed to start session", "instance", instance)
		}
	}

	reg := registry.NewStore()
	if objectTimeout > 0 {
		reg.StartCleanupLoop(ctx, objectTimeout/4, objectTimeout)
	}

	in := inspector.New(inspector.Options{
		Registry:        reg,
		Sink:            store,
		Instance:        instance,
		Logger:          logger,
		RefreshInterval: cfg.RefreshInterval,
		LogEveryPoll:    !cfg.UniqueInspectorMessages,
	})
	go in.Run(ctx)

	srv := server.New(server.Options{
		Engine:          qe,
		Logger:          logger,
		Registry:        reg,
		Inspector:       in,
		User:            cfg.Server.User,
		PasswordHash:    cfg.Server.PasswordHash,
		IncludeArchived: cfg.IncludeArchived,
		MaxFileAgeDays:  cfg.MaxFileAgeDays,
		MaxParseSizeMiB: cfg.MaxParseSizeMiB,
	})

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start(ctx, addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Server shutdown error")
	}
	if err := <-errc; err != nil {
		return err
	}
	logger.Info("ALS exited gracefully.")
	return nil
}
