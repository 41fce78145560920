package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modloader"
	"github.com/GoCodeAlone/modloader/diagnostics"
)

// NewServeCommand creates the serve command
func NewServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the module set and serve diagnostics over HTTP",
		Long: `Loads the eager modules, serves /status, /health, /modules/{name} and
/metrics, logs health on the configured schedule and re-applies the config
file when it changes. Stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cfg, logger, err := setup(root)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, l, cfg, logger, root.configPath, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address for the diagnostics server")
	return cmd
}

func serve(ctx context.Context, l *modloader.Loader, cfg *modloader.Config, logger modloader.Logger, configPath, addr string) error {
	defer l.Shutdown(context.Background())

	if summary := l.LoadEager(ctx); len(summary.Failed) > 0 {
		logger.Warn("Some modules failed to load", "error", summary.Err())
	}

	reporter, err := diagnostics.NewHealthReporter(l, logger, cfg.HealthReportSchedule)
	if err != nil {
		return err
	}
	reporter.Start()
	defer reporter.Stop()

	if configPath != "" {
		watcher := modloader.NewConfigWatcher(configPath, l)
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = watcher.Stop() }()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           diagnostics.NewRouter(l),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Diagnostics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("diagnostics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Received signal, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop diagnostics server: %w", err)
	}
	return nil
}
