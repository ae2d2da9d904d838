package main

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
	"go.uber.org/zap"

	"unimem/infrastructure/config"
	"unimem/infrastructure/di"
	"unimem/interfaces/http/rest"
)

var (
	cfgFile string
	addr    string

	rootCmd = &cobra.Command{
		Use:   "unimem-api",
		Short: "Memory store and semantic retrieval API",
		RunE:  runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}

	rebuildCmd = &cobra.Command{
		Use:   "rebuild-cache",
		Short: "Load every vector from the store and report divergence between the tables",
		RunE:  runRebuild,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); the environment still wins")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "listen address, overrides SERVER_ADDRESS")
	rootCmd.AddCommand(serveCmd, rebuildCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadContainer(ctx context.Context, cmd *cobra.Command) (*di.Container, error) {
	opts := []config.Option{config.WithConfigFile(cfgFile)}
	if flag := cmd.Flags().Lookup("addr"); flag != nil && flag.Changed {
		opts = append(opts, config.WithFlag("SERVER_ADDRESS", flag))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}
	return container, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	container, err := loadContainer(ctx, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	logger := container.Logger
	container.Warm(ctx)

	srv := &http.Server{
		Addr:         container.Config.ServerAddress,
		Handler:      rest.NewRouterFromContainer(container, false).Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("address", srv.Addr),
			zap.String("storageMode", container.Stores.Mode),
			zap.Bool("degraded", container.Stores.Degraded),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			logger.Error("Server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	container, err := loadContainer(ctx, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	report, err := container.Rebuilder.Rebuild(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "loaded %d vectors in %s\n", report.Loaded, report.Duration)
	fmt.Fprintf(out, "skipped %d undecodable records\n", len(report.Skipped))
	fmt.Fprintf(out, "orphan vectors: %d\n", len(report.OrphanVectors))
	fmt.Fprintf(out, "memories without vectors: %d\n", len(report.MissingVectors))
	if report.Diverged() {
		return errors.New("memory and vector tables diverge")
	}
	return nil
}
