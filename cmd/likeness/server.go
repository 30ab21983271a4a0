package likeness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/likeness/pkg/config"
	"github.com/soundprediction/likeness/pkg/server"
	"github.com/soundprediction/likeness/pkg/tables"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only HTTP API",
	Long: `Start an HTTP server exposing the tables of the configured tables directory.

The server provides endpoints for:
- Likeness verdicts, filtered by question and status
- Cluster verdicts
- The joined report and per-question summary
- Health checks

Tables are read on every request, so a concurrent run is picked up without a restart.`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serveCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serveCmd.Flags().StringVar(&serverMode, "mode", "release", "Server mode (debug, release, test)")
	serveCmd.Flags().String("tables", "", "Tables directory (overrides paths.tables)")
}

func runServer(cmd *cobra.Command, args []string) error {
	e, err := setup(false)
	if err != nil {
		return err
	}
	defer e.close()

	overrideConfigWithFlags(cmd, e.cfg)
	if err := validateServerConfig(e.cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := tables.NewStore(e.cfg.Paths.Tables)
	if err != nil {
		return fmt.Errorf("failed to open tables directory: %w", err)
	}

	srv := server.New(e.cfg, store, e.logger)
	srv.Setup()

	ctx, cancel := signalContext()
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		e.logger.Info("Server stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}
	if cmd.Flags().Changed("tables") {
		cfg.Paths.Tables, _ = cmd.Flags().GetString("tables")
	}
}

func validateServerConfig(cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	if cfg.Paths.Tables == "" {
		return fmt.Errorf("tables directory is required")
	}
	return nil
}
