package likeness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/soundprediction/likeness"
	"github.com/soundprediction/likeness/pkg/config"
	"github.com/soundprediction/likeness/pkg/corpus"
	likenessLogger "github.com/soundprediction/likeness/pkg/logger"
	"github.com/soundprediction/likeness/pkg/telemetry"
	"github.com/soundprediction/likeness/pkg/types"
)

// env is the configuration and logging shared by every command.
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *telemetry.ParquetHandler
}

// setup loads the configuration and builds the logger. Error-level records
// are also written to the telemetry directory when one is configured.
func setup(requireBackends bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := likenessLogger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	handler := likenessLogger.NewHandler(os.Stderr, level, cfg.Log.Format)

	e := &env{cfg: cfg}
	if cfg.Telemetry.ParquetPath != "" {
		ph, err := telemetry.NewParquetHandler(handler, cfg.Telemetry.ParquetPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to initialize error tracking: %v\n", err)
		} else {
			handler = ph
			e.telemetry = ph
		}
	}
	e.logger = slog.New(handler)
	slog.SetDefault(e.logger)

	if err := cfg.Validate(requireBackends); err != nil {
		e.close()
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return e, nil
}

func (e *env) client(ctx context.Context) (*likeness.Client, error) {
	client, err := likeness.New(ctx, e.cfg, likeness.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize likeness: %w", err)
	}
	return client, nil
}

func (e *env) close() {
	if e.telemetry == nil {
		return
	}
	if err := e.telemetry.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to flush error log: %v\n", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loadTargets(path string) ([]types.TaskKey, error) {
	if path == "" {
		return nil, nil
	}
	return corpus.LoadTargets(path)
}
