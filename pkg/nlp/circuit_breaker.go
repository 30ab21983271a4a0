package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/likeness/pkg/alert"
	"github.com/soundprediction/likeness/pkg/config"
	"github.com/soundprediction/likeness/pkg/types"
)

// CircuitBreakerBackend wraps a Backend with circuit breaking logic
type CircuitBreakerBackend struct {
	backend Backend
	cb      *gobreaker.CircuitBreaker
}

// NewCircuitBreakerBackend creates a new circuit breaker backend
func NewCircuitBreakerBackend(backend Backend, cfg config.CircuitBreakerConfig, alerter alert.Alerter, logger *slog.Logger) *CircuitBreakerBackend {
	if logger == nil {
		logger = slog.Default()
	}

	st := gobreaker.Settings{
		Name:        backend.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state changed", "backend", name, "from", from.String(), "to", to.String())
			if to != gobreaker.StateOpen {
				return
			}
			msg := fmt.Sprintf("Circuit breaker '%s' changed from %s to %s. Too many failed inference calls.", name, from, to)
			logger.Error(msg)
			if alerter != nil {
				if err := alerter.Alert(fmt.Sprintf("URGENT: Circuit Breaker Tripped - %s", name), msg); err != nil {
					logger.Warn("failed to send alert", "error", err)
				}
			}
		},
	}

	return &CircuitBreakerBackend{
		backend: backend,
		cb:      gobreaker.NewCircuitBreaker(st),
	}
}

// Name implements Backend
func (c *CircuitBreakerBackend) Name() string { return c.backend.Name() }

// Kind implements Backend
func (c *CircuitBreakerBackend) Kind() Kind { return c.backend.Kind() }

// State reports the breaker state.
func (c *CircuitBreakerBackend) State() gobreaker.State { return c.cb.State() }

// Generate implements Backend
func (c *CircuitBreakerBackend) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*types.Response, error) {
	resp, err := c.cb.Execute(func() (interface{}, error) {
		return c.backend.Generate(ctx, prompt, opts)
	})

	if err != nil {
		return nil, err
	}
	return resp.(*types.Response), nil
}

// Close implements Backend
func (c *CircuitBreakerBackend) Close() error {
	return c.backend.Close()
}
