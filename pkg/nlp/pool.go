package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/soundprediction/likeness/pkg/types"
)

// Generation is the result of a successful pool call.
type Generation struct {
	Text     string
	Backend  string
	Model    string
	Attempts int
	Usage    *types.TokenUsage
	Latency  time.Duration
}

// Pool distributes generation requests across backends in round-robin order.
// It is safe for concurrent use; the cursor is shared by all callers.
type Pool struct {
	backends []Backend
	cursor   atomic.Uint64
	retry    RetryConfig
	opts     GenerateOptions
	logger   *slog.Logger
	tracker  CallTracker
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithRetry sets the retry policy.
func WithRetry(cfg RetryConfig) PoolOption {
	return func(p *Pool) { p.retry = cfg }
}

// WithOptions sets the decoding parameters sent with every request.
func WithOptions(opts GenerateOptions) PoolOption {
	return func(p *Pool) { p.opts = opts }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTracker records every call.
func WithTracker(tracker CallTracker) PoolOption {
	return func(p *Pool) { p.tracker = tracker }
}

// NewPool creates a pool over backends. The order of backends is the
// round-robin order.
func NewPool(backends []Backend, opts ...PoolOption) (*Pool, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	p := &Pool{
		backends: append([]Backend(nil), backends...),
		retry:    DefaultRetryConfig(),
		opts:     DefaultGenerateOptions(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.retry = p.retry.withDefaults()
	return p, nil
}

// Size returns the number of backends.
func (p *Pool) Size() int {
	return len(p.backends)
}

// Next returns the next backend in round-robin order.
func (p *Pool) Next() Backend {
	i := p.cursor.Add(1) - 1
	return p.backends[i%uint64(len(p.backends))]
}

// Generate selects one backend and calls it, retrying on that backend only.
// On exhaustion it returns a *BackendCallError.
func (p *Pool) Generate(ctx context.Context, prompt string) (*Generation, error) {
	backend := p.Next()
	start := time.Now()

	var resp *types.Response
	attempts, err := p.retry.do(ctx, func(attemptCtx context.Context) error {
		r, err := backend.Generate(attemptCtx, prompt, p.opts)
		if err != nil {
			return err
		}
		if r == nil || strings.TrimSpace(r.Content) == "" {
			return NewEmptyResponseError(fmt.Sprintf("backend %s returned no text", backend.Name()))
		}
		resp = r
		return nil
	}, func(attempt int, err error) {
		p.logger.Warn("backend call failed",
			"backend", backend.Name(),
			"attempt", attempt,
			"max_attempts", p.retry.MaxAttempts,
			"kind", classifyError(ctx, err),
			"error", err)
	})
	latency := time.Since(start)

	record := CallRecord{
		Backend:     backend.Name(),
		Kind:        string(backend.Kind()),
		Attempts:    attempts,
		LatencyMs:   latency.Milliseconds(),
		PromptChars: len([]rune(prompt)),
	}

	if err != nil {
		callErr := &BackendCallError{
			Backend:  backend.Name(),
			Attempts: attempts,
			Kind:     classifyError(ctx, err),
			Err:      err,
		}
		record.Status = CallStatusFailed
		record.ErrorKind = string(callErr.Kind)
		record.Error = err.Error()
		p.track(ctx, record)
		return nil, callErr
	}

	gen := &Generation{
		Text:     resp.Content,
		Backend:  backend.Name(),
		Model:    resp.Model,
		Attempts: attempts,
		Usage:    resp.TokensUsed,
		Latency:  latency,
	}
	record.Status = CallStatusOK
	record.Model = resp.Model
	record.ResponseChars = len([]rune(resp.Content))
	if u := resp.TokensUsed; u != nil {
		record.PromptTokens = u.PromptTokens
		record.CompletionTokens = u.CompletionTokens
		record.TotalTokens = u.TotalTokens
	}
	p.track(ctx, record)

	return gen, nil
}

func (p *Pool) track(ctx context.Context, record CallRecord) {
	if p.tracker == nil {
		return
	}
	if err := p.tracker.Track(ctx, record); err != nil {
		p.logger.Warn("failed to record call", "backend", record.Backend, "error", err)
	}
}

// Close closes every backend.
func (p *Pool) Close() error {
	var firstErr error
	for _, b := range p.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
