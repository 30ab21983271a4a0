package likeness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soundprediction/likeness/pkg/alert"
	"github.com/soundprediction/likeness/pkg/checkpoint"
	"github.com/soundprediction/likeness/pkg/cluster"
	"github.com/soundprediction/likeness/pkg/config"
	"github.com/soundprediction/likeness/pkg/evaluator"
	"github.com/soundprediction/likeness/pkg/nlp"
	"github.com/soundprediction/likeness/pkg/orchestrator"
	"github.com/soundprediction/likeness/pkg/prompts"
	"github.com/soundprediction/likeness/pkg/report"
	"github.com/soundprediction/likeness/pkg/similarity"
	"github.com/soundprediction/likeness/pkg/symbolic"
	"github.com/soundprediction/likeness/pkg/tables"
	"github.com/soundprediction/likeness/pkg/types"
)

// ErrNoGenerator is returned by scoring operations when no inference
// backend is configured.
var ErrNoGenerator = errors.New("no inference backend configured")

// Likeness is the main interface for scoring how AI-like student answers are.
type Likeness interface {
	// LoadInputs reads answers, references and rubrics from the configured paths.
	LoadInputs(ctx context.Context) (*Inputs, error)

	// ComputeFeatures computes the similarity, symbolic and cluster features
	// of every question and writes them to the tables directory.
	ComputeFeatures(ctx context.Context, in *Inputs) (tables.Features, error)

	// ScoreLikeness runs the LLM likeness judgment over the tasks selected by
	// mode and merges the fresh verdicts into the stored ones.
	ScoreLikeness(ctx context.Context, in *Inputs, features tables.Features, mode orchestrator.Mode, targets []types.TaskKey) (orchestrator.RunResult, error)

	// AnalyzeClusters judges how templated each answer cluster is.
	AnalyzeClusters(ctx context.Context, in *Inputs, features tables.Features) ([]types.ClusterVerdict, error)

	// BuildReport joins answers, features and verdicts into the report table.
	BuildReport(ctx context.Context, in *Inputs, features tables.Features) ([]report.Row, error)

	// Run executes the whole pipeline, resuming from the last checkpoint.
	Run(ctx context.Context, opts RunOptions) (*RunSummary, error)

	// Close flushes the call log and closes the backends.
	Close() error
}

// Client is the main implementation of the Likeness interface.
type Client struct {
	config      *config.Config
	store       *tables.Store
	checkpoints *checkpoint.Manager
	gen         evaluator.Generator
	pool        *nlp.Pool
	tracker     *nlp.ParquetCallTracker
	alerter     alert.Alerter
	logger      *slog.Logger

	reference *similarity.ReferenceScorer
	peer      *similarity.PeerScorer
	symbolic  *symbolic.Scorer
	clusterer *cluster.Clusterer
}

// Option customizes a Client.
type Option func(*Client)

// WithGenerator replaces the backend pool built from the configuration.
func WithGenerator(gen evaluator.Generator) Option {
	return func(c *Client) {
		c.gen = gen
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAlerter replaces the alerter built from the configuration.
func WithAlerter(a alert.Alerter) Option {
	return func(c *Client) {
		if a != nil {
			c.alerter = a
		}
	}
}

// New creates a Client from cfg. The backend pool is built once here when
// backends are configured and no generator was supplied.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	c := &Client{config: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.alerter == nil {
		c.alerter = alert.New(cfg.Alert)
	}

	var err error
	if c.store, err = tables.NewStore(cfg.Paths.Tables); err != nil {
		return nil, err
	}
	if c.checkpoints, err = checkpoint.NewManager(cfg.Paths.Checkpoints); err != nil {
		return nil, err
	}

	c.reference = similarity.NewReferenceScorer(cfg.Similarity.ReferenceNGram, c.logger)
	c.peer = similarity.NewPeerScorer(cfg.Similarity.PeerNGram, cfg.Similarity.PeerMaxPopulation, c.logger)
	if c.symbolic, err = symbolic.NewScorer(symbolicConfig(cfg.Symbolic)); err != nil {
		return nil, fmt.Errorf("invalid symbolic config: %w", err)
	}
	if c.clusterer, err = cluster.NewClusterer(clusterConfig(cfg.Cluster), c.logger); err != nil {
		return nil, fmt.Errorf("invalid cluster config: %w", err)
	}

	if c.gen == nil && len(cfg.Backends) > 0 {
		if err := c.buildPool(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) buildPool(ctx context.Context) error {
	backends, err := nlp.NewBackends(ctx, c.config.Backends, c.config.CircuitBreaker, c.alerter, c.logger)
	if err != nil {
		return err
	}

	poolOpts := []nlp.PoolOption{
		nlp.WithLogger(c.logger),
		nlp.WithRetry(nlp.RetryConfig{
			MaxAttempts: c.config.Retry.MaxAttempts,
			Delay:       c.config.Retry.Delay,
			Timeout:     c.config.Retry.Timeout,
		}),
		nlp.WithOptions(nlp.GenerateOptions{
			Temperature: c.config.Decoding.Temperature,
			TopP:        c.config.Decoding.TopP,
			Seed:        c.config.Decoding.Seed,
			MaxTokens:   c.config.Decoding.MaxTokens,
		}),
	}
	if c.config.Paths.CallLog != "" {
		tracker, err := nlp.NewCallTracker(c.config.Paths.CallLog, c.logger)
		if err != nil {
			c.logger.Warn("Call log disabled", "error", err)
		} else {
			c.tracker = tracker
			poolOpts = append(poolOpts, nlp.WithTracker(tracker))
		}
	}

	pool, err := nlp.NewPool(backends, poolOpts...)
	if err != nil {
		for _, b := range backends {
			b.Close()
		}
		return err
	}
	c.pool, c.gen = pool, pool
	c.logger.Info("Inference pool ready", "backends", pool.Size())
	return nil
}

// Store returns the tables store.
func (c *Client) Store() *tables.Store {
	return c.store
}

// Close flushes the call log and closes the backends.
func (c *Client) Close() error {
	var errs []error
	if c.tracker != nil {
		errs = append(errs, c.tracker.Close())
	}
	if c.pool != nil {
		errs = append(errs, c.pool.Close())
	}
	return errors.Join(errs...)
}

func (c *Client) evaluatorOptions(in *Inputs) evaluator.Options {
	return evaluator.Options{
		Rubrics:       in.Rubrics,
		Format:        prompts.ParseFormat(c.config.Scoring.FeatureFormat),
		SampleSize:    c.config.Cluster.SampleSize,
		RubricExcerpt: c.config.Cluster.RubricExcerpt,
		Logger:        c.logger,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

func (c *Client) runOptions() orchestrator.RunOptions {
	return orchestrator.RunOptions{
		Concurrency:  c.config.Scoring.Concurrency,
		Logger:       c.logger,
		Alerter:      c.alerter,
		FailureRatio: c.config.Alert.FailureRatio,
	}
}

func symbolicConfig(cfg config.SymbolicConfig) symbolic.Config {
	return symbolic.Config{
		Weights: symbolic.Weights{
			Bold:           cfg.Weights.Bold,
			Heading:        cfg.Weights.Headings,
			Rule:           cfg.Weights.Rules,
			Bullet:         cfg.Weights.Bullets,
			Connective:     cfg.Weights.Connectives,
			SentenceLength: cfg.Weights.SentenceLength,
		},
		SentenceLengthScale: cfg.SentenceLengthScale,
		MaxScore:            cfg.MaxScore,
		Connectives:         cfg.Connectives,
	}
}

func clusterConfig(cfg config.ClusterConfig) cluster.Config {
	out := cluster.Config{
		NGramMin:        cfg.NGramMin,
		NGramMax:        cfg.NGramMax,
		DefaultClusters: cfg.DefaultClusters,
		MaxClusters:     cfg.MaxClusters,
		NInit:           cfg.NInit,
		MaxIter:         cfg.MaxIter,
		Seed:            cfg.Seed,
	}
	for _, t := range cfg.Tiers {
		out.Tiers = append(out.Tiers, cluster.Tier{MaxPopulation: t.MaxPopulation, Clusters: t.Clusters})
	}
	return out
}
