package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/soundprediction/likeness/pkg/alert"
	"github.com/soundprediction/likeness/pkg/config"
	"github.com/soundprediction/likeness/pkg/types"
)

// Backend is one addressable inference endpoint. Every variant exposes the
// same single generation operation; callers never branch on the provider.
type Backend interface {
	// Name identifies the backend in logs, call records and verdicts.
	Name() string

	// Kind returns the wire protocol variant.
	Kind() Kind

	// Generate sends one completion request and returns the generated text.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*types.Response, error)

	// Close cleans up any resources.
	Close() error
}

// Kind is the closed set of supported backend protocols.
type Kind string

const (
	// KindOllama speaks the native Ollama /api/generate protocol.
	KindOllama Kind = "ollama"
	// KindOpenAI speaks the OpenAI chat completions protocol (also vLLM, Ollama /v1).
	KindOpenAI Kind = "openai"
	// KindGemini uses the Google Generative AI SDK.
	KindGemini Kind = "gemini"
)

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindOllama, KindOpenAI, KindGemini:
		return k, nil
	case "":
		return KindOllama, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// GenerateOptions are the decoding parameters sent with every request.
type GenerateOptions struct {
	Temperature float32
	TopP        float32
	Seed        int
	MaxTokens   int
}

// DefaultGenerateOptions returns deterministic decoding defaults.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Temperature: 0,
		TopP:        1,
		Seed:        42,
		MaxTokens:   1024,
	}
}

// NewBackend creates the backend variant selected by cfg.Kind.
// This is the only place a provider string is interpreted.
func NewBackend(ctx context.Context, cfg config.BackendConfig, httpClient *http.Client) (Backend, error) {
	kind, err := ParseKind(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("%s:%s", kind, cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	var (
		backend  Backend
		buildErr error
	)
	switch kind {
	case KindOllama:
		var b *OllamaBackend
		b, buildErr = NewOllamaBackend(cfg, httpClient)
		backend = b
	case KindOpenAI:
		var b *OpenAIBackend
		b, buildErr = NewOpenAIBackend(cfg, httpClient)
		backend = b
	case KindGemini:
		var b *GeminiBackend
		b, buildErr = NewGeminiBackend(ctx, cfg)
		backend = b
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	if buildErr != nil {
		return nil, fmt.Errorf("backend %s: %w", cfg.Name, buildErr)
	}
	return backend, nil
}

// NewBackends builds every configured backend in order, wrapping each in a
// circuit breaker when cb.Enabled is set.
func NewBackends(ctx context.Context, cfgs []config.BackendConfig, cb config.CircuitBreakerConfig, alerter alert.Alerter, logger *slog.Logger) ([]Backend, error) {
	if len(cfgs) == 0 {
		return nil, ErrNoBackends
	}
	httpClient := &http.Client{}
	backends := make([]Backend, 0, len(cfgs))
	for _, c := range cfgs {
		b, err := NewBackend(ctx, c, httpClient)
		if err != nil {
			for _, built := range backends {
				_ = built.Close()
			}
			return nil, err
		}
		if cb.Enabled {
			b = NewCircuitBreakerBackend(b, cb, alerter, logger)
		}
		backends = append(backends, b)
	}
	return backends, nil
}
