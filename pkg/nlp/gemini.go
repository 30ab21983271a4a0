package nlp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/soundprediction/likeness/pkg/config"
	"github.com/soundprediction/likeness/pkg/types"
	"google.golang.org/api/option"
)

// GeminiBackend implements Backend for Google Gemini models.
// The SDK has no seed parameter; determinism relies on temperature 0.
type GeminiBackend struct {
	name   string
	model  string
	client *genai.Client
}

// NewGeminiBackend creates a new Gemini backend.
func NewGeminiBackend(ctx context.Context, cfg config.BackendConfig) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiBackend{name: cfg.Name, model: model, client: client}, nil
}

// Name implements Backend.
func (g *GeminiBackend) Name() string { return g.name }

// Kind implements Backend.
func (g *GeminiBackend) Kind() Kind { return KindGemini }

// Generate implements Backend.
func (g *GeminiBackend) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*types.Response, error) {
	m := g.client.GenerativeModel(g.model)
	if m == nil {
		return nil, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(opts.Temperature),
		TopP:        ptrFloat32(opts.TopP),
	}
	if opts.MaxTokens > 0 {
		m.GenerationConfig.MaxOutputTokens = ptrInt32(int32(opts.MaxTokens))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	response := &types.Response{
		Content: firstText(resp),
		Model:   g.model,
	}
	if len(resp.Candidates) > 0 {
		response.FinishReason = resp.Candidates[0].FinishReason.String()
	}
	if u := resp.UsageMetadata; u != nil {
		response.TokensUsed = &types.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return response, nil
}

// Close implements Backend.
func (g *GeminiBackend) Close() error {
	return g.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }

func ptrInt32(v int32) *int32 { return &v }
