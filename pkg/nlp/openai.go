package nlp

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/sashabaranov/go-openai"
	"github.com/soundprediction/likeness/pkg/config"
	"github.com/soundprediction/likeness/pkg/types"
)

// OpenAIBackend implements Backend for OpenAI and OpenAI-compatible services.
type OpenAIBackend struct {
	name    string
	model   string
	baseURL string
	client  *openai.Client
}

// NewOpenAIBackend creates a new OpenAI backend.
// Supports OpenAI-compatible services through a custom base URL.
func NewOpenAIBackend(cfg config.BackendConfig, httpClient *http.Client) (*OpenAIBackend, error) {
	apiKey := cfg.APIKey
	var clientConfig openai.ClientConfig

	if cfg.BaseURL != "" {
		if err := validateBaseURL(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}

		// Some services don't require authentication
		if apiKey == "" {
			apiKey = "dummy-key"
		}

		clientConfig = openai.DefaultConfig(apiKey)
		clientConfig.BaseURL = cfg.BaseURL

		// Many services expect "/v1" to be appended to the base URL
		if !hasAPIPath(cfg.BaseURL) {
			clientConfig.BaseURL = cfg.BaseURL + "/v1"
		}
	} else {
		if apiKey == "" {
			return nil, fmt.Errorf("openai backend %s: api key is required without a base URL", cfg.Name)
		}
		clientConfig = openai.DefaultConfig(apiKey)
	}
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}

	model := cfg.Model
	if model == "" {
		if cfg.BaseURL != "" {
			model = "gpt-3.5-turbo" // Default fallback for OpenAI-compatible services
		} else {
			model = openai.GPT4o
		}
	}

	return &OpenAIBackend{
		name:    cfg.Name,
		model:   model,
		baseURL: cfg.BaseURL,
		client:  openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Name implements Backend.
func (c *OpenAIBackend) Name() string { return c.name }

// Kind implements Backend.
func (c *OpenAIBackend) Kind() Kind { return KindOpenAI }

// Generate sends the prompt as a single user message.
func (c *OpenAIBackend) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*types.Response, error) {
	req := c.buildRequest(prompt, opts)

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if c.baseURL != "" {
			return nil, fmt.Errorf("openai-compatible chat completion failed: %w", err)
		}
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewEmptyResponseError(fmt.Sprintf("no choices returned from %s", c.name))
	}

	choice := resp.Choices[0]
	response := &types.Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
	}

	// Some OpenAI-compatible services do not report usage
	if resp.Usage.TotalTokens > 0 {
		response.TokensUsed = &types.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return response, nil
}

func (c *OpenAIBackend) buildRequest(prompt string, opts GenerateOptions) openai.ChatCompletionRequest {
	seed := opts.Seed
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
		Seed:        &seed,
	}
	// The client omits a zero temperature, which would let the server
	// fall back to its own default.
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	return req
}

// Close cleans up resources (no-op for OpenAI backend).
func (c *OpenAIBackend) Close() error {
	return nil
}

// validateBaseURL validates the base URL format.
func validateBaseURL(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("baseURL cannot be empty")
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid baseURL format: %w", err)
	}

	if parsedURL.Scheme == "" {
		return fmt.Errorf("baseURL must include scheme (http:// or https://)")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("baseURL must use http:// or https:// scheme")
	}

	return nil
}

// hasAPIPath checks if the base URL already includes an API path component.
func hasAPIPath(baseURL string) bool {
	commonPaths := []string{"/v1", "/api", "/v1/", "/api/"}
	for _, path := range commonPaths {
		if len(baseURL) >= len(path) && baseURL[len(baseURL)-len(path):] == path {
			return true
		}
	}
	return false
}
