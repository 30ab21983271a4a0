package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/soundprediction/likeness/pkg/config"
	"github.com/soundprediction/likeness/pkg/types"
)

// DefaultOllamaURL is used when an ollama backend has no base URL.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaBackend implements Backend for the native Ollama generate API.
type OllamaBackend struct {
	name       string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaBackend creates a new Ollama backend.
func NewOllamaBackend(cfg config.BackendConfig, httpClient *http.Client) (*OllamaBackend, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if err := validateBaseURL(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama backend %s: model is required", cfg.Name)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OllamaBackend{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      cfg.Model,
		httpClient: httpClient,
	}, nil
}

// ollamaRequest represents the request structure for /api/generate.
type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

// ollamaOptions carries the decoding parameters. Zero values are sent
// explicitly so temperature 0 is not replaced by the server default.
type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
	Seed        int     `json:"seed"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaResponse represents the non-streaming response.
type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// Name implements Backend.
func (o *OllamaBackend) Name() string { return o.name }

// Kind implements Backend.
func (o *OllamaBackend) Kind() Kind { return KindOllama }

// Generate implements Backend.
func (o *OllamaBackend) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*types.Response, error) {
	req := ollamaRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			Seed:        opts.Seed,
			NumPredict:  opts.MaxTokens,
		},
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Backend: o.name, StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	var out ollamaResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", out.Error)
	}

	response := &types.Response{
		Content:      out.Response,
		Model:        out.Model,
		FinishReason: out.DoneReason,
	}
	if out.PromptEvalCount+out.EvalCount > 0 {
		response.TokensUsed = &types.TokenUsage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		}
	}
	return response, nil
}

// Close implements Backend.
func (o *OllamaBackend) Close() error {
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
