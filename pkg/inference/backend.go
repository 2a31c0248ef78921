package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

// Backend is one inference endpoint behind the router. Implementations return
// the shared response envelope; transport failures come back as errors so the
// circuit breaker can count them.
type Backend interface {
	// Name identifies the backend ("local", "cloud") and keys the request
	// queue assignment.
	Name() string

	// Endpoint is the circuit-breaker key, normally the base URL.
	Endpoint() string

	// Complete sends one request and returns the response envelope.
	Complete(ctx context.Context, req types.InferenceRequest) (*types.InferenceResponse, error)
}

// BackendConfig configures a single HTTP inference backend.
type BackendConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ---- local backend ----

// localBackend posts the raw inference envelope to a local serving process
// (an inference proxy in front of llama.cpp, Ollama, or similar). It is the
// only backend that accepts vision payloads for page analysis.
type localBackend struct {
	cfg    BackendConfig
	client *http.Client
}

// NewLocalBackend creates the local HTTP backend.
func NewLocalBackend(cfg BackendConfig) Backend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &localBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (b *localBackend) Name() string     { return "local" }
func (b *localBackend) Endpoint() string { return b.cfg.BaseURL }

// localRequest is the wire shape of the local serving endpoint.
type localRequest struct {
	Prompt      string               `json:"prompt"`
	MaxTokens   int                  `json:"maxTokens,omitempty"`
	Temperature float64              `json:"temperature,omitempty"`
	Vision      *types.VisionPayload `json:"vision,omitempty"`
	Model       string               `json:"model,omitempty"`
}

func (b *localBackend) Complete(ctx context.Context, req types.InferenceRequest) (*types.InferenceResponse, error) {
	body, err := json.Marshal(localRequest{
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Vision:      req.Vision,
		Model:       b.cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := b.cfg.BaseURL + "/v1/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("local inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return nil, fmt.Errorf("local inference returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("local inference returned status %d: %s", resp.StatusCode, payload)
	}

	var envelope types.InferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode local response: %w", err)
	}
	if envelope.Metadata.RoutedTo == "" {
		envelope.Metadata.RoutedTo = b.Name()
	}
	if envelope.Metadata.Model == "" {
		envelope.Metadata.Model = b.cfg.Model
	}
	if !envelope.Success && envelope.Error == "" {
		envelope.Error = "local inference reported failure without detail"
	}
	return &envelope, nil
}

// ---- cloud backend ----

// cloudBackend adapts the envelope to an OpenAI-compatible chat completions
// API. Vision payloads are not forwarded; the router strips them before
// falling back here.
type cloudBackend struct {
	cfg    BackendConfig
	client *http.Client
}

// NewCloudBackend creates the OpenAI-compatible cloud backend.
func NewCloudBackend(cfg BackendConfig) Backend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &cloudBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (b *cloudBackend) Name() string     { return "cloud" }
func (b *cloudBackend) Endpoint() string { return b.cfg.BaseURL }

func (b *cloudBackend) Complete(ctx context.Context, req types.InferenceRequest) (*types.InferenceResponse, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(req.Prompt),
	}

	reqBody := map[string]interface{}{
		"model":    b.cfg.Model,
		"messages": messages,
	}
	if req.MaxTokens > 0 {
		reqBody["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		reqBody["temperature"] = req.Temperature
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := b.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cloud inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return nil, fmt.Errorf("cloud API request failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("cloud API request failed with status %d: %s", resp.StatusCode, payload)
	}

	var completion struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("failed to decode cloud response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("cloud response contained no choices")
	}

	model := completion.Model
	if model == "" {
		model = b.cfg.Model
	}
	return &types.InferenceResponse{
		Success: true,
		Content: completion.Choices[0].Message.Content,
		Metadata: types.InferenceMetadata{
			RoutedTo: b.Name(),
			Model:    model,
		},
	}, nil
}
