// Package llm talks to chat-completion providers and turns their replies
// into typed results for the reorganization pipeline and the feed briefing.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicAPIURL  = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"

	defaultOpenAIModel    = "gpt-3.5-turbo"
	defaultAnthropicModel = "claude-haiku-4-5-20251001"

	maxCompletionTokens = 4096
)

// Errors surfaced to the caller before any side effects occur.
var (
	ErrNoAPIKey        = errors.New("API key is missing")
	ErrAPIRequest      = errors.New("API request failed")
	ErrInvalidResponse = errors.New("invalid API response")
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider sends one prompt to a chat-completion endpoint and returns the
// raw text reply. Implementations are the closed set of supported
// provider shapes.
type Provider interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Options configure a provider adapter.
type Options struct {
	APIKey  string
	Model   string // empty selects the provider's default
	BaseURL string // empty selects the provider's public endpoint
	HTTP    HTTPClient
}

// NewProvider selects the adapter for the given provider name.
// "anthropic" selects the Anthropic messages shape; anything else is
// treated as OpenAI-compatible.
func NewProvider(name string, opts Options) (Provider, error) {
	if opts.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: 60 * time.Second}
	}
	if name == "anthropic" {
		return &AnthropicCompatible{opts: opts}, nil
	}
	return &OpenAICompatible{opts: opts}, nil
}

// OpenAICompatible talks to an OpenAI-style chat-completions endpoint.
type OpenAICompatible struct {
	opts Options
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete implements Provider.
func (p *OpenAICompatible) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	model := p.opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	base := strings.TrimSuffix(p.opts.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	body := openAIRequest{
		Model:          model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:      maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	raw, err := p.post(ctx, base+"/chat/completions", body)
	if err != nil {
		return "", err
	}

	var resp openAIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrInvalidResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAICompatible) post(ctx context.Context, url string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)

	return doRequest(p.opts.HTTP, req)
}

// AnthropicCompatible talks to an Anthropic-style messages endpoint.
type AnthropicCompatible struct {
	opts Options
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete implements Provider.
func (p *AnthropicCompatible) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	model := p.opts.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	base := strings.TrimSuffix(p.opts.BaseURL, "/")
	if base == "" {
		base = anthropicAPIURL
	}

	body := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.opts.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	raw, err := doRequest(p.opts.HTTP, req)
	if err != nil {
		return "", err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Content) == 0 || resp.Content[0].Type != "text" {
		return "", ErrInvalidResponse
	}
	return resp.Content[0].Text, nil
}

func doRequest(client HTTPClient, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPIRequest, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrAPIRequest, resp.StatusCode, string(body))
	}
	return body, nil
}
