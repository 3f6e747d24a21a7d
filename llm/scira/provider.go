// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

// Package scira provides an LLM provider implementation for the Scira
// answer engine. Scira exposes a plain HTTP-JSON search endpoint; there is
// no official SDK.
package scira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"promptgate/gateway/llm"
)

const (
	// DefaultBaseURL is the default Scira API endpoint.
	DefaultBaseURL = "https://api.scira.ai"

	// DefaultModel is the default Scira model.
	DefaultModel = "scira-default"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config contains configuration for the Scira provider.
type Config struct {
	APIKey  string        // Required: Scira API key
	BaseURL string        // Optional: API base URL (default: https://api.scira.ai)
	Model   string        // Optional: Default model (default: scira-default)
	Timeout time.Duration // Optional: HTTP timeout (default: 30s)
}

// Provider implements the llm.Provider interface for Scira.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	client  HTTPClient
	healthy bool
	mu      sync.RWMutex
}

// NewProvider creates a new Scira provider instance.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("scira API key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		client:  &http.Client{Timeout: cfg.Timeout},
		healthy: true,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "scira"
}

// Type returns the provider type.
func (p *Provider) Type() llm.ProviderType {
	return llm.ProviderTypeScira
}

// IsHealthy returns whether the provider is healthy.
func (p *Provider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy
}

// setHealthy updates the provider health status.
func (p *Provider) setHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// Complete generates a completion for the given request.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}

	apiReq := sciraRequest{
		Query: req.Prompt,
		Model: model,
	}
	if req.SystemPrompt != "" {
		apiReq.Instructions = req.SystemPrompt
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/api/search"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		return nil, llm.WrapTransportError(p.Name(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			p.setHealthy(false)
		}
		return nil, p.parseAPIError(resp.StatusCode, body)
	}

	p.setHealthy(true)

	var apiResp sciraResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// A 2xx with no text is a reportable condition, not an answer.
	if strings.TrimSpace(apiResp.Response) == "" {
		return nil, llm.NewProviderError(p.Name(), llm.ErrCodeEmptyResponse,
			"scira returned an empty response body")
	}

	usage := llm.UsageStats{}
	if apiResp.Usage != nil {
		usage.PromptTokens = apiResp.Usage.PromptTokens
		usage.CompletionTokens = apiResp.Usage.CompletionTokens
		usage.TotalTokens = apiResp.Usage.TotalTokens
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
	}

	return &llm.CompletionResponse{
		Content:      apiResp.Response,
		Model:        model,
		Usage:        usage,
		Latency:      time.Since(start),
		FinishReason: "stop",
	}, nil
}

// parseAPIError parses an API error response.
func (p *Provider) parseAPIError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	pe := llm.NewProviderError(p.Name(), llm.CodeForStatus(statusCode), message)
	pe.StatusCode = statusCode
	return pe
}

// SetHTTPClient sets a custom HTTP client for testing.
func (p *Provider) SetHTTPClient(client HTTPClient) {
	p.client = client
}

// Internal API types

type sciraRequest struct {
	Query        string `json:"query"`
	Model        string `json:"model,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type sciraResponse struct {
	Response string      `json:"response"`
	Usage    *sciraUsage `json:"usage,omitempty"`
}

type sciraUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Verify interface compliance at compile time.
var _ llm.Provider = (*Provider)(nil)
