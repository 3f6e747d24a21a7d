// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package scira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"promptgate/gateway/llm"
)

// mockHTTPClient is a mock HTTP client for testing.
type mockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.DoFunc(req)
}

// Helper to create a successful response.
func successResponse(answer string, promptTokens, completionTokens int) *http.Response {
	resp := sciraResponse{
		Response: answer,
		Usage: &sciraUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
	body, _ := json.Marshal(resp)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

// Helper to create an error response.
func errorResponse(statusCode int, message string) *http.Response {
	resp := map[string]any{
		"error": map[string]any{
			"message": message,
		},
	}
	body, _ := json.Marshal(resp)
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config with all fields",
			cfg: Config{
				APIKey:  "test-api-key",
				BaseURL: "https://custom.scira.example",
				Model:   "scira-pro",
				Timeout: 60 * time.Second,
			},
			wantErr: false,
		},
		{
			name:    "valid config with minimal fields",
			cfg:     Config{APIKey: "test-api-key"},
			wantErr: false,
		},
		{
			name:    "missing API key",
			cfg:     Config{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != "scira" {
				t.Errorf("Name() = %q, want scira", p.Name())
			}
			if p.Type() != llm.ProviderTypeScira {
				t.Errorf("Type() = %q, want %q", p.Type(), llm.ProviderTypeScira)
			}
			if !p.IsHealthy() {
				t.Error("new provider should start healthy")
			}
		})
	}
}

func TestNewProviderDefaults(t *testing.T) {
	p, err := NewProvider(Config{APIKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", p.baseURL, DefaultBaseURL)
	}
	if p.model != DefaultModel {
		t.Errorf("model = %q, want %q", p.model, DefaultModel)
	}
	if p.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", p.timeout, DefaultTimeout)
	}
}

func TestCompleteSuccess(t *testing.T) {
	p, _ := NewProvider(Config{APIKey: "test-key"})

	var captured sciraRequest
	p.SetHTTPClient(&mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			if req.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", req.Method)
			}
			if !strings.HasSuffix(req.URL.Path, "/api/search") {
				t.Errorf("path = %s, want /api/search suffix", req.URL.Path)
			}
			if got := req.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("Authorization = %q", got)
			}
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &captured)
			return successResponse("the answer", 12, 34), nil
		},
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Prompt:       "what is promptgate",
		SystemPrompt: "be brief",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "the answer" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 46 {
		t.Errorf("TotalTokens = %d, want 46", resp.Usage.TotalTokens)
	}
	if captured.Query != "what is promptgate" {
		t.Errorf("request query = %q", captured.Query)
	}
	if captured.Instructions != "be brief" {
		t.Errorf("request instructions = %q", captured.Instructions)
	}
	if !p.IsHealthy() {
		t.Error("provider should be healthy after success")
	}
}

func TestCompleteEmptyResponse(t *testing.T) {
	p, _ := NewProvider(Config{APIKey: "test-key"})
	p.SetHTTPClient(&mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return successResponse("   ", 5, 0), nil
		},
	})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "q"})
	if err == nil {
		t.Fatal("expected error for empty response")
	}

	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error is %T, want *llm.ProviderError", err)
	}
	if pe.Code != llm.ErrCodeEmptyResponse {
		t.Errorf("Code = %q, want %q", pe.Code, llm.ErrCodeEmptyResponse)
	}
}

func TestCompleteAPIErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantCode   string
		wantRetry  bool
	}{
		{"unauthorized", 401, llm.ErrCodeAuth, false},
		{"forbidden", 403, llm.ErrCodeAuth, false},
		{"rate limited", 429, llm.ErrCodeRateLimit, true},
		{"server error", 500, llm.ErrCodeServerError, true},
		{"bad request", 400, llm.ErrCodeRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := NewProvider(Config{APIKey: "test-key"})
			p.SetHTTPClient(&mockHTTPClient{
				DoFunc: func(req *http.Request) (*http.Response, error) {
					return errorResponse(tt.statusCode, "upstream said no"), nil
				},
			})

			_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "q"})
			var pe *llm.ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("error is %T, want *llm.ProviderError", err)
			}
			if pe.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", pe.Code, tt.wantCode)
			}
			if pe.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", pe.StatusCode, tt.statusCode)
			}
			if pe.Retryable != tt.wantRetry {
				t.Errorf("Retryable = %v, want %v", pe.Retryable, tt.wantRetry)
			}
			if pe.Message != "upstream said no" {
				t.Errorf("Message = %q", pe.Message)
			}
		})
	}
}

func TestCompleteTransportError(t *testing.T) {
	p, _ := NewProvider(Config{APIKey: "test-key"})
	p.SetHTTPClient(&mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
	})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "q"})
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error is %T, want *llm.ProviderError", err)
	}
	if pe.Code != llm.ErrCodeNetwork {
		t.Errorf("Code = %q, want %q", pe.Code, llm.ErrCodeNetwork)
	}
	if p.IsHealthy() {
		t.Error("provider should be unhealthy after transport failure")
	}
}

func TestCompleteContextCancelled(t *testing.T) {
	p, _ := NewProvider(Config{APIKey: "test-key"})
	p.SetHTTPClient(&mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return nil, req.Context().Err()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Complete(ctx, llm.CompletionRequest{Prompt: "q"})
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error is %T, want *llm.ProviderError", err)
	}
	if pe.Code != llm.ErrCodeTimeout {
		t.Errorf("Code = %q, want %q", pe.Code, llm.ErrCodeTimeout)
	}
}
