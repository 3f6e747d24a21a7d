// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gemini

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
func successResponse(content string, inputTokens, outputTokens int) *http.Response {
	resp := geminiResponse{
		Candidates: []geminiCandidate{
			{
				Content: geminiContent{
					Parts: []geminiPart{{Text: content}},
					Role:  "model",
				},
				FinishReason: "STOP",
				Index:        0,
			},
		},
		UsageMetadata: &geminiUsageMetadata{
			PromptTokenCount:     inputTokens,
			CandidatesTokenCount: outputTokens,
			TotalTokenCount:      inputTokens + outputTokens,
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
func errorResponse(statusCode int, message, status string) *http.Response {
	resp := map[string]any{
		"error": map[string]any{
			"code":    statusCode,
			"message": message,
			"status":  status,
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
				APIKey:     "test-api-key",
				BaseURL:    "https://custom.api.example",
				APIVersion: "v1",
				Model:      ModelGemini15Flash,
				Timeout:    60 * time.Second,
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
			if p.Name() != "gemini" {
				t.Errorf("Name() = %q, want gemini", p.Name())
			}
			if p.Type() != llm.ProviderTypeGemini {
				t.Errorf("Type() = %q, want %q", p.Type(), llm.ProviderTypeGemini)
			}
		})
	}
}

func TestCompleteSuccess(t *testing.T) {
	p, _ := NewProvider(Config{APIKey: "test-key"})

	var capturedURL string
	var captured map[string]any
	p.SetHTTPClient(&mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			capturedURL = req.URL.String()
			body, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(body, &captured)
			return successResponse("gemini says hi", 15, 30), nil
		},
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Prompt:       "say hi",
		SystemPrompt: "be friendly",
		MaxTokens:    256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "gemini says hi" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", resp.Model, DefaultModel)
	}
	if resp.Usage.TotalTokens != 45 {
		t.Errorf("TotalTokens = %d, want 45", resp.Usage.TotalTokens)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", resp.FinishReason)
	}

	if !strings.Contains(capturedURL, ":generateContent") {
		t.Errorf("URL = %q, want generateContent call", capturedURL)
	}
	if !strings.Contains(capturedURL, "key=test-key") {
		t.Errorf("URL = %q, want API key query param", capturedURL)
	}
	if _, ok := captured["systemInstruction"]; !ok {
		t.Error("request should carry systemInstruction")
	}
}

func TestCompleteModelOverride(t *testing.T) {
	p, _ := NewProvider(Config{APIKey: "test-key"})

	var capturedURL string
	p.SetHTTPClient(&mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			capturedURL = req.URL.String()
			return successResponse("ok", 1, 1), nil
		},
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Prompt: "q",
		Model:  ModelGemini25Pro,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Model != ModelGemini25Pro {
		t.Errorf("Model = %q, want %q", resp.Model, ModelGemini25Pro)
	}
	if !strings.Contains(capturedURL, "models/"+ModelGemini25Pro) {
		t.Errorf("URL = %q, want model override in path", capturedURL)
	}
}

func TestCompleteEmptyCandidates(t *testing.T) {
	p, _ := NewProvider(Config{APIKey: "test-key"})
	p.SetHTTPClient(&mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			body, _ := json.Marshal(geminiResponse{})
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewReader(body)),
				Header:     make(http.Header),
			}, nil
		},
	})

	_, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "q"})
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
	}{
		{"invalid key", 403, llm.ErrCodeAuth},
		{"quota exhausted", 429, llm.ErrCodeRateLimit},
		{"internal", 500, llm.ErrCodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := NewProvider(Config{APIKey: "test-key"})
			p.SetHTTPClient(&mockHTTPClient{
				DoFunc: func(req *http.Request) (*http.Response, error) {
					return errorResponse(tt.statusCode, "nope", "ERROR"), nil
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
		})
	}
}

func TestCompleteDeadlineExceeded(t *testing.T) {
	p, _ := NewProvider(Config{APIKey: "test-key"})
	p.SetHTTPClient(&mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, llm.CompletionRequest{Prompt: "q"})
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error is %T, want *llm.ProviderError", err)
	}
	if pe.Code != llm.ErrCodeTimeout {
		t.Errorf("Code = %q, want %q", pe.Code, llm.ErrCodeTimeout)
	}
}

func TestMapFinishReason(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"STOP", "stop"},
		{"MAX_TOKENS", "max_tokens"},
		{"SAFETY", "content_filter"},
		{"RECITATION", "content_filter"},
		{"OTHER", "other"},
		{"SOMETHING_NEW", "SOMETHING_NEW"},
	}

	for _, tt := range tests {
		if got := mapFinishReason(tt.in); got != tt.want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
