// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the unified interface and types for LLM providers.
// Every vendor integration (scira, deepseek, gemini) implements the same
// contract so the gateway can chain and swap providers freely.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ProviderType identifies the type of LLM provider.
type ProviderType string

// Standard provider types supported out of the box.
const (
	// ProviderTypeScira represents the Scira answer engine.
	ProviderTypeScira ProviderType = "scira"

	// ProviderTypeDeepseek represents DeepSeek's chat models.
	ProviderTypeDeepseek ProviderType = "deepseek"

	// ProviderTypeGemini represents Google's Gemini models.
	ProviderTypeGemini ProviderType = "gemini"

	// ProviderTypeCustom represents a custom/third-party provider.
	ProviderTypeCustom ProviderType = "custom"
)

// CompletionRequest encapsulates all parameters for an LLM completion request.
// This is the unified request type used across all providers.
type CompletionRequest struct {
	// Prompt is the user's input text/question.
	Prompt string `json:"prompt"`

	// SystemPrompt is an optional system message that sets context/behavior.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens limits the maximum number of tokens in the response.
	// If 0, provider defaults are used.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64 `json:"temperature,omitempty"`

	// Model overrides the provider's default model.
	Model string `json:"model,omitempty"`
}

// CompletionResponse contains the result of an LLM completion.
type CompletionResponse struct {
	// Content is the generated text response.
	Content string `json:"content"`

	// Model is the actual model used (may differ from requested).
	Model string `json:"model"`

	// Usage contains token usage statistics.
	Usage UsageStats `json:"usage"`

	// Latency is the time taken to generate the response.
	Latency time.Duration `json:"latency"`

	// FinishReason indicates why generation stopped.
	FinishReason string `json:"finish_reason,omitempty"`
}

// UsageStats tracks token usage for billing and monitoring.
type UsageStats struct {
	// PromptTokens is the number of tokens in the input.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens generated.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the sum of prompt and completion tokens.
	TotalTokens int `json:"total_tokens"`
}

// ProviderError represents an error from an LLM provider.
type ProviderError struct {
	// Provider is the name of the provider that returned the error.
	Provider string `json:"provider"`

	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// StatusCode is the upstream HTTP status code (if applicable).
	StatusCode int `json:"status_code,omitempty"`

	// Retryable indicates if the request can be retried.
	Retryable bool `json:"retryable"`

	// Cause is the underlying error (if any).
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Common error codes.
const (
	// ErrCodeNetwork indicates the vendor endpoint was unreachable.
	ErrCodeNetwork = "network"

	// ErrCodeTimeout indicates the request deadline expired.
	ErrCodeTimeout = "timeout"

	// ErrCodeRejected indicates the vendor returned a non-2xx response.
	ErrCodeRejected = "vendor_rejected"

	// ErrCodeEmptyResponse indicates the vendor returned 2xx but no usable
	// text. This is surfaced as a distinct condition, never coerced into a
	// placeholder answer.
	ErrCodeEmptyResponse = "vendor_empty_response"

	// ErrCodeAuth indicates authentication failure with the vendor.
	ErrCodeAuth = "authentication_error"

	// ErrCodeRateLimit indicates the vendor rate limited the call.
	ErrCodeRateLimit = "rate_limit"

	// ErrCodeServerError indicates a vendor-side server error.
	ErrCodeServerError = "server_error"
)

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Retryable: isRetryableCode(code),
	}
}

// WrapTransportError classifies a transport-level failure from an outbound
// vendor call into a ProviderError. Context expiry maps to timeout, anything
// else to network.
func WrapTransportError(provider string, err error) *ProviderError {
	code := ErrCodeNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		code = ErrCodeTimeout
	} else if errors.Is(err, context.Canceled) {
		code = ErrCodeTimeout
	} else {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			code = ErrCodeTimeout
		}
	}

	pe := NewProviderError(provider, code, err.Error())
	pe.Cause = err
	return pe
}

// CodeForStatus maps an upstream HTTP status to an error code.
func CodeForStatus(status int) string {
	switch {
	case status == 401 || status == 403:
		return ErrCodeAuth
	case status == 429:
		return ErrCodeRateLimit
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeRejected
	}
}

// isRetryableCode determines if an error code is retryable.
// The gateway itself never retries; the flag is advisory for callers.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeRateLimit, ErrCodeServerError, ErrCodeTimeout, ErrCodeNetwork:
		return true
	default:
		return false
	}
}
