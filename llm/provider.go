// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
)

// Provider is the unified interface for all LLM providers.
// Implementations must be safe for concurrent use.
//
// A provider issues exactly one outbound call per Complete invocation.
// Retry policy, if any, belongs to the caller.
type Provider interface {
	// Name returns the unique identifier for this provider instance.
	// This is used for routing, logging, and metrics.
	Name() string

	// Type returns the provider type (e.g., "scira", "deepseek").
	Type() ProviderType

	// Complete generates a completion for the given request.
	// The context carries cancellation and the per-call deadline.
	// Failures are returned as *ProviderError.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsHealthy reports whether the provider's last vendor call succeeded.
	IsHealthy() bool
}
