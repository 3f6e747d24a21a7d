// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"promptgate/gateway/llm"
	"promptgate/gateway/shared/logger"
)

// Service state wired by Run() (and by tests through setupTestGateway).
var (
	registry    *llm.Registry
	chain       *Chain
	rateLimiter RateLimiter
	userRepo    UserRepo
	chatRepo    ChatRepo
	gatewayLog  *logger.Logger
	startTime   time.Time
)

// checkRateLimit admits or rejects the request for the route's tier.
// A rejection is written immediately; validation and provider code are
// never reached.
func checkRateLimit(w http.ResponseWriter, r *http.Request, tier Tier, start time.Time, requestID string) bool {
	decision := rateLimiter.Allow(r.Context(), clientIP(r), tier)
	if decision.Allowed {
		return true
	}

	promRateLimited.WithLabelValues(string(tier)).Inc()
	gatewayLog.Warn(clientIP(r), requestID, "rate limit exceeded",
		map[string]interface{}{"tier": string(tier), "path": r.URL.Path})

	retrySeconds := int(decision.RetryAfter.Seconds() + 1)
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retrySeconds))
	sendErrorResponse(w, http.StatusTooManyRequests,
		"rate limit exceeded, try again later",
		map[string]interface{}{"retry_after_seconds": retrySeconds},
		start, requestID)
	return false
}

// validatePrompt decodes and schema-checks a prompt request body. On
// failure the 400 envelope is written and ok is false.
func validatePrompt(w http.ResponseWriter, r *http.Request, start time.Time, requestID string) (input string, ok bool) {
	raw, err := decodeBody(r.Body)
	if err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "invalid request body", nil, start, requestID)
		return "", false
	}

	result := promptSchema.Validate(raw)
	if !result.Valid {
		gatewayLog.Warn(clientIP(r), requestID, "request validation failed",
			map[string]interface{}{"schema": promptSchema.Name, "errors": result.FieldErrors})
		sendErrorResponse(w, http.StatusBadRequest, "validation failed", result.FieldErrors, start, requestID)
		return "", false
	}

	return result.Data["input"], true
}

// statusForProviderError maps a provider failure onto the response status.
// Vendor rejections propagate the vendor's own status unchanged.
func statusForProviderError(err error) int {
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		return http.StatusBadGateway
	}

	switch pe.Code {
	case llm.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case llm.ErrCodeNetwork, llm.ErrCodeEmptyResponse:
		return http.StatusBadGateway
	default:
		if pe.StatusCode >= 400 {
			return pe.StatusCode
		}
		return http.StatusBadGateway
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	providers := map[string]bool{}
	for _, name := range registry.Names() {
		if p, err := registry.Get(name); err == nil {
			providers[name] = p.IsHealthy()
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "promptgate-gateway",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(startTime).Round(time.Second).String(),
		"providers": providers,
	})
}

// chainHandler runs the configured multi-provider chain: each stage's
// output becomes the next stage's prompt.
func chainHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	if !checkRateLimit(w, r, TierChain, start, requestID) {
		observeRequest("chain", "rate_limited", time.Since(start).Milliseconds())
		return
	}

	input, ok := validatePrompt(w, r, start, requestID)
	if !ok {
		observeRequest("chain", "invalid", time.Since(start).Milliseconds())
		return
	}

	result, err := chain.Run(r.Context(), requestID, input)
	for _, stage := range result.Stages {
		status := "success"
		if stage.ErrorKind != "" {
			status = stage.ErrorKind
		}
		promProviderCalls.WithLabelValues(stage.Provider, status).Inc()
	}

	if err != nil {
		var stageErr *StageError
		details := map[string]interface{}{"stages": result.Stages}
		if errors.As(err, &stageErr) {
			details["failed_stage"] = stageErr.Provider
		}

		status := statusForProviderError(err)
		observeRequest("chain", "error", time.Since(start).Milliseconds())
		sendErrorResponse(w, status, err.Error(), details, start, requestID)
		return
	}

	chainOutputs := make(map[string]string, len(result.Stages))
	for _, stage := range result.Stages {
		chainOutputs[stage.Provider] = stage.Output
	}

	gatewayLog.InfoWithDuration(clientIP(r), requestID, "chain completed",
		float64(time.Since(start).Milliseconds()),
		map[string]interface{}{"stages": len(result.Stages)})

	observeRequest("chain", "success", time.Since(start).Milliseconds())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"output":   result.FinalOutput,
		"chain":    chainOutputs,
		"stages":   result.Stages,
		"metadata": newMetadata(start, requestID),
	})
}

// providerHandler builds the handler for a single-provider endpoint.
func providerHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()

		if !checkRateLimit(w, r, TierProvider, start, requestID) {
			observeRequest(name, "rate_limited", time.Since(start).Milliseconds())
			return
		}

		input, ok := validatePrompt(w, r, start, requestID)
		if !ok {
			observeRequest(name, "invalid", time.Since(start).Milliseconds())
			return
		}

		provider, err := registry.Get(name)
		if err != nil {
			observeRequest(name, "error", time.Since(start).Milliseconds())
			sendErrorResponse(w, http.StatusNotFound,
				fmt.Sprintf("provider %q is not configured", name), nil, start, requestID)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), DefaultStageTimeout)
		defer cancel()

		resp, err := provider.Complete(ctx, llm.CompletionRequest{Prompt: input})
		if err != nil {
			pe := asProviderError(name, ctx, err)
			promProviderCalls.WithLabelValues(name, pe.Code).Inc()
			gatewayLog.ErrorWithCode(clientIP(r), requestID, "provider call failed",
				pe.StatusCode, pe, map[string]interface{}{"provider": name, "error_kind": pe.Code})

			observeRequest(name, "error", time.Since(start).Milliseconds())
			sendErrorResponse(w, statusForProviderError(pe), pe.Error(),
				map[string]interface{}{"provider": name, "error_kind": pe.Code},
				start, requestID)
			return
		}

		promProviderCalls.WithLabelValues(name, "success").Inc()
		gatewayLog.InfoWithDuration(clientIP(r), requestID, "provider call completed",
			float64(time.Since(start).Milliseconds()),
			map[string]interface{}{
				"provider":     name,
				"model":        resp.Model,
				"total_tokens": resp.Usage.TotalTokens,
			})

		observeRequest(name, "success", time.Since(start).Milliseconds())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"output":   resp.Content,
			"usage":    resp.Usage,
			"model":    resp.Model,
			"metadata": newMetadata(start, requestID),
		})
	}
}
