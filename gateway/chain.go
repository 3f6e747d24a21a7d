// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"promptgate/gateway/llm"
	"promptgate/gateway/shared/logger"
)

const (
	// DefaultStageTimeout bounds each individual provider call.
	DefaultStageTimeout = 30 * time.Second

	// DefaultChainTimeout bounds the whole chain, across all stages.
	DefaultChainTimeout = 60 * time.Second
)

// ChainStage pairs a provider with the name it reports in results.
type ChainStage struct {
	Name     string
	Provider llm.Provider
}

// StageResult records the outcome of one stage. Either Output or the error
// fields are set, never both.
type StageResult struct {
	Provider     string          `json:"provider"`
	Output       string          `json:"output,omitempty"`
	Usage        *llm.UsageStats `json:"usage,omitempty"`
	ElapsedMS    int64           `json:"elapsed_ms"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error,omitempty"`
}

// ChainResult aggregates per-stage results. FinalOutput is set only when
// every stage succeeded; on failure the last entry in Stages carries the
// failing stage's error and no later stage was attempted.
type ChainResult struct {
	Stages      []StageResult `json:"stages"`
	FinalOutput string        `json:"final_output,omitempty"`
}

// StageError identifies which stage failed and wraps its error unchanged.
type StageError struct {
	StageIndex int
	Provider   string
	Err        error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("chain stage %d (%s) failed: %v", e.StageIndex+1, e.Provider, e.Err)
}

// Unwrap returns the underlying provider error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Chain runs a fixed, ordered sequence of providers, feeding each stage's
// output into the next. Stage order and count are static configuration,
// never derived from input.
type Chain struct {
	stages       []ChainStage
	stageTimeout time.Duration
	chainTimeout time.Duration
	log          *logger.Logger
}

// NewChain builds a chain over the given stages.
func NewChain(stages []ChainStage, stageTimeout, chainTimeout time.Duration) (*Chain, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("chain requires at least one stage")
	}
	for i, stage := range stages {
		if stage.Provider == nil {
			return nil, fmt.Errorf("chain stage %d (%s) has no provider", i+1, stage.Name)
		}
	}

	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	if chainTimeout <= 0 {
		chainTimeout = DefaultChainTimeout
	}

	return &Chain{
		stages:       stages,
		stageTimeout: stageTimeout,
		chainTimeout: chainTimeout,
		log:          logger.New("chain"),
	}, nil
}

// StageNames returns the configured stage names in order.
func (c *Chain) StageNames() []string {
	names := make([]string, len(c.stages))
	for i, stage := range c.stages {
		names[i] = stage.Name
	}
	return names
}

// Run executes the chain. The working prompt starts as the caller's prompt
// and becomes each stage's successful output. The first failing stage
// terminates the chain (fail-fast) and its error propagates unchanged
// inside a *StageError.
//
// One overall deadline covers the whole chain in addition to the per-stage
// timeout, and caller cancellation (client disconnect) aborts the in-flight
// vendor call and abandons the remaining stages.
func (c *Chain) Run(ctx context.Context, requestID, prompt string) (*ChainResult, error) {
	chainCtx, cancel := context.WithTimeout(ctx, c.chainTimeout)
	defer cancel()

	result := &ChainResult{
		Stages: make([]StageResult, 0, len(c.stages)),
	}

	working := prompt
	for i, stage := range c.stages {
		stageCtx, stageCancel := context.WithTimeout(chainCtx, c.stageTimeout)
		start := time.Now()
		resp, err := stage.Provider.Complete(stageCtx, llm.CompletionRequest{Prompt: working})
		stageCancel()
		elapsed := time.Since(start)

		if err != nil {
			pe := asProviderError(stage.Name, chainCtx, err)
			result.Stages = append(result.Stages, StageResult{
				Provider:     stage.Name,
				ElapsedMS:    elapsed.Milliseconds(),
				ErrorKind:    pe.Code,
				ErrorMessage: pe.Message,
			})

			c.log.ErrorWithCode("", requestID, "chain stage failed", pe.StatusCode, pe,
				map[string]interface{}{
					"stage":      i + 1,
					"provider":   stage.Name,
					"error_kind": pe.Code,
					"elapsed_ms": elapsed.Milliseconds(),
				})

			return result, &StageError{StageIndex: i, Provider: stage.Name, Err: pe}
		}

		result.Stages = append(result.Stages, StageResult{
			Provider:  stage.Name,
			Output:    resp.Content,
			Usage:     &resp.Usage,
			ElapsedMS: elapsed.Milliseconds(),
		})

		c.log.InfoWithDuration("", requestID, "chain stage completed",
			float64(elapsed.Milliseconds()), map[string]interface{}{
				"stage":        i + 1,
				"provider":     stage.Name,
				"total_tokens": resp.Usage.TotalTokens,
			})

		working = resp.Content
	}

	result.FinalOutput = working
	return result, nil
}

// asProviderError normalizes a stage failure into *llm.ProviderError.
// When the overall chain deadline expired, the error is reported as a
// chain-level timeout rather than a per-stage condition.
func asProviderError(provider string, chainCtx context.Context, err error) *llm.ProviderError {
	if errors.Is(chainCtx.Err(), context.DeadlineExceeded) {
		pe := llm.NewProviderError(provider, llm.ErrCodeTimeout, "chain deadline exceeded")
		pe.Cause = err
		return pe
	}

	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return llm.WrapTransportError(provider, err)
}
