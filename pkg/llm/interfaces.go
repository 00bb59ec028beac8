// Package llm provides clients for the structured-generation collaborator.
package llm

import "context"

// LLMClient is the interface the aggregation engine uses to talk to the
// structured-generation collaborator. Use it for dependency injection so
// tests can substitute a mock.
type LLMClient interface {
	// GenerateResponse generates a completion for the prompt. The returned
	// text is raw model output; callers parse it defensively (strict parse
	// first, balanced-bracket extraction as the single fallback).
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}
