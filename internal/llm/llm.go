// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm wraps the Gemini completion API behind a small Model interface
// used by the planning, requirements, search-fallback, and summary steps.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Request is one completion call.
type Request struct {
	// System is the system instruction. Optional.
	System string

	// Prompt is the user turn.
	Prompt string

	// JSON asks the model to answer with a JSON document.
	JSON bool
}

// Model generates text for a request. Implementations must be safe for
// concurrent use.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f ModelFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
