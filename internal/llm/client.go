// Package llm provides the text-generation collaborator interface used
// by the learning pipeline and the compliance judges.
//
// The engine never depends on a concrete provider: everything that
// generates text takes a Client, so the learning and validation logic
// stays deterministic and unit-testable with scripted fakes.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrGeneration indicates the generation provider failed.
	ErrGeneration = errors.New("generation request failed")

	// ErrRateLimited indicates the provider rejected the request due to
	// rate limiting. Callers degrade (abstain, skip learning) rather
	// than propagate this as fatal.
	ErrRateLimited = errors.New("generation request rate limited")

	// ErrInvalidConfig indicates invalid client configuration.
	ErrInvalidConfig = errors.New("invalid llm configuration")
)

// Client generates a completion from a prompt.
//
// Implementations handle retries and rate limiting internally; errors
// that escape are either ErrRateLimited or wrap ErrGeneration.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ClientFunc adapts a function to the Client interface, mainly for tests.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls the wrapped function.
func (f ClientFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
