// Package provider adapts the external generative-text service behind a
// narrow interface. Model choice, prompt templates, and token limits are
// configuration; callers only see a prompt-in/text-out call with errors
// classified once, at construction, as retryable or terminal.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Request is a composed generation request
type Request struct {
	Prompt string
	Tone   string
}

// Response is a successful generation result
type Response struct {
	Text        string
	Model       string
	TotalTokens int64
}

// Generator is the narrow interface over the generative-text provider
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Error is a classified provider failure. Retryable is decided where the
// error is constructed and never re-derived downstream.
type Error struct {
	StatusCode int
	Message    string
	Retryable  bool
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("provider: status=%d retryable=%t: %s", e.StatusCode, e.Retryable, e.Message)
}

// IsRetryable reports whether err is a provider error worth retrying
func IsRetryable(err error) bool {
	var provErr *Error
	return errors.As(err, &provErr) && provErr.Retryable
}
