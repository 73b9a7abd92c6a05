package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Request represents a single structured-output generation request.
type Request struct {
	Prompt string
	// ResponseSchema is attached to generationConfig so the model is forced
	// to answer with JSON of this shape. May be nil.
	ResponseSchema json.RawMessage
}

// Response represents a generation response.
type Response struct {
	Content string
	Model   string
}

// Client is the interface to the generative model provider.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
}

var (
	// ErrInvalidResponse indicates the provider response envelope lacked the
	// expected candidate/content/parts structure.
	ErrInvalidResponse = errors.New("invalid model response")

	// ErrRetryExhausted indicates the retry budget was spent without a
	// successful response.
	ErrRetryExhausted = errors.New("retry budget exhausted")
)
