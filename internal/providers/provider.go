// internal/providers/provider.go

// Package providers defines the interfaces for talking to completion and
// embedding backends. It gives the rest of the application one abstraction
// for streamed chat, structured output and embeddings regardless of the
// underlying HTTP API (OpenAI-compatible or Ollama).
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Chat roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single message in a chat conversation.
// It contains the role of the message sender (e.g., "user", "assistant") and the message content.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseSchema constrains a completion to a JSON document matching Schema.
type ResponseSchema struct {
	Name   string
	Schema map[string]any
}

// StreamMetadata describes a finished completion.
type StreamMetadata struct {
	Model            string
	CreatedAt        time.Time
	Done             bool
	PromptTokens     int
	CompletionTokens int
}

// StreamRequest encapsulates all the information needed to issue a completion.
type StreamRequest struct {
	Model            string
	Messages         []ChatMessage
	SystemPrompt     string
	Temperature      float64
	DisableStreaming bool
	Schema           *ResponseSchema
}

// StreamCallbacks defines the callback functions that are invoked during a chat stream.
// OnChunk is called for each content delta; returning an error aborts the
// stream and that error is returned from Stream. OnComplete is called once
// the provider signals the end of the response.
type StreamCallbacks struct {
	OnChunk    func(ChatMessage) error
	OnComplete func(StreamMetadata) error
}

// ChatProvider is the interface that every completion backend implements.
type ChatProvider interface {
	// Stream issues a completion and forwards output to callbacks. With
	// DisableStreaming the whole answer arrives as a single chunk.
	Stream(ctx context.Context, req StreamRequest, callbacks StreamCallbacks) error
	// Close cleans up any resources used by the provider.
	Close() error
}

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProviderError reports a failed call to an external provider: network,
// authentication, rate limiting or a malformed response.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err unless it already is a ProviderError or a
// context cancellation, which callers need to see unchanged.
func NewProviderError(provider, op string, status int, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &ProviderError{Provider: provider, Op: op, StatusCode: status, Err: err}
}

// IsProviderError reports whether err came from a provider call.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// Collect runs a non-streaming request and returns the concatenated content.
func Collect(ctx context.Context, p ChatProvider, req StreamRequest) (string, StreamMetadata, error) {
	req.DisableStreaming = true
	var out []byte
	var meta StreamMetadata
	err := p.Stream(ctx, req, StreamCallbacks{
		OnChunk: func(msg ChatMessage) error {
			out = append(out, msg.Content...)
			return nil
		},
		OnComplete: func(m StreamMetadata) error {
			meta = m
			return nil
		},
	})
	return string(out), meta, err
}
