package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/tokligence/chatrelay/internal/chat"
)

// ErrMissingAPIKey is returned by provider constructors when no credential is configured.
var ErrMissingAPIKey = errors.New("api key required")

// Request is the provider-neutral completion request.
type Request struct {
	Model       string
	Messages    []chat.Message
	Temperature *float64
	MaxTokens   int
}

// Stream is a pull-based sequence of generated text fragments.
//
// Recv blocks until the next fragment is available. It returns io.EOF once the
// upstream finished normally; any other error means the upstream failed and the
// stream must not be read again. Close releases the underlying connection and is
// safe to call more than once.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider opens streaming completions against one upstream API.
type Provider interface {
	Name() string
	OpenStream(ctx context.Context, req Request) (Stream, error)
}

// Factory constructs a Provider. It is called once per request so that no
// client outlives the request that needed it.
type Factory func() (Provider, error)

// Phase tells whether an upstream failure happened before or during streaming.
type Phase string

const (
	PhaseConnect Phase = "connect"
	PhaseStream  Phase = "stream"
)

// UpstreamError wraps a failure reported by (or while talking to) a provider.
type UpstreamError struct {
	Provider string
	Phase    Phase
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream %s failed: %v", e.Provider, e.Phase, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
