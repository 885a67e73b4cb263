package loopback

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tokligence/chatrelay/internal/adapter"
	"github.com/tokligence/chatrelay/internal/chat"
)

// Ensure Provider implements adapter.Provider.
var _ adapter.Provider = (*Provider)(nil)

// Prefix is prepended to every echoed reply.
const Prefix = "[loopback] "

// Provider echoes the last user message back to the caller, one word at a time.
// It needs no credentials and is used to exercise the streaming pipeline.
type Provider struct {
	delay time.Duration
}

// New creates a loopback Provider. delay is waited between fragments.
func New(delay time.Duration) *Provider {
	if delay < 0 {
		delay = 0
	}
	return &Provider{delay: delay}
}

func (p *Provider) Name() string { return "loopback" }

// OpenStream fabricates a deterministic completion for testing the gateway pipeline.
func (p *Provider) OpenStream(ctx context.Context, req adapter.Request) (adapter.Stream, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("loopback: no messages provided")
	}

	// find last user message; default to final message if none
	message := req.Messages[len(req.Messages)-1]
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == chat.RoleUser {
			message = req.Messages[i]
			break
		}
	}

	words := strings.SplitAfter(strings.TrimSpace(message.Content), " ")
	frags := make([]string, 0, len(words)+1)
	frags = append(frags, Prefix)
	for _, w := range words {
		if w != "" {
			frags = append(frags, w)
		}
	}
	return &stream{ctx: ctx, frags: frags, delay: p.delay}, nil
}

type stream struct {
	ctx   context.Context
	mu    sync.Mutex
	frags []string
	pos   int
	delay time.Duration
}

func (s *stream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.frags) {
		return "", io.EOF
	}
	if s.pos > 0 && s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return "", s.ctx.Err()
		case <-timer.C:
		}
	} else if err := s.ctx.Err(); err != nil {
		return "", err
	}
	f := s.frags[s.pos]
	s.pos++
	return f, nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	s.pos = len(s.frags)
	s.mu.Unlock()
	return nil
}
