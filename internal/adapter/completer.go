package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tokligence/chatrelay/internal/adapter/smooth"
	"github.com/tokligence/chatrelay/internal/chat"
)

// CompleterConfig holds the fixed, per-deployment completion settings.
type CompleterConfig struct {
	Factory      Factory
	Model        string
	Mode         chat.Mode
	SystemPrompt string // prepended in strict mode only
	Temperature  *float64
	MaxTokens    int
	// Smoothing regroups upstream text on word boundaries and paces emission.
	Smoothing      bool
	SmoothingDelay time.Duration
}

// Completer turns a validated conversation into a fragment stream.
type Completer struct {
	cfg CompleterConfig
}

// Completion is an opened completion stream plus what produced it.
type Completion struct {
	Provider string
	Model    string
	Stream   Stream
}

// NewCompleter validates the configuration. Providers are not built here.
func NewCompleter(cfg CompleterConfig) (*Completer, error) {
	if cfg.Factory == nil {
		return nil, errors.New("completer: provider factory required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("completer: model required")
	}
	if cfg.Mode == "" {
		cfg.Mode = chat.ModeStrict
	}
	if cfg.SmoothingDelay < 0 {
		cfg.SmoothingDelay = 0
	}
	return &Completer{cfg: cfg}, nil
}

// Model returns the configured model id.
func (c *Completer) Model() string { return c.cfg.Model }

// Open constructs the provider for this request and opens the upstream stream.
// Any error returned here happened before a single fragment was produced.
func (c *Completer) Open(ctx context.Context, conv chat.Conversation) (*Completion, error) {
	provider, err := c.cfg.Factory()
	if err != nil {
		return nil, fmt.Errorf("construct provider: %w", err)
	}
	if c.cfg.Mode == chat.ModeStrict {
		conv = conv.WithSystemPrompt(c.cfg.SystemPrompt)
	}
	req := Request{
		Model:       c.cfg.Model,
		Messages:    conv.Messages(),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	upstream, err := provider.OpenStream(ctx, req)
	if err != nil {
		var uerr *UpstreamError
		if errors.As(err, &uerr) {
			return nil, err
		}
		return nil, &UpstreamError{Provider: provider.Name(), Phase: PhaseConnect, Err: err}
	}

	var out Stream = &tagged{provider: provider.Name(), src: upstream}
	if c.cfg.Smoothing {
		out = smooth.New(ctx, out, c.cfg.SmoothingDelay)
	}
	return &Completion{Provider: provider.Name(), Model: c.cfg.Model, Stream: out}, nil
}

// tagged marks mid-stream failures as upstream stream errors.
type tagged struct {
	provider string
	src      Stream
}

func (t *tagged) Recv() (string, error) {
	frag, err := t.src.Recv()
	if err == nil || errors.Is(err, io.EOF) {
		return frag, err
	}
	var uerr *UpstreamError
	if errors.As(err, &uerr) {
		return "", err
	}
	return "", &UpstreamError{Provider: t.provider, Phase: PhaseStream, Err: err}
}

func (t *tagged) Close() error { return t.src.Close() }
