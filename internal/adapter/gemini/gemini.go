package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/tokligence/chatrelay/internal/adapter"
	"github.com/tokligence/chatrelay/internal/chat"
)

// Ensure Provider implements adapter.Provider.
var _ adapter.Provider = (*Provider)(nil)

type modelsClient interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

var newClient = func(ctx context.Context, cfg *genai.ClientConfig) (modelsClient, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// Provider streams completions from the Gemini API through the Google Gen AI SDK.
type Provider struct {
	models modelsClient
}

// Config holds configuration for the Gemini provider.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to the SDK endpoint
	RequestTimeout time.Duration
}

// New creates a Gemini Provider.
func New(cfg Config) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", adapter.ErrMissingAPIKey)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cc.HTTPOptions.BaseURL = base
	}

	models, err := newClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{models: models}, nil
}

func (p *Provider) Name() string { return "gemini" }

// OpenStream starts generation and waits for the first response, so that
// request-level failures are reported here rather than mid-stream.
func (p *Provider) OpenStream(ctx context.Context, req adapter.Request) (adapter.Stream, error) {
	contents, config, err := buildRequest(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	next, stop := iter.Pull2(p.models.GenerateContentStream(ctx, req.Model, contents, config))
	s := &stream{next: next, stop: stop, cancel: cancel}

	resp, err, ok := next()
	if !ok {
		s.done = true
		return s, nil
	}
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("gemini: %w", err)
	}
	s.pending = extractVisibleText(resp)
	return s, nil
}

func buildRequest(req adapter.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, nil, errors.New("gemini: model is required")
	}
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("gemini: messages are required")
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	systemParts := make([]string, 0, 1)
	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleSystem:
			if content := strings.TrimSpace(msg.Content); content != "" {
				systemParts = append(systemParts, content)
			}
		case chat.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("gemini: at least one user or assistant message is required")
	}

	config := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	return contents, config, nil
}

// stream pulls responses from the SDK iterator. Each response carries the
// next slice of generated text.
type stream struct {
	mu      sync.Mutex
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	cancel  context.CancelFunc
	pending string
	done    bool
	err     error
}

func (s *stream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != "" {
		text := s.pending
		s.pending = ""
		return text, nil
	}
	if s.err != nil {
		return "", s.err
	}
	for !s.done {
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			break
		}
		if err != nil {
			s.err = fmt.Errorf("gemini: %w", err)
			return "", s.err
		}
		if text := extractVisibleText(resp); text != "" {
			return text, nil
		}
	}
	return "", io.EOF
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.pending = ""
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	return nil
}

func extractVisibleText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
