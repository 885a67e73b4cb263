package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/tokligence/chatrelay/internal/adapter"
	"github.com/tokligence/chatrelay/internal/chat"
)

// Ensure Provider implements adapter.Provider.
var _ adapter.Provider = (*Provider)(nil)

const defaultBaseURL = "https://api.openai.com/v1"

// Provider streams chat completions from the OpenAI API (or any compatible endpoint).
type Provider struct {
	client openai.Client
}

// Config holds configuration for the OpenAI provider.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://api.openai.com/v1
	Organization   string // optional
	RequestTimeout time.Duration
}

// New creates an OpenAI Provider. Requests are never retried.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: %w", adapter.ErrMissingAPIKey)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		option.WithMaxRetries(0),
	}
	if org := strings.TrimSpace(cfg.Organization); org != "" {
		opts = append(opts, option.WithOrganization(org))
	}

	return &Provider{client: openai.NewClient(opts...)}, nil
}

func (p *Provider) Name() string { return "openai" }

// OpenStream sends a streaming chat completion request. HTTP-level failures
// surface here, before any chunk is read.
func (p *Provider) OpenStream(ctx context.Context, req adapter.Request) (adapter.Stream, error) {
	params, err := buildChatParams(req)
	if err != nil {
		return nil, err
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("openai: %w", err)
	}
	return &chunkStream{stream: stream}, nil
}

func buildChatParams(req adapter.Request) (openai.ChatCompletionNewParams, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return openai.ChatCompletionNewParams{}, errors.New("openai: model is required")
	}
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("openai: messages are required")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		param, err := toChatMessageParam(msg)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, param)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	return params, nil
}

func toChatMessageParam(msg chat.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case chat.RoleSystem:
		return openai.SystemMessage(msg.Content), nil
	case chat.RoleUser:
		return openai.UserMessage(msg.Content), nil
	case chat.RoleAssistant:
		return openai.AssistantMessage(msg.Content), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unsupported role %q", msg.Role)
	}
}

// chunkStream adapts the SDK's SSE stream to adapter.Stream.
type chunkStream struct {
	mu     sync.Mutex
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	closed bool
	// finished is set once a choice reports a finish_reason.
	finished bool
}

func (s *chunkStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", io.EOF
	}
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if chunk.Choices[0].FinishReason != "" {
			s.finished = true
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if !s.finished {
		return "", fmt.Errorf("openai: stream ended without finish_reason: %w", io.ErrUnexpectedEOF)
	}
	return "", io.EOF
}

func (s *chunkStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.stream.Close()
}
