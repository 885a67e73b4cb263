package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tokligence/chatrelay/internal/adapter"
	"github.com/tokligence/chatrelay/internal/chat"
)

// Ensure Provider implements adapter.Provider.
var _ adapter.Provider = (*Provider)(nil)

// DefaultMaxTokens is sent when neither the request nor the config sets a limit.
// Anthropic requires max_tokens on every request.
const DefaultMaxTokens = 4096

// Provider streams completions from the Anthropic Messages API (Claude).
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	version    string // API version header
	maxTokens  int
}

// Config holds configuration for the Anthropic provider.
type Config struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://api.anthropic.com
	Version        string // optional, defaults to 2023-06-01
	MaxTokens      int
	RequestTimeout time.Duration
}

// New creates an Anthropic Provider.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic: %w", adapter.ErrMissingAPIKey)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = "2023-06-01"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	// Timeout bounds the whole exchange, body included.
	return &Provider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		version:    version,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

// OpenStream sends a streaming request to Anthropic. It returns once response
// headers arrive; text deltas are read lazily by the returned stream.
func (p *Provider) OpenStream(ctx context.Context, req adapter.Request) (adapter.Stream, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: no messages provided")
	}

	messages, systemPrompt, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	payload := map[string]interface{}{
		"model":      req.Model,
		"messages":   messages,
		"max_tokens": maxTokens,
		"stream":     true,
	}
	if systemPrompt != "" {
		payload["system"] = systemPrompt
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", p.version)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, apiError(resp.StatusCode, data)
	}

	return &stream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

// stream reads Anthropic SSE events and yields text_delta payloads.
type stream struct {
	mu     sync.Mutex
	body   io.ReadCloser
	reader *bufio.Reader
	event  string
	done   bool
	err    error
}

func (s *stream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	for {
		text, err := s.next()
		if err != nil {
			s.err = err
			return "", err
		}
		if text != "" {
			return text, nil
		}
	}
}

// next consumes one line. It returns non-empty text for a text delta and
// io.EOF after message_stop. A body that ends before message_stop is a
// truncated response, not a completion.
func (s *stream) next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	line, err := s.reader.ReadString('\n')
	if err != nil && line == "" {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("anthropic: stream ended before message_stop: %w", io.ErrUnexpectedEOF)
		}
		return "", fmt.Errorf("anthropic: read stream: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		s.event = ""
		return "", nil
	}
	if strings.HasPrefix(line, "event:") {
		s.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		return "", nil
	}
	if !strings.HasPrefix(line, "data:") {
		return "", nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	// Some servers may send keepalive ping with '{}' or comments
	if payload == "{}" || payload == "[DONE]" {
		return "", nil
	}
	var evt streamEvent
	if perr := json.Unmarshal([]byte(payload), &evt); perr != nil {
		return "", fmt.Errorf("anthropic: parse stream: %w", perr)
	}
	switch {
	case evt.Type == "error" || s.event == "error":
		return "", fmt.Errorf("anthropic: %s (type=%s)", evt.Error.Message, evt.Error.Type)
	case evt.Type == "message_stop" || s.event == "message_stop":
		s.done = true
		return "", io.EOF
	case evt.Type == "content_block_delta" && evt.Delta.Type == "text_delta":
		return evt.Delta.Text, nil
	}
	return "", nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}

// anthropicMessage represents a message in Anthropic's format.
type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content,omitempty"`
}

// anthropicContentBlock represents a content block (text or other types).
type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Streaming event minimal schema
type streamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index,omitempty"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Error apiErrorBody `json:"error,omitempty"`
}

type apiErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func apiError(status int, body []byte) error {
	var errResp struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Errorf("anthropic: http %d: %s (type=%s)", status, errResp.Error.Message, errResp.Error.Type)
	}
	return fmt.Errorf("anthropic: http %d: %s", status, strings.TrimSpace(string(body)))
}

// convertMessages converts chat messages to Anthropic format.
// System messages are lifted into the top-level system prompt.
func convertMessages(in []chat.Message) ([]anthropicMessage, string, error) {
	var messages []anthropicMessage
	var systemPrompt string

	for _, msg := range in {
		if msg.Role == chat.RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
			continue
		}

		role := "user"
		if msg.Role == chat.RoleAssistant {
			role = "assistant"
		}

		messages = append(messages, anthropicMessage{
			Role:    role,
			Content: []anthropicContentBlock{{Type: "text", Text: msg.Content}},
		})
	}

	if len(messages) == 0 {
		return nil, "", errors.New("no user/assistant messages after filtering system messages")
	}

	return messages, systemPrompt, nil
}
