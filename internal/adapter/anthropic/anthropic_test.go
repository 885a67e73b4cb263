package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tokligence/chatrelay/internal/adapter"
	"github.com/tokligence/chatrelay/internal/chat"
	"github.com/tokligence/chatrelay/internal/testutil"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config with all fields",
			cfg: Config{
				APIKey:         "sk-ant-test123",
				BaseURL:        "https://api.anthropic.com/",
				Version:        "2023-06-01",
				MaxTokens:      1024,
				RequestTimeout: 30 * time.Second,
			},
		},
		{
			name: "valid config with minimal fields",
			cfg:  Config{APIKey: "sk-ant-test123"},
		},
		{
			name:    "missing api key",
			cfg:     Config{BaseURL: "https://api.anthropic.com"},
			wantErr: true,
			errMsg:  "api key required",
		},
		{
			name:    "blank api key",
			cfg:     Config{APIKey: "  "},
			wantErr: true,
			errMsg:  "api key required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tt.errMsg) || !errors.Is(err, adapter.ErrMissingAPIKey) {
					t.Errorf("error = %v, want %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.HasSuffix(p.baseURL, "/") {
				t.Errorf("baseURL %q should not end with /", p.baseURL)
			}
			if p.maxTokens <= 0 || p.version == "" {
				t.Errorf("defaults not applied: %+v", p)
			}
		})
	}
}

func TestOpenStream(t *testing.T) {
	var captured map[string]interface{}
	var headers http.Header
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&captured)
		testutil.WriteSSE(w,
			"event: message_start",
			`{"type":"message_start","message":{"id":"msg_1"}}`,
			"event: content_block_delta",
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
			"event: ping",
			`{}`,
			"event: content_block_delta",
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" World"}}`,
			"event: message_stop",
			`{"type":"message_stop"}`,
		)
	}))

	p, err := New(Config{APIKey: "sk-ant-test", BaseURL: server.URL, MaxTokens: 256, RequestTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	temp := 0.2
	s, err := p.OpenStream(context.Background(), adapter.Request{
		Model:       "claude-3-5-sonnet-20241022",
		Temperature: &temp,
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: "Be brief."},
			{Role: chat.RoleUser, Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer s.Close()

	got, err := testutil.Drain(s)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("final error = %v, want io.EOF", err)
	}
	if !reflect.DeepEqual(got, []string{"Hello", " World"}) {
		t.Fatalf("fragments = %q", got)
	}

	if headers.Get("x-api-key") != "sk-ant-test" || headers.Get("anthropic-version") != "2023-06-01" {
		t.Errorf("headers = %v", headers)
	}
	if captured["system"] != "Be brief." || captured["stream"] != true {
		t.Errorf("payload = %v", captured)
	}
	if captured["max_tokens"] != float64(256) || captured["temperature"] != 0.2 {
		t.Errorf("payload = %v", captured)
	}
	if msgs, _ := captured["messages"].([]interface{}); len(msgs) != 1 {
		t.Errorf("messages = %v", captured["messages"])
	}
}

func TestOpenStream_APIError(t *testing.T) {
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))

	p, _ := New(Config{APIKey: "bad", BaseURL: server.URL})
	_, err := p.OpenStream(context.Background(), adapter.Request{Model: "claude-3-haiku", Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}}})
	if err == nil || !strings.Contains(err.Error(), "invalid x-api-key") || !strings.Contains(err.Error(), "401") {
		t.Fatalf("OpenStream() error = %v", err)
	}
}

func TestOpenStream_MidStreamError(t *testing.T) {
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteSSE(w,
			"event: content_block_delta",
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}`,
			"event: error",
			`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
		)
	}))

	p, _ := New(Config{APIKey: "k", BaseURL: server.URL})
	s, err := p.OpenStream(context.Background(), adapter.Request{Model: "claude-3-haiku", Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer s.Close()
	got, err := testutil.Drain(s)
	if len(got) != 1 || got[0] != "partial" {
		t.Fatalf("fragments = %q", got)
	}
	if err == nil || errors.Is(err, io.EOF) || !strings.Contains(err.Error(), "Overloaded") {
		t.Fatalf("final error = %v, want overloaded", err)
	}
	if _, again := s.Recv(); again != err {
		t.Fatalf("Recv() after failure = %v, want sticky %v", again, err)
	}
}

func TestOpenStream_TruncatedBody(t *testing.T) {
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteSSE(w,
			"event: message_start",
			`{"type":"message_start","message":{"id":"msg_1"}}`,
			"event: content_block_delta",
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"The answer is"}}`,
		)
	}))

	p, _ := New(Config{APIKey: "k", BaseURL: server.URL})
	s, err := p.OpenStream(context.Background(), adapter.Request{Model: "claude-3-haiku", Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer s.Close()
	got, err := testutil.Drain(s)
	if len(got) != 1 || got[0] != "The answer is" {
		t.Fatalf("fragments = %q", got)
	}
	if errors.Is(err, io.EOF) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("final error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestOpenStream_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteSSE(w, `{"type":"content_block_delta","delta":{"type":"text_delta","text":"a"}}`)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	p, _ := New(Config{APIKey: "k", BaseURL: server.URL})
	s, err := p.OpenStream(ctx, adapter.Request{Model: "claude-3-haiku", Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer s.Close()
	if f, err := s.Recv(); err != nil || f != "a" {
		t.Fatalf("first Recv() = %q, %v", f, err)
	}
	cancel()
	if _, err := s.Recv(); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("Recv() after cancel = %v, want error", err)
	}
}

func TestConvertMessages(t *testing.T) {
	msgs, system, err := convertMessages([]chat.Message{
		{Role: chat.RoleSystem, Content: "one"},
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleSystem, Content: "two"},
		{Role: chat.RoleAssistant, Content: "hello"},
		{Role: chat.RoleUser, Content: "again"},
	})
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if system != "one\n\ntwo" {
		t.Errorf("system = %q", system)
	}
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	if strings.Join(roles, ",") != "user,assistant,user" {
		t.Errorf("roles = %v", roles)
	}

	if _, _, err := convertMessages([]chat.Message{{Role: chat.RoleSystem, Content: "only"}}); err == nil {
		t.Error("expected error when only system messages are present")
	}
}
