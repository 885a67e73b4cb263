package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tokligence/chatrelay/internal/adapter"
	"github.com/tokligence/chatrelay/internal/chat"
	"github.com/tokligence/chatrelay/internal/health"
	"github.com/tokligence/chatrelay/internal/httpserver/protocol"
	"github.com/tokligence/chatrelay/internal/metrics"
	"github.com/tokligence/chatrelay/internal/stream"
)

const defaultMaxBodyBytes = 1 << 20

// Completer opens a completion stream for a validated conversation.
type Completer interface {
	Open(ctx context.Context, conv chat.Conversation) (*adapter.Completion, error)
}

// Options wires the server's collaborators. Completer is required.
type Options struct {
	Completer    Completer
	Mode         chat.Mode
	Framing      stream.Framing
	MaxBodyBytes int64
	Logger       *slog.Logger
	Metrics      *metrics.Collector // nil disables /metrics
	Health       *health.Checker
}

// Server hosts the chat relay HTTP surface.
type Server struct {
	completer    Completer
	mode         chat.Mode
	framer       stream.Framer
	maxBodyBytes int64
	logger       *slog.Logger
	metrics      *metrics.Collector
	health       *health.Checker
}

// New validates opts and builds a Server.
func New(opts Options) (*Server, error) {
	if opts.Completer == nil {
		return nil, errors.New("httpserver: completer required")
	}
	mode := opts.Mode
	if mode == "" {
		mode = chat.ModeStrict
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	checker := opts.Health
	if checker == nil {
		checker = health.New("")
	}
	return &Server{
		completer:    opts.Completer,
		mode:         mode,
		framer:       stream.NewFramer(opts.Framing),
		maxBodyBytes: maxBody,
		logger:       logger,
		metrics:      opts.Metrics,
		health:       checker,
	}, nil
}

// Router returns the HTTP handler serving every registered endpoint.
func (s *Server) Router() http.Handler {
	r := s.newBaseRouter()
	s.registerEndpoints(r, s.endpoints()...)
	// OPTIONS /* makes every path known to chi, so a wrong method is reported
	// the same way as an unknown path.
	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleNotFound)
	return r
}

func (s *Server) newBaseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	return r
}

func (s *Server) endpoints() []protocol.Endpoint {
	eps := []protocol.Endpoint{
		newChatEndpoint(s),
		newHealthEndpoint(s),
		newPreflightEndpoint(),
	}
	if s.metrics != nil {
		eps = append(eps, newMetricsEndpoint(s.metrics))
	}
	return eps
}

func (s *Server) registerEndpoints(r chi.Router, endpoints ...protocol.Endpoint) {
	for _, ep := range endpoints {
		if ep == nil {
			continue
		}
		s.logger.Debug("registering endpoint", "endpoint", ep.Name(), "routes", protocol.Describe(ep))
		for _, route := range ep.Routes() {
			r.Method(route.Method, route.Path, route.Handler)
		}
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusNotFound, errorBody{
		Error:   "HTTP Exception",
		Message: fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path),
	})
}

// errorBody is the JSON shape of every non-streaming failure.
type errorBody struct {
	Error   string       `json:"error"`
	Message string       `json:"message,omitempty"`
	Details []chat.Issue `json:"details,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, title string, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, errorBody{Error: title, Message: err.Error()})
}
