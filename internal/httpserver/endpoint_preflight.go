package httpserver

import (
	"net/http"

	"github.com/tokligence/chatrelay/internal/httpserver/protocol"
)

// preflightEndpoint answers OPTIONS on any path with an empty 200.
// CORS headers are left to whatever fronts the relay.
type preflightEndpoint struct{}

func newPreflightEndpoint() protocol.Endpoint { return preflightEndpoint{} }

func (preflightEndpoint) Name() string { return "preflight" }

func (preflightEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodOptions, Path: "/*", Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})},
	}
}
