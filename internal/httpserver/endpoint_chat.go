package httpserver

import (
	"net/http"

	"github.com/tokligence/chatrelay/internal/httpserver/protocol"
)

type chatEndpoint struct {
	server *Server
}

func newChatEndpoint(server *Server) protocol.Endpoint {
	return &chatEndpoint{server: server}
}

func (e *chatEndpoint) Name() string { return "chat" }

func (e *chatEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/chat", Handler: http.HandlerFunc(e.server.handleChat)},
	}
}
