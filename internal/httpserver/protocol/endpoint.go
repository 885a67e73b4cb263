// Package protocol defines how HTTP endpoints describe their routes to the server.
package protocol

import "net/http"

// EndpointRoute binds one method and chi path pattern to a handler.
type EndpointRoute struct {
	Method  string
	Path    string
	Handler http.Handler
}

// Endpoint is a named group of routes registered together.
type Endpoint interface {
	Name() string
	Routes() []EndpointRoute
}

// Describe lists an endpoint's routes as "METHOD path" strings.
func Describe(ep Endpoint) []string {
	routes := ep.Routes()
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.Method+" "+r.Path)
	}
	return out
}
