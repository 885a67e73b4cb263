package httpserver

import (
	"net/http"

	"github.com/tokligence/chatrelay/internal/httpserver/protocol"
	"github.com/tokligence/chatrelay/internal/metrics"
)

type metricsEndpoint struct {
	handler http.Handler
}

func newMetricsEndpoint(c *metrics.Collector) protocol.Endpoint {
	return &metricsEndpoint{handler: c.Handler()}
}

func (e *metricsEndpoint) Name() string { return "metrics" }

func (e *metricsEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/metrics", Handler: e.handler},
	}
}
