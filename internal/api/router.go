// Package api wires up the Gin engine with all routes and middleware for the
// background-task connector's REST API.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskengine/backgroundtask/connector"
	"github.com/taskengine/backgroundtask/internal/api/handler"
	"github.com/taskengine/backgroundtask/internal/api/service"
	ws "github.com/taskengine/backgroundtask/internal/api/websocket"
)

// NewRouter constructs a configured *gin.Engine around conn and hub. hub is
// constructed by the caller (cmd/apiserver) so it can also be wired into
// conn's Notifier option before the router starts serving.
func NewRouter(conn *connector.Connector, hub *ws.Hub) *gin.Engine {
	svc := service.New(conn)
	h := handler.New(svc, hub)

	r := gin.New()
	r.Use(gin.Recovery())
	h.RegisterRoutes(r)

	// Expose Prometheus metrics at /metrics.
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
