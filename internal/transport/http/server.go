// Package http provides the HTTP server implementation.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/workmusicalflow/FreelanceFlow-v1/internal/metrics"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/service"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/transport/http/legacy"
	v1 "github.com/workmusicalflow/FreelanceFlow-v1/internal/transport/http/v1"
	"github.com/workmusicalflow/FreelanceFlow-v1/internal/transport/ws"
)

// NewServer creates and configures the HTTP server. wsServer and m may be nil.
func NewServer(svc *service.Service, wsServer *ws.Server, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)
	legacyHandler := legacy.NewHandler(svc)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	legacyHandler.RegisterRoutes(e)

	if wsServer != nil {
		e.GET("/ws", wsServer.HandleWebSocket)
	}
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	return e
}
