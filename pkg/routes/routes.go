// Package routes assembles the HTTP surface
package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/collaborator"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/language"
	"github.com/Ramsey-B/fern/pkg/routes/version"
)

// Register wires middleware and every route group onto the echo instance
func Register(e *echo.Echo, serviceName string, logger ectologger.Logger, checker *health.Checker) {
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if checker != nil {
		checker.RegisterRoutes(e)
	}

	languageGroup := e.Group("/api/v1/videos/:video_id/languages")
	language.Register(languageGroup)
	version.Register(languageGroup)
	collaborator.Register(languageGroup)
}
