package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/database"
)

// Checker handles health check endpoints
type Checker struct {
	db        database.DB
	redis     interface{ Ping(ctx context.Context) error }
	graph     interface{ VerifyConnectivity(ctx context.Context) error }
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewChecker creates a new health checker. Redis and graph may be nil when
// those backends are disabled.
func NewChecker(db database.DB, redis interface{ Ping(ctx context.Context) error }, graph interface{ VerifyConnectivity(ctx context.Context) error }, version string) *Checker {
	return &Checker{
		db:        db,
		redis:     redis,
		graph:     graph,
		version:   version,
		startTime: time.Now(),
	}
}

// SetReady sets the readiness state
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// RegisterRoutes registers health check endpoints
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

// CheckResult represents an individual check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health returns the overall health status
func (c *Checker) Health(ctx echo.Context) error {
	status := &HealthStatus{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult),
		ReportedAt: time.Now(),
	}

	reqCtx := ctx.Request().Context()

	if c.db != nil {
		status.Checks["database"] = c.check(func() error { return c.db.PingContext(reqCtx) })
		if status.Checks["database"].Status == "unhealthy" {
			status.Status = "unhealthy"
		}
	}

	if c.redis != nil {
		status.Checks["redis"] = c.check(func() error { return c.redis.Ping(reqCtx) })
		if status.Checks["redis"].Status == "unhealthy" {
			status.Status = "degraded"
		}
	}

	if c.graph != nil {
		status.Checks["graph"] = c.check(func() error { return c.graph.VerifyConnectivity(reqCtx) })
		if status.Checks["graph"].Status == "unhealthy" && status.Status == "healthy" {
			status.Status = "degraded"
		}
	}

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	return ctx.JSON(code, status)
}

// Live is the liveness probe
func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready is the readiness probe
func (c *Checker) Ready(ctx echo.Context) error {
	if !c.ready.Load() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func (c *Checker) check(probe func() error) *CheckResult {
	start := time.Now()
	err := probe()
	latency := time.Since(start)

	if err != nil {
		return &CheckResult{
			Status:  "unhealthy",
			Message: err.Error(),
			Latency: latency.String(),
		}
	}
	return &CheckResult{
		Status:  "healthy",
		Latency: latency.String(),
	}
}
