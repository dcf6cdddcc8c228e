package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type dbPinger interface {
	PingContext(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health checks.
type HealthHandler struct {
	db           dbPinger
	redis        redisPinger
	checkTimeout time.Duration
}

func NewHealthHandler(db dbPinger, redisClient redisPinger) *HealthHandler {
	return &HealthHandler{
		db:           db,
		redis:        redisClient,
		checkTimeout: 2 * time.Second,
	}
}

// Health reports database and Redis connectivity. Both are required for the
// worker to run, so either being down makes the service unavailable.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
	defer cancel()

	dbStatus := componentStatus(ctx, h.db)
	redisStatus := componentStatus(ctx, pingFunc(h.redis))

	overallStatus := "ok"
	code := http.StatusOK
	if dbStatus != "up" || redisStatus != "up" {
		overallStatus = "down"
		code = http.StatusServiceUnavailable
	}

	return c.JSON(code, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"components": map[string]any{
			"database": map[string]any{
				"status": dbStatus,
			},
			"redis": map[string]any{
				"status": redisStatus,
			},
		},
	})
}

type pingAdapter struct {
	p redisPinger
}

func (a pingAdapter) PingContext(ctx context.Context) error {
	return a.p.Ping(ctx)
}

func pingFunc(p redisPinger) dbPinger {
	if p == nil {
		return nil
	}
	return pingAdapter{p: p}
}

func componentStatus(ctx context.Context, p dbPinger) string {
	if p == nil {
		return "down"
	}
	if err := p.PingContext(ctx); err != nil {
		return "down"
	}
	return "up"
}
