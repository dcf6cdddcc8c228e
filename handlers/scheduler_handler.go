package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/collections-worker/environments"
	"github.com/onurcolak/collections-worker/internal/domain"
	"github.com/onurcolak/collections-worker/internal/scheduler"
	"github.com/onurcolak/collections-worker/pkg/response"
	"github.com/onurcolak/collections-worker/pkg/validator"
)

type workerScheduler interface {
	StartWithSchedule(ctx context.Context, schedule string) error
	Stop() error
	IsRunning() bool
	RunNow(ctx context.Context) (domain.RunSummary, error)
	GetStatus() scheduler.SchedulerStatus
}

type SchedulerHandler struct {
	scheduler workerScheduler
	ctx       context.Context
	config    *environments.Config
}

type StartSchedulerRequest struct {
	Schedule *string `json:"schedule,omitempty" validate:"omitempty,schedule"`
}

func NewSchedulerHandler(
	sched workerScheduler,
	ctx context.Context,
	cfg *environments.Config,
) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: sched,
		ctx:       ctx,
		config:    cfg,
	}
}

// StartScheduler starts periodic runs, optionally with a cron schedule that
// overrides WORKER_SCHEDULE.
func (h *SchedulerHandler) StartScheduler(c echo.Context) error {
	if h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already running", h.scheduler.GetStatus())
	}

	var req StartSchedulerRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	schedule := h.config.Worker.Schedule
	if req.Schedule != nil {
		schedule = *req.Schedule
	}

	if err := h.scheduler.StartWithSchedule(h.ctx, schedule); err != nil {
		return response.BadRequest(c, err)
	}

	return response.OkWithMessage(c, "Scheduler started successfully", h.scheduler.GetStatus())
}

func (h *SchedulerHandler) StopScheduler(c echo.Context) error {
	if !h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already stopped", h.scheduler.GetStatus())
	}

	if err := h.scheduler.Stop(); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler stopped successfully", h.scheduler.GetStatus())
}

func (h *SchedulerHandler) GetSchedulerStatus(c echo.Context) error {
	return response.Ok(c, h.scheduler.GetStatus())
}

// RunNow triggers one batch and returns its summary. The run is bound to the
// application context so a dropped client connection does not cut it short.
func (h *SchedulerHandler) RunNow(c echo.Context) error {
	summary, err := h.scheduler.RunNow(h.ctx)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	if summary.LockHeld {
		return response.OkWithMessage(c, "Another instance holds the run lock", summary)
	}

	return response.OkWithMessage(c, "Run completed", summary)
}
