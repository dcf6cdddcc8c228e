package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/collections-worker/environments"
	"github.com/onurcolak/collections-worker/internal/domain"
	"github.com/onurcolak/collections-worker/internal/repository"
	"github.com/onurcolak/collections-worker/internal/scheduler"
	"github.com/onurcolak/collections-worker/internal/timeline"
	"github.com/onurcolak/collections-worker/pkg/response"
	validatorpkg "github.com/onurcolak/collections-worker/pkg/validator"
)

const collectionID = "0b7c6f4e-2a51-4c8e-9d7a-3f1e5b2c8a90"

type fakeTimelines struct {
	t   *timeline.Timeline
	err error
}

func (f *fakeTimelines) GetTimeline(ctx context.Context, id string) (*timeline.Timeline, error) {
	return f.t, f.err
}

func newTimelineContext(e *echo.Echo, id string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/collections/"+id+"/timeline", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/collections/:id/timeline")
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c, rec
}

func TestGetTimeline_InvalidIDReturns422(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	// timelines is nil on purpose; validation must fail before it is used.
	handler := NewCollectionHandler(nil)
	c, rec := newTimelineContext(e, "not-a-uuid")

	if err := handler.GetTimeline(c); err != nil {
		t.Fatalf("GetTimeline returned error: %v", err)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
}

func TestGetTimeline_NotFound(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	handler := NewCollectionHandler(&fakeTimelines{err: repository.ErrNotFound})
	c, rec := newTimelineContext(e, collectionID)

	if err := handler.GetTimeline(c); err != nil {
		t.Fatalf("GetTimeline returned error: %v", err)
	}

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestGetTimeline_OK(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	handler := NewCollectionHandler(&fakeTimelines{t: &timeline.Timeline{
		CollectionID: collectionID,
		Status:       domain.CollectionActive,
		Entries:      []timeline.Entry{{Index: 0, Status: timeline.EntryScheduled}},
	}})
	c, rec := newTimelineContext(e, collectionID)

	if err := handler.GetTimeline(c); err != nil {
		t.Fatalf("GetTimeline returned error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var body struct {
		Success bool              `json:"success"`
		Data    timeline.Timeline `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if !body.Success || body.Data.CollectionID != collectionID || len(body.Data.Entries) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

type fakeScheduler struct {
	running   bool
	schedule  string
	summary   domain.RunSummary
	runErr    error
	startErr  error
	runCalled bool
}

func (f *fakeScheduler) StartWithSchedule(ctx context.Context, schedule string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.schedule = schedule
	f.running = true
	return nil
}

func (f *fakeScheduler) Stop() error {
	f.running = false
	return nil
}

func (f *fakeScheduler) IsRunning() bool { return f.running }

func (f *fakeScheduler) RunNow(ctx context.Context) (domain.RunSummary, error) {
	f.runCalled = true
	return f.summary, f.runErr
}

func (f *fakeScheduler) GetStatus() scheduler.SchedulerStatus {
	return scheduler.SchedulerStatus{Running: f.running, Schedule: f.schedule}
}

func newSchedulerHandler(f *fakeScheduler) *SchedulerHandler {
	cfg := &environments.Config{Worker: environments.WorkerConfig{Schedule: "*/5 * * * *"}}
	return NewSchedulerHandler(f, context.Background(), cfg)
}

func TestStartScheduler_UsesConfiguredScheduleByDefault(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	f := &fakeScheduler{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/start", nil)
	rec := httptest.NewRecorder()

	if err := newSchedulerHandler(f).StartScheduler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("StartScheduler returned error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if f.schedule != "*/5 * * * *" {
		t.Errorf("expected configured schedule, got %q", f.schedule)
	}
}

func TestStartScheduler_BadJSON(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/start", strings.NewReader(`{"schedule":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := newSchedulerHandler(&fakeScheduler{}).StartScheduler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("StartScheduler returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	var resp response.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Fatalf("expected an error response, got %+v", resp)
	}
}

func TestRunNow_ReturnsSummary(t *testing.T) {
	e := echo.New()
	f := &fakeScheduler{summary: domain.RunSummary{Processed: 3, Sent: 3}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/run", nil)
	rec := httptest.NewRecorder()

	if err := newSchedulerHandler(f).RunNow(e.NewContext(req, rec)); err != nil {
		t.Fatalf("RunNow returned error: %v", err)
	}

	if !f.runCalled {
		t.Fatalf("expected scheduler RunNow to be called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestRunNow_Error(t *testing.T) {
	e := echo.New()
	f := &fakeScheduler{runErr: errors.New("lock store unavailable")}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/run", nil)
	rec := httptest.NewRecorder()

	if err := newSchedulerHandler(f).RunNow(e.NewContext(req, rec)); err != nil {
		t.Fatalf("RunNow returned error: %v", err)
	}

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

type fakePinger struct {
	err error
}

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }
func (f fakePinger) Ping(ctx context.Context) error        { return f.err }

func TestHealth_AllUp(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h := NewHealthHandler(fakePinger{}, fakePinger{})
	if err := h.Health(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Health returned error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestHealth_RedisDownIsUnavailable(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h := NewHealthHandler(fakePinger{}, fakePinger{err: errors.New("connection refused")})
	if err := h.Health(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Health returned error: %v", err)
	}

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if body["status"] != "down" {
		t.Errorf("expected status=down, got %v", body["status"])
	}
}
