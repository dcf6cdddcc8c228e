package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/robfig/cron/v3"

	"github.com/onurcolak/collections-worker/internal/domain"
	"github.com/onurcolak/collections-worker/pkg/logger"
)

// collectionProcessor matches CollectionService.ProcessDueCollections and
// lets the scheduler be tested with a small fake.
type collectionProcessor interface {
	ProcessDueCollections(ctx context.Context) (domain.RunSummary, error)
}

// Standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

const alertTimeout = 10 * time.Second

type Scheduler struct {
	processor      collectionProcessor
	schedule       string
	location       *time.Location
	alertWebhook   string
	alertThreshold int // consecutive all-error runs before alerting
	alertClient    *resty.Client

	// Internal state
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
	mu      sync.RWMutex
	runMu   sync.Mutex

	// Statistics
	lastRunAt       time.Time
	lastSummary     *domain.RunSummary
	lastError       string
	runsCount       int64
	messagesSent    int64
	lockHeldCount   int64
	lastAlertSentAt time.Time

	consecutiveAllFailCount int
}

func NewScheduler(processor collectionProcessor, schedule string, location *time.Location) *Scheduler {
	if location == nil {
		location = time.Local
	}
	return &Scheduler{
		processor:   processor,
		schedule:    schedule,
		location:    location,
		alertClient: resty.New().SetTimeout(alertTimeout),
	}
}

// ConfigureAlerts sets the webhook notified after threshold consecutive runs in
// which every case failed. An empty URL or non-positive threshold disables it.
func (s *Scheduler) ConfigureAlerts(webhookURL string, threshold int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertWebhook = webhookURL
	s.alertThreshold = threshold
	s.consecutiveAllFailCount = 0
}

// StartWithSchedule replaces the cron schedule and starts the scheduler.
func (s *Scheduler) StartWithSchedule(ctx context.Context, schedule string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is already running")
		return nil
	}
	if schedule != "" {
		s.schedule = schedule
	}
	s.consecutiveAllFailCount = 0
	s.mu.Unlock()

	return s.Start(ctx)
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		logger.Warnf("Scheduler is already running")
		return nil
	}

	sched, err := cronParser.Parse(s.schedule)
	if err != nil {
		return fmt.Errorf("invalid worker schedule %q: %w", s.schedule, err)
	}

	cronLogger := cron.PrintfLogger(logger.Printf{})
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	s.entryID = c.Schedule(sched, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = s.RunNow(ctx)
	}))
	c.Start()

	s.cron = c
	s.running = true

	logger.Infof("Starting scheduler with schedule %q", s.schedule)
	return nil
}

// Stop halts future runs and waits for an in-flight run to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		logger.Warnf("Scheduler is not running")
		return nil
	}
	s.running = false
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	<-c.Stop().Done()

	logger.Infof("Scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// RunNow executes one batch immediately. Runs inside this process never
// overlap; runs across instances are kept apart by the worker's run lock.
func (s *Scheduler) RunNow(ctx context.Context) (domain.RunSummary, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	s.lastRunAt = time.Now()
	s.runsCount++
	runNumber := s.runsCount
	s.mu.Unlock()

	logger.Infof("[Run #%d] Starting collections run", runNumber)

	summary, err := s.processor.ProcessDueCollections(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastSummary = nil
		s.lastError = err.Error()
		s.mu.Unlock()
		logger.Errorf("[Run #%d] Collections run failed: %v", runNumber, err)
		return summary, err
	}

	s.mu.Lock()
	s.lastSummary = &summary
	s.lastError = ""
	if summary.LockHeld {
		s.lockHeldCount++
		s.mu.Unlock()
		logger.Infof("[Run #%d] Skipped, run lock held elsewhere", runNumber)
		return summary, nil
	}

	s.messagesSent += int64(summary.Sent)

	var alert bool
	total := summary.Total()
	if total > 0 && summary.Errors == total {
		s.consecutiveAllFailCount++
		logger.Warnf("[Run #%d] All %d cases failed (consecutive count: %d/%d)",
			runNumber, total, s.consecutiveAllFailCount, s.alertThreshold)
		alert = s.alertThreshold > 0 && s.alertWebhook != "" && s.consecutiveAllFailCount >= s.alertThreshold
	} else {
		if s.consecutiveAllFailCount > 0 {
			logger.Debugf("[Run #%d] Resetting consecutive failure count (was: %d)", runNumber, s.consecutiveAllFailCount)
		}
		s.consecutiveAllFailCount = 0
	}
	webhook := s.alertWebhook
	failures := s.consecutiveAllFailCount
	s.mu.Unlock()

	logger.Infof("[Run #%d] processed=%d skipped=%d errors=%d sent=%d advanced=%d completed=%d in %s",
		runNumber, summary.Processed, summary.Skipped, summary.Errors,
		summary.Sent, summary.Advanced, summary.Completed, summary.Duration)

	if alert {
		s.sendAlert(ctx, webhook, runNumber, failures, total)
	}

	return summary, nil
}

func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		Running:                 s.running,
		Schedule:                s.schedule,
		LastRunAt:               s.lastRunAt,
		LastSummary:             s.lastSummary,
		LastError:               s.lastError,
		MessagesSent:            s.messagesSent,
		RunsCount:               s.runsCount,
		LockHeldCount:           s.lockHeldCount,
		ConsecutiveAllFailCount: s.consecutiveAllFailCount,
		LastAlertSentAt:         s.lastAlertSentAt,
	}

	if s.running && s.cron != nil {
		status.NextRunAt = s.cron.Entry(s.entryID).Next
	}

	return status
}

func (s *Scheduler) sendAlert(ctx context.Context, webhookURL string, runNumber int64, consecutiveFailures int, casesInBatch int) {
	payload := map[string]any{
		"alert":               "consecutive_all_fail",
		"runNumber":           runNumber,
		"consecutiveFailures": consecutiveFailures,
		"casesInBatch":        casesInBatch,
		"timestamp":           time.Now().Format(time.RFC3339),
		"message": fmt.Sprintf(
			"All %d collection cases failed for %d consecutive runs",
			casesInBatch,
			consecutiveFailures,
		),
	}

	resp, err := s.alertClient.R().
		SetContext(context.WithoutCancel(ctx)).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(webhookURL)
	if err != nil {
		logger.Errorf("Failed to send alert to webhook: %v", err)
		return
	}

	if !resp.IsSuccess() {
		logger.Warnf("Alert webhook returned status %d", resp.StatusCode())
		return
	}

	s.mu.Lock()
	s.lastAlertSentAt = time.Now()
	s.mu.Unlock()
	logger.Infof("Alert sent successfully (consecutive failures: %d)", consecutiveFailures)
}

type SchedulerStatus struct {
	Running                 bool               `json:"running"`
	Schedule                string             `json:"schedule"`
	LastRunAt               time.Time          `json:"lastRunAt,omitempty"`
	NextRunAt               time.Time          `json:"nextRunAt,omitempty"`
	LastSummary             *domain.RunSummary `json:"lastSummary,omitempty"`
	LastError               string             `json:"lastError,omitempty"`
	MessagesSent            int64              `json:"messagesSent"`
	RunsCount               int64              `json:"runsCount"`
	LockHeldCount           int64              `json:"lockHeldCount"`
	ConsecutiveAllFailCount int                `json:"consecutiveAllFailCount"`
	LastAlertSentAt         time.Time          `json:"lastAlertSentAt,omitempty"`
}
