package service

import (
	"context"
	"fmt"
	"time"

	"github.com/onurcolak/collections-worker/environments"
	"github.com/onurcolak/collections-worker/internal/dispatch"
	"github.com/onurcolak/collections-worker/internal/domain"
	"github.com/onurcolak/collections-worker/internal/repository"
	"github.com/onurcolak/collections-worker/pkg/logger"
)

// Small internal interfaces so we can test without touching real DB/Redis/provider.
type collectionRepository interface {
	GetDueCollections(ctx context.Context, now time.Time, limit int) ([]domain.DueCollection, error)
	RecordSentStep(ctx context.Context, id string, sentAt time.Time, p repository.StepProgress) error
	AdvanceStep(ctx context.Context, id string, p repository.StepProgress) error
	Complete(ctx context.Context, id string, completedAt time.Time) error
	Reschedule(ctx context.Context, id string, nextActionAt time.Time) error
	Pause(ctx context.Context, id string, reason string) error
	InsertSentMessage(ctx context.Context, msg *domain.SentMessage) error
}

type statsBuilder interface {
	Build(ctx context.Context, due []domain.DueCollection, now time.Time) (*domain.RunStats, error)
}

type dispatcher interface {
	Send(ctx context.Context, req dispatch.Request) dispatch.Result
}

type locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const releaseTimeout = 5 * time.Second

type CollectionService struct {
	repo       collectionRepository
	stats      statsBuilder
	dispatcher dispatcher
	locker     locker
	config     environments.WorkerConfig
	now        func() time.Time
}

func NewCollectionService(
	repo collectionRepository,
	stats statsBuilder,
	dispatcher dispatcher,
	locker locker,
	config environments.WorkerConfig,
) *CollectionService {
	return &CollectionService{
		repo:       repo,
		stats:      stats,
		dispatcher: dispatcher,
		locker:     locker,
		config:     config,
		now:        time.Now,
	}
}

// ProcessDueCollections is one batch run: take the run lock, fetch due cases
// oldest-first, drive each through the state machine sequentially, release.
// Only lock or fetch failures end a run early; per-case failures are isolated.
func (s *CollectionService) ProcessDueCollections(ctx context.Context) (domain.RunSummary, error) {
	var summary domain.RunSummary
	started := s.now()

	acquired, err := s.locker.Acquire(ctx, s.config.LockKey, s.config.LockTTL)
	if err != nil {
		return summary, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !acquired {
		logger.Infof("Run lock %s is held by another instance, skipping run", s.config.LockKey)
		summary.LockHeld = true
		return summary, nil
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		if err := s.locker.Release(releaseCtx, s.config.LockKey); err != nil {
			logger.Errorf("Failed to release run lock: %v", err)
		}
	}()

	due, err := s.repo.GetDueCollections(ctx, started, s.config.BatchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to get due collections: %w", err)
	}

	if len(due) == 0 {
		logger.Debugf("No due collections to process")
		return summary, nil
	}

	stats, err := s.stats.Build(ctx, due, started)
	if err != nil {
		return summary, fmt.Errorf("failed to build rate limit stats: %w", err)
	}

	logger.Infof("Processing %d due collections", len(due))

	for _, d := range due {
		if ctx.Err() != nil {
			logger.Warnf("Run cancelled after %d of %d collections", summary.Total(), len(due))
			break
		}

		summary.Add(s.runCase(ctx, d, stats))
	}

	summary.Duration = s.now().Sub(started)

	return summary, nil
}

// runCase is the isolation boundary for one collection: errors and panics are
// converted into a paused case and an error result, never propagated.
func (s *CollectionService) runCase(ctx context.Context, due domain.DueCollection, stats *domain.RunStats) (result domain.CaseResult) {
	id := due.Collection.ID

	defer func() {
		if rec := recover(); rec != nil {
			result = s.failCase(ctx, id, fmt.Errorf("panic: %v", rec))
		}
	}()

	result, err := s.ProcessCase(ctx, due, stats)
	if err != nil {
		return s.failCase(ctx, id, err)
	}

	return result
}

func (s *CollectionService) failCase(ctx context.Context, id string, cause error) domain.CaseResult {
	logger.Errorf("Collection %s failed, pausing: %v", id, cause)

	if err := s.repo.Pause(ctx, id, truncateReason(cause.Error())); err != nil {
		logger.Errorf("Failed to pause collection %s: %v", id, err)
	}

	return domain.CaseResult{
		CollectionID: id,
		Outcome:      domain.OutcomeError,
		Error:        cause,
	}
}
