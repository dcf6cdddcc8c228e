package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/onurcolak/collections-worker/internal/dispatch"
	"github.com/onurcolak/collections-worker/internal/domain"
	"github.com/onurcolak/collections-worker/internal/ratelimit"
	"github.com/onurcolak/collections-worker/internal/render"
	"github.com/onurcolak/collections-worker/internal/repository"
	"github.com/onurcolak/collections-worker/pkg/logger"
)

const (
	day            = 24 * time.Hour
	maxReasonBytes = 500
)

// ProcessCase runs one cycle of the collection state machine. Expected
// conditions (rate limits, dispatch failures) resolve through the returned
// result; a non-nil error means the case could not be handled at all.
func (s *CollectionService) ProcessCase(ctx context.Context, due domain.DueCollection, stats *domain.RunStats) (domain.CaseResult, error) {
	c := due.Collection
	result := domain.CaseResult{CollectionID: c.ID}
	now := s.now()

	steps := due.Playbook.OrderedSteps()
	idx := c.CurrentMessageIndex
	if idx < 0 {
		return result, fmt.Errorf("invalid message index %d", idx)
	}

	if idx >= len(steps) {
		if err := s.repo.Complete(ctx, c.ID, now); err != nil {
			return result, err
		}
		logger.Infof("Collection %s completed: all %d steps done", c.ID, len(steps))
		result.Outcome = domain.OutcomeCompleted
		return result, nil
	}

	step := steps[idx]

	if step.SendOnlyIfNoResponse && c.CustomerResponded {
		progress := progressAfter(steps, idx, now)
		if err := s.repo.AdvanceStep(ctx, c.ID, progress); err != nil {
			return result, err
		}

		logger.Infof("Collection %s skipped step %d: customer responded", c.ID, idx)
		result.Outcome = domain.OutcomeAdvanced
		if progress.Status == domain.CollectionCompleted {
			result.Outcome = domain.OutcomeCompleted
		}
		return result, nil
	}

	decision := ratelimit.CheckRateLimits(due, stats, now)
	if !decision.Allowed {
		if decision.RetryAfter != nil {
			if err := s.repo.Reschedule(ctx, c.ID, *decision.RetryAfter); err != nil {
				return result, err
			}
			logger.Infof("Collection %s skipped (%s), retry at %s",
				c.ID, decision.Reason, decision.RetryAfter.Format(time.RFC3339))
		} else {
			logger.Infof("Collection %s skipped (%s)", c.ID, decision.Reason)
		}

		result.Outcome = domain.OutcomeSkipped
		result.Reason = decision.Reason
		return result, nil
	}

	vars := render.BuildContext(due, now)
	subject := render.Render(step.SubjectTemplate, vars)
	body := render.Render(step.BodyTemplate, vars)

	sent := s.dispatcher.Send(ctx, dispatch.Request{
		Channel: step.Channel,
		To:      dispatch.RecipientFor(step.Channel, due.Contact),
		Subject: subject,
		Body:    body,
		Metadata: &dispatch.Metadata{
			CollectionID: c.ID,
			MessageIndex: idx,
		},
	})

	if !sent.Success {
		logger.Warnf("Collection %s paused: step %d dispatch failed after %d attempt(s): %v",
			c.ID, idx, sent.Attempts, sent.Error)

		if err := s.repo.Pause(ctx, c.ID, truncateReason(fmt.Sprintf("dispatch failed: %v", sent.Error))); err != nil {
			return result, err
		}

		result.Outcome = domain.OutcomePaused
		result.Error = sent.Error
		return result, nil
	}

	sentAt := s.now()
	progress := progressAfter(steps, idx, sentAt)

	if err := s.repo.RecordSentStep(ctx, c.ID, sentAt, progress); err != nil {
		return result, err
	}

	// Tenant counters stay as computed at run start; the contact gap must
	// also hold between cases of this run.
	stats.RecordContactSend(due.Contact.ID, sentAt)

	// The step went out and the pointer moved; a missing audit row must not
	// pause the case, or a resume would send the step twice.
	audit := &domain.SentMessage{
		TenantID:          c.TenantID,
		CollectionID:      c.ID,
		ContactID:         due.Contact.ID,
		StepID:            stringPtr(step.ID),
		MessageIndex:      idx,
		Channel:           step.Channel,
		Subject:           stringPtr(subject),
		Body:              body,
		ExternalMessageID: stringPtr(sent.MessageID),
		DeliveryStatus:    domain.DeliverySent,
		SentAt:            sentAt,
	}
	if err := s.repo.InsertSentMessage(ctx, audit); err != nil {
		logger.Errorf("Collection %s: failed to record sent message %s: %v", c.ID, sent.MessageID, err)
	}

	logger.Infof("Collection %s sent step %d (messageId: %s)", c.ID, idx, sent.MessageID)

	result.Outcome = domain.OutcomeSent
	result.MessageID = sent.MessageID
	if progress.Status == domain.CollectionCompleted {
		logger.Infof("Collection %s completed after final step", c.ID)
	}

	return result, nil
}

// progressAfter moves the pointer past idx and schedules the following step
// relative to at, or completes the collection when no step follows. Waits are
// added as absolute durations rather than calendar days.
func progressAfter(steps []domain.Step, idx int, at time.Time) repository.StepProgress {
	next := idx + 1

	if next >= len(steps) {
		completedAt := at
		return repository.StepProgress{
			NextIndex:   next,
			Status:      domain.CollectionCompleted,
			CompletedAt: &completedAt,
		}
	}

	nextActionAt := at.Add(time.Duration(steps[next].WaitDays) * day)
	return repository.StepProgress{
		NextIndex:    next,
		NextActionAt: &nextActionAt,
		Status:       domain.CollectionActive,
	}
}

// truncateReason caps reason at maxReasonBytes without splitting a rune.
func truncateReason(reason string) string {
	if len(reason) <= maxReasonBytes {
		return reason
	}
	cut := maxReasonBytes
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
