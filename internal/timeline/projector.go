// Package timeline reconstructs a collection's full step schedule for display.
// It only reads; the worker's write path never depends on it.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/onurcolak/collections-worker/internal/domain"
)

type EntryStatus string

const (
	EntrySent      EntryStatus = "sent"
	EntryScheduled EntryStatus = "scheduled"
	EntryPending   EntryStatus = "pending"
)

type Entry struct {
	Index           int                    `json:"index"`
	StepID          string                 `json:"stepId"`
	SequenceOrder   int                    `json:"sequenceOrder"`
	Channel         domain.Channel         `json:"channel"`
	SubjectTemplate string                 `json:"subjectTemplate"`
	WaitDays        int                    `json:"waitDays"`
	Status          EntryStatus            `json:"status"`
	Date            *time.Time             `json:"date,omitempty"`
	Approximate     bool                   `json:"approximate"`
	DeliveryStatus  *domain.DeliveryStatus `json:"deliveryStatus,omitempty"`
	DeliveredAt     *time.Time             `json:"deliveredAt,omitempty"`
	MessageID       *string                `json:"messageId,omitempty"`
}

type Timeline struct {
	CollectionID string                  `json:"collectionId"`
	Status       domain.CollectionStatus `json:"status"`
	Entries      []Entry                 `json:"entries"`
}

// Project builds the timeline from the current step ordering. When steps were
// edited after the collection started, dates follow the edited playbook.
func Project(c domain.Collection, steps []domain.Step, sent []domain.SentMessage) Timeline {
	ordered := make([]domain.Step, len(steps))
	copy(ordered, steps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SequenceOrder < ordered[j].SequenceOrder
	})

	byStep, byIndex := indexSent(sent)

	entries := make([]Entry, 0, len(ordered))
	cumulativeDays := 0

	for i, step := range ordered {
		cumulativeDays += step.WaitDays

		entry := Entry{
			Index:           i,
			StepID:          step.ID,
			SequenceOrder:   step.SequenceOrder,
			Channel:         step.Channel,
			SubjectTemplate: step.SubjectTemplate,
			WaitDays:        step.WaitDays,
		}

		msg, ok := byStep[step.ID]
		if !ok {
			msg, ok = byIndex[i]
		}

		switch {
		case ok:
			sentAt := msg.SentAt
			status := msg.DeliveryStatus
			entry.Status = EntrySent
			entry.Date = &sentAt
			entry.DeliveryStatus = &status
			entry.DeliveredAt = msg.DeliveredAt
			entry.MessageID = msg.ExternalMessageID

		case i == c.CurrentMessageIndex:
			entry.Status = EntryScheduled
			if c.NextActionAt != nil {
				at := *c.NextActionAt
				entry.Date = &at
			} else {
				anchor := c.StartedAt
				if c.LastMessageSentAt != nil {
					anchor = *c.LastMessageSentAt
				}
				at := anchor.Add(days(step.WaitDays))
				entry.Date = &at
				entry.Approximate = true
			}

		default:
			at := c.StartedAt.Add(days(cumulativeDays))
			entry.Status = EntryPending
			entry.Date = &at
			entry.Approximate = true
		}

		entries = append(entries, entry)
	}

	return Timeline{
		CollectionID: c.ID,
		Status:       c.Status,
		Entries:      entries,
	}
}

// indexSent keys sent messages by step id and by message index, keeping the
// latest send when a step was sent more than once.
func indexSent(sent []domain.SentMessage) (map[string]domain.SentMessage, map[int]domain.SentMessage) {
	byStep := make(map[string]domain.SentMessage, len(sent))
	byIndex := make(map[int]domain.SentMessage, len(sent))

	for _, m := range sent {
		if m.StepID != nil && *m.StepID != "" {
			if prev, ok := byStep[*m.StepID]; !ok || m.SentAt.After(prev.SentAt) {
				byStep[*m.StepID] = m
			}
			continue
		}
		if prev, ok := byIndex[m.MessageIndex]; !ok || m.SentAt.After(prev.SentAt) {
			byIndex[m.MessageIndex] = m
		}
	}

	return byStep, byIndex
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

type timelineRepository interface {
	GetCollection(ctx context.Context, id string) (*domain.Collection, error)
	GetPlaybookSteps(ctx context.Context, playbookID string) ([]domain.Step, error)
	GetSentMessages(ctx context.Context, collectionID string) ([]domain.SentMessage, error)
}

type Service struct {
	repo timelineRepository
}

func NewService(repo timelineRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetTimeline(ctx context.Context, collectionID string) (*Timeline, error) {
	c, err := s.repo.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	steps, err := s.repo.GetPlaybookSteps(ctx, c.PlaybookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps for timeline: %w", err)
	}

	sent, err := s.repo.GetSentMessages(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sent messages for timeline: %w", err)
	}

	t := Project(*c, steps, sent)
	return &t, nil
}
