package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/onurcolak/collections-worker/internal/domain"
)

// statsSource is the batched read surface the builder needs. Each method is a
// single aggregate query over the whole id set.
type statsSource interface {
	GetTenantLimits(ctx context.Context, tenantIDs []string) (map[string]domain.RateLimits, error)
	CountActiveByTenant(ctx context.Context, tenantIDs []string) (map[string]int, error)
	CountSentSinceByTenant(ctx context.Context, tenantIDs []string, since time.Time) (map[string]int, error)
	GetLastSentByContact(ctx context.Context, contactIDs []string) (map[string]time.Time, error)
}

type StatsBuilder struct {
	source   statsSource
	defaults domain.RateLimits
	location *time.Location
}

func NewStatsBuilder(source statsSource, defaults domain.RateLimits, location *time.Location) *StatsBuilder {
	if location == nil {
		location = time.Local
	}
	return &StatsBuilder{
		source:   source,
		defaults: defaults,
		location: location,
	}
}

// Build computes tenant and contact counters for the fetched batch with a
// constant number of queries, regardless of batch size.
func (b *StatsBuilder) Build(ctx context.Context, due []domain.DueCollection, now time.Time) (*domain.RunStats, error) {
	dayStart, nextDayStart := DayBounds(now, b.location)

	stats := &domain.RunStats{
		Tenants:      make(map[string]*domain.TenantStats),
		Contacts:     make(map[string]*domain.ContactStats),
		Defaults:     b.defaults,
		DayStart:     dayStart,
		NextDayStart: nextDayStart,
	}

	if len(due) == 0 {
		return stats, nil
	}

	tenantIDs := uniqueIDs(due, func(d domain.DueCollection) string { return d.Collection.TenantID })
	contactIDs := uniqueIDs(due, func(d domain.DueCollection) string { return d.Contact.ID })

	limits, err := b.source.GetTenantLimits(ctx, tenantIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant limits: %w", err)
	}

	active, err := b.source.CountActiveByTenant(ctx, tenantIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to count active collections: %w", err)
	}

	sentToday, err := b.source.CountSentSinceByTenant(ctx, tenantIDs, dayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages sent today: %w", err)
	}

	lastSent, err := b.source.GetLastSentByContact(ctx, contactIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load last sent per contact: %w", err)
	}

	for _, id := range tenantIDs {
		tenantLimits, ok := limits[id]
		if !ok {
			tenantLimits = b.defaults
		}

		ts := &domain.TenantStats{
			TenantID:          id,
			Limits:            tenantLimits,
			ActiveCollections: active[id],
			MessagesSentToday: sentToday[id],
		}
		markBlocked(ts)

		stats.Tenants[id] = ts
	}

	for _, id := range contactIDs {
		cs := &domain.ContactStats{ContactID: id}
		if t, ok := lastSent[id]; ok {
			last := t
			cs.LastSentAt = &last
		}
		stats.Contacts[id] = cs
	}

	return stats, nil
}

// markBlocked flags tenants already over a tenant-wide cap so every case for
// them can be rejected without further per-case evaluation.
func markBlocked(ts *domain.TenantStats) {
	switch {
	case activeCapExceeded(ts):
		ts.Blocked = true
		ts.BlockedReason = domain.ReasonMaxActiveExceeded
	case dailyCapExceeded(ts):
		ts.Blocked = true
		ts.BlockedReason = domain.ReasonDailyLimit
	}
}

// DayBounds returns local midnight of now's day and of the following day.
func DayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	y, m, d := local.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, loc), time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

func uniqueIDs(due []domain.DueCollection, key func(domain.DueCollection) string) []string {
	seen := make(map[string]struct{}, len(due))
	ids := make([]string, 0, len(due))

	for _, d := range due {
		id := key(d)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids
}
