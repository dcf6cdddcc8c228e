// Package ratelimit decides whether a due collection may be messaged now,
// based on tenant and contact counters computed once per run.
package ratelimit

import (
	"time"

	"github.com/onurcolak/collections-worker/internal/domain"
)

// CheckRateLimits evaluates, in priority order, the tenant active cap, the
// tenant daily cap and the contact minimum gap. It has no side effects.
//
// A cap of zero or less disables that check.
func CheckRateLimits(due domain.DueCollection, stats *domain.RunStats, now time.Time) domain.RateLimitDecision {
	if stats == nil {
		return domain.RateLimitDecision{Allowed: true}
	}

	limits := stats.Defaults
	if ts, ok := stats.Tenants[due.Collection.TenantID]; ok {
		if ts.Blocked {
			return tenantRejection(ts.BlockedReason, stats)
		}
		if activeCapExceeded(ts) {
			return tenantRejection(domain.ReasonMaxActiveExceeded, stats)
		}
		if dailyCapExceeded(ts) {
			return tenantRejection(domain.ReasonDailyLimit, stats)
		}
		limits = ts.Limits
	}

	if earliest, ok := contactNotBefore(stats.Contacts[due.Contact.ID], limits, now); ok {
		return domain.RateLimitDecision{
			Reason:     domain.ReasonMinHoursNotMet,
			RetryAfter: &earliest,
		}
	}

	return domain.RateLimitDecision{Allowed: true}
}

// contactNotBefore reports the earliest time the contact may be messaged again
// when that time is still in the future.
func contactNotBefore(cs *domain.ContactStats, limits domain.RateLimits, now time.Time) (time.Time, bool) {
	if cs == nil || cs.LastSentAt == nil {
		return time.Time{}, false
	}
	gap := limits.MinGap()
	if gap <= 0 {
		return time.Time{}, false
	}
	earliest := cs.LastSentAt.Add(gap)
	return earliest, now.Before(earliest)
}

func tenantRejection(reason domain.RateLimitReason, stats *domain.RunStats) domain.RateLimitDecision {
	decision := domain.RateLimitDecision{Reason: reason}

	// Active-cap rejections resolve as collections complete; no retry time.
	if reason == domain.ReasonDailyLimit {
		retry := stats.NextDayStart
		decision.RetryAfter = &retry
	}

	return decision
}

// The active count includes the due cases themselves, so sitting exactly at
// the cap is allowed.
func activeCapExceeded(ts *domain.TenantStats) bool {
	return ts.Limits.MaxActiveCollections > 0 && ts.ActiveCollections > ts.Limits.MaxActiveCollections
}

func dailyCapExceeded(ts *domain.TenantStats) bool {
	return ts.Limits.MaxDailyMessages > 0 && ts.MessagesSentToday >= ts.Limits.MaxDailyMessages
}
