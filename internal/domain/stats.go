package domain

import "time"

// RateLimits are the per-tenant caps the worker enforces before dispatching.
type RateLimits struct {
	MaxActiveCollections    int     `db:"max_active_collections" json:"maxActiveCollections"`
	MaxDailyMessages        int     `db:"max_daily_messages" json:"maxDailyMessages"`
	MinHoursBetweenMessages float64 `db:"min_hours_between_messages" json:"minHoursBetweenMessages"`
}

// MinGap returns the minimum interval between two messages to the same contact.
func (l RateLimits) MinGap() time.Duration {
	return time.Duration(l.MinHoursBetweenMessages * float64(time.Hour))
}

type TenantStats struct {
	TenantID          string
	Limits            RateLimits
	ActiveCollections int
	MessagesSentToday int
	Blocked           bool
	BlockedReason     RateLimitReason
}

type ContactStats struct {
	ContactID  string
	LastSentAt *time.Time
}

// RunStats are recomputed from persisted state at the start of every run and
// never carried across runs. Tenant counters stay fixed for the run; contact
// last-sent times move forward as the run sends.
type RunStats struct {
	Tenants  map[string]*TenantStats
	Contacts map[string]*ContactStats
	// DayStart is local midnight of the run day; NextDayStart the one after.
	DayStart     time.Time
	NextDayStart time.Time

	// Defaults apply to cases whose tenant has no entry in Tenants.
	Defaults RateLimits
}

// RecordContactSend moves the contact's last-sent time forward so later cases
// for the same contact in this run see the new send.
func (s *RunStats) RecordContactSend(contactID string, sentAt time.Time) {
	if s == nil || contactID == "" {
		return
	}
	if s.Contacts == nil {
		s.Contacts = make(map[string]*ContactStats)
	}
	cs, ok := s.Contacts[contactID]
	if !ok {
		cs = &ContactStats{ContactID: contactID}
		s.Contacts[contactID] = cs
	}
	if cs.LastSentAt == nil || sentAt.After(*cs.LastSentAt) {
		at := sentAt
		cs.LastSentAt = &at
	}
}

type RateLimitReason string

const (
	ReasonNone              RateLimitReason = ""
	ReasonMaxActiveExceeded RateLimitReason = "max_active_exceeded"
	ReasonDailyLimit        RateLimitReason = "daily_limit_exceeded"
	ReasonMinHoursNotMet    RateLimitReason = "min_hours_not_met"
)

type RateLimitDecision struct {
	Allowed    bool
	Reason     RateLimitReason
	RetryAfter *time.Time
}
