package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onurcolak/collections-worker/internal/domain"
)

var (
	testLoc = time.FixedZone("UTC+3", 3*60*60)
	testNow = time.Date(2026, 3, 10, 15, 30, 0, 0, testLoc)
)

type fakeStatsSource struct {
	limits    map[string]domain.RateLimits
	active    map[string]int
	sentToday map[string]int
	lastSent  map[string]time.Time

	calls     int
	sinceSeen time.Time
}

func (f *fakeStatsSource) GetTenantLimits(ctx context.Context, tenantIDs []string) (map[string]domain.RateLimits, error) {
	f.calls++
	return f.limits, nil
}

func (f *fakeStatsSource) CountActiveByTenant(ctx context.Context, tenantIDs []string) (map[string]int, error) {
	f.calls++
	return f.active, nil
}

func (f *fakeStatsSource) CountSentSinceByTenant(ctx context.Context, tenantIDs []string, since time.Time) (map[string]int, error) {
	f.calls++
	f.sinceSeen = since
	return f.sentToday, nil
}

func (f *fakeStatsSource) GetLastSentByContact(ctx context.Context, contactIDs []string) (map[string]time.Time, error) {
	f.calls++
	return f.lastSent, nil
}

func dueFor(id, tenant, contact string) domain.DueCollection {
	return domain.DueCollection{
		Collection: domain.Collection{ID: id, TenantID: tenant, Status: domain.CollectionActive},
		Contact:    domain.Contact{ID: contact},
	}
}

var defaultLimits = domain.RateLimits{
	MaxActiveCollections:    50,
	MaxDailyMessages:        10,
	MinHoursBetweenMessages: 4,
}

func TestBuild_UsesConstantQueriesForWholeBatch(t *testing.T) {
	src := &fakeStatsSource{}
	b := NewStatsBuilder(src, defaultLimits, testLoc)

	due := make([]domain.DueCollection, 0, 30)
	for i := 0; i < 30; i++ {
		due = append(due, dueFor("c", "tenant-a", "contact"))
	}

	_, err := b.Build(context.Background(), due, testNow)
	require.NoError(t, err)
	assert.Equal(t, 4, src.calls)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, testLoc), src.sinceSeen)
}

func TestBuild_EmptyBatchIssuesNoQueries(t *testing.T) {
	src := &fakeStatsSource{}
	b := NewStatsBuilder(src, defaultLimits, testLoc)

	stats, err := b.Build(context.Background(), nil, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, src.calls)
	assert.Empty(t, stats.Tenants)
}

func TestBuild_TenantOverridesAndBlocking(t *testing.T) {
	src := &fakeStatsSource{
		limits: map[string]domain.RateLimits{
			"tenant-b": {MaxActiveCollections: 2, MaxDailyMessages: 100, MinHoursBetweenMessages: 1},
		},
		active:    map[string]int{"tenant-a": 3, "tenant-b": 5},
		sentToday: map[string]int{"tenant-a": 10},
	}
	b := NewStatsBuilder(src, defaultLimits, testLoc)

	stats, err := b.Build(context.Background(), []domain.DueCollection{
		dueFor("c1", "tenant-a", "p1"),
		dueFor("c2", "tenant-b", "p2"),
	}, testNow)
	require.NoError(t, err)

	a := stats.Tenants["tenant-a"]
	require.NotNil(t, a)
	assert.Equal(t, defaultLimits, a.Limits)
	assert.True(t, a.Blocked)
	assert.Equal(t, domain.ReasonDailyLimit, a.BlockedReason)

	bt := stats.Tenants["tenant-b"]
	require.NotNil(t, bt)
	assert.True(t, bt.Blocked)
	assert.Equal(t, domain.ReasonMaxActiveExceeded, bt.BlockedReason)
}

func TestCheckRateLimits_DailyCapReachedRetriesAtNextLocalMidnight(t *testing.T) {
	src := &fakeStatsSource{
		active:    map[string]int{"tenant-a": 1},
		sentToday: map[string]int{"tenant-a": 10},
	}
	b := NewStatsBuilder(src, defaultLimits, testLoc)
	due := dueFor("c1", "tenant-a", "p1")

	stats, err := b.Build(context.Background(), []domain.DueCollection{due}, testNow)
	require.NoError(t, err)

	decision := CheckRateLimits(due, stats, testNow)
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonDailyLimit, decision.Reason)
	require.NotNil(t, decision.RetryAfter)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, testLoc), *decision.RetryAfter)
}

func TestCheckRateLimits_MinGapNotMet(t *testing.T) {
	lastSent := testNow.Add(-2 * time.Hour)
	src := &fakeStatsSource{
		active:   map[string]int{"tenant-a": 1},
		lastSent: map[string]time.Time{"p1": lastSent},
	}
	b := NewStatsBuilder(src, defaultLimits, testLoc)
	due := dueFor("c1", "tenant-a", "p1")

	stats, err := b.Build(context.Background(), []domain.DueCollection{due}, testNow)
	require.NoError(t, err)

	decision := CheckRateLimits(due, stats, testNow)
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonMinHoursNotMet, decision.Reason)
	require.NotNil(t, decision.RetryAfter)
	assert.Equal(t, lastSent.Add(4*time.Hour), *decision.RetryAfter)
}

func TestCheckRateLimits_MinGapMet(t *testing.T) {
	src := &fakeStatsSource{
		active:   map[string]int{"tenant-a": 1},
		lastSent: map[string]time.Time{"p1": testNow.Add(-5 * time.Hour)},
	}
	b := NewStatsBuilder(src, defaultLimits, testLoc)
	due := dueFor("c1", "tenant-a", "p1")

	stats, err := b.Build(context.Background(), []domain.DueCollection{due}, testNow)
	require.NoError(t, err)

	assert.True(t, CheckRateLimits(due, stats, testNow).Allowed)
}

func TestCheckRateLimits_MinGapAppliesWithoutTenantEntry(t *testing.T) {
	lastSent := testNow.Add(-time.Hour)
	src := &fakeStatsSource{lastSent: map[string]time.Time{"p1": lastSent}}
	b := NewStatsBuilder(src, defaultLimits, testLoc)
	due := dueFor("c1", "", "p1")

	stats, err := b.Build(context.Background(), []domain.DueCollection{due}, testNow)
	require.NoError(t, err)
	require.Empty(t, stats.Tenants)

	decision := CheckRateLimits(due, stats, testNow)
	assert.Equal(t, domain.ReasonMinHoursNotMet, decision.Reason)
	require.NotNil(t, decision.RetryAfter)
	assert.Equal(t, lastSent.Add(4*time.Hour), *decision.RetryAfter)
}

func TestCheckRateLimits_RecordedSendBlocksSameContact(t *testing.T) {
	stats := &domain.RunStats{
		Tenants: map[string]*domain.TenantStats{
			"tenant-a": {TenantID: "tenant-a", Limits: defaultLimits},
		},
	}
	due := dueFor("c2", "tenant-a", "p1")
	require.True(t, CheckRateLimits(due, stats, testNow).Allowed)

	stats.RecordContactSend("p1", testNow)

	decision := CheckRateLimits(due, stats, testNow.Add(time.Minute))
	assert.Equal(t, domain.ReasonMinHoursNotMet, decision.Reason)
	assert.Equal(t, testNow.Add(4*time.Hour), *decision.RetryAfter)
	assert.Zero(t, stats.Tenants["tenant-a"].MessagesSentToday)
}

func TestCheckRateLimits_ActiveCapHasNoRetryTime(t *testing.T) {
	stats := &domain.RunStats{
		Tenants: map[string]*domain.TenantStats{
			"tenant-a": {TenantID: "tenant-a", Limits: defaultLimits, ActiveCollections: 51},
		},
		Contacts: map[string]*domain.ContactStats{},
	}

	decision := CheckRateLimits(dueFor("c1", "tenant-a", "p1"), stats, testNow)
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonMaxActiveExceeded, decision.Reason)
	assert.Nil(t, decision.RetryAfter)
}

func TestCheckRateLimits_PriorityActiveBeforeDailyBeforeContact(t *testing.T) {
	last := testNow.Add(-time.Hour)
	stats := &domain.RunStats{
		Tenants: map[string]*domain.TenantStats{
			"tenant-a": {TenantID: "tenant-a", Limits: defaultLimits, ActiveCollections: 51, MessagesSentToday: 99},
		},
		Contacts: map[string]*domain.ContactStats{
			"p1": {ContactID: "p1", LastSentAt: &last},
		},
	}

	assert.Equal(t, domain.ReasonMaxActiveExceeded, CheckRateLimits(dueFor("c1", "tenant-a", "p1"), stats, testNow).Reason)

	stats.Tenants["tenant-a"].ActiveCollections = 1
	assert.Equal(t, domain.ReasonDailyLimit, CheckRateLimits(dueFor("c1", "tenant-a", "p1"), stats, testNow).Reason)

	stats.Tenants["tenant-a"].MessagesSentToday = 0
	assert.Equal(t, domain.ReasonMinHoursNotMet, CheckRateLimits(dueFor("c1", "tenant-a", "p1"), stats, testNow).Reason)
}

func TestCheckRateLimits_ZeroCapsDisableChecks(t *testing.T) {
	last := testNow.Add(-time.Minute)
	stats := &domain.RunStats{
		Tenants: map[string]*domain.TenantStats{
			"tenant-a": {TenantID: "tenant-a", ActiveCollections: 1000, MessagesSentToday: 1000},
		},
		Contacts: map[string]*domain.ContactStats{
			"p1": {ContactID: "p1", LastSentAt: &last},
		},
	}

	assert.True(t, CheckRateLimits(dueFor("c1", "tenant-a", "p1"), stats, testNow).Allowed)
}

func TestDayBounds_AcrossTimezone(t *testing.T) {
	// 22:30 UTC is already the next day at UTC+3.
	now := time.Date(2026, 3, 10, 22, 30, 0, 0, time.UTC)

	start, next := DayBounds(now, testLoc)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, testLoc), start)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, testLoc), next)
}
