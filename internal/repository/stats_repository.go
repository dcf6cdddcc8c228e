package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/collections-worker/internal/domain"
)

// The aggregate reads below are each one grouped query over the whole id set.

type countRow struct {
	Key   string `db:"k"`
	Count int    `db:"n"`
}

type lastSentRow struct {
	ContactID  string    `db:"contact_id"`
	LastSentAt time.Time `db:"last_sent_at"`
}

type tenantLimitsRow struct {
	TenantID string `db:"tenant_id"`
	domain.RateLimits
}

func (r *CollectionRepository) GetTenantLimits(ctx context.Context, tenantIDs []string) (map[string]domain.RateLimits, error) {
	if len(tenantIDs) == 0 {
		return map[string]domain.RateLimits{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT tenant_id, max_active_collections, max_daily_messages, min_hours_between_messages
		FROM tenant_settings
		WHERE tenant_id IN (?)
	`, tenantIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build tenant limits query: %w", err)
	}

	var rows []tenantLimitsRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get tenant limits: %w", err)
	}

	limits := make(map[string]domain.RateLimits, len(rows))
	for _, row := range rows {
		limits[row.TenantID] = row.RateLimits
	}

	return limits, nil
}

func (r *CollectionRepository) CountActiveByTenant(ctx context.Context, tenantIDs []string) (map[string]int, error) {
	if len(tenantIDs) == 0 {
		return map[string]int{}, nil
	}

	return r.countGrouped(ctx, "active collections", `
		SELECT tenant_id AS k, COUNT(*) AS n
		FROM collections
		WHERE status = 'active' AND tenant_id IN (?)
		GROUP BY tenant_id
	`, tenantIDs)
}

func (r *CollectionRepository) CountSentSinceByTenant(ctx context.Context, tenantIDs []string, since time.Time) (map[string]int, error) {
	if len(tenantIDs) == 0 {
		return map[string]int{}, nil
	}

	return r.countGrouped(ctx, "sent messages", `
		SELECT tenant_id AS k, COUNT(*) AS n
		FROM sent_messages
		WHERE tenant_id IN (?) AND sent_at >= ?
		GROUP BY tenant_id
	`, tenantIDs, since)
}

// GetLastSentByContact returns the most recent send per contact across all of
// their collections.
func (r *CollectionRepository) GetLastSentByContact(ctx context.Context, contactIDs []string) (map[string]time.Time, error) {
	if len(contactIDs) == 0 {
		return map[string]time.Time{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT contact_id, MAX(sent_at) AS last_sent_at
		FROM sent_messages
		WHERE contact_id IN (?)
		GROUP BY contact_id
	`, contactIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build last sent query: %w", err)
	}

	var rows []lastSentRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get last sent per contact: %w", err)
	}

	lastSent := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		lastSent[row.ContactID] = row.LastSentAt
	}

	return lastSent, nil
}

func (r *CollectionRepository) countGrouped(ctx context.Context, what, query string, args ...any) (map[string]int, error) {
	q, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s query: %w", what, err)
	}

	var rows []countRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), inArgs...); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", what, err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Key] = row.Count
	}

	return counts, nil
}
