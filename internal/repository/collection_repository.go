package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/collections-worker/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrNotActive = errors.New("collection is no longer active")
)

// CollectionRepository handles database operations for collections and their
// audit trail. Queries are written with ? placeholders and rebound for the
// configured driver.
type CollectionRepository struct {
	db *sqlx.DB
}

func NewCollectionRepository(db *sqlx.DB) *CollectionRepository {
	return &CollectionRepository{db: db}
}

// dueRow is the flat shape of the joined due-collection query.
type dueRow struct {
	domain.Collection
	PlaybookName     string    `db:"playbook_name"`
	InvoiceNumber    string    `db:"invoice_number"`
	InvoiceAmount    float64   `db:"invoice_amount"`
	InvoiceCurrency  string    `db:"invoice_currency"`
	InvoiceDueDate   time.Time `db:"invoice_due_date"`
	CompanyName      string    `db:"company_name"`
	ContactFirstName string    `db:"contact_first_name"`
	ContactLastName  string    `db:"contact_last_name"`
	ContactEmail     string    `db:"contact_email"`
	ContactPhone     *string   `db:"contact_phone"`
}

const collectionColumns = `
	c.id, c.tenant_id, c.invoice_id, c.company_id, c.primary_contact_id, c.playbook_id,
	c.status, c.current_message_index, c.messages_sent_count, c.last_message_sent_at,
	c.next_action_at, c.customer_responded, c.pause_reason, c.started_at, c.completed_at`

const stepColumns = `
	id, playbook_id, sequence_order, channel, subject_template, body_template,
	wait_days, send_only_if_no_response`

// GetDueCollections returns up to limit active collections whose next action
// is due, oldest first, composed with their playbook, invoice, company and
// primary contact. It issues two queries regardless of batch size.
func (r *CollectionRepository) GetDueCollections(ctx context.Context, now time.Time, limit int) ([]domain.DueCollection, error) {
	query := `
		SELECT ` + collectionColumns + `,
			p.name AS playbook_name,
			i.invoice_number AS invoice_number,
			i.amount AS invoice_amount,
			i.currency AS invoice_currency,
			i.due_date AS invoice_due_date,
			co.name AS company_name,
			COALESCE(ct.first_name, '') AS contact_first_name,
			COALESCE(ct.last_name, '') AS contact_last_name,
			COALESCE(ct.email, '') AS contact_email,
			ct.phone AS contact_phone
		FROM collections c
		JOIN playbooks p ON p.id = c.playbook_id
		JOIN invoices i ON i.id = c.invoice_id
		JOIN companies co ON co.id = c.company_id
		LEFT JOIN contacts ct ON ct.id = c.primary_contact_id
		WHERE c.status = 'active'
		  AND c.next_action_at IS NOT NULL
		  AND c.next_action_at <= ?
		ORDER BY c.next_action_at ASC
		LIMIT ?
	`

	var rows []dueRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), now, limit); err != nil {
		return nil, fmt.Errorf("failed to get due collections: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	playbookIDs := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.PlaybookID]; ok {
			continue
		}
		seen[row.PlaybookID] = struct{}{}
		playbookIDs = append(playbookIDs, row.PlaybookID)
	}

	stepsByPlaybook, err := r.getStepsForPlaybooks(ctx, playbookIDs)
	if err != nil {
		return nil, err
	}

	due := make([]domain.DueCollection, 0, len(rows))
	for _, row := range rows {
		due = append(due, domain.DueCollection{
			Collection: row.Collection,
			Playbook: domain.Playbook{
				ID:    row.PlaybookID,
				Name:  row.PlaybookName,
				Steps: stepsByPlaybook[row.PlaybookID],
			},
			Invoice: domain.Invoice{
				ID:            row.InvoiceID,
				InvoiceNumber: row.InvoiceNumber,
				Amount:        row.InvoiceAmount,
				Currency:      row.InvoiceCurrency,
				DueDate:       row.InvoiceDueDate,
			},
			Company: domain.Company{
				ID:   row.CompanyID,
				Name: row.CompanyName,
			},
			Contact: domain.Contact{
				ID:        row.PrimaryContactID,
				FirstName: row.ContactFirstName,
				LastName:  row.ContactLastName,
				Email:     row.ContactEmail,
				Phone:     row.ContactPhone,
			},
		})
	}

	return due, nil
}

func (r *CollectionRepository) getStepsForPlaybooks(ctx context.Context, playbookIDs []string) (map[string][]domain.Step, error) {
	query, args, err := sqlx.In(`
		SELECT `+stepColumns+`
		FROM playbook_steps
		WHERE playbook_id IN (?)
		ORDER BY playbook_id, sequence_order ASC
	`, playbookIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build steps query: %w", err)
	}

	var steps []domain.Step
	if err := r.db.SelectContext(ctx, &steps, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get playbook steps: %w", err)
	}

	byPlaybook := make(map[string][]domain.Step, len(playbookIDs))
	for _, s := range steps {
		byPlaybook[s.PlaybookID] = append(byPlaybook[s.PlaybookID], s)
	}

	return byPlaybook, nil
}

// StepProgress describes the state after a step was sent or skipped.
type StepProgress struct {
	NextIndex    int
	NextActionAt *time.Time
	Status       domain.CollectionStatus
	CompletedAt  *time.Time
}

// RecordSentStep bumps the send counters and moves the pointer in one statement.
func (r *CollectionRepository) RecordSentStep(ctx context.Context, id string, sentAt time.Time, p StepProgress) error {
	query := `
		UPDATE collections
		SET messages_sent_count = messages_sent_count + 1,
		    last_message_sent_at = ?,
		    current_message_index = ?,
		    next_action_at = ?,
		    status = ?,
		    completed_at = ?
		WHERE id = ? AND status = 'active'
	`

	return r.execActive(ctx, "record sent step", id, query,
		sentAt, p.NextIndex, p.NextActionAt, p.Status, p.CompletedAt, id)
}

// AdvanceStep moves the pointer without touching the send counters.
func (r *CollectionRepository) AdvanceStep(ctx context.Context, id string, p StepProgress) error {
	query := `
		UPDATE collections
		SET current_message_index = ?,
		    next_action_at = ?,
		    status = ?,
		    completed_at = ?
		WHERE id = ? AND status = 'active'
	`

	return r.execActive(ctx, "advance step", id, query,
		p.NextIndex, p.NextActionAt, p.Status, p.CompletedAt, id)
}

func (r *CollectionRepository) Complete(ctx context.Context, id string, completedAt time.Time) error {
	query := `
		UPDATE collections
		SET status = 'completed',
		    completed_at = ?,
		    next_action_at = NULL
		WHERE id = ? AND status = 'active'
	`

	return r.execActive(ctx, "complete", id, query, completedAt, id)
}

func (r *CollectionRepository) Reschedule(ctx context.Context, id string, nextActionAt time.Time) error {
	query := `
		UPDATE collections
		SET next_action_at = ?
		WHERE id = ? AND status = 'active'
	`

	return r.execActive(ctx, "reschedule", id, query, nextActionAt, id)
}

// Pause hands the collection back to a human. Pointer and counters are untouched.
func (r *CollectionRepository) Pause(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE collections
		SET status = 'paused',
		    pause_reason = ?
		WHERE id = ? AND status = 'active'
	`

	return r.execActive(ctx, "pause", id, query, reason, id)
}

func (r *CollectionRepository) execActive(ctx context.Context, op, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to %s collection %s: %w", op, id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("failed to %s collection %s: %w", op, id, ErrNotActive)
	}

	return nil
}

// InsertSentMessage persists the audit record, assigning an id if missing.
func (r *CollectionRepository) InsertSentMessage(ctx context.Context, msg *domain.SentMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.DeliveryStatus == "" {
		msg.DeliveryStatus = domain.DeliverySent
	}

	query := `
		INSERT INTO sent_messages (
			id, tenant_id, collection_id, contact_id, step_id, message_index, channel,
			subject, body, external_message_id, delivery_status, sent_at, delivered_at
		) VALUES (
			:id, :tenant_id, :collection_id, :contact_id, :step_id, :message_index, :channel,
			:subject, :body, :external_message_id, :delivery_status, :sent_at, :delivered_at
		)
	`

	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("failed to insert sent message: %w", err)
	}

	return nil
}

func (r *CollectionRepository) GetCollection(ctx context.Context, id string) (*domain.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections c WHERE c.id = ?`

	var c domain.Collection
	if err := r.db.GetContext(ctx, &c, r.db.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	return &c, nil
}

func (r *CollectionRepository) GetPlaybookSteps(ctx context.Context, playbookID string) ([]domain.Step, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM playbook_steps
		WHERE playbook_id = ?
		ORDER BY sequence_order ASC
	`

	var steps []domain.Step
	if err := r.db.SelectContext(ctx, &steps, r.db.Rebind(query), playbookID); err != nil {
		return nil, fmt.Errorf("failed to get playbook steps: %w", err)
	}

	return steps, nil
}

func (r *CollectionRepository) GetSentMessages(ctx context.Context, collectionID string) ([]domain.SentMessage, error) {
	query := `
		SELECT id, tenant_id, collection_id, contact_id, step_id, message_index, channel,
		       subject, body, external_message_id, delivery_status, sent_at, delivered_at
		FROM sent_messages
		WHERE collection_id = ?
		ORDER BY sent_at ASC
	`

	var messages []domain.SentMessage
	if err := r.db.SelectContext(ctx, &messages, r.db.Rebind(query), collectionID); err != nil {
		return nil, fmt.Errorf("failed to get sent messages: %w", err)
	}

	return messages, nil
}
