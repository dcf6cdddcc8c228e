package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/collections-worker/pkg/logger"
)

type seedStep struct {
	subject  string
	body     string
	waitDays int
	gated    bool
}

var seedPlaybook = []seedStep{
	{
		subject:  "Invoice {{invoice_number}} is past due",
		body:     "Hi {{contact_first_name}},\n\nInvoice {{invoice_number}} for {{currency}} {{amount}} was due on {{due_date}} and is now {{days_overdue}} days overdue.\n\nThanks,\n{{company_name}} accounts team",
		waitDays: 0,
	},
	{
		subject:  "Reminder: invoice {{invoice_number}}",
		body:     "Hi {{contact_first_name}},\n\nFollowing up on invoice {{invoice_number}} ({{currency}} {{amount}}), now {{days_overdue}} days overdue.",
		waitDays: 3,
		gated:    true,
	},
	{
		subject:  "Final notice: invoice {{invoice_number}}",
		body:     "Hi {{contact_name}},\n\nThis is our final notice for invoice {{invoice_number}}. Please arrange payment of {{currency}} {{amount}}.",
		waitDays: 7,
		gated:    true,
	},
}

var seedContacts = []struct {
	company   string
	firstName string
	lastName  string
	email     string
	amount    float64
	overdue   int
}{
	{"Acme Corp", "Ada", "Lovelace", "ada@acme.example", 1250.00, 12},
	{"Globex", "Hank", "Scorpio", "hank@globex.example", 48210.55, 30},
	{"Initech", "Bill", "Lumbergh", "bill@initech.example", 980.10, 5},
}

// SeedTestData inserts one tenant with a three-step playbook and a due
// collection per seeded contact. It does nothing if collections already exist.
func SeedTestData(db *sqlx.DB) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM collections"); err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d collections, skipping seed", count)
		return nil
	}

	now := time.Now().UTC()
	tenantID := uuid.NewString()
	playbookID := uuid.NewString()

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exec := func(query string, args ...any) error {
		_, err := tx.Exec(tx.Rebind(query), args...)
		return err
	}

	if err := exec(
		"INSERT INTO tenant_settings (tenant_id, max_active_collections, max_daily_messages, min_hours_between_messages) VALUES (?, ?, ?, ?)",
		tenantID, 500, 100, 4.0,
	); err != nil {
		return fmt.Errorf("failed to seed tenant settings: %w", err)
	}

	if err := exec("INSERT INTO playbooks (id, tenant_id, name) VALUES (?, ?, ?)", playbookID, tenantID, "Standard reminder"); err != nil {
		return fmt.Errorf("failed to seed playbook: %w", err)
	}

	for i, step := range seedPlaybook {
		if err := exec(
			`INSERT INTO playbook_steps
				(id, playbook_id, sequence_order, channel, subject_template, body_template, wait_days, send_only_if_no_response)
			VALUES (?, ?, ?, 'email', ?, ?, ?, ?)`,
			uuid.NewString(), playbookID, i+1, step.subject, step.body, step.waitDays, step.gated,
		); err != nil {
			return fmt.Errorf("failed to seed playbook step: %w", err)
		}
	}

	for i, c := range seedContacts {
		companyID := uuid.NewString()
		contactID := uuid.NewString()
		invoiceID := uuid.NewString()

		if err := exec("INSERT INTO companies (id, tenant_id, name) VALUES (?, ?, ?)", companyID, tenantID, c.company); err != nil {
			return fmt.Errorf("failed to seed company: %w", err)
		}

		if err := exec(
			"INSERT INTO contacts (id, tenant_id, company_id, first_name, last_name, email) VALUES (?, ?, ?, ?, ?, ?)",
			contactID, tenantID, companyID, c.firstName, c.lastName, c.email,
		); err != nil {
			return fmt.Errorf("failed to seed contact: %w", err)
		}

		if err := exec(
			"INSERT INTO invoices (id, tenant_id, company_id, invoice_number, amount, currency, due_date) VALUES (?, ?, ?, ?, ?, 'USD', ?)",
			invoiceID, tenantID, companyID, fmt.Sprintf("INV-%04d", 1001+i), c.amount, now.AddDate(0, 0, -c.overdue),
		); err != nil {
			return fmt.Errorf("failed to seed invoice: %w", err)
		}

		if err := exec(
			`INSERT INTO collections
				(id, tenant_id, invoice_id, company_id, primary_contact_id, playbook_id, status, next_action_at, started_at)
			VALUES (?, ?, ?, ?, ?, ?, 'active', ?, ?)`,
			uuid.NewString(), tenantID, invoiceID, companyID, contactID, playbookID, now, now,
		); err != nil {
			return fmt.Errorf("failed to seed collection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed data: %w", err)
	}

	logger.Infof("Seeded %d collections for tenant %s", len(seedContacts), tenantID)
	return nil
}
