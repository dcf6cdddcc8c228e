package database

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/valyala/fasttemplate"

	"github.com/onurcolak/collections-worker/pkg/logger"
)

type index struct {
	name    string
	columns string
}

type table struct {
	name    string
	columns string
	indexes []index
}

// Column definitions use {{id}}, {{ts}}, {{bool}} and {{money}} for the types
// that differ between dialects.
var tables = []table{
	{
		name: "tenant_settings",
		columns: `
		tenant_id {{id}} PRIMARY KEY,
		max_active_collections INT NOT NULL DEFAULT 500,
		max_daily_messages INT NOT NULL DEFAULT 100,
		min_hours_between_messages DOUBLE PRECISION NOT NULL DEFAULT 4`,
	},
	{
		name: "companies",
		columns: `
		id {{id}} PRIMARY KEY,
		tenant_id {{id}} NOT NULL,
		name VARCHAR(255) NOT NULL`,
		indexes: []index{{"idx_companies_tenant", "tenant_id"}},
	},
	{
		name: "contacts",
		columns: `
		id {{id}} PRIMARY KEY,
		tenant_id {{id}} NOT NULL,
		company_id {{id}} NOT NULL,
		first_name VARCHAR(100) NOT NULL DEFAULT '',
		last_name VARCHAR(100) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(32)`,
		indexes: []index{{"idx_contacts_company", "company_id"}},
	},
	{
		name: "invoices",
		columns: `
		id {{id}} PRIMARY KEY,
		tenant_id {{id}} NOT NULL,
		company_id {{id}} NOT NULL,
		invoice_number VARCHAR(64) NOT NULL,
		amount {{money}} NOT NULL,
		currency VARCHAR(3) NOT NULL,
		due_date {{ts}} NOT NULL`,
		indexes: []index{{"idx_invoices_company", "company_id"}},
	},
	{
		name: "playbooks",
		columns: `
		id {{id}} PRIMARY KEY,
		tenant_id {{id}} NOT NULL,
		name VARCHAR(255) NOT NULL`,
	},
	{
		name: "playbook_steps",
		columns: `
		id {{id}} PRIMARY KEY,
		playbook_id {{id}} NOT NULL,
		sequence_order INT NOT NULL,
		channel VARCHAR(20) NOT NULL DEFAULT 'email',
		subject_template TEXT NOT NULL,
		body_template TEXT NOT NULL,
		wait_days INT NOT NULL DEFAULT 0,
		send_only_if_no_response {{bool}} NOT NULL DEFAULT FALSE`,
		indexes: []index{{"idx_playbook_steps_playbook", "playbook_id, sequence_order"}},
	},
	{
		name: "collections",
		columns: `
		id {{id}} PRIMARY KEY,
		tenant_id {{id}} NOT NULL,
		invoice_id {{id}} NOT NULL,
		company_id {{id}} NOT NULL,
		primary_contact_id {{id}} NOT NULL,
		playbook_id {{id}} NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'active',
		current_message_index INT NOT NULL DEFAULT 0,
		messages_sent_count INT NOT NULL DEFAULT 0,
		last_message_sent_at {{ts}} NULL,
		next_action_at {{ts}} NULL,
		customer_responded {{bool}} NOT NULL DEFAULT FALSE,
		pause_reason TEXT NULL,
		started_at {{ts}} NOT NULL,
		completed_at {{ts}} NULL`,
		indexes: []index{
			{"idx_collections_due", "status, next_action_at"},
			{"idx_collections_tenant_status", "tenant_id, status"},
		},
	},
	{
		name: "sent_messages",
		columns: `
		id {{id}} PRIMARY KEY,
		tenant_id {{id}} NOT NULL,
		collection_id {{id}} NOT NULL,
		contact_id {{id}} NOT NULL,
		step_id {{id}} NULL,
		message_index INT NOT NULL,
		channel VARCHAR(20) NOT NULL,
		subject TEXT NULL,
		body TEXT NOT NULL,
		external_message_id VARCHAR(255) NULL,
		delivery_status VARCHAR(20) NOT NULL DEFAULT 'sent',
		sent_at {{ts}} NOT NULL,
		delivered_at {{ts}} NULL`,
		indexes: []index{
			{"idx_sent_messages_collection", "collection_id, message_index"},
			{"idx_sent_messages_tenant_sent", "tenant_id, sent_at"},
			{"idx_sent_messages_contact_sent", "contact_id, sent_at"},
		},
	},
}

var dialectTypes = map[string]map[string]any{
	DriverMySQL: {
		"id":    "VARCHAR(36)",
		"ts":    "DATETIME(6)",
		"bool":  "BOOLEAN",
		"money": "DECIMAL(14,2)",
	},
	DriverPostgres: {
		"id":    "VARCHAR(36)",
		"ts":    "TIMESTAMPTZ",
		"bool":  "BOOLEAN",
		"money": "NUMERIC(14,2)",
	},
}

// MigrationStatements renders the schema for the given driver. MySQL indexes
// are declared inline since it has no CREATE INDEX IF NOT EXISTS.
func MigrationStatements(driver string) ([]string, error) {
	types, ok := dialectTypes[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	var stmts []string
	for _, t := range tables {
		columns := fasttemplate.ExecuteString(t.columns, "{{", "}}", types)

		if driver == DriverMySQL {
			parts := []string{columns}
			for _, idx := range t.indexes {
				parts = append(parts, fmt.Sprintf("\n\t\tINDEX %s (%s)", idx.name, idx.columns))
			}
			stmts = append(stmts, fmt.Sprintf(
				"CREATE TABLE IF NOT EXISTS %s (%s\n\t) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci",
				t.name, strings.Join(parts, ","),
			))
			continue
		}

		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s\n\t)", t.name, columns))
		for _, idx := range t.indexes {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx.name, t.name, idx.columns))
		}
	}

	return stmts, nil
}

func RunMigrations(db *sqlx.DB) error {
	stmts, err := MigrationStatements(db.DriverName())
	if err != nil {
		return err
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed (%d statements)", len(stmts))

	return nil
}
