package database

import (
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onurcolak/collections-worker/environments"
)

func TestDSN(t *testing.T) {
	cfg := environments.DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p", DBName: "collections", SSLMode: "disable",
	}

	cfg.Driver = DriverPostgres
	dsn, err := DSN(cfg)
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=collections sslmode=disable timezone=UTC", dsn)

	cfg.Driver = DriverMySQL
	dsn, err = DSN(cfg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "u:p@tcp(db:5432)/collections?parseTime=true"))

	cfg.Driver = "sqlite"
	_, err = DSN(cfg)
	assert.Error(t, err)
}

func TestMigrationStatements_MySQLInlinesIndexes(t *testing.T) {
	stmts, err := MigrationStatements(DriverMySQL)
	require.NoError(t, err)
	require.Len(t, stmts, len(tables))

	for _, stmt := range stmts {
		assert.NotContains(t, stmt, "{{")
		assert.Contains(t, stmt, "ENGINE=InnoDB")
	}

	collections := stmts[6]
	assert.Contains(t, collections, "CREATE TABLE IF NOT EXISTS collections")
	assert.Contains(t, collections, "next_action_at DATETIME(6) NULL")
	assert.Contains(t, collections, "INDEX idx_collections_due (status, next_action_at)")
	assert.Contains(t, collections, "pause_reason TEXT NULL")
}

func TestMigrationStatements_PostgresSeparatesIndexes(t *testing.T) {
	stmts, err := MigrationStatements(DriverPostgres)
	require.NoError(t, err)

	indexCount := 0
	for _, tbl := range tables {
		indexCount += len(tbl.indexes)
	}
	require.Len(t, stmts, len(tables)+indexCount)

	joined := strings.Join(stmts, ";\n")
	assert.NotContains(t, joined, "ENGINE=InnoDB")
	assert.Contains(t, joined, "sent_at TIMESTAMPTZ NOT NULL")
	assert.Contains(t, joined, "CREATE INDEX IF NOT EXISTS idx_sent_messages_contact_sent ON sent_messages (contact_id, sent_at)")
}

func TestRunMigrations_ExecutesEveryStatement(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := sqlx.NewDb(mockDB, "mysql")

	for range tables {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, RunMigrations(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedTestData_SkipsWhenCollectionsExist(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := sqlx.NewDb(mockDB, "mysql")

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM collections`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	require.NoError(t, SeedTestData(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedTestData_InsertsInOneTransaction(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := sqlx.NewDb(mockDB, "mysql")

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM collections`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tenant_settings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO playbooks").WillReturnResult(sqlmock.NewResult(1, 1))
	for range seedPlaybook {
		mock.ExpectExec("INSERT INTO playbook_steps").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	for range seedContacts {
		mock.ExpectExec("INSERT INTO companies").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO contacts").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO invoices").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO collections").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, SeedTestData(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
