package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateAppliesAllStatements(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	for range migrations {
		mock.ExpectExec("CREATE (TABLE|INDEX) IF NOT EXISTS").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnError(assert.AnError)

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migration")
}

func TestMigrationsCoverCoreTables(t *testing.T) {
	ddl := ""
	for _, stmt := range migrations {
		ddl += stmt + "\n"
	}

	for _, table := range []string{
		"users", "sessions", "workspaces", "workspace_members",
		"workspace_invitations", "audit_logs", "customers", "invoices",
		"invoice_line_items", "expenses", "tasks", "payments",
	} {
		assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS "+table+" ", "missing table %s", table)
	}

	// Every audit row records how the operation it describes ended
	assert.Contains(t, ddl, "outcome VARCHAR(20) NOT NULL DEFAULT 'success'")
}
