package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_RunsEveryStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"units", "users", "studies", "report_templates", "report_snippets", "reports", "audit_logs", "revoked_tokens"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table + " ").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_StopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS units").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("boom"))

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate step 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedAdmin_SkipsWhenUsersExist(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(3))

	created, err := SeedAdmin(context.Background(), db, "id-1", "admin@example.com", "hash")
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedAdmin_CreatesFirstAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec("INSERT INTO users").
		WithArgs("id-1", "admin@example.com", "hash", "Administrator", "admin_master").
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := SeedAdmin(context.Background(), db, "id-1", "admin@example.com", "hash")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedDemo_LoadsDatasetInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectBegin()
	for range demoUnits {
		mock.ExpectExec("INSERT INTO units").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	for range demoUsers {
		mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	for range demoTemplates {
		mock.ExpectExec("INSERT INTO report_templates").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	for range demoSnippets {
		mock.ExpectExec("INSERT INTO report_snippets").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	for i := 0; i < 40; i++ {
		mock.ExpectExec("INSERT INTO studies").WillReturnResult(sqlmock.NewResult(1, 1))
		if demoStatuses[i%len(demoStatuses)] != "" {
			mock.ExpectExec("INSERT INTO reports").WillReturnResult(sqlmock.NewResult(1, 1))
		}
	}
	mock.ExpectCommit()

	created, err := SeedDemo(context.Background(), db, "hash", time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}
