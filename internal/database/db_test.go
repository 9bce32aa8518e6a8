package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/spot-confirmation/internal/config"
)

func TestDSN(t *testing.T) {
	got := DSN(config.DBConfig{User: "app", Pass: "secret", Host: "db", Port: "3306", Name: "comedy"})
	assert.Equal(t, "app:secret@tcp(db:3306)/comedy?charset=utf8mb4&parseTime=true&loc=UTC", got)

	got = DSN(config.DBConfig{User: "app", Host: "db", Port: "3306", Name: "comedy"})
	assert.Equal(t, "app@tcp(db:3306)/comedy?charset=utf8mb4&parseTime=true&loc=UTC", got)
}

func TestEnsureSchema_RunsEveryStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"events", "spots", "spot_confirmation_history"} {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + table)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema_StopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS events").WillReturnError(errors.New("denied"))

	err = EnsureSchema(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema statement 1")
}
