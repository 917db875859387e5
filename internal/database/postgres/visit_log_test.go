package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
)

var errUnknown = errors.New("unknown error")

var visitColumns = []string{"id", "viewed_at"}

func setupVisitLogRepository(t testing.TB) (*VisitLogRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	db := sqlx.NewDb(mockDB, "sqlmock")
	repo := NewVisitLogRepository(db)

	t.Cleanup(func() {
		mockDB.Close()
		db.Close()
	})

	return repo, mock
}

func TestVisitLogRepository_Record(t *testing.T) {
	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupVisitLogRepository(t)

		mock.ExpectQuery(`INSERT INTO visits`).
			WillReturnError(errUnknown)

		err := repo.Record(context.TODO())

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupVisitLogRepository(t)

		rows := sqlmock.NewRows(visitColumns).
			AddRow(1, time.Time{})

		mock.ExpectQuery(`INSERT INTO visits`).
			WillReturnRows(rows)

		err := repo.Record(context.TODO())

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVisitLogRepository_Count(t *testing.T) {
	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupVisitLogRepository(t)

		mock.ExpectQuery(`SELECT count\(\*\) FROM visits`).
			WillReturnError(errUnknown)

		count, err := repo.Count(context.TODO())

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Zero(t, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty log", func(t *testing.T) {
		repo, mock := setupVisitLogRepository(t)

		rows := sqlmock.NewRows([]string{"count"}).AddRow(0)

		mock.ExpectQuery(`SELECT count\(\*\) FROM visits`).
			WillReturnRows(rows)

		count, err := repo.Count(context.TODO())

		assert.NoError(t, err)
		assert.Zero(t, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupVisitLogRepository(t)

		rows := sqlmock.NewRows([]string{"count"}).AddRow(42)

		mock.ExpectQuery(`SELECT count\(\*\) FROM visits`).
			WillReturnRows(rows)

		count, err := repo.Count(context.TODO())

		assert.NoError(t, err)
		assert.Equal(t, int64(42), count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
