package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/vadimbarashkov/view-ledger/internal/database"
	"github.com/vadimbarashkov/view-ledger/internal/models"
)

var counterColumns = []string{"id", "view_count", "created_at", "updated_at"}

func setupCounterRepository(t testing.TB) (*CounterRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}

	db := sqlx.NewDb(mockDB, "sqlmock")
	repo := NewCounterRepository(db)

	t.Cleanup(func() {
		mockDB.Close()
		db.Close()
	})

	return repo, mock
}

func TestCounterRepository_Record(t *testing.T) {
	t.Run("counter not found", func(t *testing.T) {
		repo, mock := setupCounterRepository(t)

		mock.ExpectQuery(`SELECT view_count FROM view_counters`).
			WithArgs(models.SentinelCounterID).
			WillReturnError(sql.ErrNoRows)

		err := repo.Record(context.TODO())

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrCounterNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown error on read", func(t *testing.T) {
		repo, mock := setupCounterRepository(t)

		mock.ExpectQuery(`SELECT view_count FROM view_counters`).
			WithArgs(models.SentinelCounterID).
			WillReturnError(errUnknown)

		err := repo.Record(context.TODO())

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown error on write", func(t *testing.T) {
		repo, mock := setupCounterRepository(t)

		rows := sqlmock.NewRows([]string{"view_count"}).AddRow(41)

		mock.ExpectQuery(`SELECT view_count FROM view_counters`).
			WithArgs(models.SentinelCounterID).
			WillReturnRows(rows)
		mock.ExpectExec(`UPDATE view_counters`).
			WithArgs(int64(42), models.SentinelCounterID).
			WillReturnError(errUnknown)

		err := repo.Record(context.TODO())

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("row vanished before write", func(t *testing.T) {
		repo, mock := setupCounterRepository(t)

		rows := sqlmock.NewRows([]string{"view_count"}).AddRow(41)

		mock.ExpectQuery(`SELECT view_count FROM view_counters`).
			WithArgs(models.SentinelCounterID).
			WillReturnRows(rows)
		mock.ExpectExec(`UPDATE view_counters`).
			WithArgs(int64(42), models.SentinelCounterID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Record(context.TODO())

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrCounterNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success writes baseline plus one", func(t *testing.T) {
		repo, mock := setupCounterRepository(t)

		rows := sqlmock.NewRows([]string{"view_count"}).AddRow(41)

		mock.ExpectQuery(`SELECT view_count FROM view_counters`).
			WithArgs(models.SentinelCounterID).
			WillReturnRows(rows)
		mock.ExpectExec(`UPDATE view_counters`).
			WithArgs(int64(42), models.SentinelCounterID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Record(context.TODO())

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCounterRepository_Count(t *testing.T) {
	t.Run("counter not found", func(t *testing.T) {
		repo, mock := setupCounterRepository(t)

		mock.ExpectQuery(`SELECT \* FROM view_counters`).
			WithArgs(models.SentinelCounterID).
			WillReturnError(sql.ErrNoRows)

		count, err := repo.Count(context.TODO())

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrCounterNotFound)
		assert.Zero(t, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown error", func(t *testing.T) {
		repo, mock := setupCounterRepository(t)

		mock.ExpectQuery(`SELECT \* FROM view_counters`).
			WithArgs(models.SentinelCounterID).
			WillReturnError(errUnknown)

		count, err := repo.Count(context.TODO())

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Zero(t, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success", func(t *testing.T) {
		repo, mock := setupCounterRepository(t)

		rows := sqlmock.NewRows(counterColumns).
			AddRow(models.SentinelCounterID, 42, time.Time{}, time.Time{})

		mock.ExpectQuery(`SELECT \* FROM view_counters`).
			WithArgs(models.SentinelCounterID).
			WillReturnRows(rows)

		count, err := repo.Count(context.TODO())

		assert.NoError(t, err)
		assert.Equal(t, int64(42), count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
