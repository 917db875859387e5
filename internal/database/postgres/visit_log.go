package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// visitRecord is one row of the append-only visit log.
type visitRecord struct {
	ID       int64     `db:"id"`
	ViewedAt time.Time `db:"viewed_at"`
}

// VisitLogRepository stores visits as an append-only log. The total view
// count is the row cardinality, so concurrent recordings never lose updates.
type VisitLogRepository struct {
	db *sqlx.DB
}

func NewVisitLogRepository(db *sqlx.DB) *VisitLogRepository {
	return &VisitLogRepository{
		db: db,
	}
}

// Record inserts one visit row. Inserts are independent, so no guard against
// concurrent writers is needed.
func (r *VisitLogRepository) Record(ctx context.Context) error {
	const op = "database.postgres.VisitLogRepository.Record"

	rec := new(visitRecord)
	query := `INSERT INTO visits DEFAULT VALUES
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query)
	if err != nil {
		return fmt.Errorf("%s: failed to record visit: %w", op, err)
	}

	return nil
}

// Count returns the cardinality of the visit log.
func (r *VisitLogRepository) Count(ctx context.Context) (int64, error) {
	const op = "database.postgres.VisitLogRepository.Count"

	var count int64
	query := `SELECT count(*) FROM visits`

	err := r.db.GetContext(ctx, &count, query)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to count visits: %w", op, err)
	}

	return count, nil
}
