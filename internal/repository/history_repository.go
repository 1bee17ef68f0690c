package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"bustrack/internal/models"
)

type HistoryRepository struct {
	pool *pgxpool.Pool
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

func (r *HistoryRepository) Insert(ctx context.Context, rec models.LocationRecord) error {
	const query = `
		INSERT INTO bus_location_history (bus_id, latitude, longitude, speed, status, source, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.BusID,
		rec.Latitude,
		rec.Longitude,
		rec.Speed,
		string(rec.Status),
		rec.Source,
		rec.RecordedAt,
	)
	return err
}

func (r *HistoryRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM bus_location_history WHERE recorded_at < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *HistoryRepository) CountPerDay(ctx context.Context, since time.Time) ([]models.DateCount, error) {
	const query = `
		SELECT to_char(recorded_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM bus_location_history
		WHERE recorded_at >= $1
		GROUP BY day
		ORDER BY day
	`
	return queryDateCounts(ctx, r.pool, query, since)
}
