package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bustrack/internal/models"
)

type BusRepository struct {
	pool *pgxpool.Pool
}

func NewBusRepository(pool *pgxpool.Pool) *BusRepository {
	return &BusRepository{pool: pool}
}

const busColumns = `
	b.id, b.bus_id, b.bus_number, b.route_name, b.capacity, b.driver_id, b.driver_name,
	b.latitude, b.longitude, b.speed, b.accuracy, b.status, b.created_at, b.updated_at,
	COALESCE(
		(SELECT array_agg(o.rider_id ORDER BY o.created_at) FROM bus_occupants o WHERE o.bus_id = b.id),
		'{}'
	)`

func scanBus(row pgx.Row) (models.Bus, error) {
	var bus models.Bus
	err := row.Scan(
		&bus.ID,
		&bus.BusID,
		&bus.BusNumber,
		&bus.RouteName,
		&bus.Capacity,
		&bus.DriverID,
		&bus.DriverName,
		&bus.Latitude,
		&bus.Longitude,
		&bus.Speed,
		&bus.Accuracy,
		&bus.Status,
		&bus.CreatedAt,
		&bus.UpdatedAt,
		&bus.OccupantIDs,
	)
	return bus, err
}

func (r *BusRepository) Create(ctx context.Context, bus models.Bus) error {
	const query = `
		INSERT INTO buses (
			id, bus_id, bus_number, route_name, capacity, driver_id, driver_name,
			latitude, longitude, speed, accuracy, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		bus.ID,
		bus.BusID,
		bus.BusNumber,
		bus.RouteName,
		bus.Capacity,
		bus.DriverID,
		bus.DriverName,
		bus.Latitude,
		bus.Longitude,
		bus.Speed,
		bus.Accuracy,
		string(bus.Status),
	)
	return translate(err, ErrBusNotFound)
}

func (r *BusRepository) getOne(ctx context.Context, where string, arg any) (models.Bus, error) {
	query := `SELECT ` + busColumns + ` FROM buses b WHERE ` + where
	bus, err := scanBus(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return models.Bus{}, translate(err, ErrBusNotFound)
	}
	return bus, nil
}

func (r *BusRepository) Get(ctx context.Context, id string) (models.Bus, error) {
	return r.getOne(ctx, `b.id = $1`, id)
}

func (r *BusRepository) GetByNumber(ctx context.Context, busNumber string) (models.Bus, error) {
	return r.getOne(ctx, `b.bus_number = $1`, busNumber)
}

func (r *BusRepository) FindByDriver(ctx context.Context, driverID string) (models.Bus, error) {
	return r.getOne(ctx, `b.driver_id = $1`, driverID)
}

func (r *BusRepository) List(ctx context.Context, filter models.BusFilter) ([]models.Bus, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("b.status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(b.bus_number ILIKE $%d OR b.bus_id ILIKE $%d OR b.route_name ILIKE $%d OR b.driver_name ILIKE $%d)", n, n, n, n))
	}

	query := `SELECT ` + busColumns + ` FROM buses b`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY b.updated_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return r.query(ctx, query, args...)
}

func (r *BusRepository) ListUpdatedSince(ctx context.Context, since time.Time) ([]models.Bus, error) {
	query := `SELECT ` + busColumns + ` FROM buses b WHERE b.updated_at >= $1 ORDER BY b.updated_at DESC`
	return r.query(ctx, query, since)
}

func (r *BusRepository) query(ctx context.Context, query string, args ...any) ([]models.Bus, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buses []models.Bus
	for rows.Next() {
		bus, err := scanBus(rows)
		if err != nil {
			return nil, err
		}
		buses = append(buses, bus)
	}
	return buses, rows.Err()
}

func (r *BusRepository) Counts(ctx context.Context, activeSince time.Time) (models.BusCounts, error) {
	const query = `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE updated_at >= $1)
		FROM buses
	`
	var counts models.BusCounts
	if err := r.pool.QueryRow(ctx, query, activeSince).Scan(&counts.Total, &counts.Active); err != nil {
		return models.BusCounts{}, err
	}
	return counts, nil
}

func (r *BusRepository) UpdateDetails(ctx context.Context, id string, details models.BusDetails) error {
	const query = `
		UPDATE buses
		SET bus_number = COALESCE($2, bus_number),
		    route_name = COALESCE($3, route_name),
		    capacity = COALESCE($4, capacity),
		    status = COALESCE($5, status),
		    updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, details.BusNumber, details.RouteName, details.Capacity, statusParam(details.Status))
	if err != nil {
		return translate(err, ErrBusNotFound)
	}
	if cmd.RowsAffected() == 0 {
		return ErrBusNotFound
	}
	return nil
}

// ApplyTelemetry is the single write path for runtime fields. It is one
// statement, so each field lands atomically and concurrent writers are
// last-write-wins.
func (r *BusRepository) ApplyTelemetry(ctx context.Context, id string, t models.Telemetry) error {
	const query = `
		UPDATE buses
		SET latitude = COALESCE($2, latitude),
		    longitude = COALESCE($3, longitude),
		    speed = COALESCE($4, speed),
		    accuracy = CASE WHEN $7 THEN $5 ELSE COALESCE($5, accuracy) END,
		    status = COALESCE($6, status),
		    updated_at = $8
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, t.Latitude, t.Longitude, t.Speed, t.Accuracy, statusParam(t.Status), t.Full, t.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBusNotFound
	}
	return nil
}

func (r *BusRepository) SetDriver(ctx context.Context, busID string, driverID *string, driverName *string) error {
	const query = `
		UPDATE buses SET driver_id = $2, driver_name = $3, updated_at = NOW() WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, busID, driverID, driverName)
	if err != nil {
		return translate(err, ErrBusNotFound)
	}
	if cmd.RowsAffected() == 0 {
		return ErrBusNotFound
	}
	return nil
}

func (r *BusRepository) ClearDriver(ctx context.Context, driverID string) error {
	const query = `
		UPDATE buses SET driver_id = NULL, driver_name = NULL, updated_at = NOW() WHERE driver_id = $1
	`
	_, err := r.pool.Exec(ctx, query, driverID)
	return err
}

func (r *BusRepository) AddOccupant(ctx context.Context, busID string, riderID string) error {
	const query = `
		INSERT INTO bus_occupants (bus_id, rider_id) VALUES ($1, $2)
		ON CONFLICT (bus_id, rider_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, busID, riderID)
	return err
}

func (r *BusRepository) RemoveOccupant(ctx context.Context, busID string, riderID string) error {
	const query = `DELETE FROM bus_occupants WHERE bus_id = $1 AND rider_id = $2`
	_, err := r.pool.Exec(ctx, query, busID, riderID)
	return err
}

func (r *BusRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM buses WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBusNotFound
	}
	return nil
}

func statusParam(status *models.BusStatus) *string {
	if status == nil {
		return nil
	}
	s := string(*status)
	return &s
}
