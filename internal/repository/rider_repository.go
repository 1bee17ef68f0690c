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

type RiderRepository struct {
	pool *pgxpool.Pool
}

func NewRiderRepository(pool *pgxpool.Pool) *RiderRepository {
	return &RiderRepository{pool: pool}
}

const riderColumns = `id, name, email, password_hash, role, student_id, phone, bus_id, created_at, updated_at`

func scanRider(row pgx.Row) (models.Rider, error) {
	var rider models.Rider
	err := row.Scan(
		&rider.ID,
		&rider.Name,
		&rider.Email,
		&rider.PasswordHash,
		&rider.Role,
		&rider.StudentID,
		&rider.Phone,
		&rider.BusID,
		&rider.CreatedAt,
		&rider.UpdatedAt,
	)
	return rider, err
}

func (r *RiderRepository) Create(ctx context.Context, rider models.Rider) error {
	const query = `
		INSERT INTO riders (
			id, name, email, password_hash, role, student_id, phone, bus_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		rider.ID,
		rider.Name,
		rider.Email,
		rider.PasswordHash,
		string(rider.Role),
		rider.StudentID,
		rider.Phone,
		rider.BusID,
	)
	return translate(err, ErrRiderNotFound)
}

func (r *RiderRepository) GetByID(ctx context.Context, id string) (models.Rider, error) {
	query := `SELECT ` + riderColumns + ` FROM riders WHERE id = $1`
	rider, err := scanRider(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return models.Rider{}, translate(err, ErrRiderNotFound)
	}
	return rider, nil
}

func (r *RiderRepository) FindByEmail(ctx context.Context, email string) (models.Rider, error) {
	query := `SELECT ` + riderColumns + ` FROM riders WHERE email = $1`
	rider, err := scanRider(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		return models.Rider{}, translate(err, ErrRiderNotFound)
	}
	return rider, nil
}

func (r *RiderRepository) List(ctx context.Context, filter models.RiderFilter) ([]models.Rider, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR student_id ILIKE $%d)", n, n, n))
	}

	query := `SELECT ` + riderColumns + ` FROM riders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var riders []models.Rider
	for rows.Next() {
		rider, err := scanRider(rows)
		if err != nil {
			return nil, err
		}
		riders = append(riders, rider)
	}
	return riders, rows.Err()
}

func (r *RiderRepository) Update(ctx context.Context, id string, changes models.RiderChanges) error {
	const query = `
		UPDATE riders
		SET name = COALESCE($2, name),
		    email = COALESCE($3, email),
		    phone = COALESCE($4, phone),
		    student_id = COALESCE($5, student_id),
		    role = COALESCE($6, role),
		    updated_at = NOW()
		WHERE id = $1
	`
	var role *string
	if changes.Role != nil {
		s := string(*changes.Role)
		role = &s
	}
	cmd, err := r.pool.Exec(ctx, query, id, changes.Name, changes.Email, changes.Phone, changes.StudentID, role)
	if err != nil {
		return translate(err, ErrRiderNotFound)
	}
	if cmd.RowsAffected() == 0 {
		return ErrRiderNotFound
	}
	return nil
}

func (r *RiderRepository) SetBus(ctx context.Context, riderID string, busID *string) error {
	const query = `UPDATE riders SET bus_id = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, riderID, busID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRiderNotFound
	}
	return nil
}

// ClearBus unassigns every rider that references busID.
func (r *RiderRepository) ClearBus(ctx context.Context, busID string) error {
	const query = `UPDATE riders SET bus_id = NULL, updated_at = NOW() WHERE bus_id = $1`
	_, err := r.pool.Exec(ctx, query, busID)
	return err
}

func (r *RiderRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM riders WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRiderNotFound
	}
	return nil
}

func (r *RiderRepository) CountByRole(ctx context.Context) (map[models.RiderRole]int, error) {
	const query = `SELECT role, COUNT(*) FROM riders GROUP BY role`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.RiderRole]int)
	for rows.Next() {
		var (
			role  string
			count int
		)
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		counts[models.RiderRole(role)] = count
	}
	return counts, rows.Err()
}

func (r *RiderRepository) CreatedPerDay(ctx context.Context, since time.Time) ([]models.DateCount, error) {
	const query = `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM riders
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day
	`
	return queryDateCounts(ctx, r.pool, query, since)
}

func queryDateCounts(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]models.DateCount, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DateCount
	for rows.Next() {
		var dc models.DateCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}
