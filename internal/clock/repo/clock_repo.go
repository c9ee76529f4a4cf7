package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/splashops/service-core/internal/clock/entity"
	"github.com/ovaphlow/splashops/service-core/pkg/database"
)

// ErrOpenShiftExists is returned by Insert when the user already has an
// open shift (partial unique index uq_clock_records_open).
var ErrOpenShiftExists = errors.New("open shift exists")

// ErrUnknownLocation is returned by Insert when location_id names no job location.
var ErrUnknownLocation = errors.New("unknown job location")

const recordSelect = `SELECT cr.id, cr.user_id, cr.location_id, cr.clock_in_time, cr.clock_out_time,
		cr.total_hours, cr.jobsite_notes, cr.created_at,
		u.first_name || ' ' || u.last_name AS user_name, l.name AS location_name
	FROM clock_records cr
	JOIN users u ON u.id = cr.user_id
	LEFT JOIN job_locations l ON l.id = cr.location_id`

type ClockRepo struct {
	db *sqlx.DB
}

func NewClockRepo(db *sqlx.DB) *ClockRepo { return &ClockRepo{db: db} }

// Open returns the user's open shift or sql.ErrNoRows.
func (r *ClockRepo) Open(ctx context.Context, userID int64) (*entity.Record, error) {
	var rec entity.Record
	q := recordSelect + ` WHERE cr.user_id=$1 AND cr.clock_out_time IS NULL`
	if err := r.db.GetContext(ctx, &rec, q, userID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LastCompletedBetween returns the latest closed shift that started in
// [from, to), or sql.ErrNoRows.
func (r *ClockRepo) LastCompletedBetween(ctx context.Context, userID int64, from, to time.Time) (*entity.Record, error) {
	var rec entity.Record
	q := recordSelect + ` WHERE cr.user_id=$1 AND cr.clock_out_time IS NOT NULL
		AND cr.clock_in_time >= $2 AND cr.clock_in_time < $3
		ORDER BY cr.clock_in_time DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &rec, q, userID, from, to); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert opens a shift and fills ID and CreatedAt.
func (r *ClockRepo) Insert(ctx context.Context, rec *entity.Record) error {
	const q = `INSERT INTO clock_records (user_id, location_id, clock_in_time, jobsite_notes, created_at)
		VALUES ($1, $2, $3, $4, $3) RETURNING id, created_at`
	err := r.db.QueryRowxContext(ctx, q, rec.UserID, rec.LocationID, rec.ClockInTime, rec.JobsiteNotes).
		Scan(&rec.ID, &rec.CreatedAt)
	switch {
	case database.IsUniqueViolation(err):
		return ErrOpenShiftExists
	case database.IsForeignKeyViolation(err):
		return ErrUnknownLocation
	}
	return err
}

// Close ends the user's open shift at `at` and returns the closed row, or
// sql.ErrNoRows when nothing was open.
func (r *ClockRepo) Close(ctx context.Context, userID int64, at time.Time) (*entity.Record, error) {
	const q = `UPDATE clock_records
		SET clock_out_time=$2::timestamptz,
		    total_hours=ROUND((EXTRACT(EPOCH FROM ($2::timestamptz - clock_in_time)) / 3600.0)::numeric, 2)
		WHERE user_id=$1 AND clock_out_time IS NULL
		RETURNING id, user_id, location_id, clock_in_time, clock_out_time, total_hours, jobsite_notes, created_at`
	var rec entity.Record
	if err := r.db.GetContext(ctx, &rec, q, userID, at); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Range lists shifts started in [from, to), newest first.
func (r *ClockRepo) Range(ctx context.Context, userID int64, from, to time.Time) ([]entity.Record, error) {
	q := recordSelect + ` WHERE cr.user_id=$1 AND cr.clock_in_time >= $2 AND cr.clock_in_time < $3
		ORDER BY cr.clock_in_time DESC`
	out := []entity.Record{}
	if err := r.db.SelectContext(ctx, &out, q, userID, from, to); err != nil {
		return nil, err
	}
	return out, nil
}

// Active lists every open shift, oldest first.
func (r *ClockRepo) Active(ctx context.Context) ([]entity.Record, error) {
	q := recordSelect + ` WHERE cr.clock_out_time IS NULL ORDER BY cr.clock_in_time`
	out := []entity.Record{}
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}
