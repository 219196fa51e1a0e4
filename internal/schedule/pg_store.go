package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool this store uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgStore backs both availability contracts with Postgres. Reads only; the
// slot generator never mutates anything.
type PgStore struct {
	db DB
}

func NewPgStore(db DB) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) IsAvailable(ctx context.Context, doctorID uuid.UUID) (bool, error) {
	var available bool
	err := s.db.QueryRow(ctx, `
		SELECT available
		FROM doctors
		WHERE id = $1
	`, doctorID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrDoctorNotFound
		}
		return false, err
	}
	return available, nil
}

func (s *PgStore) WorkingHours(ctx context.Context, doctorID uuid.UUID) (map[time.Weekday]WorkingHours, error) {
	rows, err := s.db.Query(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM working_hours
		WHERE doctor_id = $1
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hours := make(map[time.Weekday]WorkingHours)
	for rows.Next() {
		var weekday, startMin, endMin int
		if err := rows.Scan(&weekday, &startMin, &endMin); err != nil {
			return nil, err
		}
		hours[time.Weekday(weekday)] = WorkingHours{
			Start: TimeOfDay(startMin),
			End:   TimeOfDay(endMin),
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hours, nil
}

func (s *PgStore) BookedIntervals(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Interval, error) {
	day := date.Format("2006-01-02")

	rows, err := s.db.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE doctor_id = $1 AND day = $2
		  AND status IN ('pending', 'confirmed')
		ORDER BY start_time
	`, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("query booked intervals: %w", err)
	}
	defer rows.Close()

	var intervals []Interval
	for rows.Next() {
		var iv Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return intervals, nil
}
