package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository uses; tests substitute a
// pgxmock pool.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.Available,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry
	var appointmentID *uuid.UUID
	var notes *string
	var calledAt, completedAt *time.Time

	err := row.Scan(
		&e.ID,
		&e.DoctorID,
		&e.PatientID,
		&appointmentID,
		&e.Day,
		&e.QueueNumber,
		&e.Priority,
		&e.Status,
		&e.EstimatedWait,
		&notes,
		&e.JoinedAt,
		&calledAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	e.AppointmentID = appointmentID
	e.Notes = notes
	e.CalledAt = calledAt
	e.CompletedAt = completedAt
	return &e, nil
}

const entryColumns = `id, doctor_id, patient_id, appointment_id, day, queue_number, priority, status, estimated_wait, notes, joined_at, called_at, completed_at`

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, available, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetEntryByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE id = $1
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) GetActiveEntry(ctx context.Context, doctorID, patientID uuid.UUID, day string) (*QueueEntry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE doctor_id = $1 AND patient_id = $2 AND day = $3
		  AND status IN ('waiting', 'called')
	`, doctorID, patientID, day)
	return scanEntry(row)
}

// NextQueueNumber bumps a per doctor-day counter so numbers stay monotonic
// even after terminal rows are deleted from the ledger.
func (r *PgRepository) NextQueueNumber(ctx context.Context, doctorID uuid.UUID, day string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		INSERT INTO queue_counters (doctor_id, day, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (doctor_id, day)
		DO UPDATE SET last_number = queue_counters.last_number + 1
		RETURNING last_number
	`, doctorID, day).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next queue number: %w", err)
	}
	return n, nil
}

func (r *PgRepository) InsertEntry(ctx context.Context, e *QueueEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO queue_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, e.ID, e.DoctorID, e.PatientID, e.AppointmentID, e.Day, e.QueueNumber,
		e.Priority, e.Status, e.EstimatedWait, e.Notes, e.JoinedAt, e.CalledAt, e.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (r *PgRepository) ListEntries(ctx context.Context, doctorID uuid.UUID, day string, statuses ...Status) ([]QueueEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE doctor_id = $1 AND day = $2
	`
	args := []any{doctorID, day}

	if len(statuses) > 0 {
		filter := make([]string, len(statuses))
		for i, s := range statuses {
			filter[i] = string(s)
		}
		query += ` AND status = ANY($3)`
		args = append(args, filter)
	}

	query += ` ORDER BY priority DESC, queue_number ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateEntryStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time, notes *string) (*QueueEntry, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = $2,
		    called_at = CASE WHEN $2 = 'called' THEN $4 ELSE called_at END,
		    completed_at = CASE WHEN $2 = 'completed' THEN $4 ELSE completed_at END,
		    notes = COALESCE($5, notes)
		WHERE id = $1
		  AND status = $3
		RETURNING `+entryColumns+`
	`, id, to, from, at, notes)

	return scanEntry(row)
}

func (r *PgRepository) UpdateEstimates(ctx context.Context, estimates map[uuid.UUID]int) error {
	for id, minutes := range estimates {
		_, err := r.db.Exec(ctx, `
			UPDATE queue_entries
			SET estimated_wait = $2
			WHERE id = $1
		`, id, minutes)
		if err != nil {
			return fmt.Errorf("update estimate for %s: %w", id, err)
		}
	}
	return nil
}

func (r *PgRepository) DeleteEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	row := r.db.QueryRow(ctx, `
		DELETE FROM queue_entries
		WHERE id = $1
		RETURNING `+entryColumns+`
	`, id)
	return scanEntry(row)
}

// PgArchiver writes completed tickets to the append-only archive table.
type PgArchiver struct {
	db DB
}

func NewPgArchiver(db DB) *PgArchiver {
	return &PgArchiver{db: db}
}

func (a *PgArchiver) Archive(ctx context.Context, rec ArchiveRecord) error {
	e := rec.Entry
	_, err := a.db.Exec(ctx, `
		INSERT INTO queue_archive
			(queue_id, doctor_id, patient_id, day, queue_number, priority,
			 wait_minutes, consult_minutes, joined_at, called_at, completed_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.DoctorID, e.PatientID, e.Day, e.QueueNumber, e.Priority,
		rec.WaitMinutes, rec.ConsultMinutes, e.JoinedAt, e.CalledAt, e.CompletedAt, rec.ArchivedAt)
	if err != nil {
		return fmt.Errorf("archive queue entry %s: %w", e.ID, err)
	}
	return nil
}
