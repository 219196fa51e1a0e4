package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound = errors.New("doctor not found")
	ErrEntryNotFound  = errors.New("queue entry not found")
)

// Repository contains all ledger interactions needed by the service. Mutating
// methods are only called while the doctor-day lock is held.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	GetEntryByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error)

	// GetActiveEntry finds the patient's waiting or called ticket for the
	// doctor-day, for duplicate-join rejection.
	GetActiveEntry(ctx context.Context, doctorID, patientID uuid.UUID, day string) (*QueueEntry, error)

	// NextQueueNumber issues the next ticket number for the doctor-day.
	// Numbers are never reused, even after rows are deleted.
	NextQueueNumber(ctx context.Context, doctorID uuid.UUID, day string) (int, error)

	InsertEntry(ctx context.Context, e *QueueEntry) error

	// ListEntries returns the doctor-day's entries, filtered to the given
	// statuses (all statuses when none given), in call order.
	ListEntries(ctx context.Context, doctorID uuid.UUID, day string, statuses ...Status) ([]QueueEntry, error)

	// UpdateEntryStatus is a compare-and-set: the row moves from -> to or the
	// call fails with ErrEntryNotFound. Stamps called_at / completed_at when
	// entering the corresponding status.
	UpdateEntryStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time, notes *string) (*QueueEntry, error)

	// UpdateEstimates applies a bulk wait-time recomputation pass.
	UpdateEstimates(ctx context.Context, estimates map[uuid.UUID]int) error

	DeleteEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
}

// Archiver is the write contract of the archival sink for completed tickets.
type Archiver interface {
	Archive(ctx context.Context, rec ArchiveRecord) error
}
