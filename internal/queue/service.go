package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-queueing/internal/notify"
	redisclient "github.com/clinicdesk/clinic-queueing/internal/redis"
)

var (
	ErrAlreadyQueued     = errors.New("patient already has an active ticket for this doctor today")
	ErrQueueEmpty        = errors.New("no waiting entries in queue")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotWaiting        = errors.New("queue entry is not waiting")
	ErrQueueBusy         = errors.New("queue is busy, please retry")
	ErrDoctorUnavailable = errors.New("doctor is not accepting walk-ins")
	ErrInvalidPriority   = errors.New("priority level must be between 1 and 3")
)

// Dispatcher is consumed, not owned: the service decides what to send and
// when, delivery is someone else's problem.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev notify.Event) notify.Report
}

// Service owns every mutation of the live ledger. All writes for a doctor-day
// run inside the locker's critical section; notifications are dispatched only
// after the lock is released and the transition is durable.
type Service struct {
	repo       Repository
	archiver   Archiver
	locker     redisclient.Locker
	dispatcher Dispatcher
	loc        *time.Location
	avgConsult int

	now func() time.Time // injectable clock for tests
}

func NewService(repo Repository, archiver Archiver, locker redisclient.Locker, dispatcher Dispatcher, loc *time.Location, avgConsultMin int) *Service {
	return &Service{
		repo:       repo,
		archiver:   archiver,
		locker:     locker,
		dispatcher: dispatcher,
		loc:        loc,
		avgConsult: avgConsultMin,
		now:        time.Now,
	}
}

// Join issues the next ticket for (doctor, today). Number assignment and the
// duplicate check are atomic with respect to concurrent joins for the same
// doctor. On ErrAlreadyQueued the existing entry is returned alongside the
// error.
func (s *Service) Join(ctx context.Context, doctorID, patientID uuid.UUID, priority int, notes *string) (*QueueEntry, error) {
	if priority == 0 {
		priority = PriorityNormal
	}
	if priority < PriorityNormal || priority > PriorityEmergency {
		return nil, ErrInvalidPriority
	}

	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Available {
		return nil, ErrDoctorUnavailable
	}

	day := DayOf(s.now(), s.loc)

	var created, existing *QueueEntry

	err = s.locker.WithQueueLock(ctx, doctorID, day, func(lockCtx context.Context) error {
		active, err := s.repo.GetActiveEntry(lockCtx, doctorID, patientID, day)
		if err != nil && !errors.Is(err, ErrEntryNotFound) {
			return fmt.Errorf("check active ticket: %w", err)
		}
		if active != nil {
			existing = active
			return ErrAlreadyQueued
		}

		number, err := s.repo.NextQueueNumber(lockCtx, doctorID, day)
		if err != nil {
			return err
		}

		waiting, err := s.repo.ListEntries(lockCtx, doctorID, day, StatusWaiting)
		if err != nil {
			return fmt.Errorf("load waiting set: %w", err)
		}

		entry := &QueueEntry{
			ID:            uuid.New(),
			DoctorID:      doctorID,
			PatientID:     patientID,
			Day:           day,
			QueueNumber:   number,
			Priority:      priority,
			Status:        StatusWaiting,
			EstimatedWait: estimateForNew(waiting, priority, number, s.avgConsult),
			Notes:         notes,
			JoinedAt:      s.now(),
		}

		if err := s.repo.InsertEntry(lockCtx, entry); err != nil {
			return err
		}

		created = entry
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrAlreadyQueued) {
			return existing, ErrAlreadyQueued
		}
		return nil, s.mapLockErr(err)
	}

	s.dispatch(ctx, created, "", StatusWaiting)
	return created, nil
}

// CallNext transitions the top-ranked waiting entry to called. Under
// concurrent calls for the same doctor every waiting entry is called at most
// once and none is skipped.
func (s *Service) CallNext(ctx context.Context, doctorID uuid.UUID) (*QueueEntry, error) {
	day := DayOf(s.now(), s.loc)

	var called *QueueEntry

	err := s.locker.WithQueueLock(ctx, doctorID, day, func(lockCtx context.Context) error {
		waiting, err := s.repo.ListEntries(lockCtx, doctorID, day, StatusWaiting)
		if err != nil {
			return fmt.Errorf("load waiting set: %w", err)
		}
		if len(waiting) == 0 {
			return ErrQueueEmpty
		}

		sortByCallOrder(waiting)
		next := waiting[0]

		updated, err := s.repo.UpdateEntryStatus(lockCtx, next.ID, StatusWaiting, StatusCalled, s.now(), nil)
		if err != nil {
			return fmt.Errorf("call entry %s: %w", next.ID, err)
		}
		called = updated

		return s.reestimate(lockCtx, doctorID, day)
	})

	if err != nil {
		if errors.Is(err, ErrQueueEmpty) {
			return nil, ErrQueueEmpty
		}
		return nil, s.mapLockErr(err)
	}

	s.dispatch(ctx, called, StatusWaiting, StatusCalled)
	return called, nil
}

// UpdateStatus drives an entry through the legal transition set. Entries
// entering completed are archived then removed from the live ledger; missed
// entries are removed without archival.
func (s *Service) UpdateStatus(ctx context.Context, queueID uuid.UUID, newStatus Status, notes *string) (*QueueEntry, error) {
	if !newStatus.Valid() || newStatus == StatusWaiting {
		return nil, ErrInvalidTransition
	}

	entry, err := s.repo.GetEntryByID(ctx, queueID)
	if err != nil {
		return nil, err
	}

	var updated *QueueEntry
	var previous Status

	err = s.locker.WithQueueLock(ctx, entry.DoctorID, entry.Day, func(lockCtx context.Context) error {
		current, err := s.repo.GetEntryByID(lockCtx, queueID)
		if err != nil {
			return err
		}
		previous = current.Status

		if !CanTransition(current.Status, newStatus) {
			return ErrInvalidTransition
		}

		now := s.now()
		upd, err := s.repo.UpdateEntryStatus(lockCtx, queueID, current.Status, newStatus, now, notes)
		if err != nil {
			return fmt.Errorf("update entry %s: %w", queueID, err)
		}

		if newStatus.Terminal() {
			if newStatus == StatusCompleted {
				if err := s.archiver.Archive(lockCtx, buildArchiveRecord(upd, now)); err != nil {
					return fmt.Errorf("archive entry %s: %w", upd.ID, err)
				}
			}
			if _, err := s.repo.DeleteEntry(lockCtx, upd.ID); err != nil {
				return fmt.Errorf("remove terminal entry %s: %w", upd.ID, err)
			}
		}

		updated = upd

		// The waiting set only shrinks when a waiting entry leaves it, but a
		// completion also frees the doctor, so both trigger the bulk pass.
		if previous == StatusWaiting || newStatus.Terminal() {
			return s.reestimate(lockCtx, entry.DoctorID, entry.Day)
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrEntryNotFound) {
			return nil, err
		}
		return nil, s.mapLockErr(err)
	}

	s.dispatch(ctx, updated, previous, newStatus)
	return updated, nil
}

// Remove discards a non-terminal entry without archival.
func (s *Service) Remove(ctx context.Context, queueID uuid.UUID) (*QueueEntry, error) {
	entry, err := s.repo.GetEntryByID(ctx, queueID)
	if err != nil {
		return nil, err
	}

	var removed *QueueEntry

	err = s.locker.WithQueueLock(ctx, entry.DoctorID, entry.Day, func(lockCtx context.Context) error {
		rem, err := s.repo.DeleteEntry(lockCtx, queueID)
		if err != nil {
			return err
		}
		removed = rem
		return s.reestimate(lockCtx, entry.DoctorID, entry.Day)
	})

	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, err
		}
		return nil, s.mapLockErr(err)
	}

	return removed, nil
}

// Position returns the 1-based rank of a waiting entry among its doctor-day's
// waiting set. Reads a snapshot; no mutation lock needed.
func (s *Service) Position(ctx context.Context, queueID uuid.UUID) (int, error) {
	entry, err := s.repo.GetEntryByID(ctx, queueID)
	if err != nil {
		return 0, err
	}
	if entry.Status != StatusWaiting {
		return 0, ErrNotWaiting
	}

	waiting, err := s.repo.ListEntries(ctx, entry.DoctorID, entry.Day, StatusWaiting)
	if err != nil {
		return 0, fmt.Errorf("load waiting set: %w", err)
	}

	sortByCallOrder(waiting)
	for i := range waiting {
		if waiting[i].ID == queueID {
			return i + 1, nil
		}
	}
	return 0, ErrEntryNotFound
}

// ListByDoctor returns today's entries for a doctor in call order, optionally
// filtered by status.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, statuses ...Status) ([]QueueEntry, error) {
	day := DayOf(s.now(), s.loc)
	return s.repo.ListEntries(ctx, doctorID, day, statuses...)
}

// StatsFor summarizes a doctor's queue for the given date.
func (s *Service) StatsFor(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Stats, error) {
	day := DayOf(date, s.loc)

	entries, err := s.repo.ListEntries(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Day: day}
	waitSum := 0
	for _, e := range entries {
		switch e.Status {
		case StatusWaiting:
			stats.Waiting++
			waitSum += e.EstimatedWait
		case StatusCalled:
			stats.Called++
		case StatusInConsultation:
			stats.InConsultation++
		}
	}
	if stats.Waiting > 0 {
		stats.AverageWait = waitSum / stats.Waiting
	}
	return stats, nil
}

func (s *Service) reestimate(ctx context.Context, doctorID uuid.UUID, day string) error {
	waiting, err := s.repo.ListEntries(ctx, doctorID, day, StatusWaiting)
	if err != nil {
		return fmt.Errorf("load waiting set for re-estimation: %w", err)
	}
	if len(waiting) == 0 {
		return nil
	}
	return s.repo.UpdateEstimates(ctx, estimateAll(waiting, s.avgConsult))
}

func (s *Service) mapLockErr(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrQueueBusy
	}
	return err
}

func (s *Service) dispatch(ctx context.Context, e *QueueEntry, previous, next Status) {
	if s.dispatcher == nil || e == nil {
		return
	}

	report := s.dispatcher.Dispatch(ctx, notify.Event{
		QueueID:       e.ID,
		DoctorID:      e.DoctorID,
		PatientID:     e.PatientID,
		Day:           e.Day,
		QueueNumber:   e.QueueNumber,
		Priority:      e.Priority,
		EstimatedWait: e.EstimatedWait,
		Previous:      string(previous),
		New:           string(next),
	})
	if failed := report.Failed(); len(failed) > 0 {
		log.Printf("queue: %d of %d notification channels failed for entry %s",
			len(failed), len(report.Results), e.ID)
	}
}

func buildArchiveRecord(e *QueueEntry, now time.Time) ArchiveRecord {
	rec := ArchiveRecord{Entry: *e, ArchivedAt: now}

	if e.CalledAt != nil {
		rec.WaitMinutes = int(e.CalledAt.Sub(e.JoinedAt).Minutes())
		if e.CompletedAt != nil {
			rec.ConsultMinutes = int(e.CompletedAt.Sub(*e.CalledAt).Minutes())
		}
	}
	return rec
}
