package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type dayKey struct {
	doctorID uuid.UUID
	day      string
}

// MemoryRepository is an in-process Repository used by tests and the load
// simulator's self-checks. Its own mutex only protects map access; doctor-day
// serialization still comes from the Locker, same as with Postgres.
type MemoryRepository struct {
	mu       sync.RWMutex
	doctors  map[uuid.UUID]Doctor
	entries  map[uuid.UUID]QueueEntry
	counters map[dayKey]int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:  make(map[uuid.UUID]Doctor),
		entries:  make(map[uuid.UUID]QueueEntry),
		counters: make(map[dayKey]int),
	}
}

func (r *MemoryRepository) PutDoctor(d Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = d
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) GetEntryByID(_ context.Context, id uuid.UUID) (*QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}

func (r *MemoryRepository) GetActiveEntry(_ context.Context, doctorID, patientID uuid.UUID, day string) (*QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.DoctorID == doctorID && e.PatientID == patientID && e.Day == day &&
			(e.Status == StatusWaiting || e.Status == StatusCalled) {
			entry := e
			return &entry, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (r *MemoryRepository) NextQueueNumber(_ context.Context, doctorID uuid.UUID, day string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dayKey{doctorID: doctorID, day: day}
	r.counters[key]++
	return r.counters[key], nil
}

func (r *MemoryRepository) InsertEntry(_ context.Context, e *QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[e.ID] = *e
	return nil
}

func (r *MemoryRepository) ListEntries(_ context.Context, doctorID uuid.UUID, day string, statuses ...Status) ([]QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []QueueEntry
	for _, e := range r.entries {
		if e.DoctorID != doctorID || e.Day != day {
			continue
		}
		if len(statuses) > 0 && !statusIn(e.Status, statuses) {
			continue
		}
		result = append(result, e)
	}

	sortByCallOrder(result)
	return result, nil
}

func (r *MemoryRepository) UpdateEntryStatus(_ context.Context, id uuid.UUID, from, to Status, at time.Time, notes *string) (*QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.Status != from {
		return nil, ErrEntryNotFound
	}

	e.Status = to
	switch to {
	case StatusCalled:
		t := at
		e.CalledAt = &t
	case StatusCompleted:
		t := at
		e.CompletedAt = &t
	}
	if notes != nil {
		e.Notes = notes
	}

	r.entries[id] = e
	entry := e
	return &entry, nil
}

func (r *MemoryRepository) UpdateEstimates(_ context.Context, estimates map[uuid.UUID]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, minutes := range estimates {
		if e, ok := r.entries[id]; ok {
			e.EstimatedWait = minutes
			r.entries[id] = e
		}
	}
	return nil
}

func (r *MemoryRepository) DeleteEntry(_ context.Context, id uuid.UUID) (*QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}

	delete(r.entries, id)
	entry := e
	return &entry, nil
}

func statusIn(s Status, set []Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

// MemoryArchiver collects archive records in memory for tests.
type MemoryArchiver struct {
	mu      sync.Mutex
	records []ArchiveRecord
}

func NewMemoryArchiver() *MemoryArchiver {
	return &MemoryArchiver{}
}

func (a *MemoryArchiver) Archive(_ context.Context, rec ArchiveRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *MemoryArchiver) Records() []ArchiveRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ArchiveRecord, len(a.records))
	copy(out, a.records)
	return out
}
