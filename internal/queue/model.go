package queue

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting        Status = "waiting"
	StatusCalled         Status = "called"
	StatusInConsultation Status = "in_consultation"
	StatusCompleted      Status = "completed"
	StatusMissed         Status = "missed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusInConsultation, StatusCompleted, StatusMissed:
		return true
	}
	return false
}

// Terminal statuses leave the live ledger: completed rows are archived first,
// missed rows are discarded.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusMissed
}

// transitions is the single source of truth for legal status changes.
var transitions = map[Status][]Status{
	StatusWaiting:        {StatusCalled, StatusMissed},
	StatusCalled:         {StatusInConsultation, StatusMissed},
	StatusInConsultation: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

const (
	PriorityNormal    = 1
	PriorityUrgent    = 2
	PriorityEmergency = 3
)

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QueueEntry is one patient's live ticket in a doctor's walk-in queue.
// QueueNumber is unique and monotonically increasing within (DoctorID, Day)
// and is never reused, even after entries leave the ledger.
type QueueEntry struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID
	Day           string // doctor-day partition key, formatted as DayFormat
	QueueNumber   int
	Priority      int // 1 normal .. 3 emergency, higher is served sooner
	Status        Status
	EstimatedWait int // minutes
	Notes         *string
	JoinedAt      time.Time
	CalledAt      *time.Time
	CompletedAt   *time.Time
}

const DayFormat = "2006-01-02"

// DayOf maps an instant to the calendar day that scopes queue numbering. The
// location is configured per deployment; midnight in that zone starts a fresh
// partition with numbering back at 1.
func DayOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayFormat)
}

// ArchiveRecord is the append-only write contract for completed tickets.
type ArchiveRecord struct {
	Entry          QueueEntry
	WaitMinutes    int
	ConsultMinutes int
	ArchivedAt     time.Time
}

type Stats struct {
	Day            string
	Waiting        int
	Called         int
	InConsultation int
	AverageWait    int // mean estimated wait over waiting entries, minutes
}
