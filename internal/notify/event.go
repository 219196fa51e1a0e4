package notify

import (
	"github.com/google/uuid"
)

// Event describes one committed queue transition. It is composed once by the
// queue service after the mutation is durable and is never replayed. Statuses
// are plain strings so channels stay decoupled from the ledger's enum.
type Event struct {
	QueueID       uuid.UUID `json:"queue_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Day           string    `json:"day"`
	QueueNumber   int       `json:"queue_number"`
	Priority      int       `json:"priority"`
	EstimatedWait int       `json:"estimated_wait"`
	Previous      string    `json:"previous_status"` // empty for ticket creation
	New           string    `json:"new_status"`
}

// ChannelResult records the outcome of one channel's delivery attempt.
type ChannelResult struct {
	Channel string
	Success bool
	Err     error
}

// Report aggregates per-channel outcomes of a single dispatch. Correctness of
// the queue never depends on any of them succeeding.
type Report struct {
	Results []ChannelResult
}

func (r Report) Failed() []ChannelResult {
	var failed []ChannelResult
	for _, res := range r.Results {
		if !res.Success {
			failed = append(failed, res)
		}
	}
	return failed
}
