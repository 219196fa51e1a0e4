package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-queueing/internal/queue"
)

type JoinQueueRequest struct {
	DoctorID      string  `json:"doctor_id"`
	PatientID     string  `json:"patient_id"`
	PriorityLevel int     `json:"priority_level"`
	Notes         *string `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

type QueueEntryResponse struct {
	ID            uuid.UUID  `json:"id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	Day           string     `json:"day"`
	QueueNumber   int        `json:"queue_number"`
	PriorityLevel int        `json:"priority_level"`
	Status        string     `json:"status"`
	EstimatedWait int        `json:"estimated_wait_minutes"`
	Notes         *string    `json:"notes,omitempty"`
	JoinedAt      time.Time  `json:"joined_at"`
	CalledAt      *time.Time `json:"called_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toEntryResponse(e *queue.QueueEntry) QueueEntryResponse {
	return QueueEntryResponse{
		ID:            e.ID,
		DoctorID:      e.DoctorID,
		PatientID:     e.PatientID,
		Day:           e.Day,
		QueueNumber:   e.QueueNumber,
		PriorityLevel: e.Priority,
		Status:        string(e.Status),
		EstimatedWait: e.EstimatedWait,
		Notes:         e.Notes,
		JoinedAt:      e.JoinedAt,
		CalledAt:      e.CalledAt,
		CompletedAt:   e.CompletedAt,
	}
}

type PositionResponse struct {
	QueueID  uuid.UUID `json:"queue_id"`
	Position int       `json:"position"`
}

type StatsResponse struct {
	DoctorID       uuid.UUID `json:"doctor_id"`
	Day            string    `json:"day"`
	Waiting        int       `json:"waiting"`
	Called         int       `json:"called"`
	InConsultation int       `json:"in_consultation"`
	AverageWait    int       `json:"average_wait_minutes"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// AlreadyQueuedResponse carries the patient's existing ticket alongside the
// rejection so clients can show it without a second request.
type AlreadyQueuedResponse struct {
	Error string             `json:"error"`
	Entry QueueEntryResponse `json:"entry"`
}
