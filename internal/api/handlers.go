package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-queueing/internal/queue"
	"github.com/clinicdesk/clinic-queueing/internal/schedule"
)

func joinQueueHandler(svc *queue.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinQueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		entry, err := svc.Join(r.Context(), doctorID, patientID, req.PriorityLevel, req.Notes)
		if err != nil {
			if errors.Is(err, queue.ErrAlreadyQueued) && entry != nil {
				writeJSON(w, http.StatusConflict, AlreadyQueuedResponse{
					Error: "already_queued",
					Entry: toEntryResponse(entry),
				})
				return
			}
			handleQueueError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toEntryResponse(entry))
	}
}

func callNextHandler(svc *queue.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, r, "doctorID")
		if !ok {
			return
		}

		entry, err := svc.CallNext(r.Context(), doctorID)
		if err != nil {
			handleQueueError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

func updateStatusHandler(svc *queue.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queueID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		entry, err := svc.UpdateStatus(r.Context(), queueID, queue.Status(req.Status), req.Notes)
		if err != nil {
			handleQueueError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

func removeFromQueueHandler(svc *queue.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queueID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		entry, err := svc.Remove(r.Context(), queueID)
		if err != nil {
			handleQueueError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

func listQueueHandler(svc *queue.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, r, "doctorID")
		if !ok {
			return
		}

		var statuses []queue.Status
		if raw := r.URL.Query().Get("status"); raw != "" {
			s := queue.Status(raw)
			if !s.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_status", "unknown status filter")
				return
			}
			statuses = append(statuses, s)
		}

		entries, err := svc.ListByDoctor(r.Context(), doctorID, statuses...)
		if err != nil {
			handleQueueError(w, err)
			return
		}

		resp := make([]QueueEntryResponse, len(entries))
		for i := range entries {
			resp[i] = toEntryResponse(&entries[i])
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func positionHandler(svc *queue.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queueID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		position, err := svc.Position(r.Context(), queueID)
		if err != nil {
			handleQueueError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, PositionResponse{QueueID: queueID, Position: position})
	}
}

func statsHandler(svc *queue.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, r, "doctorID")
		if !ok {
			return
		}

		date := time.Now()
		if raw := r.URL.Query().Get("date"); raw != "" {
			parsed, err := time.Parse(queue.DayFormat, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			date = parsed
		}

		stats, err := svc.StatsFor(r.Context(), doctorID, date)
		if err != nil {
			handleQueueError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, StatsResponse{
			DoctorID:       doctorID,
			Day:            stats.Day,
			Waiting:        stats.Waiting,
			Called:         stats.Called,
			InConsultation: stats.InConsultation,
			AverageWait:    stats.AverageWait,
		})
	}
}

func availableSlotsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, r, "doctorID")
		if !ok {
			return
		}

		raw := r.URL.Query().Get("date")
		if raw == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
			return
		}
		date, err := time.Parse(queue.DayFormat, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, date)
		if err != nil {
			if errors.Is(err, schedule.ErrDoctorNotFound) {
				writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		if slots == nil {
			slots = []schedule.Slot{}
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, queue.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "queue_entry_not_found", err.Error())
	case errors.Is(err, queue.ErrDoctorUnavailable):
		writeError(w, http.StatusConflict, "doctor_unavailable", err.Error())
	case errors.Is(err, queue.ErrAlreadyQueued):
		writeError(w, http.StatusConflict, "already_queued", err.Error())
	case errors.Is(err, queue.ErrQueueEmpty):
		writeError(w, http.StatusNotFound, "queue_empty", "no one is waiting")
	case errors.Is(err, queue.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, queue.ErrNotWaiting):
		writeError(w, http.StatusConflict, "not_waiting", err.Error())
	case errors.Is(err, queue.ErrInvalidPriority):
		writeError(w, http.StatusBadRequest, "invalid_priority", err.Error())
	case errors.Is(err, queue.ErrQueueBusy):
		writeError(w, http.StatusConflict, "queue_busy", "queue is busy, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
