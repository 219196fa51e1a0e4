package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service generates free appointment slots by reconciling a doctor's weekday
// working hours against already-booked intervals.
type Service struct {
	directory Directory
	store     AppointmentStore
	widthMin  int
}

func NewService(directory Directory, store AppointmentStore, slotWidthMin int) *Service {
	return &Service{
		directory: directory,
		store:     store,
		widthMin:  slotWidthMin,
	}
}

// AvailableSlots returns the free fixed-width slots for the doctor on the
// given date, in chronological order. A doctor with no working hours for that
// weekday, inverted hours, or an unavailable flag yields an empty list, not an
// error. A trailing window shorter than the slot width is dropped.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	available, err := s.directory.IsAvailable(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, nil
	}

	hours, err := s.directory.WorkingHours(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}

	wh, ok := hours[date.Weekday()]
	if !ok || wh.End <= wh.Start {
		return nil, nil
	}

	booked, err := s.store.BookedIntervals(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load booked intervals: %w", err)
	}

	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	var slots []Slot
	for m := wh.Start; m+TimeOfDay(s.widthMin) <= wh.End; m += TimeOfDay(s.widthMin) {
		start := midnight.Add(time.Duration(m) * time.Minute)
		end := start.Add(time.Duration(s.widthMin) * time.Minute)

		if overlapsAny(start, end, booked) {
			continue
		}
		slots = append(slots, Slot{Start: start, End: end})
	}
	return slots, nil
}

// overlapsAny applies the half-open intersection test against every booking.
func overlapsAny(start, end time.Time, booked []Interval) bool {
	for _, b := range booked {
		if start.Before(b.End) && end.After(b.Start) {
			return true
		}
	}
	return false
}
