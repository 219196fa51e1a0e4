package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrDoctorNotFound = errors.New("doctor not found")

// TimeOfDay is a wall-clock instant as minutes since midnight. Working hours
// are stored this way so weekday schedules stay independent of any date.
type TimeOfDay int

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// WorkingHours is a doctor's [Start, End) window for one weekday. A weekday
// with no entry means the doctor is closed that day.
type WorkingHours struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Interval is a booked appointment's occupied time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Slot is a free, fixed-width candidate appointment interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Directory exposes the doctor configuration the generator reads.
type Directory interface {
	IsAvailable(ctx context.Context, doctorID uuid.UUID) (bool, error)
	WorkingHours(ctx context.Context, doctorID uuid.UUID) (map[time.Weekday]WorkingHours, error)
}

// AppointmentStore exposes booked intervals for a doctor-date. Appointments
// with status pending or confirmed count as booked.
type AppointmentStore interface {
	BookedIntervals(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Interval, error)
}
