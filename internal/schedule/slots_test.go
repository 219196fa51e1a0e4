package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	available bool
	hours     map[time.Weekday]WorkingHours
}

func (d *fakeDirectory) IsAvailable(context.Context, uuid.UUID) (bool, error) {
	return d.available, nil
}

func (d *fakeDirectory) WorkingHours(context.Context, uuid.UUID) (map[time.Weekday]WorkingHours, error) {
	return d.hours, nil
}

type fakeAppointments struct {
	booked []Interval
}

func (s *fakeAppointments) BookedIntervals(context.Context, uuid.UUID, time.Time) ([]Interval, error) {
	return s.booked, nil
}

// 2026-08-31 is a Monday.
var monday = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

func mustTime(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	require.NoError(t, err)
	return tod
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 8, 31, hour, minute, 0, 0, time.UTC)
}

func newSlotService(t *testing.T, dir *fakeDirectory, booked ...Interval) *Service {
	t.Helper()
	return NewService(dir, &fakeAppointments{booked: booked}, 30)
}

func TestAvailableSlotsAroundBooking(t *testing.T) {
	dir := &fakeDirectory{
		available: true,
		hours: map[time.Weekday]WorkingHours{
			time.Monday: {Start: mustTime(t, "09:00"), End: mustTime(t, "10:00")},
		},
	}
	svc := newSlotService(t, dir, Interval{Start: at(9, 30), End: at(10, 0)})

	slots, err := svc.AvailableSlots(context.Background(), uuid.New(), monday)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, at(9, 0), slots[0].Start)
	assert.Equal(t, at(9, 30), slots[0].End)
}

func TestAvailableSlotsClosedDay(t *testing.T) {
	dir := &fakeDirectory{
		available: true,
		hours: map[time.Weekday]WorkingHours{
			time.Tuesday: {Start: mustTime(t, "09:00"), End: mustTime(t, "17:00")},
		},
	}
	svc := newSlotService(t, dir)

	slots, err := svc.AvailableSlots(context.Background(), uuid.New(), monday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlotsUnavailableDoctor(t *testing.T) {
	dir := &fakeDirectory{
		available: false,
		hours: map[time.Weekday]WorkingHours{
			time.Monday: {Start: mustTime(t, "09:00"), End: mustTime(t, "17:00")},
		},
	}
	svc := newSlotService(t, dir)

	slots, err := svc.AvailableSlots(context.Background(), uuid.New(), monday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlotsInvertedHours(t *testing.T) {
	for _, hours := range []WorkingHours{
		{Start: mustTime(t, "17:00"), End: mustTime(t, "09:00")},
		{Start: mustTime(t, "09:00"), End: mustTime(t, "09:00")},
	} {
		dir := &fakeDirectory{
			available: true,
			hours:     map[time.Weekday]WorkingHours{time.Monday: hours},
		}
		svc := newSlotService(t, dir)

		slots, err := svc.AvailableSlots(context.Background(), uuid.New(), monday)
		require.NoError(t, err)
		assert.Empty(t, slots)
	}
}

// A trailing window shorter than the slot width is dropped, never returned as
// a short slot.
func TestAvailableSlotsDropsPartialTrailingSlot(t *testing.T) {
	dir := &fakeDirectory{
		available: true,
		hours: map[time.Weekday]WorkingHours{
			time.Monday: {Start: mustTime(t, "09:00"), End: mustTime(t, "10:15")},
		},
	}
	svc := newSlotService(t, dir)

	slots, err := svc.AvailableSlots(context.Background(), uuid.New(), monday)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, at(10, 0), slots[1].End, "no 10:00-10:15 stub")
}

func TestAvailableSlotsChronologicalAndExclusive(t *testing.T) {
	booked := []Interval{
		{Start: at(10, 0), End: at(10, 30)},
		{Start: at(11, 45), End: at(12, 15)}, // off-grid booking blocks two candidates
	}
	dir := &fakeDirectory{
		available: true,
		hours: map[time.Weekday]WorkingHours{
			time.Monday: {Start: mustTime(t, "09:00"), End: mustTime(t, "13:00")},
		},
	}
	svc := newSlotService(t, dir, booked...)

	slots, err := svc.AvailableSlots(context.Background(), uuid.New(), monday)
	require.NoError(t, err)

	// 8 candidates total, minus 10:00 and minus 11:30 + 12:00.
	require.Len(t, slots, 5)

	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i-1].End.Before(slots[i].Start) || slots[i-1].End.Equal(slots[i].Start),
			"slots out of order")
	}
	for _, slot := range slots {
		for _, b := range booked {
			overlap := slot.Start.Before(b.End) && slot.End.After(b.Start)
			assert.False(t, overlap, "slot %v overlaps booking %v", slot, b)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("08:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(510), tod)
	assert.Equal(t, "08:30", tod.String())

	_, err = ParseTimeOfDay("8:30pm")
	assert.Error(t, err)
}
