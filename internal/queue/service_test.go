package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinic-queueing/internal/notify"
	redisclient "github.com/clinicdesk/clinic-queueing/internal/redis"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev notify.Event) notify.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return notify.Report{}
}

func (d *recordingDispatcher) Events() []notify.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]notify.Event, len(d.events))
	copy(out, d.events)
	return out
}

type fixture struct {
	svc        *Service
	repo       *MemoryRepository
	archiver   *MemoryArchiver
	dispatcher *recordingDispatcher
	locker     redisclient.Locker
	doctorID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := redisclient.NewRedisQueueLocker(client, 2*time.Second, 5*time.Second)
	repo := NewMemoryRepository()
	archiver := NewMemoryArchiver()
	dispatcher := &recordingDispatcher{}

	svc := NewService(repo, archiver, locker, dispatcher, time.UTC, 15)

	doctorID := uuid.New()
	repo.PutDoctor(Doctor{ID: doctorID, Name: "Dr. Reyes", Available: true})

	return &fixture{
		svc:        svc,
		repo:       repo,
		archiver:   archiver,
		dispatcher: dispatcher,
		locker:     locker,
		doctorID:   doctorID,
	}
}

func (f *fixture) join(t *testing.T, priority int) *QueueEntry {
	t.Helper()
	entry, err := f.svc.Join(context.Background(), f.doctorID, uuid.New(), priority, nil)
	require.NoError(t, err)
	return entry
}

func TestJoinAssignsSequentialNumbers(t *testing.T) {
	f := newFixture(t)

	for i := 1; i <= 5; i++ {
		entry := f.join(t, PriorityNormal)
		assert.Equal(t, i, entry.QueueNumber)
		assert.Equal(t, StatusWaiting, entry.Status)
		assert.Equal(t, (i-1)*15, entry.EstimatedWait)
	}
}

func TestJoinDefaultsPriority(t *testing.T) {
	f := newFixture(t)

	entry, err := f.svc.Join(context.Background(), f.doctorID, uuid.New(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, entry.Priority)

	_, err = f.svc.Join(context.Background(), f.doctorID, uuid.New(), 7, nil)
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestJoinRejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	patientID := uuid.New()

	first, err := f.svc.Join(context.Background(), f.doctorID, patientID, PriorityNormal, nil)
	require.NoError(t, err)

	dup, err := f.svc.Join(context.Background(), f.doctorID, patientID, PriorityEmergency, nil)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
	require.NotNil(t, dup)
	assert.Equal(t, first.ID, dup.ID, "the original entry is returned")
	assert.Equal(t, first.QueueNumber, dup.QueueNumber)
	assert.Equal(t, PriorityNormal, dup.Priority, "the original entry is unchanged")
}

func TestJoinDoctorChecks(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Join(context.Background(), uuid.New(), uuid.New(), PriorityNormal, nil)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	away := uuid.New()
	f.repo.PutDoctor(Doctor{ID: away, Name: "Dr. Away", Available: false})
	_, err = f.svc.Join(context.Background(), away, uuid.New(), PriorityNormal, nil)
	assert.ErrorIs(t, err, ErrDoctorUnavailable)
}

func TestConcurrentJoinsIssueUniqueNumbers(t *testing.T) {
	f := newFixture(t)

	const joins = 30
	var wg sync.WaitGroup
	numbers := make(chan int, joins)

	for i := 0; i < joins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := f.svc.Join(context.Background(), f.doctorID, uuid.New(), PriorityNormal, nil)
			if assert.NoError(t, err) {
				numbers <- entry.QueueNumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int]bool)
	for n := range numbers {
		assert.False(t, seen[n], "queue number %d issued twice", n)
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, joins)
		seen[n] = true
	}
	assert.Len(t, seen, joins)
}

func TestCallNextPriorityOrder(t *testing.T) {
	f := newFixture(t)

	p1 := f.join(t, PriorityNormal)    // queue_number 1
	p2 := f.join(t, PriorityEmergency) // queue_number 2

	called, err := f.svc.CallNext(context.Background(), f.doctorID)
	require.NoError(t, err)
	assert.Equal(t, p2.ID, called.ID, "higher priority wins despite later queue number")
	assert.Equal(t, StatusCalled, called.Status)
	require.NotNil(t, called.CalledAt)

	called2, err := f.svc.CallNext(context.Background(), f.doctorID)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, called2.ID)
}

func TestCallNextEmptyQueue(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CallNext(context.Background(), f.doctorID)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestConcurrentCallNextExactlyOnce(t *testing.T) {
	f := newFixture(t)

	const waiting = 12
	const calls = 8

	for i := 0; i < waiting; i++ {
		priority := PriorityNormal
		if i%4 == 0 {
			priority = PriorityUrgent
		}
		f.join(t, priority)
	}

	// Top-N by the ordering rule over what was just inserted.
	all, err := f.repo.ListEntries(context.Background(), f.doctorID, DayOf(time.Now(), time.UTC), StatusWaiting)
	require.NoError(t, err)
	topN := make(map[uuid.UUID]bool, calls)
	for i := 0; i < calls; i++ {
		topN[all[i].ID] = true
	}

	var wg sync.WaitGroup
	calledIDs := make(chan uuid.UUID, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := f.svc.CallNext(context.Background(), f.doctorID)
			if assert.NoError(t, err) {
				calledIDs <- entry.ID
			}
		}()
	}
	wg.Wait()
	close(calledIDs)

	seen := make(map[uuid.UUID]bool)
	for id := range calledIDs {
		assert.False(t, seen[id], "entry %s called twice", id)
		assert.True(t, topN[id], "entry %s called out of order", id)
		seen[id] = true
	}
	assert.Len(t, seen, calls)
}

func TestEstimatesNeverIncreaseAfterCall(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		f.join(t, PriorityNormal)
	}

	day := DayOf(time.Now(), time.UTC)
	before := map[uuid.UUID]int{}
	entries, err := f.repo.ListEntries(context.Background(), f.doctorID, day, StatusWaiting)
	require.NoError(t, err)
	for _, e := range entries {
		before[e.ID] = e.EstimatedWait
	}

	_, err = f.svc.CallNext(context.Background(), f.doctorID)
	require.NoError(t, err)

	after, err := f.repo.ListEntries(context.Background(), f.doctorID, day, StatusWaiting)
	require.NoError(t, err)
	require.Len(t, after, 2)
	for _, e := range after {
		assert.LessOrEqual(t, e.EstimatedWait, before[e.ID])
	}
}

func TestUpdateStatusLegality(t *testing.T) {
	f := newFixture(t)

	entry := f.join(t, PriorityNormal)

	// waiting -> in_consultation skips called.
	_, err := f.svc.UpdateStatus(context.Background(), entry.ID, StatusInConsultation, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// waiting is never a valid target.
	_, err = f.svc.UpdateStatus(context.Background(), entry.ID, StatusWaiting, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Unknown status string.
	_, err = f.svc.UpdateStatus(context.Background(), entry.ID, Status("paused"), nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The entry is untouched by the rejected updates.
	current, err := f.repo.GetEntryByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, current.Status)
}

func TestCompletionArchivesAndDeletes(t *testing.T) {
	f := newFixture(t)

	entry := f.join(t, PriorityNormal)

	_, err := f.svc.CallNext(context.Background(), f.doctorID)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), entry.ID, StatusInConsultation, nil)
	require.NoError(t, err)

	done, err := f.svc.UpdateStatus(context.Background(), entry.ID, StatusCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	// Archived exactly once, then gone from the live ledger.
	records := f.archiver.Records()
	require.Len(t, records, 1)
	assert.Equal(t, entry.ID, records[0].Entry.ID)
	assert.GreaterOrEqual(t, records[0].WaitMinutes, 0)

	_, err = f.repo.GetEntryByID(context.Background(), entry.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestMissedDeletesWithoutArchive(t *testing.T) {
	f := newFixture(t)

	entry := f.join(t, PriorityNormal)

	missed, err := f.svc.UpdateStatus(context.Background(), entry.ID, StatusMissed, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusMissed, missed.Status)

	assert.Empty(t, f.archiver.Records())
	_, err = f.repo.GetEntryByID(context.Background(), entry.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRemoveDiscardsAndReestimates(t *testing.T) {
	f := newFixture(t)

	first := f.join(t, PriorityNormal)
	second := f.join(t, PriorityNormal)
	require.Equal(t, 15, second.EstimatedWait)

	removed, err := f.svc.Remove(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, removed.ID)
	assert.Empty(t, f.archiver.Records())

	current, err := f.repo.GetEntryByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, current.EstimatedWait)

	_, err = f.svc.Remove(context.Background(), first.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestPosition(t *testing.T) {
	f := newFixture(t)

	normal := f.join(t, PriorityNormal)
	urgent := f.join(t, PriorityUrgent)

	pos, err := f.svc.Position(context.Background(), urgent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = f.svc.Position(context.Background(), normal.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	_, err = f.svc.CallNext(context.Background(), f.doctorID)
	require.NoError(t, err)

	_, err = f.svc.Position(context.Background(), urgent.ID)
	assert.ErrorIs(t, err, ErrNotWaiting)

	pos, err = f.svc.Position(context.Background(), normal.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestStatsFor(t *testing.T) {
	f := newFixture(t)

	f.join(t, PriorityNormal)
	f.join(t, PriorityNormal)
	f.join(t, PriorityNormal)

	_, err := f.svc.CallNext(context.Background(), f.doctorID)
	require.NoError(t, err)

	stats, err := f.svc.StatsFor(context.Background(), f.doctorID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Waiting)
	assert.Equal(t, 1, stats.Called)
	assert.Equal(t, 0, stats.InConsultation)
	// Remaining waits are 0 and 15 after re-estimation.
	assert.Equal(t, 7, stats.AverageWait)
}

func TestDispatchFollowsCommittedTransitions(t *testing.T) {
	f := newFixture(t)

	entry := f.join(t, PriorityNormal)
	_, err := f.svc.CallNext(context.Background(), f.doctorID)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), entry.ID, StatusMissed, nil)
	require.NoError(t, err)

	events := f.dispatcher.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "", events[0].Previous)
	assert.Equal(t, "waiting", events[0].New)
	assert.Equal(t, "waiting", events[1].Previous)
	assert.Equal(t, "called", events[1].New)
	assert.Equal(t, "called", events[2].Previous)
	assert.Equal(t, "missed", events[2].New)
}

func TestLockContentionSurfacesAsBusy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// Short wait so the blocked caller gives up quickly.
	locker := redisclient.NewRedisQueueLocker(client, 2*time.Second, 50*time.Millisecond)
	repo := NewMemoryRepository()
	svc := NewService(repo, NewMemoryArchiver(), locker, nil, time.UTC, 15)

	doctorID := uuid.New()
	repo.PutDoctor(Doctor{ID: doctorID, Name: "Dr. Held", Available: true})

	day := DayOf(time.Now(), time.UTC)
	release := make(chan struct{})
	held := make(chan struct{})

	go func() {
		_ = locker.WithQueueLock(context.Background(), doctorID, day, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	_, err := svc.Join(context.Background(), doctorID, uuid.New(), PriorityNormal, nil)
	assert.ErrorIs(t, err, ErrQueueBusy)
	close(release)
}
