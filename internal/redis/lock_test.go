package redisclient

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
)

func newTestLocker(t *testing.T, ttl, wait time.Duration) Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueueLocker(client, ttl, wait)
}

func TestWithQueueLockRuns(t *testing.T) {
	locker := newTestLocker(t, time.Second, time.Second)

	ran := false
	err := locker.WithQueueLock(context.Background(), uuid.New(), "2026-08-30", func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestWithQueueLockTimesOutWhileHeld(t *testing.T) {
	locker := newTestLocker(t, 2*time.Second, 50*time.Millisecond)
	doctorID := uuid.New()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locker.WithQueueLock(context.Background(), doctorID, "2026-08-30", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	err := locker.WithQueueLock(context.Background(), doctorID, "2026-08-30", func(context.Context) error {
		t.Error("critical section entered while lock held elsewhere")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

// Different doctor-days never contend.
func TestWithQueueLockScopedPerDoctorDay(t *testing.T) {
	locker := newTestLocker(t, 2*time.Second, 50*time.Millisecond)
	doctorID := uuid.New()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locker.WithQueueLock(context.Background(), doctorID, "2026-08-30", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	err := locker.WithQueueLock(context.Background(), doctorID, "2026-08-31", func(context.Context) error {
		return nil
	})
	assert.NoError(t, err, "next day's partition has its own lock")

	err = locker.WithQueueLock(context.Background(), uuid.New(), "2026-08-30", func(context.Context) error {
		return nil
	})
	assert.NoError(t, err, "another doctor's partition has its own lock")
}

func TestWithQueueLockSerializesCriticalSections(t *testing.T) {
	locker := newTestLocker(t, 2*time.Second, 5*time.Second)
	doctorID := uuid.New()

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithQueueLock(context.Background(), doctorID, "2026-08-30", func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "critical sections overlapped")
}
