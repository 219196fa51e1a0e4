package notify

import (
	"context"
	"log"
	"sync"
	"time"
)

// Channel is one independently fallible delivery path.
type Channel interface {
	Name() string
	Send(ctx context.Context, ev Event, message string) error
}

// Dispatcher fans one event out to every configured channel. Each channel runs
// in its own goroutine with its own deadline; a failing channel is logged and
// reported, never raised back to the state machine.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
}

func NewDispatcher(timeout time.Duration, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		timeout:  timeout,
	}
}

// Dispatch must only be called after the triggering transition is committed
// and the doctor-day lock is released. It waits for every channel so no
// failure is lost, but the caller is free to ignore the report.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Report {
	msg := MessageFor(ev)

	// The transition is already durable; cancelling the request that caused
	// it must not abort delivery mid-flight.
	base := context.WithoutCancel(ctx)

	results := make([]ChannelResult, len(d.channels))
	var wg sync.WaitGroup

	for i, ch := range d.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()

			if err := ch.Send(sendCtx, ev, msg); err != nil {
				log.Printf("notify: channel=%s queue_id=%s status=%s error=%v",
					ch.Name(), ev.QueueID, ev.New, err)
				results[i] = ChannelResult{Channel: ch.Name(), Success: false, Err: err}
				return
			}
			results[i] = ChannelResult{Channel: ch.Name(), Success: true}
		}(i, ch)
	}

	wg.Wait()
	return Report{Results: results}
}
