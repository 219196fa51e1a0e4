package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RealtimeChannelFor names the pub/sub channel carrying live updates for one
// doctor's queue; the websocket hub subscribes to the matching pattern.
func RealtimeChannelFor(doctorID uuid.UUID) string {
	return "queue:doctor:" + doctorID.String()
}

const RealtimeChannelPattern = "queue:doctor:*"

type realtimePayload struct {
	Event
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// RealtimeChannel publishes queue transitions over Redis pub/sub.
type RealtimeChannel struct {
	client *redis.Client
}

func NewRealtimeChannel(client *redis.Client) *RealtimeChannel {
	return &RealtimeChannel{client: client}
}

func (c *RealtimeChannel) Name() string { return "realtime" }

func (c *RealtimeChannel) Send(ctx context.Context, ev Event, message string) error {
	payload, err := json.Marshal(realtimePayload{
		Event:   ev,
		Message: message,
		At:      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal realtime payload: %w", err)
	}

	if err := c.client.Publish(ctx, RealtimeChannelFor(ev.DoctorID), payload).Err(); err != nil {
		return fmt.Errorf("publish realtime update: %w", err)
	}
	return nil
}
