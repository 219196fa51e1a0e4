package notify

import "fmt"

// Message templates keyed by the transition's target status. This table is
// data; nothing in the state machine branches on it.
var messages = map[string]string{
	"waiting":         "You're in the queue. Ticket #%d, estimated wait %d minutes.",
	"called":          "It's your turn. Ticket #%d, please proceed to the consultation room.",
	"in_consultation": "Consultation for ticket #%d has started.",
	"completed":       "Consultation for ticket #%d is complete. Thank you for visiting.",
	"missed":          "Ticket #%d was marked as missed. Please rejoin the queue if you still need to be seen.",
}

func MessageFor(ev Event) string {
	tmpl, ok := messages[ev.New]
	if !ok {
		return fmt.Sprintf("Queue ticket #%d status changed to %s.", ev.QueueNumber, ev.New)
	}
	if ev.New == "waiting" {
		return fmt.Sprintf(tmpl, ev.QueueNumber, ev.EstimatedWait)
	}
	return fmt.Sprintf(tmpl, ev.QueueNumber)
}
