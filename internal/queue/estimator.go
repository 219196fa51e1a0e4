package queue

import (
	"sort"

	"github.com/google/uuid"
)

// aheadOf reports whether a is served before b: priority descending, then
// queue number ascending. Every call-order decision in this package goes
// through this comparison.
func aheadOf(a, b *QueueEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.QueueNumber < b.QueueNumber
}

func sortByCallOrder(entries []QueueEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return aheadOf(&entries[i], &entries[j])
	})
}

// estimateAll recomputes wait minutes for the whole waiting set of a
// doctor-day, so every displayed number is consistent at the same instant.
// The entry at rank r waits r * avgConsultMin minutes.
func estimateAll(waiting []QueueEntry, avgConsultMin int) map[uuid.UUID]int {
	sortByCallOrder(waiting)

	estimates := make(map[uuid.UUID]int, len(waiting))
	for i := range waiting {
		estimates[waiting[i].ID] = i * avgConsultMin
	}
	return estimates
}

// estimateForNew computes the initial estimate for a ticket about to be
// inserted, counting the waiting entries that would outrank it.
func estimateForNew(waiting []QueueEntry, priority, queueNumber, avgConsultMin int) int {
	candidate := QueueEntry{Priority: priority, QueueNumber: queueNumber}

	ahead := 0
	for i := range waiting {
		if aheadOf(&waiting[i], &candidate) {
			ahead++
		}
	}
	return ahead * avgConsultMin
}
