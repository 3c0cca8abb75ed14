package sched

import (
	"container/heap"
	"sync"
)

// TriggerQueue is a thread-safe priority queue of not-yet-dispatched
// triggers, ordered by (tick asc, priority desc, ID asc). The engine is the
// only writer; the monitor may read Len and Snapshot concurrently.
type TriggerQueue struct {
	sync.Mutex
	triggers triggerHeap
}

// NewTriggerQueue creates and returns a newly created TriggerQueue.
func NewTriggerQueue() *TriggerQueue {
	q := new(TriggerQueue)
	q.triggers = make(triggerHeap, 0)
	heap.Init(&q.triggers)
	return q
}

// Push adds a trigger to the queue.
func (q *TriggerQueue) Push(st ScheduledTrigger) {
	q.Lock()
	heap.Push(&q.triggers, st)
	q.Unlock()
}

// Pop removes and returns the trigger that must be served next.
func (q *TriggerQueue) Pop() ScheduledTrigger {
	q.Lock()
	st := heap.Pop(&q.triggers).(ScheduledTrigger)
	q.Unlock()
	return st
}

// Peek returns the trigger at the front of the queue without removing it.
func (q *TriggerQueue) Peek() ScheduledTrigger {
	q.Lock()
	st := q.triggers[0]
	q.Unlock()
	return st
}

// Len returns the number of triggers in the queue.
func (q *TriggerQueue) Len() int {
	q.Lock()
	l := q.triggers.Len()
	q.Unlock()
	return l
}

// Snapshot returns up to limit triggers in dispatch order without draining
// the queue. A non-positive limit returns all queued triggers.
func (q *TriggerQueue) Snapshot(limit int) []ScheduledTrigger {
	q.Lock()
	clone := make(triggerHeap, len(q.triggers))
	copy(clone, q.triggers)
	q.Unlock()

	if limit <= 0 || limit > len(clone) {
		limit = len(clone)
	}

	out := make([]ScheduledTrigger, 0, limit)
	for len(out) < limit {
		out = append(out, heap.Pop(&clone).(ScheduledTrigger))
	}

	return out
}

type triggerHeap []ScheduledTrigger

// Len returns the number of triggers in the heap.
func (h triggerHeap) Len() int {
	return len(h)
}

// Less determines the order between two triggers. Less returns true if the
// i-th trigger must be served before the j-th trigger.
func (h triggerHeap) Less(i, j int) bool {
	return h[i].Before(h[j])
}

// Swap changes the position of two triggers in the heap.
func (h triggerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

// Push adds a trigger into the heap.
func (h *triggerHeap) Push(x interface{}) {
	st := x.(ScheduledTrigger)
	*h = append(*h, st)
}

// Pop removes and returns the next trigger to serve.
func (h *triggerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	st := old[n-1]
	*h = old[0 : n-1]
	return st
}
