package sched

import (
	"container/heap"
	"sort"
	"sync"
)

// AwaitingIndex tracks dispatched triggers until their completion notice
// arrives. Entries are bucketed by tick so the engine can answer the
// earliest-pending-tick query that drives the lookahead window.
//
// Invariant: an ID is present in the id maps exactly when the matching entry
// sits in exactly one tick bucket.
type AwaitingIndex struct {
	sync.Mutex

	buckets   map[int64][]ScheduledTrigger
	idToTick  map[int64]int64
	idToEntry map[int64]ScheduledTrigger
	ticks     tickHeap
}

// NewAwaitingIndex creates an empty AwaitingIndex.
func NewAwaitingIndex() *AwaitingIndex {
	return &AwaitingIndex{
		buckets:   make(map[int64][]ScheduledTrigger),
		idToTick:  make(map[int64]int64),
		idToEntry: make(map[int64]ScheduledTrigger),
	}
}

// Add records a freshly dispatched trigger as in-flight.
func (a *AwaitingIndex) Add(st ScheduledTrigger) {
	a.Lock()
	defer a.Unlock()

	tick := st.Tick()
	if _, ok := a.buckets[tick]; !ok {
		heap.Push(&a.ticks, tick)
	}

	a.buckets[tick] = append(a.buckets[tick], st)
	a.idToTick[st.ID] = tick
	a.idToEntry[st.ID] = st
}

// Remove clears the in-flight entry for the given trigger ID. It returns the
// removed entry, or false if the ID is unknown or its bucket does not hold a
// matching entry.
func (a *AwaitingIndex) Remove(id int64) (ScheduledTrigger, bool) {
	a.Lock()
	defer a.Unlock()

	tick, ok := a.idToTick[id]
	if !ok {
		return ScheduledTrigger{}, false
	}

	bucket := a.buckets[tick]
	for i, st := range bucket {
		if st.ID != id {
			continue
		}

		bucket = append(bucket[:i], bucket[i+1:]...)
		if len(bucket) == 0 {
			delete(a.buckets, tick)
		} else {
			a.buckets[tick] = bucket
		}

		delete(a.idToTick, id)
		delete(a.idToEntry, id)

		return st, true
	}

	return ScheduledTrigger{}, false
}

// Entry returns the in-flight entry for the given trigger ID.
func (a *AwaitingIndex) Entry(id int64) (ScheduledTrigger, bool) {
	a.Lock()
	defer a.Unlock()

	st, ok := a.idToEntry[id]
	return st, ok
}

// EarliestTick returns the smallest tick that still has an unacknowledged
// trigger. The second return value is false if nothing is in flight.
func (a *AwaitingIndex) EarliestTick() (int64, bool) {
	a.Lock()
	defer a.Unlock()

	// Ticks are removed from the heap lazily; drop heads whose bucket has
	// already drained.
	for a.ticks.Len() > 0 {
		tick := a.ticks[0]
		if _, ok := a.buckets[tick]; ok {
			return tick, true
		}
		heap.Pop(&a.ticks)
	}

	return 0, false
}

// Len returns the number of in-flight triggers.
func (a *AwaitingIndex) Len() int {
	a.Lock()
	defer a.Unlock()

	return len(a.idToTick)
}

// InFlightOf returns the in-flight triggers addressed to the named agent.
func (a *AwaitingIndex) InFlightOf(agentID string) []ScheduledTrigger {
	a.Lock()
	defer a.Unlock()

	var out []ScheduledTrigger
	for _, st := range a.idToEntry {
		if st.Agent != nil && st.Agent.ID() == agentID {
			out = append(out, st)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	return out
}

// Snapshot returns all in-flight triggers in dispatch order.
func (a *AwaitingIndex) Snapshot() []ScheduledTrigger {
	a.Lock()
	defer a.Unlock()

	out := make([]ScheduledTrigger, 0, len(a.idToEntry))
	for _, st := range a.idToEntry {
		out = append(out, st)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	return out
}

type tickHeap []int64

func (h tickHeap) Len() int            { return len(h) }
func (h tickHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h tickHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *tickHeap) Push(x interface{}) { *h = append(*h, x.(int64)) }

func (h *tickHeap) Pop() interface{} {
	old := *h
	n := len(old)
	tick := old[n-1]
	*h = old[0 : n-1]
	return tick
}
