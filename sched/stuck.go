package sched

import (
	"fmt"
	"sort"
	"time"
)

// An ExemptPolicy marks scheduled triggers whose slowness must not be
// escalated to a forced completion. Exempt triggers are re-tracked on every
// sweep, up to the retry cap, instead of being force-completed. The policy is
// supplied by the host: which trigger categories tolerate repeated slowness
// is domain knowledge the engine does not have.
type ExemptPolicy func(st ScheduledTrigger) bool

type stuckEntry struct {
	st           ScheduledTrigger
	dispatchedAt time.Time
}

// StuckDetector tracks the dispatch timestamp of every in-flight trigger and
// classifies the ones exceeding a configured age as stuck. It is owned by
// the engine loop and must not be shared across goroutines.
type StuckDetector struct {
	entries    map[int64]*stuckEntry
	retries    map[string]int
	exempt     ExemptPolicy
	maxRetries int
}

// NewStuckDetector creates a detector with the given exempt policy and retry
// cap. A nil policy exempts nothing.
func NewStuckDetector(exempt ExemptPolicy, maxRetries int) *StuckDetector {
	return &StuckDetector{
		entries:    make(map[int64]*stuckEntry),
		retries:    make(map[string]int),
		exempt:     exempt,
		maxRetries: maxRetries,
	}
}

// Track records the dispatch of a trigger at the given wall-clock time.
func (d *StuckDetector) Track(st ScheduledTrigger, dispatchedAt time.Time) {
	d.entries[st.ID] = &stuckEntry{st: st, dispatchedAt: dispatchedAt}
}

// Forget drops the tracking entry of an acknowledged trigger.
func (d *StuckDetector) Forget(id int64) {
	delete(d.entries, id)
}

// Len returns the number of tracked in-flight triggers.
func (d *StuckDetector) Len() int {
	return len(d.entries)
}

// Stuck returns the tracked triggers whose dispatch happened more than age
// ago, oldest dispatch first. Entries dispatched at the same instant are
// ordered by trigger ID.
func (d *StuckDetector) Stuck(now time.Time, age time.Duration) []ScheduledTrigger {
	var hits []*stuckEntry
	for _, entry := range d.entries {
		if now.Sub(entry.dispatchedAt) > age {
			hits = append(hits, entry)
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].dispatchedAt.Equal(hits[j].dispatchedAt) {
			return hits[i].dispatchedAt.Before(hits[j].dispatchedAt)
		}
		return hits[i].st.ID < hits[j].st.ID
	})

	out := make([]ScheduledTrigger, len(hits))
	for i, entry := range hits {
		out[i] = entry.st
	}

	return out
}

// Exempt reports whether the trigger falls under the exempt policy.
func (d *StuckDetector) Exempt(st ScheduledTrigger) bool {
	return d.exempt != nil && d.exempt(st)
}

// Retrack resets the dispatch timestamp of an exempt stuck trigger and
// returns the retry count accumulated for its (agent, trigger kind) pair. A
// count above the configured cap means correctness can no longer be
// guaranteed and the caller must escalate.
func (d *StuckDetector) Retrack(st ScheduledTrigger, now time.Time) (count int, exceeded bool) {
	key := retryKey(st)
	d.retries[key]++
	count = d.retries[key]

	if count > d.maxRetries {
		return count, true
	}

	d.entries[st.ID] = &stuckEntry{st: st, dispatchedAt: now}

	return count, false
}

func retryKey(st ScheduledTrigger) string {
	agent := "<none>"
	if st.Agent != nil {
		agent = st.Agent.ID()
	}

	return fmt.Sprintf("%s/%T", agent, st.Trigger)
}
