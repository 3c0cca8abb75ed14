package sched

// A Trigger is a unit of work addressed to an agent at a point in simulated
// time. The scheduler only interprets the tick; the payload belongs to the
// collaborating agents.
type Trigger interface {
	// Tick returns the simulated time, in seconds, at which the trigger is
	// due for dispatch.
	Tick() int64
}

// TriggerBase provides the tick field for concrete trigger types.
type TriggerBase struct {
	TickInSeconds int64
}

// Tick returns the simulated time the trigger is due at.
func (t TriggerBase) Tick() int64 {
	return t.TickInSeconds
}

// A KillTrigger instructs the receiving agent to terminate. It is the only
// trigger variant owned by the scheduler itself; it is enqueued one full
// lookahead window after the current tick so that all earlier work for the
// agent drains first.
type KillTrigger struct {
	TriggerBase
}

// TriggerWithID pairs a trigger with the sequence number assigned at enqueue
// time. IDs increase monotonically and are never reused; an ID identifies
// exactly one dispatch.
type TriggerWithID struct {
	Trigger Trigger
	ID      int64
}

// A Submission is a request to enqueue a trigger for an agent. Completion
// notices carry submissions for the follow-up work of an agent.
type Submission struct {
	Trigger  Trigger
	Agent    Agent
	Priority int32
}

// A ScheduledTrigger is a trigger bound to its ID, destination agent, and
// dispatch priority. Its ordering is the single correctness contract shared
// by the trigger queue and the awaiting-response index.
type ScheduledTrigger struct {
	TriggerWithID

	Agent    Agent
	Priority int32
}

// Tick returns the due tick of the underlying trigger.
func (s ScheduledTrigger) Tick() int64 {
	return s.Trigger.Tick()
}

// Before reports whether s must be served ahead of o. Smaller ticks dispatch
// first, then higher priorities, then smaller IDs, so that equal-priority
// triggers at the same tick dispatch in enqueue order.
func (s ScheduledTrigger) Before(o ScheduledTrigger) bool {
	if s.Tick() != o.Tick() {
		return s.Tick() < o.Tick()
	}

	if s.Priority != o.Priority {
		return s.Priority > o.Priority
	}

	return s.ID < o.ID
}

// A CompletionNotice acknowledges that an agent finished processing a
// dispatched trigger. NewTriggers carries the follow-up work the agent wants
// enqueued before the notice itself is applied. The notice delivered to the
// caller of StartSchedule at the end of a run carries TriggerID 0.
type CompletionNotice struct {
	TriggerID   int64
	NewTriggers []Submission
}
