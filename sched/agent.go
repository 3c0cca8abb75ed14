package sched

// An Agent is the recipient of dispatched triggers. Agents run concurrently
// with the engine and with each other; every trigger delivered through
// AcceptTrigger must eventually be answered with a completion notice, or the
// agent must be reported dead through Engine.AgentTerminated.
type Agent interface {
	// ID returns a stable, unique name for the agent.
	ID() string

	// AcceptTrigger delivers a due trigger. The call must not block; agents
	// process the trigger asynchronously and acknowledge it by calling
	// Engine.CompleteTrigger with the carried ID.
	AcceptTrigger(t TriggerWithID)

	// NotifyIllegalSchedule reports a scheduling fault attributed to this
	// agent: a submission outside the lookahead window, or a dispatched
	// trigger that had to be force-completed after the agent went quiet.
	NotifyIllegalSchedule(reason string)

	// NotifyScheduleEnded tells the agent that the run reached its horizon
	// and no further triggers will be dispatched.
	NotifyScheduleEnded(now int64)
}
