package sched

// Commands are the variants carried by the engine mailbox. Every mutation of
// scheduler state happens while the engine loop handles one of these, which
// keeps the queue, the awaiting index, and the ID counter linearizable
// without locks on the hot path.
type command interface {
	isCommand()
}

// startCmd begins (or restarts, for a new iteration) the dispatch loop from
// tick 0. The final completion notice of the run is delivered on done.
type startCmd struct {
	iteration int
	done      chan CompletionNotice
}

// scheduleCmd enqueues new work.
type scheduleCmd struct {
	sub Submission
}

// completionCmd acknowledges a dispatched trigger and chains the follow-up
// submissions it carries.
type completionCmd struct {
	notice CompletionNotice
}

// killCmd schedules a terminal trigger for the agent at now + maxWindow.
type killCmd struct {
	agent Agent
}

// agentTerminatedCmd reports that an agent died; the engine synthesizes
// completions for everything the agent still had in flight.
type agentTerminatedCmd struct {
	agent Agent
}

// shutdownCmd asks for the forced-shutdown state dump; afterwards the engine
// stops accepting new work. done is closed once the dump is on disk.
type shutdownCmd struct {
	done chan struct{}
}

func (startCmd) isCommand()           {}
func (scheduleCmd) isCommand()        {}
func (completionCmd) isCommand()      {}
func (killCmd) isCommand()            {}
func (agentTerminatedCmd) isCommand() {}
func (shutdownCmd) isCommand()        {}
