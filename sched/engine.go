package sched

import (
	"fmt"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tebeka/atexit"
)

// Config carries the scheduling parameters supplied by the host process.
type Config struct {
	// StopTick is the simulation horizon in simulated seconds. Triggers past
	// the horizon stay queued and are never dispatched.
	StopTick int64

	// MaxWindow bounds how far, in ticks, the engine may advance ahead of
	// the oldest unacknowledged trigger.
	MaxWindow int64

	// StuckCheckEvery is the period of the per-agent stuck sweep.
	StuckCheckEvery time.Duration

	// MarkStuckAfter is the in-flight age beyond which a trigger counts as
	// stuck.
	MarkStuckAfter time.Duration

	// StuckMaxRetries caps how often an exempt trigger may be re-tracked
	// before the run is aborted.
	StuckMaxRetries int

	// LivenessCheckEvery is the period of the engine-wide stall check.
	LivenessCheckEvery time.Duration

	// StallAfter is the wall-clock time without a tick advance after which
	// the whole process is considered stuck and terminated.
	StallAfter time.Duration

	// ProgressEvery is the period of the progress report log line.
	ProgressEvery time.Duration

	// OutputDir receives the state dumps written on forced shutdown or
	// fatal conditions.
	OutputDir string
}

// DefaultConfig returns the configuration used when the host does not
// override anything: a one-tick window over a 30-hour horizon.
func DefaultConfig() Config {
	return Config{
		StopTick:           30 * 3600,
		MaxWindow:          1,
		StuckCheckEvery:    30 * time.Second,
		MarkStuckAfter:     2 * time.Minute,
		StuckMaxRetries:    50,
		LivenessCheckEvery: time.Minute,
		StallAfter:         5 * time.Minute,
		ProgressEvery:      30 * time.Second,
		OutputDir:          "stride_output",
	}
}

// EngineBuilder can build scheduler engines.
type EngineBuilder struct {
	cfg     Config
	log     zerolog.Logger
	haveLog bool
	exempt  ExemptPolicy
}

// MakeEngineBuilder creates a builder with the default configuration.
func MakeEngineBuilder() EngineBuilder {
	return EngineBuilder{cfg: DefaultConfig()}
}

// WithConfig sets the scheduling parameters.
func (b EngineBuilder) WithConfig(cfg Config) EngineBuilder {
	b.cfg = cfg
	return b
}

// WithLogger sets the logger the engine reports through.
func (b EngineBuilder) WithLogger(log zerolog.Logger) EngineBuilder {
	b.log = log
	b.haveLog = true
	return b
}

// WithExemptPolicy sets the policy that marks triggers tolerating repeated
// slowness without escalation.
func (b EngineBuilder) WithExemptPolicy(p ExemptPolicy) EngineBuilder {
	b.exempt = p
	return b
}

func (b EngineBuilder) parametersMustBeValid() {
	if b.cfg.MaxWindow < 1 {
		panic("max window must be at least one tick")
	}

	if b.cfg.StopTick < 0 {
		panic("stop tick cannot be negative")
	}
}

// Build builds the engine.
func (b EngineBuilder) Build() *Engine {
	b.parametersMustBeValid()

	log := b.log
	if !b.haveLog {
		log = zerolog.New(os.Stderr).With().
			Timestamp().Str("component", "sched").Logger()
	}

	e := &Engine{
		cfg:        b.cfg,
		log:        log,
		queue:      NewTriggerQueue(),
		awaiting:   NewAwaitingIndex(),
		stuck:      NewStuckDetector(b.exempt, b.cfg.StuckMaxRetries),
		snapshot:   NewSnapshotWriter(b.cfg.OutputDir, log),
		cmds:       make(chan command, 1024),
		stopCh:     make(chan struct{}),
		agents:     make(map[string]Agent),
		deadAgents: make(map[string]bool),
		fatalf:     atexit.Fatalf,
	}

	e.lastAdvance.Store(time.Now().UnixNano())

	return e
}

// An Engine is a windowed discrete-event trigger scheduler. It advances
// simulated time tick by tick, dispatches due triggers to their agents,
// waits for completion notices, and never runs more than MaxWindow ticks
// ahead of the slowest outstanding agent.
//
// All scheduler state is owned by a single mailbox goroutine; the exported
// methods post commands into it, so every operation is atomic with respect
// to the queue, the awaiting index, and the ID counter. The engine never
// blocks on an individual agent: when the window closes, time advancement
// suspends and resumes on the next completion notice or periodic sweep.
type Engine struct {
	HookableBase

	cfg Config
	log zerolog.Logger

	queue    *TriggerQueue
	awaiting *AwaitingIndex
	stuck    *StuckDetector
	snapshot *SnapshotWriter

	cmds     chan command
	stopCh   chan struct{}
	stopOnce sync.Once

	now         atomic.Int64
	lastAdvance atomic.Int64
	started     atomic.Bool
	finished    atomic.Bool

	// Fields below are owned by the mailbox goroutine.
	idCount     int64
	draining    bool
	iteration   int
	doneCh      chan CompletionNotice
	agents      map[string]Agent
	deadAgents  map[string]bool
	startedWall time.Time
	fatalf      func(format string, args ...interface{})
}

// Start launches the mailbox loop. It must be called exactly once, before
// any message is posted.
func (e *Engine) Start() {
	go e.run()
}

// Stop terminates the mailbox loop. Pending state is left untouched; use
// PrepareForShutdown first to persist it.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// StartSchedule begins (or restarts, for a new iteration) dispatching from
// tick 0. The returned channel delivers the final completion notice, with
// TriggerID 0, once the horizon is reached and all in-flight triggers are
// acknowledged.
func (e *Engine) StartSchedule(iteration int) <-chan CompletionNotice {
	done := make(chan CompletionNotice, 1)
	e.post(startCmd{iteration: iteration, done: done})
	return done
}

// ScheduleTrigger enqueues a trigger for the agent. Submissions older than
// MaxWindow ticks behind the current tick are rejected and reported to the
// agent through NotifyIllegalSchedule.
func (e *Engine) ScheduleTrigger(t Trigger, agent Agent, priority int32) {
	e.post(scheduleCmd{sub: Submission{Trigger: t, Agent: agent, Priority: priority}})
}

// CompleteTrigger acknowledges a dispatched trigger. Follow-up submissions
// carried by the notice are enqueued before the acknowledgement is applied.
func (e *Engine) CompleteTrigger(notice CompletionNotice) {
	e.post(completionCmd{notice: notice})
}

// ScheduleKillTrigger enqueues a KillTrigger for the agent one full window
// after the current tick.
func (e *Engine) ScheduleKillTrigger(agent Agent) {
	e.post(killCmd{agent: agent})
}

// AgentTerminated reports that an agent died before acknowledging its work.
// The engine synthesizes completion notices for everything the agent still
// had in flight so the window is not blocked by a dead recipient.
func (e *Engine) AgentTerminated(agent Agent) {
	e.post(agentTerminatedCmd{agent: agent})
}

// PrepareForShutdown persists the queue and awaiting-response contents for
// postmortem inspection and stops the engine from accepting new work. It
// blocks until the dump is on disk and is idempotent across calls.
func (e *Engine) PrepareForShutdown() {
	done := make(chan struct{})
	e.post(shutdownCmd{done: done})

	select {
	case <-done:
	case <-e.stopCh:
	}
}

func (e *Engine) post(c command) {
	select {
	case e.cmds <- c:
	case <-e.stopCh:
	}
}

// CurrentTick returns the current simulated time in seconds.
func (e *Engine) CurrentTick() int64 {
	return e.now.Load()
}

// QueueDepth returns the number of not-yet-dispatched triggers.
func (e *Engine) QueueDepth() int {
	return e.queue.Len()
}

// InFlight returns the number of dispatched, unacknowledged triggers.
func (e *Engine) InFlight() int {
	return e.awaiting.Len()
}

// EarliestPendingTick returns the tick of the oldest unacknowledged
// trigger. The second return value is false if nothing is in flight.
func (e *Engine) EarliestPendingTick() (int64, bool) {
	return e.awaiting.EarliestTick()
}

// EngineStatus is a point-in-time view of the scheduler for monitoring.
type EngineStatus struct {
	Now             int64
	QueueDepth      int
	InFlight        int
	EarliestPending int64
	HasPending      bool
	Started         bool
	Finished        bool
}

// Status collects a consistent-enough snapshot for the monitor; the fields
// are sampled individually and may be skewed by in-progress dispatches.
func (e *Engine) Status() EngineStatus {
	earliest, hasPending := e.awaiting.EarliestTick()

	return EngineStatus{
		Now:             e.now.Load(),
		QueueDepth:      e.queue.Len(),
		InFlight:        e.awaiting.Len(),
		EarliestPending: earliest,
		HasPending:      hasPending,
		Started:         e.started.Load(),
		Finished:        e.finished.Load(),
	}
}

func (e *Engine) run() {
	stuckTicker := time.NewTicker(e.cfg.StuckCheckEvery)
	livenessTicker := time.NewTicker(e.cfg.LivenessCheckEvery)
	progressTicker := time.NewTicker(e.cfg.ProgressEvery)
	defer stuckTicker.Stop()
	defer livenessTicker.Stop()
	defer progressTicker.Stop()

	for {
		select {
		case c := <-e.cmds:
			e.handle(c)
		case <-stuckTicker.C:
			e.sweepStuckAgents()
		case <-livenessTicker.C:
			e.checkEngineLiveness()
		case <-progressTicker.C:
			e.reportProgress()
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) handle(c command) {
	switch c := c.(type) {
	case startCmd:
		e.handleStart(c)
	case scheduleCmd:
		e.handleSchedule(c.sub)
	case completionCmd:
		e.handleCompletion(c.notice)
	case killCmd:
		e.handleKill(c)
	case agentTerminatedCmd:
		e.handleAgentTerminated(c.agent)
	case shutdownCmd:
		e.handleShutdown(c)
	default:
		e.log.Panic().Msgf("cannot handle command of type %s",
			reflect.TypeOf(c))
	}
}

func (e *Engine) handleStart(c startCmd) {
	if e.started.Load() && !e.finished.Load() {
		e.log.Warn().Msg("schedule already running, start ignored")
		return
	}

	e.started.Store(true)
	e.finished.Store(false)
	e.iteration = c.iteration
	e.doneCh = c.done
	e.startedWall = time.Now()
	e.now.Store(0)
	e.lastAdvance.Store(time.Now().UnixNano())

	e.log.Info().Int("iteration", c.iteration).
		Int64("stopTick", e.cfg.StopTick).
		Int64("maxWindow", e.cfg.MaxWindow).
		Msg("schedule started")

	e.advance(0)
}

func (e *Engine) handleSchedule(sub Submission) {
	if e.draining {
		e.log.Warn().Int64("tick", sub.Trigger.Tick()).
			Str("agent", agentID(sub.Agent)).
			Msg("engine is draining, submission dropped")
		return
	}

	now := e.now.Load()
	if now-sub.Trigger.Tick() > e.cfg.MaxWindow {
		reason := fmt.Sprintf(
			"cannot schedule trigger for tick %d: now is %d and the lookahead window is %d ticks",
			sub.Trigger.Tick(), now, e.cfg.MaxWindow)

		e.log.Error().Str("agent", agentID(sub.Agent)).Msg(reason)

		if sub.Agent != nil {
			sub.Agent.NotifyIllegalSchedule(reason)
		}

		e.InvokeHook(HookCtx{
			Domain: e,
			Pos:    HookPosTriggerRejected,
			Now:    now,
			Item:   sub,
			Detail: reason,
		})

		return
	}

	e.idCount++
	st := ScheduledTrigger{
		TriggerWithID: TriggerWithID{Trigger: sub.Trigger, ID: e.idCount},
		Agent:         sub.Agent,
		Priority:      sub.Priority,
	}

	e.queue.Push(st)
	e.rememberAgent(sub.Agent)

	e.InvokeHook(HookCtx{
		Domain: e,
		Pos:    HookPosTriggerScheduled,
		Now:    now,
		Item:   st,
	})
}

func (e *Engine) handleCompletion(n CompletionNotice) {
	// A completing agent may chain new work; enqueue it before the
	// acknowledgement clears the window.
	for _, sub := range n.NewTriggers {
		e.handleSchedule(sub)
	}

	e.resolve(n.TriggerID, false)
	e.advanceIfStarted()
}

// resolve clears the in-flight entry for the trigger ID. Unknown IDs are an
// inconsistency on the agent side, never fatal to the engine.
func (e *Engine) resolve(id int64, synthesized bool) bool {
	st, ok := e.awaiting.Remove(id)
	if !ok {
		e.log.Error().Int64("triggerID", id).
			Msg("completion notice references an unknown trigger, dropped")
		return false
	}

	e.stuck.Forget(id)

	e.InvokeHook(HookCtx{
		Domain: e,
		Pos:    HookPosTriggerCompleted,
		Now:    e.now.Load(),
		Item:   st,
		Detail: synthesized,
	})

	return true
}

func (e *Engine) handleKill(c killCmd) {
	tick := e.now.Load() + e.cfg.MaxWindow

	e.log.Info().Str("agent", agentID(c.agent)).Int64("tick", tick).
		Msg("kill trigger scheduled")

	e.handleSchedule(Submission{
		Trigger: KillTrigger{TriggerBase{TickInSeconds: tick}},
		Agent:   c.agent,
	})
}

func (e *Engine) handleAgentTerminated(agent Agent) {
	e.deadAgents[agent.ID()] = true

	for _, st := range e.awaiting.InFlightOf(agent.ID()) {
		e.log.Warn().Int64("triggerID", st.ID).Int64("tick", st.Tick()).
			Str("agent", agent.ID()).
			Msg("agent died before acknowledging, completion synthesized")
		e.resolve(st.ID, true)
	}

	e.advanceIfStarted()
}

func (e *Engine) handleShutdown(c shutdownCmd) {
	e.dumpState()
	e.draining = true
	close(c.done)
}

func (e *Engine) advanceIfStarted() {
	if e.started.Load() && !e.finished.Load() {
		e.advance(e.now.Load())
	}
}

// advance is the core time-advancement step. It walks targetTick forward
// while the horizon has work left, dispatching due triggers whenever the
// lookahead window is open. When the window closes, it returns without
// blocking; the next completion notice or sweep resumes it.
func (e *Engine) advance(target int64) {
	for e.withinHorizon(target) {
		e.setNow(target)

		if !e.windowOpenAt(target) {
			return
		}

		e.dispatchDue(target)

		if !e.windowOpenAt(target + 1) {
			return
		}

		target++
	}

	e.maybeFinish()
}

// withinHorizon reports whether there is still work to do at or before the
// stop tick.
func (e *Engine) withinHorizon(target int64) bool {
	if target <= e.cfg.StopTick {
		return true
	}

	return e.queue.Len() > 0 && e.queue.Peek().Tick() <= e.cfg.StopTick
}

// windowOpenAt reports whether tick may be served given the oldest
// unacknowledged trigger: the engine refuses to race more than MaxWindow
// ticks ahead of the slowest outstanding agent.
func (e *Engine) windowOpenAt(tick int64) bool {
	earliest, ok := e.awaiting.EarliestTick()
	if !ok {
		return true
	}

	return tick-earliest+1 < e.cfg.MaxWindow
}

func (e *Engine) dispatchDue(now int64) {
	for e.queue.Len() > 0 &&
		e.queue.Peek().Tick() <= now &&
		e.windowOpenAt(now) {
		e.dispatch(e.queue.Pop())
	}
}

func (e *Engine) dispatch(st ScheduledTrigger) {
	e.awaiting.Add(st)
	e.stuck.Track(st, time.Now())

	e.InvokeHook(HookCtx{
		Domain: e,
		Pos:    HookPosTriggerDispatched,
		Now:    e.now.Load(),
		Item:   st,
	})

	if st.Agent == nil || e.deadAgents[st.Agent.ID()] {
		e.log.Warn().Int64("triggerID", st.ID).
			Str("agent", agentID(st.Agent)).
			Msg("recipient is gone, completion synthesized")
		e.resolve(st.ID, true)
		return
	}

	st.Agent.AcceptTrigger(st.TriggerWithID)
}

func (e *Engine) setNow(t int64) {
	prev := e.now.Swap(t)
	if t == prev {
		return
	}

	nowWall := time.Now()
	delay := time.Duration(nowWall.UnixNano() - e.lastAdvance.Swap(nowWall.UnixNano()))

	e.InvokeHook(HookCtx{
		Domain: e,
		Pos:    HookPosTickAdvanced,
		Now:    t,
		Detail: delay,
	})
}

func (e *Engine) maybeFinish() {
	if !e.started.Load() || e.finished.Load() {
		return
	}

	if e.awaiting.Len() > 0 {
		return
	}

	e.finished.Store(true)

	now := e.now.Load()
	elapsed := time.Since(e.startedWall)

	e.log.Info().Int("iteration", e.iteration).Int64("tick", now).
		Dur("elapsed", elapsed).Int("queuedPastHorizon", e.queue.Len()).
		Msg("schedule completed")

	for _, a := range e.agents {
		a.NotifyScheduleEnded(now)
	}

	e.InvokeHook(HookCtx{
		Domain: e,
		Pos:    HookPosRunEnded,
		Now:    now,
		Detail: elapsed,
	})

	if e.doneCh != nil {
		e.doneCh <- CompletionNotice{TriggerID: 0}
		e.doneCh = nil
	}
}

// sweepStuckAgents is the per-agent liveness mechanism: in-flight triggers
// older than MarkStuckAfter are force-completed and the offending agent is
// notified, unless the exempt policy tolerates them up to the retry cap.
func (e *Engine) sweepStuckAgents() {
	if !e.started.Load() || e.finished.Load() {
		return
	}

	now := time.Now()
	for _, st := range e.stuck.Stuck(now, e.cfg.MarkStuckAfter) {
		if e.stuck.Exempt(st) {
			count, exceeded := e.stuck.Retrack(st, now)
			if exceeded {
				e.failFatal(fmt.Sprintf(
					"exempt trigger %d for agent %s exceeded %d retries, ordering can no longer be guaranteed",
					st.ID, agentID(st.Agent), e.cfg.StuckMaxRetries))
				return
			}

			e.log.Warn().Int64("triggerID", st.ID).Int("retries", count).
				Str("agent", agentID(st.Agent)).
				Msg("exempt trigger still pending, re-tracked")

			continue
		}

		reason := fmt.Sprintf(
			"trigger %d at tick %d dispatched to %s was not acknowledged within %s",
			st.ID, st.Tick(), agentID(st.Agent), e.cfg.MarkStuckAfter)
		e.log.Error().Msg(reason)

		if st.Agent != nil {
			st.Agent.NotifyIllegalSchedule(reason)
		}

		e.resolve(st.ID, true)
	}

	e.advanceIfStarted()
}

// checkEngineLiveness is the engine-wide circuit breaker: if no tick advance
// happened for StallAfter, the state is dumped and the process terminates.
func (e *Engine) checkEngineLiveness() {
	if !e.started.Load() || e.finished.Load() {
		return
	}

	stall := time.Duration(time.Now().UnixNano() - e.lastAdvance.Load())
	if stall <= e.cfg.StallAfter {
		return
	}

	e.failFatal(fmt.Sprintf(
		"no tick advance for %s while at tick %d, scheduler considered stuck",
		stall, e.now.Load()))
}

func (e *Engine) failFatal(reason string) {
	e.dumpState()
	e.log.Error().Msg(reason)
	e.fatalf("sched: %s", reason)
}

func (e *Engine) dumpState() {
	e.snapshot.Write(
		e.queue.Len(),
		e.queue.Snapshot(queueDumpLimit),
		e.awaiting.Snapshot(),
	)
}

func (e *Engine) reportProgress() {
	if !e.started.Load() || e.finished.Load() {
		return
	}

	earliest, hasPending := e.awaiting.EarliestTick()
	evt := e.log.Info().Int64("tick", e.now.Load()).
		Int("queued", e.queue.Len()).
		Int("inFlight", e.awaiting.Len())
	if hasPending {
		evt = evt.Int64("earliestPending", earliest)
	}
	evt.Msg("progress")
}

func (e *Engine) rememberAgent(a Agent) {
	if a != nil {
		e.agents[a.ID()] = a
	}
}

func agentID(a Agent) string {
	if a == nil {
		return "<none>"
	}

	return a.ID()
}
