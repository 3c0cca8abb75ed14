package recording

import (
	"time"

	"github.com/transitlab/stride/sched"
)

const eventTable = "trigger_events"

// A TriggerEvent is one row of the trigger lifecycle log.
type TriggerEvent struct {
	TriggerID    int64
	Event        string
	Tick         int64
	Now          int64
	AgentID      string
	Priority     int64
	Synthesized  bool
	WallTimeNano int64
}

// LifecycleHook records every scheduling, dispatch, completion, and
// rejection the engine announces. Attach it with Engine.AcceptHook; the
// engine invokes hooks from its mailbox goroutine, so the recorder sees the
// events one at a time.
type LifecycleHook struct {
	recorder Recorder
}

// NewLifecycleHook creates the hook and its backing table.
func NewLifecycleHook(recorder Recorder) *LifecycleHook {
	recorder.CreateTable(eventTable, TriggerEvent{})
	return &LifecycleHook{recorder: recorder}
}

// Func records the hook invocation.
func (h *LifecycleHook) Func(ctx sched.HookCtx) {
	switch ctx.Pos {
	case sched.HookPosTriggerScheduled,
		sched.HookPosTriggerDispatched,
		sched.HookPosTriggerCompleted:
		st := ctx.Item.(sched.ScheduledTrigger)
		h.insert(ctx, st)
	case sched.HookPosTriggerRejected:
		sub := ctx.Item.(sched.Submission)
		h.insertRejected(ctx, sub)
	}
}

func (h *LifecycleHook) insert(ctx sched.HookCtx, st sched.ScheduledTrigger) {
	synthesized := false
	if s, ok := ctx.Detail.(bool); ok {
		synthesized = s
	}

	agentID := ""
	if st.Agent != nil {
		agentID = st.Agent.ID()
	}

	h.recorder.InsertData(eventTable, TriggerEvent{
		TriggerID:    st.ID,
		Event:        ctx.Pos.Name,
		Tick:         st.Tick(),
		Now:          ctx.Now,
		AgentID:      agentID,
		Priority:     int64(st.Priority),
		Synthesized:  synthesized,
		WallTimeNano: time.Now().UnixNano(),
	})
}

func (h *LifecycleHook) insertRejected(ctx sched.HookCtx, sub sched.Submission) {
	agentID := ""
	if sub.Agent != nil {
		agentID = sub.Agent.ID()
	}

	h.recorder.InsertData(eventTable, TriggerEvent{
		Event:        ctx.Pos.Name,
		Tick:         sub.Trigger.Tick(),
		Now:          ctx.Now,
		AgentID:      agentID,
		Priority:     int64(sub.Priority),
		WallTimeNano: time.Now().UnixNano(),
	})
}
