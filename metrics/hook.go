package metrics

import (
	"time"

	"github.com/transitlab/stride/sched"
)

// Hook translates engine hook invocations into Sink calls. Attach it with
// Engine.AcceptHook.
type Hook struct {
	sink Sink
}

// NewHook creates a Hook feeding the given sink.
func NewHook(sink Sink) *Hook {
	return &Hook{sink: sink}
}

// Func reports the hook invocation to the sink.
func (h *Hook) Func(ctx sched.HookCtx) {
	switch ctx.Pos {
	case sched.HookPosTriggerScheduled:
		h.sink.TriggerScheduled()
	case sched.HookPosTriggerRejected:
		h.sink.TriggerRejected()
	case sched.HookPosTriggerDispatched:
		h.sink.TriggerDispatched()
	case sched.HookPosTriggerCompleted:
		synthesized, _ := ctx.Detail.(bool)
		h.sink.TriggerCompleted(synthesized)
	case sched.HookPosTickAdvanced:
		delay, _ := ctx.Detail.(time.Duration)
		h.sink.TickAdvanced(ctx.Now, delay)
	case sched.HookPosRunEnded:
		elapsed, _ := ctx.Detail.(time.Duration)
		h.sink.RunEnded(elapsed)
	}
}
