package sched

// HookPos defines the enum of possible hooking positions
type HookPos struct {
	Name string
}

// HookCtx is the context that holds all the information about the site that a
// hook is triggered
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Now    int64
	Item   interface{}
	Detail interface{}
}

// Hookable defines an object that accept Hooks
type Hookable interface {
	// AcceptHook registers a hook
	AcceptHook(hook Hook)
}

// HookPosTriggerScheduled triggers after a submission is accepted into the
// trigger queue. Item is the ScheduledTrigger.
var HookPosTriggerScheduled = &HookPos{Name: "TriggerScheduled"}

// HookPosTriggerRejected triggers when a submission violates the lookahead
// window. Item is the Submission, Detail the rejection reason.
var HookPosTriggerRejected = &HookPos{Name: "TriggerRejected"}

// HookPosTriggerDispatched triggers after a due trigger is delivered to its
// agent. Item is the ScheduledTrigger.
var HookPosTriggerDispatched = &HookPos{Name: "TriggerDispatched"}

// HookPosTriggerCompleted triggers after a completion notice clears an
// in-flight entry. Item is the ScheduledTrigger, Detail is true when the
// completion was synthesized by the engine rather than sent by the agent.
var HookPosTriggerCompleted = &HookPos{Name: "TriggerCompleted"}

// HookPosTickAdvanced triggers every time the engine moves to a new tick.
// Detail is the wall-clock duration since the previous advance.
var HookPosTickAdvanced = &HookPos{Name: "TickAdvanced"}

// HookPosRunEnded triggers once the run reaches its horizon and all
// in-flight triggers are acknowledged. Detail is the wall-clock duration of
// the run.
var HookPosRunEnded = &HookPos{Name: "RunEnded"}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// A HookableBase provides some utility function for other type that implement
// the Hookable interface.
type HookableBase struct {
	Hooks []Hook
}

// NewHookableBase creates a HookableBase object
func NewHookableBase() *HookableBase {
	h := new(HookableBase)
	h.Hooks = make([]Hook, 0)
	return h
}

// AcceptHook register a hook
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// InvokeHook triggers the register Hooks
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
