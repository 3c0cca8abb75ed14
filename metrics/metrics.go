// Package metrics exposes scheduler activity to observability backends.
package metrics

import "time"

// Sink receives scheduler events for observability purposes. Implementations
// must be cheap: the engine reports from its mailbox goroutine.
type Sink interface {
	TriggerScheduled()
	TriggerRejected()
	TriggerDispatched()
	TriggerCompleted(synthesized bool)
	TickAdvanced(now int64, wallDelay time.Duration)
	RunEnded(elapsed time.Duration)
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) TriggerScheduled()                  {}
func (NopSink) TriggerRejected()                   {}
func (NopSink) TriggerDispatched()                 {}
func (NopSink) TriggerCompleted(bool)              {}
func (NopSink) TickAdvanced(int64, time.Duration)  {}
func (NopSink) RunEnded(time.Duration)             {}
