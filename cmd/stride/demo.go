package main

import (
	"hash/fnv"

	"github.com/transitlab/stride/sched"
)

// busPriority makes buses dispatch ahead of commuters due at the same tick.
const busPriority int32 = 10

const (
	hour = int64(3600)

	wakeTick      = 6 * hour
	departTick    = 7 * hour
	arriveTick    = 8 * hour
	returnTick    = 17 * hour
	homeTick      = 18 * hour
	serviceStart  = 5 * hour
	serviceEnd    = 22 * hour
	headwaySecs   = 20 * 60
	tripDuration  = 45 * 60
	maxJitterSecs = 1800
)

// An ActivityTrigger tells a commuter to start its next planned activity.
type ActivityTrigger struct {
	sched.TriggerBase

	Activity string
}

// A DepartureTrigger tells a bus to leave on its next trip.
type DepartureTrigger struct {
	sched.TriggerBase

	Trip int
}

// A commuter walks through a fixed daily activity plan. Each acknowledged
// activity chains the next one through the completion notice.
type commuter struct {
	id     string
	engine *sched.Engine
	plan   []ActivityTrigger
	next   int
}

func newCommuter(id string, engine *sched.Engine) *commuter {
	jitter := spread(id)

	return &commuter{
		id:     id,
		engine: engine,
		plan: []ActivityTrigger{
			{sched.TriggerBase{TickInSeconds: wakeTick + jitter}, "wake"},
			{sched.TriggerBase{TickInSeconds: departTick + jitter}, "depart"},
			{sched.TriggerBase{TickInSeconds: arriveTick + jitter}, "arrive"},
			{sched.TriggerBase{TickInSeconds: returnTick + jitter}, "return"},
			{sched.TriggerBase{TickInSeconds: homeTick + jitter}, "home"},
		},
	}
}

func (c *commuter) firstActivity() sched.Trigger {
	c.next = 1
	return c.plan[0]
}

func (c *commuter) ID() string { return c.id }

func (c *commuter) AcceptTrigger(t sched.TriggerWithID) {
	notice := sched.CompletionNotice{TriggerID: t.ID}

	if _, killed := t.Trigger.(sched.KillTrigger); !killed && c.next < len(c.plan) {
		notice.NewTriggers = []sched.Submission{{
			Trigger: c.plan[c.next],
			Agent:   c,
		}}
		c.next++
	}

	go c.engine.CompleteTrigger(notice)
}

func (c *commuter) NotifyIllegalSchedule(string) {}
func (c *commuter) NotifyScheduleEnded(int64)    {}

// A bus runs fixed-headway trips from the start to the end of service. Each
// completed trip chains the next departure.
type bus struct {
	id     string
	engine *sched.Engine
	offset int64
}

func newBus(id string, engine *sched.Engine) *bus {
	return &bus{
		id:     id,
		engine: engine,
		offset: spread(id) % headwaySecs,
	}
}

func (b *bus) firstDeparture() sched.Trigger {
	return DepartureTrigger{
		TriggerBase: sched.TriggerBase{TickInSeconds: serviceStart + b.offset},
		Trip:        0,
	}
}

func (b *bus) ID() string { return b.id }

func (b *bus) AcceptTrigger(t sched.TriggerWithID) {
	notice := sched.CompletionNotice{TriggerID: t.ID}

	if dep, ok := t.Trigger.(DepartureTrigger); ok {
		nextTick := dep.Tick() + headwaySecs
		if nextTick+tripDuration <= serviceEnd {
			notice.NewTriggers = []sched.Submission{{
				Trigger: DepartureTrigger{
					TriggerBase: sched.TriggerBase{TickInSeconds: nextTick},
					Trip:        dep.Trip + 1,
				},
				Agent:    b,
				Priority: busPriority,
			}}
		}
	}

	go b.engine.CompleteTrigger(notice)
}

func (b *bus) NotifyIllegalSchedule(string) {}
func (b *bus) NotifyScheduleEnded(int64)    {}

// spread derives a stable per-agent offset in [0, maxJitterSecs) so the
// population does not act in lockstep.
func spread(id string) int64 {
	h := fnv.New32a()
	h.Write([]byte(id))

	return int64(h.Sum32() % maxJitterSecs)
}
