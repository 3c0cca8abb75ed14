package sched

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"
)

// windowAssertHook checks, at every dispatch, that the engine is not running
// ahead of the oldest unacknowledged trigger by more than the window.
type windowAssertHook struct {
	engine    *Engine
	maxWindow int64

	mu         sync.Mutex
	violations int
}

func (h *windowAssertHook) Func(ctx HookCtx) {
	if ctx.Pos != HookPosTriggerDispatched {
		return
	}

	earliest, ok := h.engine.EarliestPendingTick()
	if !ok {
		return
	}

	if ctx.Now-earliest+1 > h.maxWindow {
		h.mu.Lock()
		h.violations++
		h.mu.Unlock()
	}
}

func (h *windowAssertHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.violations
}

var _ = Describe("Engine", func() {
	var (
		outputDir string
		cfg       Config
		engine    *Engine
		log       *dispatchLog
	)

	BeforeEach(func() {
		outputDir = GinkgoT().TempDir()
		cfg = quietConfig(outputDir)
		log = new(dispatchLog)
	})

	AfterEach(func() {
		if engine != nil {
			engine.Stop()
		}
	})

	build := func() {
		engine = MakeEngineBuilder().
			WithConfig(cfg).
			WithLogger(zerolog.Nop()).
			Build()
	}

	newAgent := func(id string, autoComplete bool) *testAgent {
		return &testAgent{
			id:           id,
			engine:       engine,
			log:          log,
			autoComplete: autoComplete,
		}
	}

	It("should dispatch same-tick triggers in priority order", func() {
		cfg.StopTick = 10
		build()

		x := newAgent("x", true)
		y := newAgent("y", true)

		engine.Start()
		engine.ScheduleTrigger(trig(5), x, 0)
		engine.ScheduleTrigger(trig(5), y, 1)

		done := engine.StartSchedule(0)
		Eventually(done).Should(Receive(Equal(CompletionNotice{TriggerID: 0})))

		Expect(log.all()).To(Equal([]string{"y@5", "x@5"}))
	})

	It("should serve ticks in order, with ID as the final tie-break", func() {
		cfg.StopTick = 10
		build()

		a := newAgent("a", true)
		b := newAgent("b", true)
		c := newAgent("c", true)
		d := newAgent("d", true)

		engine.Start()
		engine.ScheduleTrigger(trig(2), a, 0)
		engine.ScheduleTrigger(trig(1), b, 0)
		engine.ScheduleTrigger(trig(1), c, 5)
		engine.ScheduleTrigger(trig(1), d, 0)
		engine.ScheduleTrigger(trig(3), a, 9)

		done := engine.StartSchedule(0)
		Eventually(done).Should(Receive())

		Expect(log.all()).To(Equal(
			[]string{"c@1", "b@1", "d@1", "a@2", "a@3"}))
	})

	It("should not outrun an unacknowledged trigger", func() {
		// Scenario: with a one-tick window, a trigger for tick 2 must wait
		// until the tick-0 trigger is acknowledged.
		cfg.StopTick = 10
		cfg.MaxWindow = 1
		build()

		x := newAgent("x", false)
		y := newAgent("y", true)

		engine.Start()
		engine.ScheduleTrigger(trig(0), x, 0)
		engine.ScheduleTrigger(trig(2), y, 0)

		done := engine.StartSchedule(0)

		Eventually(x.acceptedCount).Should(Equal(1))
		Consistently(y.acceptedCount, "200ms").Should(Equal(0))
		Expect(engine.CurrentTick()).To(Equal(int64(0)))

		engine.CompleteTrigger(CompletionNotice{TriggerID: 1})

		Eventually(y.acceptedCount).Should(Equal(1))
		Eventually(done).Should(Receive())
	})

	It("should reject submissions behind the lookahead window", func() {
		cfg.StopTick = 10
		cfg.MaxWindow = 3
		build()

		x := newAgent("x", true)

		engine.Start()
		done := engine.StartSchedule(0)
		Eventually(done).Should(Receive())
		Expect(engine.CurrentTick()).To(Equal(int64(10)))

		engine.ScheduleTrigger(trig(-5), x, 0)

		Eventually(x.illegalCount).Should(Equal(1))
		Expect(engine.QueueDepth()).To(Equal(0))
		Expect(x.acceptedCount()).To(Equal(0))
	})

	It("should enqueue and dispatch triggers chained on a completion", func() {
		cfg.StopTick = 30
		build()

		x := newAgent("x", true)
		x.chain = func(t TriggerWithID) []Submission {
			if t.Trigger.Tick() != 5 {
				return nil
			}

			return []Submission{
				{Trigger: trig(t.Trigger.Tick() + 10), Agent: x},
			}
		}

		engine.Start()
		engine.ScheduleTrigger(trig(5), x, 0)

		done := engine.StartSchedule(0)
		Eventually(done).Should(Receive())

		Expect(log.all()).To(Equal([]string{"x@5", "x@15"}))
		Expect(engine.InFlight()).To(Equal(0))
	})

	It("should synthesize completions when an agent dies", func() {
		cfg.StopTick = 10
		cfg.MaxWindow = 1
		build()

		x := newAgent("x", false)
		y := newAgent("y", true)

		engine.Start()
		engine.ScheduleTrigger(trig(0), x, 0)
		engine.ScheduleTrigger(trig(2), y, 0)
		engine.ScheduleTrigger(trig(4), x, 0)

		done := engine.StartSchedule(0)

		Eventually(x.acceptedCount).Should(Equal(1))
		Consistently(y.acceptedCount, "100ms").Should(Equal(0))

		engine.AgentTerminated(x)

		// The dead agent's in-flight entry is cleared, its queued trigger
		// completes synthetically, and the run drains to the horizon.
		Eventually(done).Should(Receive())
		Expect(y.acceptedCount()).To(Equal(1))
		Expect(x.acceptedCount()).To(Equal(1))
		Expect(engine.InFlight()).To(Equal(0))
	})

	It("should keep the window bound over a busy run", func() {
		cfg.StopTick = 40
		cfg.MaxWindow = 5
		build()

		hook := &windowAssertHook{engine: engine, maxWindow: cfg.MaxWindow}
		engine.AcceptHook(hook)

		agents := make([]*testAgent, 4)
		for i := range agents {
			agents[i] = newAgent(string(rune('a'+i)), true)
			agents[i].delay = time.Duration(i) * time.Millisecond
		}

		engine.Start()
		for tick := int64(0); tick <= 36; tick += 3 {
			engine.ScheduleTrigger(trig(tick), agents[int(tick)%4], int32(tick%3))
		}

		done := engine.StartSchedule(0)
		Eventually(done, "5s").Should(Receive())

		Expect(hook.count()).To(Equal(0))
	})

	It("should schedule a kill trigger one window ahead", func() {
		cfg.StopTick = 20
		cfg.MaxWindow = 5
		build()

		x := newAgent("x", true)

		engine.Start()
		engine.ScheduleKillTrigger(x)

		done := engine.StartSchedule(0)
		Eventually(done).Should(Receive())

		Eventually(x.acceptedCount).Should(Equal(1))
		x.mu.Lock()
		accepted := x.accepted[0]
		x.mu.Unlock()

		Expect(accepted.Trigger).To(BeAssignableToTypeOf(KillTrigger{}))
		Expect(accepted.Trigger.Tick()).To(Equal(int64(5)))
	})

	It("should notify agents when the run ends", func() {
		cfg.StopTick = 5
		build()

		x := newAgent("x", true)

		engine.Start()
		engine.ScheduleTrigger(trig(1), x, 0)

		done := engine.StartSchedule(0)
		Eventually(done).Should(Receive())
		Eventually(x.wasEnded).Should(BeTrue())
	})

	It("should support a fresh iteration after a run completes", func() {
		cfg.StopTick = 5
		build()

		x := newAgent("x", true)

		engine.Start()
		engine.ScheduleTrigger(trig(1), x, 0)
		Eventually(engine.StartSchedule(0)).Should(Receive())

		engine.ScheduleTrigger(trig(2), x, 0)
		Eventually(engine.StartSchedule(1)).Should(Receive())

		Expect(log.all()).To(Equal([]string{"x@1", "x@2"}))
	})

	It("should drop unknown completion notices without crashing", func() {
		cfg.StopTick = 5
		build()

		x := newAgent("x", true)

		engine.Start()
		engine.ScheduleTrigger(trig(1), x, 0)
		engine.CompleteTrigger(CompletionNotice{TriggerID: 999})

		done := engine.StartSchedule(0)
		Eventually(done).Should(Receive())
	})

	It("should force-complete stuck triggers and move on", func() {
		cfg.StopTick = 5
		cfg.MaxWindow = 2
		cfg.StuckCheckEvery = 20 * time.Millisecond
		cfg.MarkStuckAfter = 10 * time.Millisecond
		build()

		x := newAgent("x", false)

		engine.Start()
		engine.ScheduleTrigger(trig(0), x, 0)

		done := engine.StartSchedule(0)

		Eventually(x.illegalCount).Should(BeNumerically(">=", 1))
		Eventually(done).Should(Receive())
		Expect(engine.InFlight()).To(Equal(0))
	})

	It("should escalate exempt triggers past the retry cap", func() {
		cfg.StopTick = 5
		cfg.MaxWindow = 2
		cfg.StuckCheckEvery = 10 * time.Millisecond
		cfg.MarkStuckAfter = 5 * time.Millisecond
		cfg.StuckMaxRetries = 2
		build()

		var (
			fatalMu    sync.Mutex
			fatalCalls int
		)
		engine.fatalf = func(string, ...interface{}) {
			fatalMu.Lock()
			fatalCalls++
			fatalMu.Unlock()
		}
		engine.stuck.exempt = func(ScheduledTrigger) bool { return true }

		x := newAgent("x", false)

		engine.Start()
		engine.ScheduleTrigger(trig(0), x, 0)
		engine.StartSchedule(0)

		Eventually(func() int {
			fatalMu.Lock()
			defer fatalMu.Unlock()
			return fatalCalls
		}).Should(BeNumerically(">=", 1))

		// Exempt triggers are never force-completed on the agent.
		Expect(x.illegalCount()).To(Equal(0))
	})

	It("should dump state and die when no tick advances for too long", func() {
		cfg.StopTick = 10
		cfg.MaxWindow = 1
		cfg.LivenessCheckEvery = 10 * time.Millisecond
		cfg.StallAfter = 30 * time.Millisecond
		build()

		var (
			fatalMu    sync.Mutex
			fatalCalls int
		)
		engine.fatalf = func(string, ...interface{}) {
			fatalMu.Lock()
			fatalCalls++
			fatalMu.Unlock()
		}

		x := newAgent("x", false)

		engine.Start()
		engine.ScheduleTrigger(trig(0), x, 0)
		engine.StartSchedule(0)

		Eventually(func() int {
			fatalMu.Lock()
			defer fatalMu.Unlock()
			return fatalCalls
		}).Should(BeNumerically(">=", 1))

		Expect(filepath.Join(outputDir, "trigger_queue.txt")).To(BeAnExistingFile())
		Expect(filepath.Join(outputDir, "awaiting_response.txt")).To(BeAnExistingFile())
		Expect(filepath.Join(outputDir, "stack_trace.txt")).To(BeAnExistingFile())
	})

	It("should dump state at most once and drain afterwards", func() {
		build()

		x := newAgent("x", true)

		engine.Start()
		engine.ScheduleTrigger(trig(5), x, 0)

		engine.PrepareForShutdown()

		queueDump := filepath.Join(outputDir, "trigger_queue.txt")
		Expect(queueDump).To(BeAnExistingFile())

		// New work is refused while draining.
		engine.ScheduleTrigger(trig(6), x, 0)
		Consistently(engine.QueueDepth, "100ms").Should(Equal(1))

		// A second shutdown request must not rewrite the dump.
		Expect(os.Remove(queueDump)).To(Succeed())
		engine.PrepareForShutdown()
		Expect(queueDump).NotTo(BeAnExistingFile())
	})

	It("should refuse to build with a zero window", func() {
		cfg.MaxWindow = 0
		Expect(func() {
			MakeEngineBuilder().WithConfig(cfg).Build()
		}).To(Panic())
	})
})

var _ = Describe("Engine with mock agents", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *Engine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		cfg := quietConfig(GinkgoT().TempDir())
		cfg.StopTick = 10
		cfg.MaxWindow = 3
		engine = MakeEngineBuilder().
			WithConfig(cfg).
			WithLogger(zerolog.Nop()).
			Build()
		engine.Start()
	})

	AfterEach(func() {
		engine.Stop()
		mockCtrl.Finish()
	})

	It("should report window violations through the agent interface", func() {
		agent := NewMockAgent(mockCtrl)
		agent.EXPECT().ID().Return("mock").AnyTimes()

		notified := make(chan string, 1)
		agent.EXPECT().NotifyIllegalSchedule(gomock.Any()).
			Do(func(reason string) { notified <- reason })

		done := engine.StartSchedule(0)
		Eventually(done).Should(Receive())

		engine.ScheduleTrigger(trig(-5), agent, 0)

		Eventually(notified).Should(Receive(ContainSubstring("lookahead window")))
	})

	It("should hand the assigned ID to the agent", func() {
		agent := NewMockAgent(mockCtrl)
		agent.EXPECT().ID().Return("mock").AnyTimes()
		agent.EXPECT().NotifyScheduleEnded(gomock.Any()).AnyTimes()

		delivered := make(chan TriggerWithID, 1)
		agent.EXPECT().AcceptTrigger(gomock.Any()).
			Do(func(t TriggerWithID) {
				delivered <- t
				go engine.CompleteTrigger(CompletionNotice{TriggerID: t.ID})
			})

		engine.ScheduleTrigger(trig(4), agent, 0)
		done := engine.StartSchedule(0)

		var t TriggerWithID
		Eventually(delivered).Should(Receive(&t))
		Expect(t.ID).To(Equal(int64(1)))
		Expect(t.Trigger.Tick()).To(Equal(int64(4)))

		Eventually(done).Should(Receive())
	})
})
