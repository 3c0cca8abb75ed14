package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records scheduler events in Prometheus metrics.
type PromSink struct {
	scheduled  prometheus.Counter
	rejected   prometheus.Counter
	dispatched prometheus.Counter
	completed  *prometheus.CounterVec
	tick       prometheus.Gauge
	inFlight   prometheus.Gauge
	advance    prometheus.Histogram
}

// NewPromSink registers scheduler metrics on the provided registerer. If reg
// is nil, the default registerer is used. Collectors that are already
// registered are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &PromSink{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sched_triggers_scheduled_total",
			Help: "Total number of triggers accepted into the queue",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sched_triggers_rejected_total",
			Help: "Total number of submissions rejected by the lookahead window",
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sched_triggers_dispatched_total",
			Help: "Total number of triggers delivered to agents",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sched_triggers_completed_total",
			Help: "Total number of completion notices applied",
		}, []string{"synthesized"}),
		tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sched_current_tick",
			Help: "Current simulated time in seconds",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sched_triggers_in_flight",
			Help: "Dispatched triggers awaiting a completion notice",
		}),
		advance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sched_tick_advance_seconds",
			Help:    "Wall-clock delay between consecutive tick advances",
			Buckets: prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		s.scheduled, s.rejected, s.dispatched, s.completed, s.tick,
		s.inFlight, s.advance,
	}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}

			switch i {
			case 0:
				s.scheduled = are.ExistingCollector.(prometheus.Counter)
			case 1:
				s.rejected = are.ExistingCollector.(prometheus.Counter)
			case 2:
				s.dispatched = are.ExistingCollector.(prometheus.Counter)
			case 3:
				s.completed = are.ExistingCollector.(*prometheus.CounterVec)
			case 4:
				s.tick = are.ExistingCollector.(prometheus.Gauge)
			case 5:
				s.inFlight = are.ExistingCollector.(prometheus.Gauge)
			case 6:
				s.advance = are.ExistingCollector.(prometheus.Histogram)
			}
		}
	}

	return s, nil
}

// TriggerScheduled increments the scheduled counter.
func (s *PromSink) TriggerScheduled() {
	s.scheduled.Inc()
}

// TriggerRejected increments the rejected counter.
func (s *PromSink) TriggerRejected() {
	s.rejected.Inc()
}

// TriggerDispatched increments the dispatched counter and the in-flight
// gauge.
func (s *PromSink) TriggerDispatched() {
	s.dispatched.Inc()
	s.inFlight.Inc()
}

// TriggerCompleted increments the completion counter, split by whether the
// notice was synthesized by the engine.
func (s *PromSink) TriggerCompleted(synthesized bool) {
	s.completed.WithLabelValues(strconv.FormatBool(synthesized)).Inc()
	s.inFlight.Dec()
}

// TickAdvanced moves the current-tick gauge and observes the wall-clock
// delay since the previous advance.
func (s *PromSink) TickAdvanced(now int64, wallDelay time.Duration) {
	s.tick.Set(float64(now))
	s.advance.Observe(wallDelay.Seconds())
}

// RunEnded is a no-op for Prometheus; the run duration is visible through
// the advance histogram.
func (s *PromSink) RunEnded(time.Duration) {}
