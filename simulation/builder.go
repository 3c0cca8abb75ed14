package simulation

import (
	"github.com/rs/xid"

	"github.com/transitlab/stride/config"
	"github.com/transitlab/stride/metrics"
	"github.com/transitlab/stride/monitoring"
	"github.com/transitlab/stride/recording"
	"github.com/transitlab/stride/sched"
)

// Builder can be used to build a simulation.
type Builder struct {
	cfg            *config.Config
	monitorOn      bool
	monitorPort    int
	recordingOn    bool
	outputFileName string
	exempt         sched.ExemptPolicy
}

// MakeBuilder creates a new builder with monitoring and recording enabled.
func MakeBuilder() Builder {
	return Builder{
		cfg:         config.Default(),
		monitorOn:   true,
		recordingOn: true,
	}
}

// WithConfig applies a loaded configuration. The monitor and recording
// sections of the configuration take precedence over the builder defaults.
func (b Builder) WithConfig(cfg *config.Config) Builder {
	b.cfg = cfg
	b.monitorOn = cfg.Monitor.Enabled
	b.monitorPort = cfg.Monitor.Port
	b.recordingOn = cfg.Recording.Enabled
	b.outputFileName = cfg.Recording.FileName

	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithoutRecording disables the trigger-event recorder.
func (b Builder) WithoutRecording() Builder {
	b.recordingOn = false
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithExemptPolicy sets the policy that marks triggers tolerating repeated
// slowness without escalation.
func (b Builder) WithExemptPolicy(p sched.ExemptPolicy) Builder {
	b.exempt = p
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if !b.recordingOn && b.outputFileName != "" {
		panic("output file name cannot be set when recording is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		agentNameIndex: make(map[string]int),
	}

	s.id = xid.New().String()
	s.log = b.cfg.Logging.Logger("stride").With().Str("run", s.id).Logger()

	s.engine = sched.MakeEngineBuilder().
		WithConfig(b.cfg.Scheduler.EngineConfig()).
		WithLogger(s.log).
		WithExemptPolicy(b.exempt).
		Build()

	if b.recordingOn {
		outputPath := b.outputFileName
		if outputPath == "" {
			outputPath = "stride_run_" + s.id
		}

		s.recorder = recording.New(outputPath)
		s.engine.AcceptHook(recording.NewLifecycleHook(s.recorder))
	}

	sink, err := metrics.NewPromSink(nil)
	if err != nil {
		panic(err)
	}
	s.engine.AcceptHook(metrics.NewHook(sink))

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		s.monitor.RegisterEngine(s.engine)
		s.monitorAddr = s.monitor.StartServer()
	}

	return s
}
