// Package simulation assembles a scheduler run: the engine, the agent
// registry, the trigger-event recorder, the metrics sink, and the monitoring
// server.
package simulation

import (
	"github.com/rs/zerolog"

	"github.com/transitlab/stride/monitoring"
	"github.com/transitlab/stride/recording"
	"github.com/transitlab/stride/sched"
)

// A Simulation provides the services required to run a scheduled agent
// population.
type Simulation struct {
	id  string
	log zerolog.Logger

	engine      *sched.Engine
	recorder    recording.Recorder
	monitor     *monitoring.Monitor
	monitorAddr string

	agents         []sched.Agent
	agentNameIndex map[string]int
}

// ID returns the unique identifier of the run.
func (s *Simulation) ID() string {
	return s.id
}

// Engine returns the scheduler engine of the simulation.
func (s *Simulation) Engine() *sched.Engine {
	return s.engine
}

// Recorder returns the data recorder of the simulation. It is nil when
// recording is disabled.
func (s *Simulation) Recorder() recording.Recorder {
	return s.recorder
}

// MonitorAddr returns the address the monitoring server listens on. It is
// empty when monitoring is disabled.
func (s *Simulation) MonitorAddr() string {
	return s.monitorAddr
}

// RegisterAgent registers an agent with the simulation.
func (s *Simulation) RegisterAgent(a sched.Agent) {
	name := a.ID()
	if _, exists := s.agentNameIndex[name]; exists {
		panic("agent " + name + " already registered")
	}

	s.agents = append(s.agents, a)
	s.agentNameIndex[name] = len(s.agents) - 1
}

// AgentByID returns the agent with the given ID, or nil if no such agent is
// registered.
func (s *Simulation) AgentByID(name string) sched.Agent {
	i, exists := s.agentNameIndex[name]
	if !exists {
		return nil
	}

	return s.agents[i]
}

// Agents returns all registered agents in registration order.
func (s *Simulation) Agents() []sched.Agent {
	return s.agents
}

// Run starts the engine, dispatches from tick 0, and blocks until the run
// reaches its horizon and all in-flight triggers are acknowledged.
func (s *Simulation) Run(iteration int) {
	s.engine.Start()

	done := s.engine.StartSchedule(iteration)
	<-done
}

// Terminate persists the scheduler state, stops the engine, and closes the
// recorder.
func (s *Simulation) Terminate() {
	s.engine.PrepareForShutdown()
	s.engine.Stop()

	if s.recorder != nil {
		s.recorder.Close()
	}
}
