package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/transitlab/stride/config"
	"github.com/transitlab/stride/simulation"
)

var (
	configPath string
	iteration  int
	commuters  int
	buses      int
	openUI     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scheduled day of a synthetic commuter population",
	RunE:  runDay,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"configuration file (yaml or json); defaults apply when omitted")
	runCmd.Flags().IntVarP(&iteration, "iteration", "i", 0,
		"iteration number reported in logs and recordings")
	runCmd.Flags().IntVar(&commuters, "commuters", 100,
		"number of synthetic commuter agents")
	runCmd.Flags().IntVar(&buses, "buses", 5,
		"number of synthetic bus agents")
	runCmd.Flags().BoolVar(&openUI, "open", false,
		"open the monitoring server in a browser")

	rootCmd.AddCommand(runCmd)
}

func runDay(_ *cobra.Command, _ []string) error {
	// A .env file may carry STRIDE_ overrides; absence is not an error.
	_ = godotenv.Load()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	s := simulation.MakeBuilder().
		WithConfig(cfg).
		Build()

	if openUI && s.MonitorAddr() != "" {
		if err := browser.OpenURL("http://" + s.MonitorAddr()); err != nil {
			fmt.Printf("cannot open browser: %s\n", err)
		}
	}

	populate(s, commuters, buses)

	s.Run(iteration)
	s.Terminate()

	atexit.Exit(0)

	return nil
}

func populate(s *simulation.Simulation, commuters, buses int) {
	engine := s.Engine()

	for i := 0; i < commuters; i++ {
		c := newCommuter(fmt.Sprintf("commuter-%d", i), engine)
		s.RegisterAgent(c)
		engine.ScheduleTrigger(c.firstActivity(), c, 0)
	}

	for i := 0; i < buses; i++ {
		b := newBus(fmt.Sprintf("bus-%d", i), engine)
		s.RegisterAgent(b)
		engine.ScheduleTrigger(b.firstDeparture(), b, busPriority)
	}
}
