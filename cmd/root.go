package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/lpu-sim/lpu-sim/sim"
	"github.com/lpu-sim/lpu-sim/sim/manager"
	_ "github.com/lpu-sim/lpu-sim/sim/models"
	"github.com/lpu-sim/lpu-sim/sim/trace"
)

var (
	configPath   string        // Scenario YAML file
	steps        int           // Number of rounds (overrides scenario)
	dt           float64       // Round length in seconds (overrides scenario)
	seed         int64         // Master seed (overrides scenario)
	logLevel     string        // Log verbosity level
	debug        bool          // Per-round debug logging
	timeSync     bool          // Log barrier timing every round
	outputPath   string        // Recorded series YAML file
	maxRetries   int           // Retries of a transient communication fault
	retryBackoff time.Duration // Base backoff between retries
	roundTimeout time.Duration // Barrier timeout (0 = none)
	traceLevel   string        // Round trace verbosity
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "lpu-sim",
	Short: "Lockstep simulator for networks of local processing units",
}

// runCmd executes a scenario using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		sc := loadScenario(cmd.Flags())

		cfg, err := managerConfig()
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		m, rec, err := sc.Build(cfg)
		if err != nil {
			logrus.Fatalf("Failed to build scenario: %v", err)
		}

		logrus.Infof("Starting run: %d LPUs, %d routes, %d steps of %gs, seed=%d",
			len(sc.LPUs), len(m.Routes()), sc.Steps, sc.DT, sc.Seed)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		startTime := time.Now()
		if err := m.Run(ctx, sc.Steps); err != nil {
			logrus.Fatalf("Run failed: %v", err)
		}
		if err := printSummary(os.Stdout, m.Stats(), trace.Summarize(m.Trace()), time.Since(startTime)); err != nil {
			logrus.Fatalf("Failed to print summary: %v", err)
		}
		if outputPath != "" {
			f, err := os.Create(outputPath)
			if err != nil {
				logrus.Fatalf("Failed to create output file: %v", err)
			}
			defer f.Close()
			if err := rec.WriteYAML(f); err != nil {
				logrus.Fatalf("Failed to write recorded series: %v", err)
			}
			logrus.Infof("Recorded series written to %s", outputPath)
		}
		logrus.Info("Simulation complete.")
	},
}

// validateCmd builds a scenario and compiles its routing without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario for configuration and routing errors",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		sc := loadScenario(cmd.Flags())
		cfg, err := managerConfig()
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		m, _, err := sc.Build(cfg)
		if err != nil {
			logrus.Fatalf("Invalid scenario: %v", err)
		}
		if err := m.Validate(); err != nil {
			logrus.Fatalf("Invalid scenario: %v", err)
		}
		fmt.Printf("%s: %d LPUs, %d routes OK\n", configPath, len(sc.LPUs), len(m.Routes()))
	},
}

// modelsCmd lists the registered component models
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the available component models",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range sim.Models() {
			fmt.Println(name)
		}
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	if debug && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
}

func loadScenario(flags *pflag.FlagSet) *Scenario {
	if configPath == "" {
		logrus.Fatalf("Scenario file not provided (--config). Exiting.")
	}
	sc, err := LoadScenario(configPath)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	applyOverrides(flags, sc)
	if err := sc.Validate(); err != nil {
		logrus.Fatalf("Invalid scenario %s: %v", configPath, err)
	}
	return sc
}

// applyOverrides replaces scenario values with flags the user set explicitly.
func applyOverrides(flags *pflag.FlagSet, sc *Scenario) {
	if flags.Changed("steps") {
		sc.Steps = steps
	}
	if flags.Changed("dt") {
		sc.DT = dt
	}
	if flags.Changed("seed") {
		sc.Seed = seed
	}
}

func managerConfig() (manager.Config, error) {
	if !trace.IsValidTraceLevel(traceLevel) {
		return manager.Config{}, fmt.Errorf("unknown trace level %q; valid: none, rounds", traceLevel)
	}
	cfg := manager.DefaultConfig()
	cfg.MaxRetries = maxRetries
	cfg.RetryBackoff = retryBackoff
	cfg.RoundTimeout = roundTimeout
	cfg.Debug = debug
	cfg.TimeSync = timeSync
	cfg.Trace = trace.TraceConfig{Level: trace.TraceLevel(traceLevel)}
	return cfg, nil
}

// RunSummary is the end-of-run report printed to stdout.
type RunSummary struct {
	Rounds          int    `yaml:"rounds"`
	Exchanges       int    `yaml:"exchanges"`
	ValuesDelivered int    `yaml:"values_delivered"`
	Deliveries      int    `yaml:"deliveries"`
	Retries         int    `yaml:"retries"`
	WallTime        string `yaml:"wall_time"`
	MeanBarrier     string `yaml:"mean_barrier,omitempty"`
	MaxBarrier      string `yaml:"max_barrier,omitempty"`
	SlowestLPU      string `yaml:"slowest_lpu,omitempty"`
}

func printSummary(w io.Writer, stats manager.Stats, ts *trace.TraceSummary, elapsed time.Duration) error {
	s := RunSummary{
		Rounds:          stats.Rounds,
		Exchanges:       stats.Exchanges,
		ValuesDelivered: stats.ValuesDelivered,
		Deliveries:      stats.Deliveries,
		Retries:         stats.Retries,
		WallTime:        elapsed.Round(time.Millisecond).String(),
	}
	if ts.Rounds > 0 {
		s.MeanBarrier = ts.MeanBarrier.String()
		s.MaxBarrier = ts.MaxBarrier.String()
		s.SlowestLPU = ts.SlowestLPU
	}
	if _, err := fmt.Fprintln(w, "=== Simulation Summary ==="); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, validateCmd} {
		c.Flags().StringVar(&configPath, "config", "", "Scenario YAML file")
		c.Flags().IntVar(&steps, "steps", 1000, "Number of rounds (overrides scenario)")
		c.Flags().Float64Var(&dt, "dt", 1e-4, "Round length in seconds (overrides scenario)")
		c.Flags().Int64Var(&seed, "seed", 42, "Master random seed (overrides scenario)")
		c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
		c.Flags().BoolVar(&debug, "debug", false, "Log every round and exchange")
		c.Flags().IntVar(&maxRetries, "max-retries", 3, "Retries of a transient communication fault before the run fails")
		c.Flags().DurationVar(&retryBackoff, "retry-backoff", 10*time.Millisecond, "Backoff before the first retry; grows linearly")
		c.Flags().DurationVar(&roundTimeout, "round-timeout", 0, "Fail the run if one round takes longer (0 = no limit)")
		c.Flags().StringVar(&traceLevel, "trace-level", "none", "Round trace verbosity (none, rounds)")
	}
	runCmd.Flags().BoolVar(&timeSync, "time-sync", false, "Log barrier timing of every round")
	runCmd.Flags().StringVar(&outputPath, "output", "", "Write recorded series to this YAML file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(modelsCmd)
}
