package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dronesim/dronesim/sim"
	"github.com/dronesim/dronesim/sim/observer"
	"github.com/dronesim/dronesim/sim/ticklog"
	"github.com/dronesim/dronesim/sim/trace"
)

var (
	// CLI flags for the run command. Config-file values are overridden only
	// when a flag is set explicitly.
	configPath    string // YAML config file
	seed          int64  // Master seed
	ticks         int64  // Number of ticks to run; 0 runs until interrupted
	tickRate      int    // Ticks per second
	gridSize      int    // Grid side length
	ledgerPath    string // Request ledger location
	ledgerBackend string // csv, sqlite or none
	traceLevel    string // none or decisions
	admission     string // Admission policy name
	noGenerator   bool   // Disable the background request generator
	autoDeploy    bool   // Enable periodic dispatch at start
	deployCount   int    // Dispatch attempts per auto-deploy firing
	observeAddr   string // Observer listen address; empty disables it
	allowRemote   bool   // Accept non-loopback observer clients
	tickLogPath   string // zstd tick log file; empty disables it
	tickLogStride int64  // Write every n-th tick to the tick log
)

// runCmd runs a headless simulation using the config file and CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a headless drone delivery simulation",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := sim.DefaultConfig()
		if configPath != "" {
			loaded, err := sim.LoadConfig(configPath)
			if err != nil {
				logrus.Fatalf("Failed to load config: %v", err)
			}
			cfg = loaded
		}
		applyRunFlags(cmd.Flags().Changed, &cfg)
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		store, err := sim.OpenLedger(cfg.Ledger)
		if err != nil {
			logrus.Fatalf("Failed to open ledger: %v", err)
		}
		s := sim.NewSimulator(cfg, store)
		defer func() {
			if err := s.Close(); err != nil {
				logrus.Warnf("closing simulator: %v", err)
			}
		}()

		if err := s.ApplyLayout(cfg.Layout); err != nil {
			logrus.Warnf("%v", err)
		}
		if s.Registry.Len() < 2 {
			logrus.Warnf("only %d hospitals placed; no deliveries can be dispatched", s.Registry.Len())
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var tl *ticklog.Writer
		if tickLogPath != "" {
			tl, err = ticklog.Create(tickLogPath)
			if err != nil {
				logrus.Fatalf("Failed to create tick log: %v", err)
			}
			s.AddSnapshotHook(tl.Hook(tickLogStride))
		}

		observerDone := make(chan struct{})
		if observeAddr != "" {
			srv := observer.NewServer(s)
			srv.AllowRemote = allowRemote
			s.AddSnapshotHook(srv.Publish)
			go func() {
				defer close(observerDone)
				if err := srv.ListenAndServe(ctx, observeAddr); err != nil {
					logrus.Errorf("%v", err)
				}
			}()
		} else {
			close(observerDone)
		}

		logrus.Infof("Starting simulation: seed=%d grid=%dx%d tick_rate=%d ticks=%d ledger=%s",
			cfg.Seed, cfg.GridSize, cfg.GridSize, cfg.TickRate, ticks, cfg.Ledger.Backend)
		startTime := time.Now()
		s.StartSimulation()
		if autoDeploy {
			s.SetAutoDeploy(true)
			s.SetDeployCount(deployCount)
		}
		s.Run(ctx, ticks)
		s.StopSimulation()
		elapsed := time.Since(startTime)

		stop()
		<-observerDone

		writeRunSummary(os.Stdout, s.Snapshot(), elapsed)
		if tl != nil {
			if err := tl.Close(); err != nil {
				logrus.Errorf("closing tick log: %v", err)
			}
			writeTickLogSummary(os.Stdout, tickLogPath, tl.Written())
		}
		if s.Trace.Enabled() {
			writeTraceSummary(os.Stdout, trace.Summarize(s.Trace))
		}
		logrus.Info("Simulation complete.")
	},
}

// applyRunFlags copies explicitly set flags over cfg.
func applyRunFlags(changed func(name string) bool, cfg *sim.Config) {
	if changed("seed") {
		cfg.Seed = seed
	}
	if changed("tick-rate") {
		cfg.TickRate = tickRate
	}
	if changed("grid-size") {
		cfg.GridSize = gridSize
	}
	if changed("ledger") {
		cfg.Ledger.Path = ledgerPath
	}
	if changed("ledger-backend") {
		cfg.Ledger.Backend = ledgerBackend
	}
	if changed("trace") {
		cfg.Trace.Level = traceLevel
	}
	if changed("admission") {
		cfg.AdmissionPolicy = admission
	}
	if changed("no-generator") {
		cfg.Generator.Enabled = !noGenerator
	}
}

func writeRunSummary(w io.Writer, snap *sim.Snapshot, elapsed time.Duration) {
	c := snap.Counters
	rate := 0.0
	if elapsed > 0 {
		rate = float64(snap.Tick) / elapsed.Seconds()
	}
	fmt.Fprintln(w, "=== Simulation Summary ===")
	fmt.Fprintf(w, "Ticks:            %s (%s ticks/s over %v)\n",
		humanize.Comma(snap.Tick), humanize.CommafWithDigits(rate, 1), elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Hospitals:        %s\n", humanize.Comma(int64(len(snap.Hospitals))))
	fmt.Fprintf(w, "Deliveries:       %s\n", humanize.Comma(int64(c.TotalDeliveries)))
	fmt.Fprintf(w, "Active routes:    %s\n", humanize.Comma(int64(c.ActiveRoutes)))
	fmt.Fprintf(w, "Emergencies:      %s\n", humanize.Comma(int64(c.EmergencyCount)))
	fmt.Fprintf(w, "Obstacles:        %s\n", humanize.Comma(int64(len(snap.Obstacles))))
	pending := 0
	for _, h := range snap.Hospitals {
		pending += len(h.Needs)
	}
	fmt.Fprintf(w, "Pending needs:    %s\n", humanize.Comma(int64(pending)))
}

func writeTickLogSummary(w io.Writer, path string, entries int) {
	size := "unknown size"
	if info, err := os.Stat(path); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	fmt.Fprintf(w, "Tick log:         %s entries, %s (%s)\n", humanize.Comma(int64(entries)), size, path)
}

func writeTraceSummary(w io.Writer, ts *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Decision Trace ===")
	fmt.Fprintf(w, "Dispatch decisions: %s (%s admitted, %s rejected)\n",
		humanize.Comma(int64(ts.TotalDecisions)), humanize.Comma(int64(ts.AdmittedCount)), humanize.Comma(int64(ts.RejectedCount)))
	for _, k := range sortedKeys(ts.RejectReasons) {
		fmt.Fprintf(w, "  rejected %-28s %s\n", k+":", humanize.Comma(int64(ts.RejectReasons[k])))
	}
	for _, k := range sortedKeys(ts.OriginDistribution) {
		fmt.Fprintf(w, "  from %-32s %s\n", k+":", humanize.Comma(int64(ts.OriginDistribution[k])))
	}
	for _, k := range sortedKeys(ts.SourceDistribution) {
		fmt.Fprintf(w, "  source %-30s %s\n", k+":", humanize.Comma(int64(ts.SourceDistribution[k])))
	}
	fmt.Fprintf(w, "Replans: %s (%s failed, %s%% success)\n",
		humanize.Comma(int64(ts.ReplanCount)), humanize.Comma(int64(ts.ReplanFailures)),
		humanize.FtoaWithDigits(ts.ReplanSuccessRate*100, 1))
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML config file (defaults are used for missing fields)")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Master seed for every random subsystem")
	runCmd.Flags().Int64Var(&ticks, "ticks", 0, "Number of ticks to run (0 runs until interrupted)")
	runCmd.Flags().IntVar(&tickRate, "tick-rate", 60, "Ticks per second")
	runCmd.Flags().IntVar(&gridSize, "grid-size", 25, "Grid side length")

	// Request pipeline
	runCmd.Flags().StringVar(&ledgerPath, "ledger", "simulation_alerts.csv", "Request ledger location")
	runCmd.Flags().StringVar(&ledgerBackend, "ledger-backend", "csv", "Ledger backend (csv, sqlite, none)")
	runCmd.Flags().StringVar(&admission, "admission", "need-aware", "Admission policy (need-aware, capacity)")
	runCmd.Flags().BoolVar(&noGenerator, "no-generator", false, "Disable the background request generator")
	runCmd.Flags().BoolVar(&autoDeploy, "auto-deploy", false, "Enable periodic dispatch at start")
	runCmd.Flags().IntVar(&deployCount, "deploy-count", 1, "Dispatch attempts per auto-deploy firing (1-5)")

	// Outputs
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Decision trace level (none, decisions)")
	runCmd.Flags().StringVar(&observeAddr, "observe", "", "Serve snapshots and accept commands on this address, e.g. 127.0.0.1:8080")
	runCmd.Flags().BoolVar(&allowRemote, "observe-remote", false, "Accept non-loopback observer clients")
	runCmd.Flags().StringVar(&tickLogPath, "tick-log", "", "Write a zstd-compressed JSONL tick log to this file")
	runCmd.Flags().Int64Var(&tickLogStride, "tick-log-stride", 1, "Write every n-th tick to the tick log")
}
