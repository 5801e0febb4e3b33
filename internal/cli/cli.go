// ============================================================================
// concurra CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra-based command line interface over the parallel scheduler.
//
// Command Structure:
//   concurra                        # Root command
//   ├── run                         # Start scheduler, drive demo workload
//   │   └── --config, -c           # Specify config file
//   ├── status                      # Print scheduler snapshot
//   └── --version                   # Display version information
//
// Configuration Management:
//   Uses YAML format config file (default: configs/default.yaml)
//   Configuration items include:
//   - scheduler: worker thread count, cpu affinity, default timeout
//   - metrics: Prometheus exporter address
//
// run Command:
//   1. Load config file
//   2. scheduler.Initialize with the loaded options
//   3. Start metrics HTTP server (if enabled)
//   4. Drive a GoAll demo; with worker threads on, register demo.square
//      and run it through a Go routine that calls Execute
//   5. Listen for SIGINT/SIGTERM and shut the scheduler down gracefully
//
// ============================================================================

package cli

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/concurra/internal/rtctx"
	"github.com/ChuLiYu/concurra/internal/rterr"
	"github.com/ChuLiYu/concurra/internal/rtmetrics"
	"github.com/ChuLiYu/concurra/internal/rtroutine"
	"github.com/ChuLiYu/concurra/pkg/scheduler"
)

// Config represents the complete system configuration structure.
// Maps config file fields through YAML tags.
type Config struct {
	Scheduler struct {
		UseWorkerThreads bool          `yaml:"use_worker_threads"`
		ThreadCount      int           `yaml:"thread_count"`
		CPUAffinity      bool          `yaml:"cpu_affinity"`
		Timeout          time.Duration `yaml:"timeout"`
	} `yaml:"scheduler"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`
}

var (
	configFile  string
	globalSched *scheduler.Scheduler
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "concurra",
		Short: "concurra: a structured concurrency runtime for Go",
		Long: `concurra gives Go programs routines, typed channels, a selector,
sync primitives, cancellation contexts, and a worker pool of OS threads
fronted by a function registry and load balancer.`,
		Version: "0.1.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the scheduler and drive a demo workload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystem()
		},
	}
	return cmd
}

func runSystem() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log.Printf("Starting concurra scheduler (workerThreads=%v threads=%d)\n",
		cfg.Scheduler.UseWorkerThreads, cfg.Scheduler.ThreadCount)

	var collector *rtmetrics.Collector
	if cfg.Metrics.Enabled {
		collector = rtmetrics.NewCollector()
	}

	opts := scheduler.Options{
		UseWorkerThreads: cfg.Scheduler.UseWorkerThreads,
		ThreadCount:      cfg.Scheduler.ThreadCount,
		Timeout:          cfg.Scheduler.Timeout,
		Metrics:          collector,
	}

	sched, serr := scheduler.Initialize(opts)
	if serr != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", serr)
	}
	globalSched = sched

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("Starting metrics server on %s\n", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Printf("Metrics server error: %v\n", err)
			}
		}()
	}

	if cfg.Scheduler.UseWorkerThreads {
		if _, rerr := sched.RegisterFunction("demo.square", func(ctx *rtctx.Context, args any) (any, *rterr.Error) {
			n, _ := args.(int)
			return n * n, nil
		}, nil); rerr != nil {
			return fmt.Errorf("failed to register demo function: %w", rerr)
		}
	}

	sched.GoAll(rtctx.Background(), rtroutine.Options{Name: "demo-fanout"},
		func(ctx *rtctx.Context) (any, *rterr.Error) { return "first", nil },
		func(ctx *rtctx.Context) (any, *rterr.Error) { return "second", nil },
	)

	if cfg.Scheduler.UseWorkerThreads {
		h := sched.Go(rtctx.Background(), func(ctx *rtctx.Context) (any, *rterr.Error) {
			v, err := sched.Execute(ctx, "demo.square", 9, cfg.Scheduler.Timeout)
			return v, err
		}, rtroutine.Options{Name: "demo-worker-dispatch", UseWorkerThreads: true})
		if v, werr := h.Wait(cfg.Scheduler.Timeout); werr == nil {
			log.Printf("demo-worker-dispatch result: %v\n", v)
		}
	}

	log.Println("Scheduler started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal, stopping gracefully...")

	if serr := sched.Shutdown(rtctx.Background()); serr != nil {
		return fmt.Errorf("shutdown failed: %w", serr)
	}

	log.Println("Scheduler stopped. Goodbye!")
	return nil
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show scheduler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	sched, ok := scheduler.Get()
	if !ok {
		fmt.Println("Scheduler not running (run 'concurra run' to start)")
		return nil
	}

	snap := sched.Snapshot()
	fmt.Println("concurra scheduler status")
	fmt.Printf("  State:          %s\n", snap.State)
	fmt.Printf("  Uptime:         %s\n", snap.Uptime)
	fmt.Printf("  Total routines: %d\n", snap.TotalRoutines)
	for state, count := range snap.RoutineCounts {
		fmt.Printf("    %-10s %d\n", state, count)
	}
	fmt.Printf("  Functions:      %d\n", snap.FunctionCount)
	if len(snap.Workers) > 0 {
		fmt.Printf("  Workers:\n")
		for _, w := range snap.Workers {
			fmt.Printf("    worker-%d alive=%v load=%d\n", w.ID, w.Alive, w.Load)
		}
	}
	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if cfg.Scheduler.Timeout == 0 {
		cfg.Scheduler.Timeout = 5 * time.Second
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}

	return &cfg, nil
}
