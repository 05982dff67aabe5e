package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/taskcomputer/pkg/config"
	"github.com/cuemby/taskcomputer/pkg/containermanager"
	"github.com/cuemby/taskcomputer/pkg/events"
	"github.com/cuemby/taskcomputer/pkg/log"
	"github.com/cuemby/taskcomputer/pkg/metrics"
	"github.com/cuemby/taskcomputer/pkg/runtime"
	"github.com/cuemby/taskcomputer/pkg/stats"
	"github.com/cuemby/taskcomputer/pkg/storage"
	"github.com/cuemby/taskcomputer/pkg/taskcomputer"
	"github.com/cuemby/taskcomputer/pkg/tickloop"
	"github.com/cuemby/taskcomputer/pkg/types"
	"github.com/cuemby/taskcomputer/pkg/worker"

	"github.com/cuemby/taskcomputer/pkg/adminapi"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskcomputer",
	Short: "Task Computer - per-node execution manager for a distributed compute grid",
	Long: `Task Computer accepts subtask offers, waits for their resources, and
runs them either in a container or, where enabled, directly in-process,
reporting exactly one outcome per subtask back to the task server.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"taskcomputer version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	runCmd.Flags().String("config", "", "Path to a YAML config file")
	runCmd.Flags().String("node-name", "", "Node name reported to the task server")
	runCmd.Flags().String("data-dir", containermanager.DefaultDataDir, "Directory for stats database and container backend state")
	runCmd.Flags().String("work-dir", worker.DefaultWorkBasePath, "Base directory for per-subtask scratch directories")
	runCmd.Flags().Bool("external-containerd", false, "Use an already-running containerd instead of provisioning one")
	runCmd.Flags().Bool("accept-tasks", true, "Accept new subtask offers")
	runCmd.Flags().Bool("support-direct-computation", false, "Allow non-container subtasks to run in-process")
	runCmd.Flags().String("admin-bind-addr", "", "Override the admin API bind address from the config file")
	runCmd.Flags().Bool("demo-subtask", true, "Queue one local demo subtask on startup (standalone mode has no real task server to offer one)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	configCmd.AddCommand(configValidateCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("taskcomputer version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate Task Computer configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Load a config file and report whether it is valid",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		cfg, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}

		fmt.Printf("configuration OK\n")
		fmt.Printf("  task_request_interval:           %s\n", cfg.TaskRequestInterval)
		fmt.Printf("  waiting_for_task_timeout:        %s\n", cfg.WaitingForTaskTimeout)
		fmt.Printf("  waiting_for_task_session_timeout: %s\n", cfg.WaitingForTaskSessionTimeout)
		fmt.Printf("  accept_tasks:                    %t\n", cfg.AcceptTasks)
		fmt.Printf("  max_assigned_tasks:              %d\n", cfg.MaxAssignedTasks)
		fmt.Printf("  support_direct_computation:      %t\n", cfg.SupportDirectComputation)
		fmt.Printf("  containerd_socket:               %s\n", cfg.ContainerdSocket)
		fmt.Printf("  admin_bind_addr:                 %s\n", cfg.AdminBindAddr)
		return nil
	},
}

// tickInterval drives the Task Computer's own state machine — resource
// waiting TTLs and subtask deadlines — at a cadence much shorter than
// task_request_interval, per the tick-loop design note the core itself
// documents.
const tickInterval = 500 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Task Computer, its tick driver, and its admin API",
	RunE:  runTaskComputer,
}

func runTaskComputer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	nodeName, _ := cmd.Flags().GetString("node-name")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	workDir, _ := cmd.Flags().GetString("work-dir")
	useExternal, _ := cmd.Flags().GetBool("external-containerd")
	acceptTasks, _ := cmd.Flags().GetBool("accept-tasks")
	directComputation, _ := cmd.Flags().GetBool("support-direct-computation")
	adminBindOverride, _ := cmd.Flags().GetString("admin-bind-addr")
	demoSubtask, _ := cmd.Flags().GetBool("demo-subtask")

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.AcceptTasks = acceptTasks
	cfg.SupportDirectComputation = directComputation
	if adminBindOverride != "" {
		cfg.AdminBindAddr = adminBindOverride
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if nodeName == "" {
		nodeName = "standalone-node"
	}

	logger := log.WithComponent("main")

	metrics.SetVersion(Version)
	metrics.RegisterComponent("containerd", false, "initializing")
	metrics.RegisterComponent("admin_api", false, "initializing")
	metrics.RegisterComponent("taskserver", false, "initializing")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open stats store: %w", err)
	}
	defer store.Close()

	snapshot, err := store.LoadStats()
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	statsCounter := stats.Restore(snapshot)

	containers := containermanager.NewManager(dataDir, useExternal)
	if err := containers.Install(ctx); err != nil {
		logger.Warn().Err(err).Msg("container backend not available, container workers disabled")
	}
	metrics.RegisterComponent("containerd", containers.CheckEnvironment() == nil, "provisioned")

	var containerRT *runtime.ContainerdRuntime
	if containers.CheckEnvironment() == nil {
		rt, rtErr := runtime.NewContainerdRuntime(containers.SocketPath())
		if rtErr != nil {
			logger.Warn().Err(rtErr).Msg("failed to dial containerd, container workers disabled")
		} else {
			containerRT = rt
			defer containerRT.Close()
		}
	}

	workDirs := worker.NewWorkDirManager(workDir)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	var demoQueue []types.SubtaskDescriptor
	if demoSubtask {
		demoQueue = append(demoQueue, newStandaloneSubtask("local demo subtask"))
	}
	taskServer := newStandaloneTaskServer(demoQueue)
	resourceManager := newStandaloneResourceManager(dataDir)
	taskKeeper := newStandaloneTaskKeeper(cfg.WaitingForTaskTimeout)

	computer := taskcomputer.NewComputer(taskcomputer.Deps{
		NodeName:        nodeName,
		TaskServer:      taskServer,
		ResourceManager: resourceManager,
		TaskKeeper:      taskKeeper,
		Benchmarks:      standaloneBenchmarkManager{},
		Containers:      containers,
		ContainerRT:     containerRT,
		Payloads:        standalonePayloadLoader{},
		WorkDirs:        workDirs,
		Stats:           statsCounter,
		Events:          broker,
	}, cfg)
	taskServer.SetSink(computer)
	metrics.RegisterComponent("taskserver", true, "standalone task server ready")

	if err := computer.Bootstrap(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap computer: %w", err)
	}

	driver := tickloop.NewDriver(computer, tickInterval)
	driver.Start(ctx)

	collector := metrics.NewCollector(computer)
	collector.Start()

	adminServer := adminapi.New(cfg.AdminBindAddr, computer, statsCounter, log.Logger)
	adminErrCh := make(chan error, 1)
	go func() {
		if err := adminServer.Serve(ctx); err != nil && err != http.ErrServerClosed {
			adminErrCh <- err
		}
	}()
	metrics.RegisterComponent("admin_api", true, "ready")

	logger.Info().Str("node_name", nodeName).Str("admin_addr", cfg.AdminBindAddr).Msg("task computer running")
	fmt.Printf("Task Computer running as %q\n", nodeName)
	fmt.Printf("Admin API listening on http://%s (/api/progress, /api/stats, /api/quit, /api/reconfigure, /health, /metrics)\n", cfg.AdminBindAddr)
	fmt.Println("Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-adminErrCh:
		fmt.Fprintf(os.Stderr, "\nadmin API error: %v\n", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	computer.Quit(shutdownCtx)
	driver.Stop()
	collector.Stop()
	if err := containers.Stop(); err != nil {
		logger.Error().Err(err).Msg("failed to stop container backend")
	}
	if err := store.SaveStats(statsCounter.Snapshot()); err != nil {
		logger.Error().Err(err).Msg("failed to persist stats on shutdown")
	}

	fmt.Println("Shutdown complete")
	return nil
}
