// Conductor drives a planner, coder, tester and supervisor toward a goal.
//
// The agents share one state store. The orchestrator moves the run through
// planning, plan review, execution and verification, snapshotting to the
// state file so an interrupted run can be resumed.
//
// Usage:
//
//	# Start a workflow with the terminal dashboard
//	conductor "add a --json flag to the export command"
//
//	# Plain progress lines instead of the dashboard
//	conductor --no-ui "fix the flaky cache test"
//
//	# Continue an interrupted run
//	conductor --resume
//
//	# Show what the state file holds
//	conductor --status
//
// Exit codes: 0 when the goal was verified, 1 on failure or rejection, 130
// when the run was aborted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/conductor/internal/agents"
	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/executor"
	"github.com/fyrsmithlabs/conductor/internal/logging"
	"github.com/fyrsmithlabs/conductor/internal/monitor"
	"github.com/fyrsmithlabs/conductor/internal/orchestrator"
	"github.com/fyrsmithlabs/conductor/internal/persist"
	"github.com/fyrsmithlabs/conductor/internal/state"
	"github.com/fyrsmithlabs/conductor/internal/telemetry"
)

// Version information (set via ldflags during build)
var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitAborted = 130
)

const shutdownTimeout = 5 * time.Second

type options struct {
	resume      bool
	status      bool
	noUI        bool
	docker      string
	configPath  string
	statePath   string
	metricsAddr string
	logFile     string
}

func main() {
	// .env is optional.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the root command and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := exitOK
	cmd := newRootCmd(&code)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if code == exitOK {
			code = exitFailure
		}
	}
	return code
}

func newRootCmd(code *int) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "conductor [goal]",
		Short: "Run a team of coding agents toward a goal",
		Long: `conductor plans a goal into tasks, has them implemented and tested, and
asks a supervisor to verify the result. Progress is saved to the state file
after every step; --resume continues an interrupted run.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			var goal string
			if len(args) == 1 {
				goal = args[0]
			}
			if goal == "" && !opts.resume && !opts.status {
				return errors.New("a goal is required unless --resume or --status is given")
			}
			c, err := run(cmd.Context(), opts, goal, cmd.OutOrStdout())
			*code = c
			return err
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.resume, "resume", false, "continue the workflow saved in the state file")
	f.BoolVar(&opts.status, "status", false, "print the saved workflow and exit")
	f.BoolVar(&opts.noUI, "no-ui", false, "print progress lines instead of the dashboard")
	f.StringVar(&opts.docker, "docker", "", "run the executor inside this container")
	f.StringVar(&opts.configPath, "config", "configuration.json", "configuration file")
	f.StringVar(&opts.statePath, "state", "", "state file (default from configuration)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	f.StringVar(&opts.logFile, "log-file", "", "log file while the dashboard is shown (default next to the state file)")
	return cmd
}

// app is everything one run needs.
type app struct {
	logger *logging.Logger
	tel    *telemetry.Telemetry
	store  *state.Store
	team   *agents.Team
	orch   *orchestrator.Orchestrator
}

func run(ctx context.Context, opts options, goal string, out io.Writer) (int, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return exitFailure, err
	}
	if opts.statePath != "" {
		cfg.State.Path = opts.statePath
	}
	if opts.docker != "" {
		cfg.Executor.DockerContainer = opts.docker
	}

	if opts.status {
		return printStatus(ctx, cfg, out)
	}

	ui := !opts.noUI
	logger, err := initLogger(cfg, ui, opts.logFile)
	if err != nil {
		return exitFailure, fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()
	for _, w := range cfg.Warnings {
		logger.Warn(ctx, "configuration", zap.String("warning", w))
	}

	a, err := wire(ctx, cfg, logger)
	if err != nil {
		return exitFailure, err
	}
	defer a.close()

	if opts.noUI {
		a.orch.OnProgress(func(p orchestrator.Progress) {
			fmt.Fprintf(out, "[%s] %s\n", monitor.FormatDuration(p.Elapsed), p.Message)
		})
	}

	var (
		feed    *monitor.Feed
		metrics *monitor.Metrics
	)
	if ui {
		feed = monitor.NewFeed(monitor.DefaultFeedBuffer)
		defer a.store.SubscribeAll(feed.Publish)()
	}
	if opts.metricsAddr != "" {
		metrics = monitor.NewMetrics()
		defer a.store.SubscribeAll(metrics.Observe)()
	}

	var (
		res    *orchestrator.Result
		runErr error
	)
	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)
		if feed != nil {
			defer feed.Close()
		}
		if opts.resume {
			res, runErr = a.orch.ResumeExecution(gctx)
		} else {
			if a.store.CanResume(gctx) {
				logger.Warn(gctx, "replacing resumable workflow", zap.String("state", cfg.State.Path))
			}
			res, runErr = a.orch.Execute(gctx, goal)
		}
		return nil
	})

	if feed != nil {
		g.Go(func() error {
			prog := tea.NewProgram(monitor.NewModel(feed.Events(), a.orch.Abort), tea.WithContext(gctx))
			if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				a.orch.Abort()
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		})
	}

	if metrics != nil {
		srv := &http.Server{Addr: opts.metricsAddr, Handler: metricsMux(metrics), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info(gctx, "serving metrics", zap.String("addr", opts.metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-done:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "run stopped", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	printResult(out, res, runErr)
	return exitCode(res, runErr), nil
}

// wire builds the store, executor, agents and orchestrator.
func wire(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	telCfg := telemetry.NewDefaultConfig()
	telCfg.ServiceVersion = version
	telCfg.ApplyEnv()
	tel, err := telemetry.New(ctx, telCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	storeOpts := []state.Option{
		state.WithGateway(persist.New(cfg.State.Path, logger)),
		state.WithLogger(logger),
	}
	if cfg.State.MaxInvocations > 0 {
		storeOpts = append(storeOpts, state.WithMaxInvocations(cfg.State.MaxInvocations))
	}
	store := state.New(storeOpts...)

	routes := make(map[string]executor.ModelRoute, len(cfg.Agents))
	for name, ac := range cfg.Agents {
		routes[name] = executor.ModelRoute{Model: ac.Model, FallbackModel: ac.FallbackModel}
	}
	sessions := executor.NewSessions()
	exec := executor.NewRetrying(executor.NewSubprocess(cfg.Executor, logger), store,
		executor.WithPolicy(executor.RetryPolicy{
			MaxRetries: cfg.Executor.MaxRetries,
			BaseDelay:  time.Duration(cfg.Executor.BaseDelay),
			MaxDelay:   time.Duration(cfg.Executor.MaxDelay),
		}),
		executor.WithRoutes(routes),
		executor.WithSessions(sessions),
		executor.WithRetryLogger(logger),
	)

	team := agents.NewTeam(agents.Deps{Store: store, Executor: exec, Config: cfg, Logger: logger})
	orch := orchestrator.New(store, orchestrator.Team{
		Planner:    team.Planner,
		Coder:      team.Coder,
		Tester:     team.Tester,
		Supervisor: team.Supervisor,
		Register:   team.Register,
	}, orchestrator.ConfigFrom(cfg),
		orchestrator.WithSessions(sessions),
		orchestrator.WithLogger(logger),
		orchestrator.WithTelemetry(tel),
	)

	return &app{logger: logger, tel: tel, store: store, team: team, orch: orch}, nil
}

func (a *app) close() {
	a.team.Close()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
	}
}

// initLogger logs to stderr, or to a file while the dashboard owns the
// terminal.
func initLogger(cfg *config.Config, ui bool, logFile string) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	lc.Fields["version"] = version
	if ui {
		if logFile == "" {
			logFile = filepath.Join(filepath.Dir(cfg.State.Path), "conductor.log")
		}
		lc.Output.Stderr = false
		lc.Output.File = logFile
	}
	return logging.NewLogger(lc, nil)
}

func metricsMux(m *monitor.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

func printStatus(ctx context.Context, cfg *config.Config, out io.Writer) (int, error) {
	store := state.New(state.WithGateway(persist.New(cfg.State.Path, nil)))
	info, ok := store.ResumeInfo(ctx)
	if !ok {
		fmt.Fprintf(out, "No saved workflow in %s\n", cfg.State.Path)
		return exitOK, nil
	}
	fmt.Fprintf(out, "State:       %s (saved %s)\n", cfg.State.Path, info.SavedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Goal:        %s\n", info.Goal)
	fmt.Fprintf(out, "Status:      %s\n", orDash(string(info.Status)))
	fmt.Fprintf(out, "Phase:       %s\n", orDash(string(info.Phase)))
	fmt.Fprintf(out, "Tasks:       %s\n", monitor.FormatTaskCounts(info.Tasks))
	fmt.Fprintf(out, "Invocations: %d (%s)\n", info.Invocations, monitor.FormatCost(info.CostUSD))
	fmt.Fprintf(out, "Resumable:   %t\n", info.Resumable)
	return exitOK, nil
}

func printResult(out io.Writer, res *orchestrator.Result, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrAborted):
		fmt.Fprintln(out, "Aborted. Run with --resume to continue.")
	case err != nil:
		fmt.Fprintf(out, "Failed: %v\n", err)
	case res != nil && res.Success:
		fmt.Fprintf(out, "Goal achieved (score %d): %s\n", res.Score, res.Summary)
	case res != nil:
		fmt.Fprintf(out, "Goal not achieved (score %d): %s\n", res.Score, res.Summary)
	}
	if res != nil {
		fmt.Fprintf(out, "Tasks: %d completed, %d failed, %d pending. Cost %s in %s.\n",
			res.TasksCompleted, res.TasksFailed, res.TasksPending,
			monitor.FormatCost(res.CostUSD), monitor.FormatDuration(res.Duration))
	}
}

func exitCode(res *orchestrator.Result, err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrAborted), errors.Is(err, context.Canceled):
		return exitAborted
	case errors.Is(err, state.ErrNoResumableState):
		return exitFailure
	case err != nil, res == nil, !res.Success:
		return exitFailure
	}
	return exitOK
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
