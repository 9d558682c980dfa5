package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductor/internal/logging"
	"github.com/fyrsmithlabs/conductor/internal/state"
	"github.com/fyrsmithlabs/conductor/internal/telemetry"
)

// Orchestrator runs one workflow at a time against a store.
type Orchestrator struct {
	store    *state.Store
	team     Team
	cfg      Config
	sessions SessionRegistry
	logger   *logging.Logger
	tracer   trace.Tracer
	metrics  *instruments
	progress ProgressCallback
	now      func() time.Time

	phase   atomic.Value // state.Phase
	aborted atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc

	goalID  string
	started time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSessions snapshots and restores executor sessions through r.
func WithSessions(r SessionRegistry) Option {
	return func(o *Orchestrator) {
		o.sessions = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTelemetry records phase and task spans and run counters.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *Orchestrator) {
		o.tracer = t.Tracer(instrumentationName)
		o.metrics = newInstruments(t.Meter(instrumentationName))
	}
}

// WithClock overrides the clock used for the time budget.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator. The store must have a gateway for snapshots
// and resume to work; without one, snapshots are skipped.
func New(store *state.Store, team Team, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		team:   team,
		cfg:    cfg,
		logger: logging.Nop(),
		now:    time.Now,
	}
	WithTelemetry(nil)(o)
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("orchestrator")
	o.phase.Store(state.PhaseIdle)
	return o
}

// OnProgress sets the progress callback.
func (o *Orchestrator) OnProgress(cb ProgressCallback) {
	o.progress = cb
}

// CurrentPhase returns the phase of the running or last run. Safe to call
// from any goroutine.
func (o *Orchestrator) CurrentPhase() state.Phase {
	return o.phase.Load().(state.Phase)
}

// Abort stops the running workflow. The run ends as Aborted at its next
// step. Safe to call from any goroutine.
func (o *Orchestrator) Abort() {
	o.aborted.Store(true)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

func (o *Orchestrator) begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	if o.aborted.Load() {
		cancel()
	}
	return ctx, func() {
		o.mu.Lock()
		o.cancel = nil
		o.mu.Unlock()
		cancel()
	}
}

// Execute plans, reviews, executes and verifies goal.
func (o *Orchestrator) Execute(ctx context.Context, goal string) (*Result, error) {
	ctx, release := o.begin(ctx)
	defer release()

	if err := o.register(); err != nil {
		return nil, err
	}
	o.store.StartWorkflow(WorkflowName, goal, o.cfg.workflowConfig())
	o.started = o.now()
	o.goalID = ""
	o.logger.Info(ctx, "workflow started", zap.String("goal", goal))

	res, err := o.run(ctx, goal, true)
	return o.finish(ctx, res, err)
}

func (o *Orchestrator) run(ctx context.Context, goal string, review bool) (*Result, error) {
	if o.goalID == "" {
		if err := o.planning(ctx, goal); err != nil {
			return nil, err
		}
	}
	if review && o.cfg.RequirePrePlanReview {
		if err := o.planReview(ctx); err != nil {
			return nil, err
		}
	}
	if err := o.execution(ctx); err != nil {
		return nil, err
	}
	return o.verification(ctx)
}

// ResumeExecution continues the run saved in the snapshot. It returns
// state.ErrNoResumableState when there is nothing to resume.
func (o *Orchestrator) ResumeExecution(ctx context.Context) (*Result, error) {
	ctx, release := o.begin(ctx)
	defer release()

	snap, err := o.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.Resumable() {
		return nil, state.ErrNoResumableState
	}
	if o.sessions != nil {
		o.sessions.RestoreSessions(snap.ExecutorSessions)
	}
	if err := o.register(); err != nil {
		return nil, err
	}

	planner := o.team.Planner.Name()
	o.goalID = o.resolveGoal(planner)
	counts, err := o.store.ResetFailedTasks(planner)
	if err != nil {
		return nil, err
	}
	if snap.Workflow == nil {
		// Tasks survived without a workflow record; open one for their goal.
		o.store.StartWorkflow(WorkflowName, o.currentGoal().Description, o.cfg.workflowConfig())
	} else if err := o.store.ReopenWorkflow(); err != nil {
		return nil, err
	}
	o.started = o.now()

	w, _ := o.store.Workflow()
	tasks := o.goalTasks()
	review := true
	for _, t := range tasks {
		if t.Status == state.TaskCompleted {
			review = false
			break
		}
	}
	o.logger.Info(ctx, "workflow resumed",
		zap.String("goal", w.Goal),
		zap.String("goal_id", o.goalID),
		zap.String("last_phase", string(snap.CurrentPhase)),
		zap.Int("tasks", len(tasks)),
		zap.Int("reset", counts.Total()),
	)
	if o.goalID != "" && len(tasks) == 0 {
		// A goal without tasks is planned again from scratch.
		o.goalID = ""
	}

	res, err := o.run(ctx, w.Goal, review)
	return o.finish(ctx, res, err)
}

// resolveGoal rebuilds the current goal id: the active goal, else the first
// goal, else the parent goal of the first task. An empty result means the
// goal is planned afresh.
func (o *Orchestrator) resolveGoal(planner string) string {
	if g, ok := o.store.ActiveGoal(planner); ok {
		return g.ID
	}
	if goals, err := o.store.Goals(planner); err == nil && len(goals) > 0 {
		return goals[0].ID
	}
	if tasks, err := o.store.Tasks(planner); err == nil && len(tasks) > 0 {
		return tasks[0].ParentGoalID
	}
	return ""
}

func (o *Orchestrator) register() error {
	if o.team.Register == nil {
		return nil
	}
	return o.team.Register()
}

// finish closes the workflow for every outcome of a run.
func (o *Orchestrator) finish(ctx context.Context, res *Result, err error) (*Result, error) {
	if err == nil {
		return res, nil
	}
	// Closing and saving must happen even though ctx may be cancelled.
	ctx = context.WithoutCancel(ctx)

	reached := o.CurrentPhase()
	if o.aborted.Load() || errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) {
		o.setPhase(ctx, state.PhaseAborted)
		res = o.closeWorkflow(ctx, state.WorkflowAborted, state.WorkflowResult{Error: ErrAborted.Error()})
		o.logger.Warn(ctx, "workflow aborted", zap.String("phase_reached", string(reached)))
		o.snapshot(ctx)
		return res, ErrAborted
	}

	o.setPhase(ctx, state.PhaseFailed)
	res = o.closeWorkflow(ctx, state.WorkflowFailed, state.WorkflowResult{Error: err.Error()})
	o.logger.Error(ctx, "workflow failed", zap.String("phase_reached", string(reached)), zap.Error(err))
	o.snapshot(ctx)
	return res, err
}

// closeWorkflow completes the workflow record with task counts filled in.
func (o *Orchestrator) closeWorkflow(ctx context.Context, status state.WorkflowStatus, wr state.WorkflowResult) *Result {
	var counts state.TaskCounts
	for _, t := range o.goalTasks() {
		counts.Add(t.Status)
	}
	wr.TasksCompleted = counts.Completed
	wr.TasksFailed = counts.Failed
	wr.TasksPending = counts.Pending + counts.InProgress + counts.Blocked
	if err := o.store.CompleteWorkflow(status, &wr); err != nil {
		o.logger.Warn(ctx, "completing workflow", zap.Error(err))
	}

	res := &Result{WorkflowResult: wr, Phase: o.CurrentPhase(), Duration: o.now().Sub(o.started)}
	for _, inv := range o.store.Invocations() {
		res.CostUSD += inv.CostUSD
	}
	return res
}

// enter moves to a non-terminal phase and opens its span.
func (o *Orchestrator) enter(ctx context.Context, p state.Phase) (context.Context, trace.Span) {
	o.setPhase(ctx, p)
	ctx = logging.WithPhase(ctx, string(p))
	return o.tracer.Start(ctx, "phase."+string(p), trace.WithAttributes(attribute.String("phase", string(p))))
}

func (o *Orchestrator) setPhase(ctx context.Context, p state.Phase) {
	from := o.CurrentPhase()
	o.phase.Store(p)
	if err := o.store.SetPhase(p); err != nil {
		o.logger.Warn(ctx, "recording phase", zap.Error(err))
	}
	o.metrics.phaseChanged(ctx, p)
	o.logger.Info(ctx, "phase changed", zap.String("from", string(from)), zap.String("to", string(p)))
	if o.progress != nil {
		o.progress(Progress{Phase: p, Message: fmt.Sprintf("%s -> %s", orIdle(from), p), Elapsed: o.now().Sub(o.started)})
	}
}

func orIdle(p state.Phase) string {
	if p == state.PhaseIdle {
		return "idle"
	}
	return string(p)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// snapshot saves the store. Failures are logged, never returned.
func (o *Orchestrator) snapshot(ctx context.Context) {
	opts := []state.SnapshotOption{state.WithPhase(o.CurrentPhase())}
	if o.sessions != nil {
		opts = append(opts, state.WithExecutorSessions(o.sessions.Sessions()))
	}
	err := o.store.Snapshot(ctx, opts...)
	switch {
	case err == nil:
	case errors.Is(err, state.ErrNoPersistence):
		o.logger.Trace(ctx, "snapshot skipped, no gateway")
	default:
		o.logger.Warn(ctx, "snapshot failed", zap.Error(err))
	}
}

// checkAbort returns the error that ends the run early, if any.
func (o *Orchestrator) checkAbort(ctx context.Context) error {
	if o.aborted.Load() {
		return ErrAborted
	}
	return ctx.Err()
}

func (o *Orchestrator) timeExceeded() bool {
	return o.cfg.TimeLimit > 0 && o.now().Sub(o.started) >= o.cfg.TimeLimit
}

func (o *Orchestrator) goalTasks() []*state.Task {
	if o.team.Planner == nil {
		return nil
	}
	tasks, err := o.store.TasksByGoal(o.team.Planner.Name(), o.goalID)
	if err != nil {
		return nil
	}
	return tasks
}

// currentGoal returns the goal record, or a stand-in when the goal id was
// inferred from tasks during resume.
func (o *Orchestrator) currentGoal() *state.Goal {
	if g, err := o.store.Goal(o.team.Planner.Name(), o.goalID); err == nil {
		return g
	}
	w, _ := o.store.Workflow()
	return &state.Goal{ID: o.goalID, Description: w.Goal, Status: state.GoalActive}
}
