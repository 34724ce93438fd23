package runcore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/glubean/runcore/applier"
	"github.com/glubean/runcore/debug"
	"github.com/glubean/runcore/executor"
	"github.com/glubean/runcore/metrics"
	"github.com/glubean/runcore/registry"
	"github.com/glubean/runcore/store"
	"github.com/glubean/runcore/types"
	"github.com/glubean/runcore/watcher"
)

// RunReport is the outcome of one task dispatch.
type RunReport struct {
	Task     string
	RunID    string
	State    types.RunState
	Duration time.Duration
	Summary  types.ArtifactSummary
	Err      error
}

// Orchestrator owns the run lifecycle: dispatch, artifact correlation,
// verdict application and persistence. Runs are serialized per batch and a
// task can never be dispatched twice concurrently.
type Orchestrator struct {
	cfg        *Config
	registry   *registry.Registry
	executor   executor.ProcessExecutor
	applier    *applier.Applier
	store      *store.Store
	correlator watcher.Correlator
	sink       types.RunSink
	tracer     trace.Tracer
	log        log.Logger

	mu     sync.Mutex
	states map[string]types.RunState
}

// procOutcome carries a process result or a spawn-level failure.
type procOutcome struct {
	outcome *types.RunOutcome
	err     error
}

// NewOrchestrator assembles the run pipeline from config.
func NewOrchestrator(cfg *Config, reg *registry.Registry, sink types.RunSink) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("run sink is required")
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.New()
	}

	st, err := store.NewStore(logger, cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create run store: %w", err)
	}

	return &Orchestrator{
		cfg:        cfg,
		registry:   reg,
		executor:   executor.New(logger),
		applier:    applier.New(applier.Config{Log: logger}),
		store:      st,
		correlator: watcher.NewCorrelator(logger),
		sink:       sink,
		tracer:     otel.Tracer("runcore"),
		log:        logger,
	}, nil
}

// Store exposes the last-run record store for read access.
func (o *Orchestrator) Store() *store.Store { return o.store }

// State returns the current state of a task.
func (o *Orchestrator) State(task string) types.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.states[task]; ok {
		return s
	}
	return types.StateIdle
}

// setState applies a validated transition and notifies the sink.
func (o *Orchestrator) setState(task string, next types.RunState) {
	o.mu.Lock()
	cur, ok := o.states[task]
	if !ok {
		cur = types.StateIdle
	}
	if !cur.CanTransition(next) {
		o.mu.Unlock()
		o.log.Error("Illegal state transition dropped", "task", task, "from", cur, "to", next)
		return
	}
	if o.states == nil {
		o.states = make(map[string]types.RunState)
	}
	o.states[task] = next
	o.mu.Unlock()

	o.log.Debug("Task state changed", "task", task, "from", cur, "to", next)
	o.sink.OnStateChange(task, next)
}

// resetToIdle rolls back the internal running mark when a dispatch fails
// before the runner was actually started. Nothing is published to the sink:
// a run that never spawned never reached running as far as observers know.
func (o *Orchestrator) resetToIdle(task string) {
	o.mu.Lock()
	if o.states == nil {
		o.states = make(map[string]types.RunState)
	}
	o.states[task] = types.StateIdle
	o.mu.Unlock()
}

// RunTask dispatches one task and blocks until it reaches a terminal state.
// A non-nil error means the dispatch itself failed (already running, spawn
// failure, watcher setup); run verdicts including errored and timeout are
// reported through the returned RunReport instead.
func (o *Orchestrator) RunTask(ctx context.Context, req types.RunRequest, items []types.TestItem) (*RunReport, error) {
	o.mu.Lock()
	cur, ok := o.states[req.TaskName]
	if !ok {
		cur = types.StateIdle
	}
	if !cur.CanTransition(types.StateRunning) {
		o.mu.Unlock()
		return nil, &AlreadyRunningError{Task: req.TaskName}
	}
	if o.states == nil {
		o.states = make(map[string]types.RunState)
	}
	// Guard against concurrent re-dispatch right away, but don't publish
	// running yet: observers only see it once the spawn has succeeded.
	o.states[req.TaskName] = types.StateRunning
	o.mu.Unlock()

	runID := uuid.New().String()
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "run task",
		trace.WithAttributes(
			attribute.String("task", req.TaskName),
			attribute.String("run_id", runID),
			attribute.Bool("debug", req.Debug),
		))
	defer span.End()

	o.log.Info("Dispatching task", "task", req.TaskName, "run_id", runID,
		"command", req.Command, "debug", req.Debug)

	artifactPath := o.cfg.ArtifactPath
	if !filepath.IsAbs(artifactPath) {
		artifactPath = filepath.Join(req.WorkDir, artifactPath)
	}
	w, err := watcher.NewArtifactWatcher(o.log, artifactPath, o.correlator)
	if err != nil {
		o.resetToIdle(req.TaskName)
		metrics.RecordErrorDetails("artifact_watcher", err)
		return nil, NewRuntimeError(err)
	}
	defer func() { _ = w.Close() }()

	// Everything written to the artifact before this instant belongs to some
	// earlier invocation.
	sendTime := time.Now()

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	resultCh := make(chan *types.ResultArtifact, 1)
	go func() {
		if artifact, werr := w.WaitForResult(watchCtx, sendTime); werr == nil {
			resultCh <- artifact
		}
	}()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	outcomeCh := make(chan procOutcome, 1)
	var sess *debug.Session
	if req.Debug {
		sess, err = o.launchDebug(runCtx, req, outcomeCh)
		if err != nil {
			o.resetToIdle(req.TaskName)
			metrics.RecordErrorDetails("debug_launch", err)
			return nil, NewRuntimeError(err)
		}
	} else {
		proc, serr := o.executor.Start(runCtx, req.Command, req.Args, req.WorkDir, taskOutput{sink: o.sink, id: req.TaskName})
		if serr != nil {
			o.resetToIdle(req.TaskName)
			metrics.RecordErrorDetails("spawn", serr)
			return nil, NewRuntimeError(serr)
		}
		go func() {
			<-proc.Exited()
			out, werr := proc.Outcome()
			outcomeCh <- procOutcome{outcome: out, err: werr}
		}()
	}
	o.sink.OnStateChange(req.TaskName, types.StateRunning)

	// Debug runs pause at breakpoints for arbitrarily long; their lifetime is
	// bounded by the session safety race instead of the dispatch timer.
	var timeoutC <-chan time.Time
	if !req.Debug {
		timer := time.NewTimer(o.cfg.RunTimeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	for {
		select {
		case artifact := <-resultCh:
			report := o.completeWithArtifact(req, items, artifact, runID, start)
			o.awaitWindDown(outcomeCh)
			return report, nil

		case out := <-outcomeCh:
			if out.err != nil {
				// The process started but could not be waited on cleanly.
				metrics.RecordErrorDetails("wait", out.err)
				duration := o.finish(req.TaskName, runID, types.StateErrored, start)
				return &RunReport{
					Task: req.TaskName, RunID: runID,
					State: types.StateErrored, Duration: duration,
					Err: NewRuntimeError(out.err),
				}, nil
			}
			// The process closed. The artifact may still be mid-flush, so
			// give the watcher a short grace before declaring a bad exit.
			select {
			case artifact := <-resultCh:
				report := o.completeWithArtifact(req, items, artifact, runID, start)
				return report, nil
			case <-time.After(o.cfg.ResultGrace):
				nre := &NoResultError{Task: req.TaskName, ExitCode: out.outcome.ExitCode}
				o.log.Warn("Runner exited without producing results",
					"task", req.TaskName, "exitCode", out.outcome.ExitCode)
				metrics.RecordErrorDetails("no_result", nre)
				duration := o.finish(req.TaskName, runID, types.StateErrored, start)
				return &RunReport{
					Task: req.TaskName, RunID: runID,
					State: types.StateErrored, Duration: duration, Err: nre,
				}, nil
			}

		case <-timeoutC:
			o.log.Warn("Dispatch timed out, cancelling runner",
				"task", req.TaskName, "timeout", o.cfg.RunTimeout)
			cancelRun()
			if sess != nil {
				sess.Terminate()
			}
			duration := o.finish(req.TaskName, runID, types.StateTimeout, start)
			return &RunReport{
				Task: req.TaskName, RunID: runID,
				State: types.StateTimeout, Duration: duration,
				Err: &DispatchTimeoutError{Task: req.TaskName, Timeout: o.cfg.RunTimeout},
			}, nil
		}
	}
}

// launchDebug spawns the runner under the inspector and wires the three-way
// session end race. The caller still consumes the process outcome through
// outcomeCh like a plain run.
func (o *Orchestrator) launchDebug(ctx context.Context, req types.RunRequest, outcomeCh chan<- procOutcome) (*debug.Session, error) {
	port, err := debug.FindFreePort(o.cfg.DebugPortBase)
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, len(req.Args)+1)
	args = append(args, req.Args...)
	args = append(args, fmt.Sprintf("--inspect-brk=%d", port))

	sess, err := debug.Launch(o.log, req.Command, args, req.WorkDir, taskOutput{sink: o.sink, id: req.TaskName})
	if err != nil {
		return nil, err
	}
	o.log.Info("Debug session started", "task", req.TaskName, "pid", sess.Pid(), "port", port)

	go func() {
		url, perr := debug.PollInspectorReady(ctx, o.log, port, debug.DefaultInspectorTimeout)
		if perr != nil {
			o.log.Warn("Inspector did not become ready", "port", port, "err", perr)
			return
		}
		o.log.Info("Inspector target ready", "port", port, "url", url)
		o.sink.OnOutput(req.TaskName, fmt.Sprintf("Debugger listening on %s\r\n", url))
	}()

	go func() {
		reason, rerr := sess.AwaitEnd(ctx, req.Terminated, o.cfg.DebugSafetyTimeout)
		if rerr != nil {
			sess.Terminate()
			return
		}
		metrics.RecordDebugSessionEnd(string(reason))
		if reason != debug.EndProcessExit {
			o.log.Info("Debug session ended, terminating runner",
				"task", req.TaskName, "reason", reason)
			sess.Terminate()
		}
	}()

	go func() {
		<-sess.Exited()
		out, werr := sess.Outcome()
		outcomeCh <- procOutcome{outcome: out, err: werr}
	}()

	return sess, nil
}

// completeWithArtifact applies the artifact's verdicts, persists the last-run
// record and finishes the task state.
func (o *Orchestrator) completeWithArtifact(req types.RunRequest, items []types.TestItem, artifact *types.ResultArtifact, runID string, start time.Time) *RunReport {
	state := types.StatePassed
	if artifact.Summary.Failed > 0 {
		state = types.StateFailed
	}

	o.applier.Apply(items, artifact, o.sink)
	o.persist(req, artifact)
	duration := o.finish(req.TaskName, runID, state, start)

	return &RunReport{
		Task:     req.TaskName,
		RunID:    runID,
		State:    state,
		Duration: duration,
		Summary:  artifact.Summary,
	}
}

// persist records the completed run. Best effort: a store failure never
// fails the run that produced it.
func (o *Orchestrator) persist(req types.RunRequest, artifact *types.ResultArtifact) {
	rec := types.LastRunRecord{
		Timestamp:  time.Now(),
		Passed:     artifact.Summary.Passed,
		Failed:     artifact.Summary.Failed,
		Skipped:    artifact.Summary.Skipped,
		DurationMs: artifact.Summary.DurationMs,
		TaskName:   req.TaskName,
	}
	if err := o.store.Put(req.WorkDir, req.TaskName, rec); err != nil {
		o.log.Warn("Failed to persist last-run record", "task", req.TaskName, "err", err)
		metrics.RecordErrorDetails("store_put", err)
	}
}

func (o *Orchestrator) finish(task, runID string, state types.RunState, start time.Time) time.Duration {
	duration := time.Since(start)
	o.setState(task, state)
	metrics.RecordRun(task, runID, state, duration)
	o.log.Info("Run finished", "task", task, "run_id", runID, "state", state, "duration", duration)
	return duration
}

// awaitWindDown drains the process outcome when the artifact arrived first,
// so the deferred cancellation never signals a process that is about to exit
// on its own.
func (o *Orchestrator) awaitWindDown(outcomeCh <-chan procOutcome) {
	select {
	case <-outcomeCh:
	case <-time.After(o.cfg.ResultGrace):
	}
}

// RunAll dispatches every registered task one at a time, in name order, and
// renders a batch summary. Results of run N are fully applied before run N+1
// is dispatched, so a result can never be attributed to the wrong task.
func (o *Orchestrator) RunAll(ctx context.Context, itemsByTask map[string][]types.TestItem) ([]RunReport, error) {
	tasks := o.registry.Tasks()
	if len(tasks) == 0 {
		o.log.Warn("No runner tasks registered, nothing to run")
		return nil, nil
	}

	reports := make([]RunReport, 0, len(tasks))
	for _, task := range tasks {
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
		req := types.RunRequest{
			TaskName: task.Name,
			Command:  task.Command,
			Args:     task.Args,
			WorkDir:  o.cfg.WorkDir,
			Debug:    o.cfg.Debug,
		}
		report, err := o.RunTask(ctx, req, itemsByTask[task.Name])
		if err != nil {
			report = &RunReport{Task: task.Name, State: types.StateErrored, Err: err}
		}
		reports = append(reports, *report)
	}

	o.printSummary(reports)
	return reports, nil
}

// BatchVerdict folds a batch of reports into the process-level error
// contract: runtime problems dominate test failures.
func BatchVerdict(reports []RunReport) error {
	failures := 0
	for _, r := range reports {
		switch r.State {
		case types.StateErrored, types.StateTimeout:
			if r.Err != nil {
				return NewRuntimeError(r.Err)
			}
			return NewRuntimeError(fmt.Errorf("task %q ended in state %s", r.Task, r.State))
		case types.StateFailed:
			failures++
		}
	}
	if failures > 0 {
		return NewTestFailureError(fmt.Sprintf("%d task(s) had failing tests", failures))
	}
	return nil
}
