// Package engine turns file changes into debounced, prioritized command runs.
package engine

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/msageha/autopilot/internal/clock"
	"github.com/msageha/autopilot/internal/events"
	"github.com/msageha/autopilot/internal/executor"
	"github.com/msageha/autopilot/internal/git"
	"github.com/msageha/autopilot/internal/model"
	"github.com/msageha/autopilot/internal/pattern"
	"github.com/msageha/autopilot/internal/queue"
	"github.com/msageha/autopilot/internal/watcher"
	"github.com/msageha/autopilot/internal/workflow"
)

const defaultDrainPoll = 100 * time.Millisecond

// Watcher delivers stabilized file changes until closed.
type Watcher interface {
	Watch(ctx context.Context, onEvent func(watcher.Event), onError func(error)) error
	Close() error
}

// BranchResolver reports the current version-control branch.
type BranchResolver interface {
	CurrentBranch() string
}

// StatusSink receives engine snapshots.
type StatusSink interface {
	Write(model.StatusSnapshot) error
}

// Deps are the engine's collaborators. Nil fields get inert defaults, except
// Runner which defaults to a ProcessRunner in Dir.
type Deps struct {
	Watcher   Watcher
	Runner    executor.Runner
	Branches  BranchResolver
	Status    StatusSink
	Bus       *events.Bus
	Clock     clock.Clock
	Logger    zerolog.Logger
	Detectors []workflow.Detector // nil selects workflow.DefaultDetectors
	Dir       string              // working directory for commands
	// OnFault is called after a panic is recovered outside a command.
	OnFault func(error)
}

// Engine owns the queue, the active set and the execution history. All
// mutable state is guarded by mu; accessors return copies.
type Engine struct {
	cfg        model.Config
	classifier *pattern.Classifier
	workflows  *workflow.Set
	watcher    Watcher
	runner     executor.Runner
	branches   BranchResolver
	status     StatusSink
	bus        *events.Bus
	clock      clock.Clock
	logger     zerolog.Logger
	dir        string
	onFault    func(error)
	drainPoll  time.Duration

	mu        sync.Mutex
	state     model.EngineState
	queue     *queue.Queue
	active    map[string]model.ActiveCommand
	perSource map[string]int
	history   []model.ExecutionRecord
	executed  int
	errors    int
	startedAt time.Time
	cancel    context.CancelFunc
	loops     sync.WaitGroup
}

// New builds a stopped engine. cfg must already be validated.
func New(cfg model.Config, deps Deps) (*Engine, error) {
	classifier, err := pattern.NewClassifier(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}
	detectors := deps.Detectors
	if detectors == nil {
		detectors = workflow.DefaultDetectors()
	}

	e := &Engine{
		cfg:        cfg,
		classifier: classifier,
		workflows:  workflow.NewSet(detectors, cfg.Workflows),
		watcher:    deps.Watcher,
		runner:     deps.Runner,
		branches:   deps.Branches,
		status:     deps.Status,
		bus:        deps.Bus,
		clock:      deps.Clock,
		logger:     deps.Logger.With().Str("component", "engine").Logger(),
		dir:        deps.Dir,
		onFault:    deps.OnFault,
		drainPoll:  defaultDrainPoll,
		state:      model.StateStopped,
		queue:      queue.New(),
		active:     make(map[string]model.ActiveCommand),
		perSource:  make(map[string]int),
	}
	if e.watcher == nil {
		e.watcher = nopWatcher{}
	}
	if e.runner == nil {
		e.runner = executor.NewProcessRunner(deps.Dir)
	}
	if e.branches == nil {
		e.branches = unknownBranch{}
	}
	if e.status == nil {
		e.status = nopStatus{}
	}
	if e.bus == nil {
		e.bus = events.NewBus(0)
	}
	if e.clock == nil {
		e.clock = clock.RealClock{}
	}
	return e, nil
}

// Start begins watching and scheduling. It is a no-op unless the engine is
// stopped, and at automation level off it only logs.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != model.StateStopped {
		e.mu.Unlock()
		e.logger.Debug().Str("state", string(e.state)).Msg("start ignored")
		return nil
	}
	if e.cfg.AutomationLevel == model.LevelOff {
		e.mu.Unlock()
		e.logger.Info().Msg("automation level is off, engine not started")
		return nil
	}
	e.state = model.StateStarting
	e.mu.Unlock()

	// Loops end on Stop, not when the caller's context ends.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := e.watcher.Watch(loopCtx, e.HandleEvent, e.reportWatchError); err != nil {
		cancel()
		e.setState(model.StateStopped)
		return fmt.Errorf("start watcher: %w", err)
	}

	e.mu.Lock()
	e.cancel = cancel
	e.startedAt = e.clock.Now()
	// Add before publishing running so a concurrent Stop always waits on both loops.
	e.loops.Add(2)
	e.state = model.StateRunning
	e.mu.Unlock()

	go e.tickLoop(loopCtx)
	go e.statusLoop(loopCtx)

	e.persist()
	e.logger.Info().
		Str("automation_level", string(e.cfg.AutomationLevel)).
		Int("rules", len(e.cfg.Rules)).
		Int("workflows", e.workflows.Len()).
		Int("max_concurrent", e.cfg.MaxConcurrentCommands).
		Msg("engine started")
	e.bus.Publish(events.EventStarted, map[string]interface{}{
		events.KeyLevel: string(e.cfg.AutomationLevel),
	})
	return nil
}

// Stop stops accepting changes and waits for in-flight commands to finish on
// their own. Commands are never killed; cancelling ctx abandons the wait and
// returns ctx.Err().
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state != model.StateRunning {
		e.mu.Unlock()
		return nil
	}
	e.state = model.StateStopping
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	e.logger.Info().Int("active", e.ActiveCount()).Msg("engine stopping")
	cancel()
	if err := e.watcher.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("close watcher")
	}
	e.loops.Wait()

	err := e.drain(ctx)
	if err != nil {
		e.logger.Warn().Int("active", e.ActiveCount()).Msg("stop abandoned with commands still running")
	}

	e.mu.Lock()
	dropped := e.queue.Len()
	e.queue.Clear()
	e.state = model.StateStopped
	executed, failed := e.executed, e.errors
	e.mu.Unlock()

	e.persist()
	e.logger.Info().
		Int("executed", executed).
		Int("errors", failed).
		Int("dropped_queued", dropped).
		Msg("engine stopped")
	e.bus.Publish(events.EventStopped, map[string]interface{}{
		events.KeyLevel: string(e.cfg.AutomationLevel),
	})
	return err
}

func (e *Engine) drain(ctx context.Context) error {
	ticker := time.NewTicker(e.drainPoll)
	defer ticker.Stop()
	for e.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// HandleEvent classifies a stabilized change and enqueues the commands it
// warrants. Events are dropped unless the engine is running.
func (e *Engine) HandleEvent(ev watcher.Event) {
	defer e.guard("event")
	if e.State() != model.StateRunning {
		return
	}

	branch := git.UnknownBranch
	if e.workflows.Len() > 0 {
		branch = e.branches.CurrentBranch()
	}
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != model.StateRunning {
		return
	}
	for _, qc := range e.planLocked(ev.Path, ev.Change, branch) {
		created := e.queue.Enqueue(qc, now)
		e.logger.Debug().
			Str("command", qc.Command).
			Str("source", qc.Source).
			Str("file", qc.FilePath).
			Bool("coalesced", !created).
			Msg("queued")
	}
}

// Plan returns the commands a change would enqueue right now, without
// enqueuing them.
func (e *Engine) Plan(path string, change model.ChangeType, branch string) []model.QueuedCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.planLocked(path, change, branch)
}

func (e *Engine) planLocked(path string, change model.ChangeType, branch string) []model.QueuedCommand {
	path = pattern.Normalize(path)
	active := len(e.active)

	var out []model.QueuedCommand
	if rule, ok := e.classifier.AnalyzeContext(path, change); ok {
		for _, c := range SelectCommands(rule, e.cfg.AutomationLevel, active, e.cfg.MaxCPUUsage) {
			out = append(out, model.QueuedCommand{
				Key:      queue.Key(rule.ID, c),
				Command:  c,
				Source:   rule.ID,
				FilePath: path,
				Priority: rule.Priority,
				Parallel: rule.Parallel,
				Debounce: rule.Debounce,
			})
		}
	}
	// A workflow never repeats a command the rule already queued.
	planned := make(map[string]bool, len(out))
	for _, qc := range out {
		planned[qc.Command] = true
	}
	for _, qc := range e.checkContextualWorkflows(path, change, branch, active) {
		if !planned[qc.Command] {
			out = append(out, qc)
		}
	}
	return out
}

// checkContextualWorkflows maps the first matching detector to a priority-0
// pseudo-rule. Workflow commands run in order, one at a time.
func (e *Engine) checkContextualWorkflows(path string, change model.ChangeType, branch string, active int) []model.QueuedCommand {
	d, ok := e.workflows.Detect(path, change, branch)
	if !ok {
		return nil
	}
	pseudo := model.PatternRule{
		ID:       d.ID,
		Commands: d.Commands,
		Priority: 0,
		Debounce: e.cfg.Scheduler.WorkflowDebounce,
	}
	var out []model.QueuedCommand
	for _, c := range SelectCommands(pseudo, e.cfg.AutomationLevel, active, e.cfg.MaxCPUUsage) {
		out = append(out, model.QueuedCommand{
			Key:      queue.Key(d.ID, c),
			Command:  c,
			Source:   d.ID,
			FilePath: path,
			Priority: 0,
			Debounce: pseudo.Debounce,
		})
	}
	return out
}

func (e *Engine) reportWatchError(err error) {
	e.logger.Error().Err(err).Msg("watcher error")
	e.bus.Publish(events.EventError, events.Fault("watcher", err))
}

// guard turns a panic outside a command into an error event and a fault
// report to the host.
func (e *Engine) guard(source string) {
	p := recover()
	if p == nil {
		return
	}
	err := fmt.Errorf("panic in %s: %v", source, p)
	e.logger.Error().Err(err).Bytes("stack", debug.Stack()).Msg("unhandled fault")
	e.bus.Publish(events.EventError, events.Fault(source, err))
	if e.onFault != nil {
		e.onFault(err)
	}
}

func (e *Engine) statusLoop(ctx context.Context) {
	defer e.loops.Done()
	ticker := time.NewTicker(e.cfg.Scheduler.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.persist()
		}
	}
}

func (e *Engine) persist() {
	if err := e.status.Write(e.Snapshot()); err != nil {
		e.logger.Debug().Err(err).Msg("status write failed")
	}
}

func (e *Engine) setState(s model.EngineState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// State returns the lifecycle state.
func (e *Engine) State() model.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ActiveCount returns the number of in-flight commands.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Stats returns counters, the active set and the history.
func (e *Engine) Stats() model.EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statsLocked()
}

func (e *Engine) statsLocked() model.EngineStats {
	active := make([]model.ActiveCommand, 0, len(e.active))
	for _, a := range e.active {
		active = append(active, a)
	}
	sort.Slice(active, func(i, j int) bool {
		if !active[i].StartedAt.Equal(active[j].StartedAt) {
			return active[i].StartedAt.Before(active[j].StartedAt)
		}
		return active[i].ExecutionID < active[j].ExecutionID
	})
	return model.EngineStats{
		Executed:      e.executed,
		Errors:        e.errors,
		Active:        len(e.active),
		Queued:        e.queue.Len(),
		ActiveDetails: active,
		History:       append([]model.ExecutionRecord(nil), e.history...),
	}
}

// Snapshot returns the durable status of the engine.
func (e *Engine) Snapshot() model.StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := model.StatusSnapshot{
		Running:         e.state == model.StateRunning,
		State:           e.state,
		AutomationLevel: e.cfg.AutomationLevel,
		Pid:             os.Getpid(),
		Stats:           e.statsLocked(),
		UpdatedAt:       e.clock.Now(),
	}
	if !e.startedAt.IsZero() {
		started := e.startedAt
		snap.StartedAt = &started
	}
	return snap
}

// QueueSnapshot returns the pending commands in dispatch order.
func (e *Engine) QueueSnapshot() []model.QueuedCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Snapshot()
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() model.Config {
	return e.cfg
}

type nopWatcher struct{}

func (nopWatcher) Watch(context.Context, func(watcher.Event), func(error)) error { return nil }
func (nopWatcher) Close() error                                                  { return nil }

type unknownBranch struct{}

func (unknownBranch) CurrentBranch() string { return git.UnknownBranch }

type nopStatus struct{}

func (nopStatus) Write(model.StatusSnapshot) error { return nil }
