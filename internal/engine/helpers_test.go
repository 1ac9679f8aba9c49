package engine

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/msageha/autopilot/internal/clock"
	"github.com/msageha/autopilot/internal/config"
	"github.com/msageha/autopilot/internal/events"
	"github.com/msageha/autopilot/internal/executor"
	"github.com/msageha/autopilot/internal/model"
	"github.com/msageha/autopilot/internal/watcher"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeWatcher struct {
	mu         sync.Mutex
	watchCalls int
	closeCalls int
	err        error
}

func (w *fakeWatcher) Watch(_ context.Context, _ func(watcher.Event), _ func(error)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watchCalls++
	return w.err
}

func (w *fakeWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeCalls++
	return nil
}

func (w *fakeWatcher) counts() (watch, closed int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watchCalls, w.closeCalls
}

// fakeRunner records requests. When gate is set every Run waits for a token,
// so tests decide when each process finishes.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	ctxErrs []error
	gate    chan struct{}
	result  func(executor.Request) executor.Result
}

func newBlockingRunner() *fakeRunner {
	return &fakeRunner{gate: make(chan struct{}, 100)}
}

func (r *fakeRunner) Run(ctx context.Context, req executor.Request) executor.Result {
	r.mu.Lock()
	r.calls = append(r.calls, req.Command)
	r.mu.Unlock()

	if r.gate != nil {
		<-r.gate
	}

	r.mu.Lock()
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	r.mu.Unlock()

	if r.result != nil {
		return r.result(req)
	}
	return executor.Result{Success: true, Duration: 10 * time.Millisecond}
}

func (r *fakeRunner) release(n int) {
	for i := 0; i < n; i++ {
		r.gate <- struct{}{}
	}
}

func (r *fakeRunner) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type memStatus struct {
	mu    sync.Mutex
	snaps []model.StatusSnapshot
}

func (m *memStatus) Write(s model.StatusSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, s)
	return nil
}

func (m *memStatus) last() model.StatusSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snaps) == 0 {
		return model.StatusSnapshot{}
	}
	return m.snaps[len(m.snaps)-1]
}

// failingStatus counts writes and rejects every one.
type failingStatus struct{ writes atomic.Int64 }

func (f *failingStatus) Write(model.StatusSnapshot) error {
	f.writes.Add(1)
	return errors.New("disk full")
}

type staticBranch string

func (b staticBranch) CurrentBranch() string { return string(b) }

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testConfig returns a config whose loops never fire on their own; tests
// drive the scheduler with Tick and the fake clock.
func testConfig(rules ...model.PatternRule) model.Config {
	cfg := config.Default()
	cfg.AutomationLevel = model.LevelFull
	cfg.Scheduler.TickInterval = time.Hour
	cfg.Scheduler.StatusInterval = time.Hour
	cfg.Scheduler.CommandTimeout = time.Hour
	cfg.Workflows.Enabled = false
	cfg.Rules = rules
	return cfg
}

type harness struct {
	engine  *Engine
	clock   *clock.Fake
	watcher *fakeWatcher
	runner  *fakeRunner
	status  *memStatus
	bus     *events.Bus
	logs    *lockedBuffer
}

func newHarness(t *testing.T, cfg model.Config, runner *fakeRunner, opts ...func(*Deps)) *harness {
	t.Helper()
	if runner == nil {
		runner = &fakeRunner{}
	}
	h := &harness{
		clock:   clock.NewFake(t0),
		watcher: &fakeWatcher{},
		runner:  runner,
		status:  &memStatus{},
		bus:     events.NewBus(100),
		logs:    &lockedBuffer{},
	}
	deps := Deps{
		Watcher:  h.watcher,
		Runner:   runner,
		Branches: staticBranch("main"),
		Status:   h.status,
		Bus:      h.bus,
		Clock:    h.clock,
		Logger:   zerolog.New(h.logs),
	}
	for _, o := range opts {
		o(&deps)
	}
	e, err := New(cfg, deps)
	require.NoError(t, err)
	e.drainPoll = 5 * time.Millisecond
	h.engine = e

	t.Cleanup(func() {
		if runner.gate != nil {
			runner.release(50)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
		h.bus.Close()
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Start(context.Background()))
	require.Equal(t, model.StateRunning, h.engine.State())
}

func (h *harness) change(path string, change model.ChangeType) {
	h.engine.HandleEvent(watcher.Event{Path: path, Change: change})
}

func (h *harness) subscribe(t events.EventType) <-chan events.Event {
	ch := make(chan events.Event, 100)
	h.bus.Subscribe(t, func(e events.Event) { ch <- e })
	return ch
}

func (h *harness) executed() int {
	return h.engine.Stats().Executed
}
