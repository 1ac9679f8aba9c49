package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/msageha/autopilot/internal/events"
	"github.com/msageha/autopilot/internal/executor"
	"github.com/msageha/autopilot/internal/model"
)

// outputLogLimit bounds how much command output is copied into log lines.
const outputLogLimit = 4096

func (e *Engine) tickLoop(ctx context.Context) {
	defer e.loops.Done()
	ticker := time.NewTicker(e.cfg.Scheduler.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick dispatches ready commands in priority order until the concurrency cap
// is reached and returns how many were started. Entries from a non-parallel
// source that already has a command in flight stay queued.
func (e *Engine) Tick() int {
	defer e.guard("scheduler")
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != model.StateRunning {
		return 0
	}

	now := e.clock.Now()
	started := 0
	for _, qc := range e.queue.Ready(now) {
		if len(e.active) >= e.cfg.MaxConcurrentCommands {
			break
		}
		if !qc.Parallel && e.perSource[qc.Source] > 0 {
			continue
		}
		e.queue.Remove(qc.Key)
		e.dispatchLocked(qc, now)
		started++
	}
	return started
}

func (e *Engine) dispatchLocked(qc model.QueuedCommand, now time.Time) {
	ac := model.ActiveCommand{
		ExecutionID: uuid.NewString(),
		Command:     qc.Command,
		Source:      qc.Source,
		FilePath:    qc.FilePath,
		StartedAt:   now,
	}
	e.active[ac.ExecutionID] = ac
	e.perSource[ac.Source]++

	e.logger.Info().
		Str("command", ac.Command).
		Str("source", ac.Source).
		Str("file", ac.FilePath).
		Str("execution_id", ac.ExecutionID).
		Msg("running")

	// Processes outlive Stop: they are detached from every engine context
	// and bounded only by their own timeout.
	fut := executor.Go(context.Background(), e.runner, executor.Request{
		Command: ac.Command,
		Dir:     e.dir,
		Timeout: e.cfg.Scheduler.CommandTimeout,
	})
	go func() {
		defer e.guard("completion")
		e.complete(ac, fut.Result())
	}()
}

// complete records the outcome of an active command and announces it.
func (e *Engine) complete(ac model.ActiveCommand, res executor.Result) {
	now := e.clock.Now()
	elapsed := res.Duration
	if elapsed <= 0 {
		elapsed = now.Sub(ac.StartedAt)
	}

	e.mu.Lock()
	if _, ok := e.active[ac.ExecutionID]; ok {
		delete(e.active, ac.ExecutionID)
		e.perSource[ac.Source]--
		if e.perSource[ac.Source] <= 0 {
			delete(e.perSource, ac.Source)
		}
	}
	e.executed++
	if !res.Success {
		e.errors++
	}
	e.appendHistoryLocked(model.ExecutionRecord{
		Command:   ac.Command,
		Success:   res.Success,
		ExitCode:  res.ExitCode,
		Duration:  elapsed,
		Timestamp: now,
		FilePath:  ac.FilePath,
	})
	e.mu.Unlock()

	if res.Success {
		e.logger.Info().
			Str("command", ac.Command).
			Str("file", ac.FilePath).
			Dur("duration", elapsed).
			Msg("command succeeded")
		e.bus.Publish(events.EventCommandSuccess, events.CommandSuccess(ac.Command, ac.FilePath, elapsed, res.Output))
		return
	}

	hint, _ := executor.Hint(res)
	e.logger.Error().
		Str("command", ac.Command).
		Str("file", ac.FilePath).
		Int("exit_code", res.ExitCode).
		Dur("duration", elapsed).
		Str("error", res.Error).
		Str("output", tail(res.Output, outputLogLimit)).
		Msg("command failed")
	if hint != "" {
		e.logger.Warn().Str("command", ac.Command).Msg("[hint] " + hint)
	}
	e.bus.Publish(events.EventCommandError, events.CommandError(ac.Command, ac.FilePath, res.Error, res.ExitCode, hint))
}

// appendHistoryLocked keeps the newest model.MaxHistory records.
func (e *Engine) appendHistoryLocked(rec model.ExecutionRecord) {
	if len(e.history) < model.MaxHistory {
		e.history = append(e.history, rec)
		return
	}
	copy(e.history, e.history[1:])
	e.history[len(e.history)-1] = rec
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
