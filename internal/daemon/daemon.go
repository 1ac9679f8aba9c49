// Package daemon hosts the automation engine for `autopilot run`.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/msageha/autopilot/internal/engine"
	"github.com/msageha/autopilot/internal/events"
	"github.com/msageha/autopilot/internal/executor"
	"github.com/msageha/autopilot/internal/git"
	"github.com/msageha/autopilot/internal/lock"
	"github.com/msageha/autopilot/internal/model"
	"github.com/msageha/autopilot/internal/notify"
	"github.com/msageha/autopilot/internal/status"
	"github.com/msageha/autopilot/internal/uds"
	"github.com/msageha/autopilot/internal/watcher"
)

const (
	LockFile   = "autopilot.lock"
	EventsFile = "events.jsonl"

	// stopGrace is added to the command timeout when waiting for in-flight
	// commands during shutdown.
	stopGrace = 5 * time.Second
	busBuffer = 256
)

// ErrFault is returned by Run when an unhandled fault forced the shutdown.
var ErrFault = errors.New("unhandled fault")

// Options configures a Daemon.
type Options struct {
	Root     string // project root; watched and used as the command working directory
	StateDir string // the .autopilot directory
	Config   model.Config
	Logger   zerolog.Logger
	Notify   notify.Sender // nil sends desktop notifications
}

// Daemon is one `autopilot run` process.
type Daemon struct {
	root     string
	stateDir string
	cfg      model.Config
	logger   zerolog.Logger
	send     notify.Sender

	fileLock *lock.FileLock
	server   *uds.Server
	bus      *events.Bus
	engine   *engine.Engine

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	faults       chan error
	exit         func(int)
}

// New creates a daemon for the project at opts.Root.
func New(opts Options) *Daemon {
	send := opts.Notify
	if send == nil {
		send = notify.Send
	}
	return &Daemon{
		root:       opts.Root,
		stateDir:   opts.StateDir,
		cfg:        opts.Config,
		logger:     opts.Logger.With().Str("component", "daemon").Logger(),
		send:       send,
		fileLock:   lock.NewFileLock(filepath.Join(opts.StateDir, "locks", LockFile)),
		shutdownCh: make(chan struct{}),
		faults:     make(chan error, 1),
		exit:       os.Exit,
	}
}

// Run starts the engine and blocks until a signal, a shutdown request, a
// fault or the end of ctx. At automation level off it returns immediately.
func (d *Daemon) Run(ctx context.Context) error {
	if d.cfg.AutomationLevel == model.LevelOff {
		d.logger.Info().Msg("automation level is off, nothing to do")
		return nil
	}

	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	defer d.releaseLock()
	d.logger.Info().Int("pid", os.Getpid()).Str("root", d.root).Msg("daemon starting")

	d.bus = events.NewBus(busBuffer)
	d.bus.SetLogger(d.logger)
	defer d.bus.Close()

	if d.cfg.EnableLogging {
		audit, err := events.NewAuditLogger(
			filepath.Join(d.stateDir, "logs", EventsFile),
			d.cfg.Logging.MaxSizeMB, d.cfg.Logging.MaxBackups,
		)
		if err != nil {
			d.logger.Warn().Err(err).Msg("audit log disabled")
		} else {
			audit.Attach(d.bus)
			defer func() { _ = audit.Close() }()
		}
	}
	defer notify.Attach(d.bus, d.cfg.Notifications, d.send, d.logger)()

	w, err := watcher.New(watcher.Options{
		Root:           d.root,
		Patterns:       d.cfg.Watcher.Patterns,
		Ignore:         d.cfg.Watcher.Ignore,
		StabilityDelay: d.cfg.Watcher.StabilityDelay,
	}, d.logger)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	d.engine, err = engine.New(d.cfg, engine.Deps{
		Watcher:  w,
		Runner:   executor.NewProcessRunner(d.root),
		Branches: git.NewBranchResolver(d.root),
		Status:   status.NewStore(d.stateDir),
		Bus:      d.bus,
		Logger:   d.logger,
		Dir:      d.root,
		OnFault:  d.reportFault,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	d.server = uds.NewServer(filepath.Join(d.stateDir, uds.DefaultSocketName), d.logger)
	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	defer func() { _ = d.server.Stop() }()

	if err := d.engine.Start(ctx); err != nil {
		d.stopEngine()
		return fmt.Errorf("start engine: %w", err)
	}
	d.logger.Info().Msg("daemon ready")

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var fault error
	select {
	case <-ctx.Done():
		d.logger.Info().Msg("context done, shutting down")
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
	case <-d.shutdownCh:
		d.logger.Info().Msg("shutdown requested via control socket")
	case fault = <-d.faults:
		d.logger.Error().Err(fault).Msg("stopping after unhandled fault")
	}
	d.requestShutdown()

	// Second signal forces exit.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			d.logger.Warn().Msg("received second signal, forcing exit")
			d.exit(1)
		case <-done:
		}
	}()

	d.stopEngine()
	if fault != nil {
		return fmt.Errorf("%w: %w", ErrFault, fault)
	}
	return nil
}

func (d *Daemon) stopEngine() {
	timeout := d.cfg.Scheduler.CommandTimeout + stopGrace
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := d.engine.Stop(ctx); err != nil {
		d.logger.Warn().Err(err).Dur("timeout", timeout).Msg("shutdown did not wait for every command")
	}
	d.logger.Info().Msg("daemon stopped")
}

func (d *Daemon) releaseLock() {
	if err := d.fileLock.Unlock(); err != nil {
		d.logger.Debug().Err(err).Msg("release lock")
	}
}

// requestShutdown reports whether this call initiated the shutdown.
func (d *Daemon) requestShutdown() bool {
	first := false
	d.shutdownOnce.Do(func() {
		close(d.shutdownCh)
		first = true
	})
	return first
}

func (d *Daemon) reportFault(err error) {
	select {
	case d.faults <- err:
	default:
	}
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.CommandPing, d.handlePing)
	d.server.Handle(uds.CommandStatus, d.handleStatus)
	d.server.Handle(uds.CommandShutdown, d.handleShutdown)
}

func (d *Daemon) handlePing() *uds.Response {
	return uds.SuccessResponse(status.PingData{Pid: os.Getpid()})
}

func (d *Daemon) handleStatus() *uds.Response {
	return uds.SuccessResponse(d.engine.Snapshot())
}

func (d *Daemon) handleShutdown() *uds.Response {
	if !d.requestShutdown() {
		return uds.ErrorResponse(uds.ErrCodeShuttingDown, "shutdown already in progress")
	}
	return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
}
