// Package watcher reports stabilized file changes under a project root.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/msageha/autopilot/internal/model"
	"github.com/msageha/autopilot/internal/pattern"
)

// Event is a single stabilized change. Path is slash-separated and relative
// to the watched root.
type Event struct {
	Path   string
	Change model.ChangeType
}

// Options configures a Watcher.
type Options struct {
	Root           string
	Patterns       []string // include globs; empty includes every file
	Ignore         []string
	StabilityDelay time.Duration
}

// ErrAlreadyWatching is returned by a second call to Watch.
var ErrAlreadyWatching = errors.New("watcher already started")

// editor scratch files that never represent a real change
var scratchSuffixes = []string{"~", ".swp", ".swx", ".tmp", ".DS_Store"}

type pendingChange struct {
	change model.ChangeType
	gen    uint64
	timer  *time.Timer
}

// Watcher is a recursive fsnotify watcher. Each path is reported once it has
// been quiet for the stability delay.
type Watcher struct {
	root    string
	include []*pattern.Matcher
	ignore  []*pattern.Matcher
	delay   time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]*pendingChange
	gen     uint64
	onEvent func(Event)
	onError func(error)
	closed  bool
	wg      sync.WaitGroup
}

// New compiles the include and ignore globs. It does not touch the filesystem.
func New(opts Options, logger zerolog.Logger) (*Watcher, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	include, err := compileAll(opts.Patterns)
	if err != nil {
		return nil, fmt.Errorf("watch pattern: %w", err)
	}
	ignore, err := compileAll(opts.Ignore)
	if err != nil {
		return nil, fmt.Errorf("ignore pattern: %w", err)
	}
	return &Watcher{
		root:    root,
		include: include,
		ignore:  ignore,
		delay:   opts.StabilityDelay,
		logger:  logger.With().Str("component", "watcher").Logger(),
		pending: make(map[string]*pendingChange),
	}, nil
}

func compileAll(globs []string) ([]*pattern.Matcher, error) {
	out := make([]*pattern.Matcher, 0, len(globs))
	for _, g := range globs {
		m, err := pattern.Compile(g)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Watch starts watching the root recursively. onEvent is called from timer
// goroutines; onError receives non-fatal watch failures. Watching ends when
// ctx is cancelled or Close is called.
func (w *Watcher) Watch(ctx context.Context, onEvent func(Event), onError func(error)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w.mu.Lock()
	if w.fsw != nil || w.closed {
		w.mu.Unlock()
		fsw.Close()
		return ErrAlreadyWatching
	}
	w.fsw = fsw
	w.onEvent = onEvent
	w.onError = onError
	w.mu.Unlock()

	if err := w.addTree(w.root, false); err != nil {
		w.Close()
		return err
	}

	w.wg.Add(1)
	go w.loop(ctx, fsw)
	w.logger.Info().Str("root", w.root).Msg("watching")
	return nil
}

// Close stops watching and discards changes that have not stabilized yet.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, p := range w.pending {
		p.timer.Stop()
	}
	w.pending = nil
	fsw := w.fsw
	w.mu.Unlock()

	var err error
	if fsw != nil {
		err = fsw.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, ok := w.relative(ev.Name)
	if !ok {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.dirIgnored(rel) {
				if err := w.addTree(ev.Name, true); err != nil {
					w.reportError(err)
				}
			}
			return
		}
	}

	var change model.ChangeType
	switch {
	case ev.Has(fsnotify.Create):
		change = model.ChangeAdd
	case ev.Has(fsnotify.Write):
		change = model.ChangeModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		change = model.ChangeUnlink
	default:
		return
	}
	if !w.fileWanted(rel) {
		return
	}
	w.logger.Debug().Str("op", ev.Op.String()).Str("path", rel).Msg("fsnotify event")
	w.schedule(rel, ev.Name, change)
}

// addTree registers dir and its non-ignored subdirectories. When announce is
// set, files already present are reported as added; they may have been
// written before the directory watch existed.
func (w *Watcher) addTree(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == w.root {
				return fmt.Errorf("walk %s: %w", path, err)
			}
			w.reportError(err)
			return nil
		}
		rel, _ := w.relative(path)
		if d.IsDir() {
			if rel != "" && w.dirIgnored(rel) {
				return filepath.SkipDir
			}
			w.mu.Lock()
			fsw, closed := w.fsw, w.closed
			w.mu.Unlock()
			if closed || fsw == nil {
				return filepath.SkipAll
			}
			if err := fsw.Add(path); err != nil {
				if path == w.root {
					return fmt.Errorf("watch %s: %w", path, err)
				}
				w.reportError(fmt.Errorf("watch %s: %w", path, err))
			}
			return nil
		}
		if announce && w.fileWanted(rel) {
			w.schedule(rel, path, model.ChangeAdd)
		}
		return nil
	})
}

func (w *Watcher) schedule(rel, abs string, change model.ChangeType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	w.gen++
	gen := w.gen
	if p, ok := w.pending[rel]; ok {
		p.timer.Stop()
		p.change = merge(p.change, change)
		p.gen = gen
		p.timer = time.AfterFunc(w.delay, func() { w.flush(rel, abs, gen) })
		return
	}
	w.pending[rel] = &pendingChange{
		change: change,
		gen:    gen,
		timer:  time.AfterFunc(w.delay, func() { w.flush(rel, abs, gen) }),
	}
}

// merge folds a new raw change into one still waiting to stabilize.
func merge(prev, next model.ChangeType) model.ChangeType {
	switch {
	case prev == model.ChangeAdd && next == model.ChangeModify:
		return model.ChangeAdd
	case prev == model.ChangeUnlink && next == model.ChangeAdd:
		// atomic save: the old file was replaced
		return model.ChangeModify
	default:
		return next
	}
}

func (w *Watcher) flush(rel, abs string, gen uint64) {
	w.mu.Lock()
	p, ok := w.pending[rel]
	if !ok || p.gen != gen || w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, rel)
	cb := w.onEvent
	w.mu.Unlock()

	change := p.change
	_, err := os.Stat(abs)
	exists := err == nil
	switch {
	case change == model.ChangeUnlink && exists:
		change = model.ChangeModify
	case change != model.ChangeUnlink && !exists:
		change = model.ChangeUnlink
	}
	if cb != nil {
		cb(Event{Path: rel, Change: change})
	}
}

func (w *Watcher) reportError(err error) {
	w.logger.Warn().Err(err).Msg("watch error")
	w.mu.Lock()
	cb := w.onError
	w.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) dirIgnored(rel string) bool {
	for _, m := range w.ignore {
		if m.Match(rel) || m.Match(rel+"/") {
			return true
		}
	}
	return false
}

func (w *Watcher) fileWanted(rel string) bool {
	if rel == "" {
		return false
	}
	for _, s := range scratchSuffixes {
		if strings.HasSuffix(rel, s) {
			return false
		}
	}
	for _, m := range w.ignore {
		if m.Match(rel) {
			return false
		}
	}
	if len(w.include) == 0 {
		return true
	}
	for _, m := range w.include {
		if m.Match(rel) {
			return true
		}
	}
	return false
}
