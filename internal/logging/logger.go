// Package logging builds the zerolog logger shared by the daemon and CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the rotating log file inside the logs directory.
const FileName = "autopilot.log"

const logMaxAgeDays = 14

// Options configures New.
type Options struct {
	Level      string
	Dir        string // logs directory; empty disables the file sink
	MaxSizeMB  int
	MaxBackups int
	Console    io.Writer // nil selects stderr
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to the console and, when Dir is set, to a
// rotating file. The returned closer releases the file sink.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := ParseLevel(opts.Level)

	console := opts.Console
	if console == nil {
		console = selectOutput()
	}

	var (
		writer io.Writer = console
		closer io.Closer = nopCloser{}
		err    error
	)
	if opts.Dir != "" {
		var fw io.WriteCloser
		fw, err = createFileWriter(opts)
		if err == nil {
			writer = zerolog.MultiLevelWriter(console, fw)
			closer = fw
		}
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger, closer, err
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

func selectOutput() io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) && os.Getenv("NO_COLOR") == "" {
		return zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
		}
	}
	return os.Stderr
}

func createFileWriter(opts Options) (io.WriteCloser, error) {
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, FileName),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     logMaxAgeDays,
	}, nil
}
