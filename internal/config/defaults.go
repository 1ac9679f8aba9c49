// Package config loads .autopilot/config.yaml and supplies built-in defaults.
package config

import (
	"time"

	"github.com/msageha/autopilot/internal/model"
)

// Default values shared by Default and the viper defaults layer.
const (
	DefaultAutomationLevel       = model.LevelSmart
	DefaultMaxConcurrentCommands = 3
	DefaultMaxCPUUsage           = 70
	DefaultStabilityDelay        = 300 * time.Millisecond
	DefaultTickInterval          = time.Second
	DefaultStatusInterval        = 5 * time.Second
	DefaultCommandTimeout        = 60 * time.Second
	DefaultWorkflowDebounce      = 500 * time.Millisecond
	DefaultLogLevel              = "info"
	DefaultLogMaxSizeMB          = 10
	DefaultLogMaxBackups         = 3
)

// DefaultWatchPatterns is the include list used when watcher.patterns is empty.
var DefaultWatchPatterns = []string{"**/*"}

// DefaultIgnorePatterns are never watched.
var DefaultIgnorePatterns = []string{
	"node_modules/**",
	".git/**",
	"dist/**",
	"build/**",
	".next/**",
	"coverage/**",
	".autopilot/**",
}

// Default returns the built-in configuration.
func Default() model.Config {
	return model.Config{
		AutomationLevel:       DefaultAutomationLevel,
		MaxConcurrentCommands: DefaultMaxConcurrentCommands,
		MaxCPUUsage:           DefaultMaxCPUUsage,
		EnableLogging:         true,
		Notifications: model.NotificationsConfig{
			OnSuccess: false,
			OnError:   true,
			OnHint:    true,
		},
		Watcher: model.WatcherConfig{
			Patterns:       append([]string(nil), DefaultWatchPatterns...),
			Ignore:         append([]string(nil), DefaultIgnorePatterns...),
			StabilityDelay: DefaultStabilityDelay,
		},
		Scheduler: model.SchedulerConfig{
			TickInterval:     DefaultTickInterval,
			StatusInterval:   DefaultStatusInterval,
			CommandTimeout:   DefaultCommandTimeout,
			WorkflowDebounce: DefaultWorkflowDebounce,
		},
		Rules: DefaultRules(),
		Workflows: model.WorkflowsConfig{
			Enabled: true,
		},
		Logging: model.LoggingConfig{
			Level:      DefaultLogLevel,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
		},
	}
}

// DefaultRules returns the built-in rule set for a typical TypeScript project.
// Order matters: the first matching rule wins.
func DefaultRules() []model.PatternRule {
	return []model.PatternRule{
		{
			ID:          "tests",
			Patterns:    []string{"**/*.{test,spec}.{ts,tsx,js,jsx}"},
			Commands:    []string{"npm test"},
			Priority:    0,
			Debounce:    time.Second,
			Description: "Run the test suite when a test file changes",
		},
		{
			ID:          "dependencies",
			Patterns:    []string{"package.json"},
			Commands:    []string{"npm install"},
			Priority:    0,
			Debounce:    5 * time.Second,
			Description: "Reinstall dependencies when package.json changes",
		},
		{
			ID:          "typescript",
			Patterns:    []string{"src/**/*.{ts,tsx}"},
			Commands:    []string{"npm run type-check", "npm run lint"},
			Priority:    1,
			Debounce:    2 * time.Second,
			Parallel:    true,
			Description: "Type-check and lint source files",
		},
		{
			ID:          "styles",
			Patterns:    []string{"**/*.{css,scss}", "tailwind.config.{js,ts}"},
			Commands:    []string{"npm run build:css"},
			Priority:    2,
			Debounce:    time.Second,
			Description: "Rebuild stylesheets",
		},
		{
			ID:          "docs",
			Patterns:    []string{"**/*.md"},
			Commands:    []string{"npm run docs"},
			Priority:    3,
			Debounce:    3 * time.Second,
			Description: "Regenerate documentation",
		},
	}
}
