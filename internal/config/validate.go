package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/msageha/autopilot/internal/model"
	"github.com/msageha/autopilot/internal/pattern"
)

// ErrInvalidConfig is wrapped by every load and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks cfg and normalizes the automation level in place.
func Validate(cfg *model.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}

	level, err := model.ParseAutomationLevel(string(cfg.AutomationLevel))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.AutomationLevel = level

	if cfg.MaxConcurrentCommands < 1 {
		return fmt.Errorf("%w: max_concurrent_commands must be at least 1, got %d",
			ErrInvalidConfig, cfg.MaxConcurrentCommands)
	}
	if cfg.MaxCPUUsage < 1 || cfg.MaxCPUUsage > 100 {
		return fmt.Errorf("%w: max_cpu_usage must be between 1 and 100, got %d",
			ErrInvalidConfig, cfg.MaxCPUUsage)
	}

	if err := validateScheduler(cfg.Scheduler); err != nil {
		return err
	}
	if cfg.Watcher.StabilityDelay < 0 {
		return fmt.Errorf("%w: watcher.stability_delay must not be negative", ErrInvalidConfig)
	}
	for _, g := range append(append([]string(nil), cfg.Watcher.Patterns...), cfg.Watcher.Ignore...) {
		if _, err := pattern.Compile(g); err != nil {
			return fmt.Errorf("%w: watcher: %w", ErrInvalidConfig, err)
		}
	}

	return validateRules(cfg.Rules)
}

func validateScheduler(s model.SchedulerConfig) error {
	checks := []struct {
		name string
		val  time.Duration
	}{
		{"scheduler.tick_interval", s.TickInterval},
		{"scheduler.status_interval", s.StatusInterval},
		{"scheduler.command_timeout", s.CommandTimeout},
	}
	for _, c := range checks {
		if c.val <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, c.name, c.val)
		}
	}
	if s.WorkflowDebounce < 0 {
		return fmt.Errorf("%w: scheduler.workflow_debounce must not be negative", ErrInvalidConfig)
	}
	return nil
}

func validateRules(rules []model.PatternRule) error {
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return fmt.Errorf("%w: rules[%d]: id is required", ErrInvalidConfig, i)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: rules[%d]: duplicate id %q", ErrInvalidConfig, i, r.ID)
		}
		seen[r.ID] = true
		if len(r.Patterns) == 0 {
			return fmt.Errorf("%w: rule %q: at least one pattern is required", ErrInvalidConfig, r.ID)
		}
		if len(r.Commands) == 0 {
			return fmt.Errorf("%w: rule %q: at least one command is required", ErrInvalidConfig, r.ID)
		}
		if r.Priority < 0 {
			return fmt.Errorf("%w: rule %q: priority must not be negative", ErrInvalidConfig, r.ID)
		}
		if r.Debounce < 0 {
			return fmt.Errorf("%w: rule %q: debounce must not be negative", ErrInvalidConfig, r.ID)
		}
		for _, p := range r.Patterns {
			if _, err := pattern.Compile(p); err != nil {
				return fmt.Errorf("%w: rule %q: %w", ErrInvalidConfig, r.ID, err)
			}
		}
	}
	return nil
}
