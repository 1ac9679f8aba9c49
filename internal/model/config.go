// Package model defines the data structures for autopilot's configuration, rules and engine state.
package model

import "time"

type Config struct {
	AutomationLevel       AutomationLevel     `yaml:"automation_level" mapstructure:"automation_level"`
	MaxConcurrentCommands int                 `yaml:"max_concurrent_commands" mapstructure:"max_concurrent_commands"`
	MaxCPUUsage           int                 `yaml:"max_cpu_usage" mapstructure:"max_cpu_usage"`
	EnableLogging         bool                `yaml:"enable_logging" mapstructure:"enable_logging"`
	Notifications         NotificationsConfig `yaml:"notifications" mapstructure:"notifications"`
	Watcher               WatcherConfig       `yaml:"watcher" mapstructure:"watcher"`
	Scheduler             SchedulerConfig     `yaml:"scheduler" mapstructure:"scheduler"`
	Rules                 []PatternRule       `yaml:"rules" mapstructure:"rules"`
	Workflows             WorkflowsConfig     `yaml:"workflows" mapstructure:"workflows"`
	Logging               LoggingConfig       `yaml:"logging" mapstructure:"logging"`
}

type NotificationsConfig struct {
	OnSuccess bool `yaml:"on_success" mapstructure:"on_success"`
	OnError   bool `yaml:"on_error" mapstructure:"on_error"`
	OnHint    bool `yaml:"on_hint" mapstructure:"on_hint"`
}

type WatcherConfig struct {
	Patterns       []string      `yaml:"patterns" mapstructure:"patterns"`
	Ignore         []string      `yaml:"ignore" mapstructure:"ignore"`
	StabilityDelay time.Duration `yaml:"stability_delay" mapstructure:"stability_delay"` // quiet period before a change is reported
}

type SchedulerConfig struct {
	TickInterval     time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
	StatusInterval   time.Duration `yaml:"status_interval" mapstructure:"status_interval"`
	CommandTimeout   time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`
	WorkflowDebounce time.Duration `yaml:"workflow_debounce" mapstructure:"workflow_debounce"`
}

type WorkflowsConfig struct {
	Enabled  bool                `yaml:"enabled" mapstructure:"enabled"`
	Commands map[string][]string `yaml:"commands,omitempty" mapstructure:"commands"` // detector id -> command override
}

type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}
