package model

import "time"

// MaxHistory bounds the execution history kept by the engine.
const MaxHistory = 100

// EngineState is the lifecycle state of the automation engine.
type EngineState string

const (
	StateStopped  EngineState = "stopped"
	StateStarting EngineState = "starting"
	StateRunning  EngineState = "running"
	StateStopping EngineState = "stopping"
)

// QueuedCommand is a pending command waiting for its debounce window to elapse.
type QueuedCommand struct {
	Key        string
	Command    string
	Source     string
	FilePath   string
	Priority   int
	Parallel   bool
	Debounce   time.Duration
	EnqueuedAt time.Time
	Seq        uint64
}

// ReadyAt reports when the entry becomes eligible for dispatch.
func (q QueuedCommand) ReadyAt() time.Time {
	return q.EnqueuedAt.Add(q.Debounce)
}

// ActiveCommand is a command whose process is in flight.
type ActiveCommand struct {
	ExecutionID string    `yaml:"execution_id" json:"execution_id"`
	Command     string    `yaml:"command" json:"command"`
	Source      string    `yaml:"source" json:"source"`
	FilePath    string    `yaml:"file_path" json:"file_path"`
	StartedAt   time.Time `yaml:"started_at" json:"started_at"`
}

type ExecutionRecord struct {
	Command   string        `yaml:"command" json:"command"`
	Success   bool          `yaml:"success" json:"success"`
	ExitCode  int           `yaml:"exit_code" json:"exit_code"`
	Duration  time.Duration `yaml:"duration" json:"duration"`
	Timestamp time.Time     `yaml:"timestamp" json:"timestamp"`
	FilePath  string        `yaml:"file_path" json:"file_path"`
}

type EngineStats struct {
	Executed      int               `yaml:"executed" json:"executed"`
	Errors        int               `yaml:"errors" json:"errors"`
	Active        int               `yaml:"active" json:"active"`
	Queued        int               `yaml:"queued" json:"queued"`
	ActiveDetails []ActiveCommand   `yaml:"active_commands,omitempty" json:"active_commands,omitempty"`
	History       []ExecutionRecord `yaml:"history,omitempty" json:"history,omitempty"`
}

// StatusSnapshot is the durable engine status written to status.yaml.
type StatusSnapshot struct {
	SchemaVersion   int             `yaml:"schema_version" json:"-"`
	FileType        string          `yaml:"file_type" json:"-"`
	Running         bool            `yaml:"running" json:"running"`
	State           EngineState     `yaml:"state" json:"state"`
	AutomationLevel AutomationLevel `yaml:"automation_level" json:"automation_level"`
	Pid             int             `yaml:"pid,omitempty" json:"pid,omitempty"`
	StartedAt       *time.Time      `yaml:"started_at,omitempty" json:"started_at,omitempty"`
	Stats           EngineStats     `yaml:"stats" json:"stats"`
	UpdatedAt       time.Time       `yaml:"updated_at" json:"updated_at"`
}
