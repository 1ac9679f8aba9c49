package model

import (
	"fmt"
	"strings"
	"time"
)

// AutomationLevel controls how aggressively file changes become commands.
type AutomationLevel string

const (
	LevelOff     AutomationLevel = "off"
	LevelMinimal AutomationLevel = "minimal"
	LevelSmart   AutomationLevel = "smart"
	LevelFull    AutomationLevel = "full"
)

// ParseAutomationLevel normalizes s and rejects unknown levels.
func ParseAutomationLevel(s string) (AutomationLevel, error) {
	switch l := AutomationLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelOff, LevelMinimal, LevelSmart, LevelFull:
		return l, nil
	default:
		return "", fmt.Errorf("unknown automation level %q (want off, minimal, smart or full)", s)
	}
}

// ChangeType is the kind of filesystem change reported by the watcher.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeModify ChangeType = "change"
	ChangeUnlink ChangeType = "unlink"
)

// ParseChangeType accepts add, change and unlink. "modify" is an alias for change.
func ParseChangeType(s string) (ChangeType, error) {
	switch c := ChangeType(strings.ToLower(strings.TrimSpace(s))); c {
	case ChangeAdd, ChangeModify, ChangeUnlink:
		return c, nil
	case "modify":
		return ChangeModify, nil
	default:
		return "", fmt.Errorf("unknown change type %q (want add, change or unlink)", s)
	}
}

// PatternRule maps file globs to the commands run when a matching file changes.
// Priority 0 is the highest.
type PatternRule struct {
	ID          string        `yaml:"id" mapstructure:"id"`
	Patterns    []string      `yaml:"patterns" mapstructure:"patterns"`
	Commands    []string      `yaml:"commands" mapstructure:"commands"`
	Priority    int           `yaml:"priority" mapstructure:"priority"`
	Debounce    time.Duration `yaml:"debounce" mapstructure:"debounce"`
	Parallel    bool          `yaml:"parallel" mapstructure:"parallel"`
	Description string        `yaml:"description,omitempty" mapstructure:"description"`
}
