// Package workflow infers higher-level development activity from a change and the current branch.
package workflow

import (
	"strings"

	"github.com/msageha/autopilot/internal/model"
	"github.com/msageha/autopilot/internal/pattern"
)

// Detector recognizes one development activity and names the commands it warrants.
type Detector struct {
	ID          string
	Description string
	Commands    []string
	Match       func(path string, change model.ChangeType, branch string) bool
}

var (
	sourceFile = pattern.MustCompile("src/**/*.{ts,tsx,js,jsx}")
	testFile   = pattern.MustCompile("**/*.{test,spec}.{ts,tsx,js,jsx}")
)

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// DefaultDetectors returns the built-in detectors in evaluation order.
func DefaultDetectors() []Detector {
	return []Detector{
		{
			ID:          "feature-development",
			Description: "new source files on a feature branch",
			Commands:    []string{"npm run lint", "npm run type-check"},
			Match: func(path string, change model.ChangeType, branch string) bool {
				return change == model.ChangeAdd &&
					hasAnyPrefix(branch, "feature/", "feat/") &&
					sourceFile.Match(path)
			},
		},
		{
			ID:          "bug-fix",
			Description: "source edits on a fix branch",
			Commands:    []string{"npm test"},
			Match: func(path string, change model.ChangeType, branch string) bool {
				return change == model.ChangeModify &&
					hasAnyPrefix(branch, "fix/", "bugfix/", "hotfix/") &&
					sourceFile.Match(path)
			},
		},
		{
			ID:          "refactor",
			Description: "source edits on a refactoring branch",
			Commands:    []string{"npm run lint", "npm test"},
			Match: func(path string, change model.ChangeType, branch string) bool {
				return change == model.ChangeModify &&
					strings.Contains(branch, "refactor") &&
					sourceFile.Match(path)
			},
		},
		{
			ID:          "test-driven",
			Description: "test file edits on any branch",
			Commands:    []string{"npm test"},
			Match: func(path string, change model.ChangeType, _ string) bool {
				return change != model.ChangeUnlink && testFile.Match(path)
			},
		},
	}
}

// Set is an ordered list of detectors.
type Set struct {
	detectors []Detector
}

// NewSet builds a detector set from cfg. Disabled workflows yield an empty set.
// Per-detector command overrides replace the built-in command list.
func NewSet(detectors []Detector, cfg model.WorkflowsConfig) *Set {
	if !cfg.Enabled {
		return &Set{}
	}
	out := make([]Detector, 0, len(detectors))
	for _, d := range detectors {
		if cmds, ok := cfg.Commands[d.ID]; ok {
			d.Commands = append([]string(nil), cmds...)
		}
		out = append(out, d)
	}
	return &Set{detectors: out}
}

// Detect returns the first detector whose predicate holds. Later detectors are not evaluated.
func (s *Set) Detect(path string, change model.ChangeType, branch string) (Detector, bool) {
	path = pattern.Normalize(path)
	for _, d := range s.detectors {
		if d.Match != nil && d.Match(path, change, branch) {
			return d, true
		}
	}
	return Detector{}, false
}

// Len returns the number of active detectors.
func (s *Set) Len() int {
	return len(s.detectors)
}
