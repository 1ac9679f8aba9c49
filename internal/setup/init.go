// Package setup handles autopilot project initialization.
package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	atomicyaml "github.com/msageha/autopilot/internal/yaml"
	"github.com/msageha/autopilot/templates"
)

const (
	// DirName is the per-project state directory.
	DirName    = ".autopilot"
	ConfigFile = "config.yaml"
)

var (
	ErrAlreadyInitialized = errors.New("project already initialized")
	ErrNotInitialized     = errors.New("no .autopilot directory found (run `autopilot init`)")
)

// gitignore keeps runtime artifacts out of version control; config.yaml stays tracked.
const gitignore = `autopilot.sock
status.yaml
locks/
logs/
`

// Run creates the .autopilot/ directory in projectDir with the default
// config.yaml and returns its absolute path.
func Run(projectDir string) (string, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}
	if info, err := os.Stat(absDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("project dir %s is not a directory", absDir)
	}

	base := filepath.Join(absDir, DirName)
	if _, err := os.Stat(base); err == nil {
		return "", fmt.Errorf("%w: %s exists", ErrAlreadyInitialized, base)
	}

	for _, d := range []string{"locks", "logs"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := writeConfig(filepath.Join(base, ConfigFile)); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(base, ".gitignore"), []byte(gitignore), 0644); err != nil {
		return "", fmt.Errorf("write .gitignore: %w", err)
	}
	return base, nil
}

func writeConfig(path string) error {
	data, err := fs.ReadFile(templates.FS, ConfigFile)
	if err != nil {
		return fmt.Errorf("read config template: %w", err)
	}
	if err := atomicyaml.ValidateSchemaHeaderFromBytes(data, atomicyaml.FileTypeConfig); err != nil {
		return fmt.Errorf("config template: %w", err)
	}
	if err := atomicyaml.AtomicWriteRaw(path, data, atomicyaml.WriteOptions{}); err != nil {
		return fmt.Errorf("write %s: %w", ConfigFile, err)
	}
	return nil
}

// FindRoot walks up from start to the nearest directory containing
// .autopilot/ and returns that project root.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", start, err)
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, DirName)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotInitialized
		}
		dir = parent
	}
}

// StateDir returns the .autopilot directory of the project at root.
func StateDir(root string) string {
	return filepath.Join(root, DirName)
}

// ConfigPath returns the config file of the project at root.
func ConfigPath(root string) string {
	return filepath.Join(root, DirName, ConfigFile)
}
