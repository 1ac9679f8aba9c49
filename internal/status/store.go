// Package status persists the engine snapshot and reports it to the CLI.
package status

import (
	"path/filepath"

	"github.com/msageha/autopilot/internal/model"
	"github.com/msageha/autopilot/internal/yaml"
)

// FileName is the snapshot file inside .autopilot/.
const FileName = "status.yaml"

// Store writes snapshots atomically so readers never see a partial file.
type Store struct {
	path string
}

func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

func (s *Store) Path() string {
	return s.path
}

// Write replaces the snapshot file.
func (s *Store) Write(snap model.StatusSnapshot) error {
	snap.SchemaVersion = yaml.CurrentSchemaVersion
	snap.FileType = yaml.FileTypeEngineStatus
	return yaml.AtomicWrite(s.path, snap)
}

// Read loads the snapshot at path. A missing or unreadable file yields a
// not-running snapshot.
func Read(path string) model.StatusSnapshot {
	var snap model.StatusSnapshot
	if err := yaml.ReadTyped(path, yaml.FileTypeEngineStatus, &snap); err != nil {
		return model.StatusSnapshot{State: model.StateStopped}
	}
	return snap
}
