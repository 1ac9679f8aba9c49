package yaml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchemaHeader_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema_version: 1\nfile_type: engine_status\nrunning: true\n"), 0644))

	assert.NoError(t, ValidateSchemaHeader(path, FileTypeEngineStatus))
}

func TestValidateSchemaHeader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unsupported version", "schema_version: 99\nfile_type: engine_status\n", "unsupported"},
		{"negative version", "schema_version: -1\nfile_type: engine_status\n", "invalid schema_version"},
		{"missing type", "schema_version: 1\n", "missing file_type"},
		{"unknown type", "schema_version: 1\nfile_type: queue_task\n", "unknown file_type"},
		{"mismatch", "schema_version: 1\nfile_type: config\n", "mismatch"},
		{"not yaml", ":::", "parse yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchemaHeaderFromBytes([]byte(tt.content), FileTypeEngineStatus)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadTyped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.yaml")
	type doc struct {
		SchemaHeader `yaml:",inline"`
		Running      bool `yaml:"running"`
	}

	require.NoError(t, AtomicWrite(path, doc{
		SchemaHeader: SchemaHeader{SchemaVersion: 1, FileType: FileTypeEngineStatus},
		Running:      true,
	}))

	var got doc
	require.NoError(t, ReadTyped(path, FileTypeEngineStatus, &got))
	assert.True(t, got.Running)

	assert.Error(t, ReadTyped(filepath.Join(t.TempDir(), "missing.yaml"), FileTypeEngineStatus, &got))
}
