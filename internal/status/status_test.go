package status

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/autopilot/internal/model"
	"github.com/msageha/autopilot/internal/uds"
)

func sampleSnapshot() model.StatusSnapshot {
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return model.StatusSnapshot{
		Running:         true,
		State:           model.StateRunning,
		AutomationLevel: model.LevelSmart,
		Pid:             4242,
		StartedAt:       &started,
		Stats: model.EngineStats{
			Executed: 3,
			Errors:   1,
			Active:   1,
			Queued:   2,
			ActiveDetails: []model.ActiveCommand{
				{ExecutionID: "e1", Command: "npm test", Source: "tests", FilePath: "src/a.test.ts", StartedAt: started},
			},
			History: []model.ExecutionRecord{
				{Command: "npm run lint", Success: true, Duration: 1200 * time.Millisecond, Timestamp: started, FilePath: "src/a.ts"},
				{Command: "npm test", Success: false, ExitCode: 1, Duration: 3 * time.Second, Timestamp: started, FilePath: "src/a.test.ts"},
			},
		},
		UpdatedAt: started.Add(time.Minute),
	}
}

func TestStore_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	snap := sampleSnapshot()

	require.NoError(t, store.Write(snap))
	got := Read(store.Path())

	assert.Equal(t, 1, got.SchemaVersion)
	assert.Equal(t, "engine_status", got.FileType)
	assert.True(t, got.Running)
	assert.Equal(t, model.StateRunning, got.State)
	assert.Equal(t, 4242, got.Pid)
	require.Len(t, got.Stats.History, 2)
	assert.Equal(t, "npm test", got.Stats.History[1].Command)
	assert.Equal(t, 3*time.Second, got.Stats.History[1].Duration)
	assert.False(t, got.Stats.History[1].Success)
	assert.True(t, snap.StartedAt.Equal(*got.StartedAt))
}

func TestRead_AbsentOrCorruptIsNotRunning(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Read(filepath.Join(dir, FileName)).Running)

	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("running: [true\n"), 0o644))
	got := Read(path)
	assert.False(t, got.Running)
	assert.Equal(t, model.StateStopped, got.State)

	// well-formed YAML without the schema header is rejected too
	require.NoError(t, os.WriteFile(path, []byte("running: true\n"), 0o644))
	assert.False(t, Read(path).Running)
}

func TestCollect_StaleSnapshotWithoutDaemon(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewStore(dir).Write(sampleSnapshot()))

	report := Collect(dir)
	assert.False(t, report.Daemon.Reachable)
	assert.True(t, report.Daemon.Stale)
	assert.False(t, report.Engine.Running)
	assert.Equal(t, 3, report.Engine.Stats.Executed, "last known stats are still shown")
}

func TestCollect_LiveDaemon(t *testing.T) {
	dir, err := os.MkdirTemp("/tmp", "ap-status-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	server := uds.NewServer(filepath.Join(dir, uds.DefaultSocketName), zerolog.Nop())
	server.Handle(uds.CommandPing, func() *uds.Response {
		return uds.SuccessResponse(PingData{Pid: 99})
	})
	server.Handle(uds.CommandStatus, func() *uds.Response {
		snap := sampleSnapshot()
		snap.Stats.Queued = 7
		return uds.SuccessResponse(snap)
	})
	require.NoError(t, server.Start())
	defer server.Stop()

	report := Collect(dir)
	assert.True(t, report.Daemon.Reachable)
	assert.Equal(t, 99, report.Daemon.Pid)
	assert.False(t, report.Daemon.Stale)
	assert.True(t, report.Engine.Running)
	assert.Equal(t, 7, report.Engine.Stats.Queued)
}

func TestRun_JSON(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, Run(dir, true, &buf))

	var report Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.False(t, report.Engine.Running)
	assert.False(t, report.Daemon.Reachable)
}

func TestPrint_ShowsStatsAndHistory(t *testing.T) {
	var buf bytes.Buffer
	r := Report{Daemon: DaemonStatus{Reachable: true, Pid: 4242}, Engine: sampleSnapshot()}
	Print(&buf, r)

	out := buf.String()
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "smart")
	assert.Contains(t, out, "npm run lint")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "src/a.test.ts")
}

func TestPrint_Stale(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, Report{Daemon: DaemonStatus{Stale: true}})
	assert.Contains(t, buf.String(), "stale")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
