package status

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/msageha/autopilot/internal/model"
	"github.com/msageha/autopilot/internal/uds"
)

// Report is what `autopilot status` prints.
type Report struct {
	Daemon DaemonStatus         `json:"daemon"`
	Engine model.StatusSnapshot `json:"engine"`
}

// DaemonStatus describes the control socket. Stale means the snapshot claims
// a running engine but no daemon answered, i.e. the last run crashed.
type DaemonStatus struct {
	Reachable bool `json:"reachable"`
	Pid       int  `json:"pid,omitempty"`
	Stale     bool `json:"stale,omitempty"`
}

// PingData is the payload of a successful ping.
type PingData struct {
	Pid int `json:"pid"`
}

const queryTimeout = 2 * time.Second

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	staleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Collect asks the daemon for a live snapshot and falls back to the
// status file when no daemon answers.
func Collect(dir string) Report {
	client := uds.NewClient(filepath.Join(dir, uds.DefaultSocketName))
	client.SetTimeout(queryTimeout)

	var report Report
	if resp, err := client.SendCommand(uds.CommandPing); err == nil && resp.Success {
		var ping PingData
		_ = resp.DecodeData(&ping)
		report.Daemon = DaemonStatus{Reachable: true, Pid: ping.Pid}

		if resp, err := client.SendCommand(uds.CommandStatus); err == nil {
			var snap model.StatusSnapshot
			if resp.DecodeData(&snap) == nil {
				report.Engine = snap
				return report
			}
		}
	}

	report.Engine = Read(filepath.Join(dir, FileName))
	if report.Engine.Running && !report.Daemon.Reachable {
		report.Daemon.Stale = true
		report.Engine.Running = false
	}
	return report
}

// Run prints the status of the project whose state directory is dir.
func Run(dir string, jsonOutput bool, w io.Writer) error {
	report := Collect(dir)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	Print(w, report)
	return nil
}

// Print renders report for a terminal.
func Print(w io.Writer, r Report) {
	fmt.Fprintln(w, titleStyle.Render("autopilot"))

	var state string
	switch {
	case r.Daemon.Stale:
		state = staleStyle.Render("not running (stale status from a previous run)")
	case r.Engine.Running:
		state = runningStyle.Render(string(r.Engine.State))
	default:
		state = stoppedStyle.Render("stopped")
	}
	fmt.Fprintln(w, row("state", state))
	if r.Daemon.Pid > 0 {
		fmt.Fprintln(w, row("pid", fmt.Sprint(r.Daemon.Pid)))
	}
	if r.Engine.AutomationLevel != "" {
		fmt.Fprintln(w, row("level", string(r.Engine.AutomationLevel)))
	}
	if r.Engine.StartedAt != nil && r.Engine.Running {
		fmt.Fprintln(w, row("uptime", time.Since(*r.Engine.StartedAt).Truncate(time.Second).String()))
	}

	s := r.Engine.Stats
	fmt.Fprintln(w, row("executed", fmt.Sprint(s.Executed)))
	fmt.Fprintln(w, row("errors", fmt.Sprint(s.Errors)))
	fmt.Fprintln(w, row("active", fmt.Sprint(s.Active)))
	fmt.Fprintln(w, row("queued", fmt.Sprint(s.Queued)))

	if len(s.ActiveDetails) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Running"))
		for _, a := range s.ActiveDetails {
			fmt.Fprintf(w, "  %s  %s\n", a.Command, dimStyle.Render(a.FilePath))
		}
	}

	if len(s.History) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Recent"))
		start := len(s.History) - 10
		if start < 0 {
			start = 0
		}
		for i := len(s.History) - 1; i >= start; i-- {
			h := s.History[i]
			mark := okStyle.Render("ok  ")
			if !h.Success {
				mark = failStyle.Render("FAIL")
			}
			fmt.Fprintf(w, "  %s %-32s %8s  %s\n", mark, truncate(h.Command, 32),
				h.Duration.Round(time.Millisecond), dimStyle.Render(h.FilePath))
		}
	}
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-1]) + "…"
}
