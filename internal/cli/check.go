package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/msageha/autopilot/internal/config"
	"github.com/msageha/autopilot/internal/engine"
	"github.com/msageha/autopilot/internal/git"
	"github.com/msageha/autopilot/internal/model"
	"github.com/msageha/autopilot/internal/setup"
)

var (
	checkTitleStyle  = lipgloss.NewStyle().Bold(true)
	checkSourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	checkDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// plannedCommand is the JSON form of one planned command.
type plannedCommand struct {
	Source   string `json:"source"`
	Command  string `json:"command"`
	Priority int    `json:"priority"`
	Debounce string `json:"debounce"`
	Parallel bool   `json:"parallel"`
}

type checkResult struct {
	Path     string           `json:"path"`
	Change   model.ChangeType `json:"change"`
	Branch   string           `json:"branch"`
	Level    string           `json:"automation_level"`
	Commands []plannedCommand `json:"commands"`
}

func newCheckCmd(flags *GlobalFlags) *cobra.Command {
	var (
		change     string
		branch     string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Show which commands a change to path would queue",
		Long: `Classify a change without running anything: which rule matches, which
workflow the branch implies, and the commands the current automation level
would queue. Outside an initialized project the built-in defaults are used.`,
		Example: `  autopilot check src/app.ts
  autopilot check src/new.ts --change add --branch feature/login`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := model.ParseChangeType(change)
			if err != nil {
				return fmt.Errorf("--change: %w", err)
			}

			root, err := projectRoot(flags)
			if errors.Is(err, setup.ErrNotInitialized) {
				root, err = filepath.Abs(flags.Dir)
			}
			if err != nil {
				return err
			}

			logger := consoleLogger(flags, cmd.ErrOrStderr())
			cfg := config.LoadOrDefault(setup.ConfigPath(root), logger)
			if branch == "" {
				branch = git.NewBranchResolver(root).CurrentBranch()
			}

			eng, err := engine.New(cfg, engine.Deps{Logger: logger, Dir: root})
			if err != nil {
				return err
			}
			path := relativeTo(root, args[0])
			res := checkResult{
				Path:     path,
				Change:   ct,
				Branch:   branch,
				Level:    string(cfg.AutomationLevel),
				Commands: []plannedCommand{},
			}
			for _, qc := range eng.Plan(path, ct, branch) {
				res.Commands = append(res.Commands, plannedCommand{
					Source:   qc.Source,
					Command:  qc.Command,
					Priority: qc.Priority,
					Debounce: qc.Debounce.String(),
					Parallel: qc.Parallel,
				})
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printCheck(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&change, "change", string(model.ChangeModify), "change type (add|change|unlink)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch name (default: the current git branch)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	return cmd
}

// relativeTo turns an absolute path inside root into a project-relative one.
func relativeTo(root, path string) string {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func printCheck(w io.Writer, res checkResult) {
	fmt.Fprintf(w, "%s %s\n", checkTitleStyle.Render(res.Path),
		checkDimStyle.Render(fmt.Sprintf("(%s on %s, level %s)", res.Change, res.Branch, res.Level)))
	if len(res.Commands) == 0 {
		fmt.Fprintln(w, "  no commands would run")
		return
	}
	for _, c := range res.Commands {
		mode := "sequential"
		if c.Parallel {
			mode = "parallel"
		}
		fmt.Fprintf(w, "  %s %s  %s\n",
			checkSourceStyle.Render(fmt.Sprintf("[%s]", c.Source)),
			c.Command,
			checkDimStyle.Render(fmt.Sprintf("priority %d, debounce %s, %s", c.Priority, c.Debounce, mode)))
	}
}
