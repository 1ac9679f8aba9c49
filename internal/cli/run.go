package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/msageha/autopilot/internal/config"
	"github.com/msageha/autopilot/internal/daemon"
	"github.com/msageha/autopilot/internal/logging"
	"github.com/msageha/autopilot/internal/model"
	"github.com/msageha/autopilot/internal/setup"
)

func newRunCmd(flags *GlobalFlags) *cobra.Command {
	var level string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the project and run commands until interrupted",
		Long: `Start the automation engine in the foreground. Ctrl-C (or ` + "`autopilot stop`" + `)
stops accepting changes and waits for running commands to finish; a second
Ctrl-C exits immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(flags)
			if err != nil {
				return err
			}
			stateDir := setup.StateDir(root)

			cfg := config.LoadOrDefault(setup.ConfigPath(root), consoleLogger(flags, cmd.ErrOrStderr()))
			if level != "" {
				l, err := model.ParseAutomationLevel(level)
				if err != nil {
					return fmt.Errorf("--level: %w", err)
				}
				cfg.AutomationLevel = l
			}

			opts := logging.Options{
				Level:      flags.logLevel(cfg.Logging.Level),
				MaxSizeMB:  cfg.Logging.MaxSizeMB,
				MaxBackups: cfg.Logging.MaxBackups,
			}
			if cfg.EnableLogging {
				opts.Dir = filepath.Join(stateDir, "logs")
			}
			logger, closer, err := logging.New(opts)
			if err != nil {
				logger.Warn().Err(err).Msg("file logging disabled")
			}
			defer func() { _ = closer.Close() }()

			return daemon.New(daemon.Options{
				Root:     root,
				StateDir: stateDir,
				Config:   cfg,
				Logger:   logger,
			}).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "override automation_level (off|minimal|smart|full)")
	return cmd
}
