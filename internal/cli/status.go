package cli

import (
	"github.com/spf13/cobra"

	"github.com/msageha/autopilot/internal/setup"
	"github.com/msageha/autopilot/internal/status"
)

func newStatusCmd(flags *GlobalFlags) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine state, counters and recent commands",
		Long: `Ask the running daemon for a live snapshot. When none is running, the last
status.yaml written is shown instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(flags)
			if err != nil {
				return err
			}
			return status.Run(setup.StateDir(root), jsonOutput, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	return cmd
}
