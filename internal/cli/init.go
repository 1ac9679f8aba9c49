package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msageha/autopilot/internal/setup"
)

func newInitCmd(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create .autopilot/ with a default configuration",
		Long: `Create the .autopilot/ directory in dir (default: the --dir flag) with a
config.yaml holding the built-in rules, ready to edit.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := flags.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			base, err := setup.Run(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Initialized autopilot in %s\n", base)
			fmt.Fprintf(out, "Edit %s/%s to adjust rules, then run `autopilot run`.\n", base, setup.ConfigFile)
			return nil
		},
	}
}
