package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/msageha/autopilot/internal/setup"
	"github.com/msageha/autopilot/internal/uds"
)

const stopPollInterval = 100 * time.Millisecond

func newStopCmd(flags *GlobalFlags) *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the running daemon to stop",
		Long: `Request a graceful stop over the control socket. Running commands are allowed
to finish. With --wait (the default) this returns once the daemon has exited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := projectRoot(flags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			socket := filepath.Join(setup.StateDir(root), uds.DefaultSocketName)

			resp, err := uds.NewClient(socket).SendCommand(uds.CommandShutdown)
			if errors.Is(err, uds.ErrNotRunning) {
				fmt.Fprintln(out, "autopilot is not running")
				return nil
			}
			if err != nil {
				return fmt.Errorf("request shutdown: %w", err)
			}
			if !resp.Success {
				if resp.Error == nil || resp.Error.Code != uds.ErrCodeShuttingDown {
					return fmt.Errorf("request shutdown: %s", errorMessage(resp))
				}
				fmt.Fprintln(out, "autopilot is already stopping")
			} else {
				fmt.Fprintln(out, "stop requested")
			}

			if !wait {
				return nil
			}
			if err := waitForExit(socket, timeout); err != nil {
				return err
			}
			fmt.Fprintln(out, "autopilot stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for the daemon to exit")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long --wait waits")
	return cmd
}

// waitForExit polls until the daemon removes its socket.
func waitForExit(socket string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(socket); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon still running after %s", timeout)
		}
		time.Sleep(stopPollInterval)
	}
}

func errorMessage(resp *uds.Response) string {
	if resp.Error == nil {
		return "unknown error"
	}
	return resp.Error.Code + ": " + resp.Error.Message
}
