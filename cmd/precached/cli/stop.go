package cli

import (
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/X3n0m0rph59/precached/internal/lifecycle"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running precached daemon",
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(*cobra.Command, []string) error {
	pid, err := lifecycle.ReadPIDFile(lifecycle.PIDFile)
	if err != nil {
		return err
	}
	if pid == 0 || !lifecycle.IsAlive(pid) {
		fmt.Println("precached is not running")
		return nil
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !lifecycle.IsAlive(pid) {
			fmt.Println("precached stopped")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("precached (pid %d) did not exit within 10 seconds", pid)
}
