package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/X3n0m0rph59/precached/internal/control"
	"github.com/X3n0m0rph59/precached/internal/service"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the running daemon's configuration and static lists",
	RunE:  runReload,
}

var housekeepingCmd = &cobra.Command{
	Use:   "housekeeping",
	Short: "Trigger an immediate janitor pass on the running daemon",
	RunE:  runHousekeeping,
}

func init() {
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(housekeepingCmd)
}

func runReload(*cobra.Command, []string) error {
	return sendControlCommand(control.TypeReload, "reload")
}

func runHousekeeping(*cobra.Command, []string) error {
	return sendControlCommand(control.TypeDoHousekeeping, "housekeeping")
}

func sendControlCommand(t control.MessageType, label string) error {
	c, err := control.Dial(service.ControlSocketPath)
	if err != nil {
		return fmt.Errorf("precached is not running: %w", err)
	}
	defer c.Close()

	if err := c.Request(t, nil, nil); err != nil {
		return fmt.Errorf("%s request failed: %w", label, err)
	}
	fmt.Printf("%s triggered\n", label)
	return nil
}
