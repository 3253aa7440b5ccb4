package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/X3n0m0rph59/precached/internal/control"
	"github.com/X3n0m0rph59/precached/internal/service"
)

var (
	blacklistRemove bool
	blacklistDryRun bool
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist <trace-file>",
	Short: "Mark (or unmark) a trace artifact so it is never replayed",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlacklist,
}

func init() {
	blacklistCmd.Flags().BoolVar(&blacklistRemove, "remove", false, "unmark a previously blacklisted trace")
	blacklistCmd.Flags().BoolVar(&blacklistDryRun, "dry-run", false, "report whether the trace would be affected without changing anything")
	rootCmd.AddCommand(blacklistCmd)
}

func runBlacklist(_ *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return newUsageError("resolving trace path %q: %v", args[0], err)
	}

	c, err := control.Dial(service.ControlSocketPath)
	if err != nil {
		return fmt.Errorf("precached is not running: %w", err)
	}
	defer c.Close()

	req := struct {
		Path   string `json:"path"`
		Enable bool   `json:"enable"`
		DryRun bool   `json:"dry_run"`
	}{Path: path, Enable: !blacklistRemove, DryRun: blacklistDryRun}

	var resp struct {
		Matched bool `json:"matched"`
	}
	if err := c.Request(control.TypeBlacklist, req, &resp); err != nil {
		return fmt.Errorf("blacklist request failed: %w", err)
	}

	verb := "blacklisted"
	if blacklistRemove {
		verb = "unblacklisted"
	}
	if blacklistDryRun {
		verb = "would be " + verb
	}

	if !resp.Matched {
		fmt.Printf("no catalog entry for %s\n", path)
		return nil
	}
	fmt.Printf("%s: %s\n", path, verb)
	return nil
}
