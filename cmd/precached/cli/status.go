package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/X3n0m0rph59/precached/internal/control"
	"github.com/X3n0m0rph59/precached/internal/service"
)

type statusOutput struct {
	Running          bool  `json:"running"`
	CatalogEntries   int   `json:"catalog_entries"`
	HistogramEntries int   `json:"histogram_entries"`
	CatalogSizeBytes int64 `json:"catalog_size_bytes"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon is running and summarize its catalog",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(*cobra.Command, []string) error {
	c, err := control.Dial(service.ControlSocketPath)
	if err != nil {
		out := statusOutput{Running: false}
		printStatus(out)
		return nil
	}
	defer c.Close()

	if err := c.Ping(); err != nil {
		printStatus(statusOutput{Running: false})
		return nil
	}

	var stats struct {
		TrackedProcesses int   `json:"tracked_processes"`
		CatalogEntries   int   `json:"catalog_entries"`
		HistogramEntries int   `json:"histogram_entries"`
		CatalogSizeBytes int64 `json:"catalog_size_bytes"`
	}
	if err := c.Request(control.TypeRequestGlobalStatistics, nil, &stats); err != nil {
		return fmt.Errorf("requesting statistics: %w", err)
	}

	printStatus(statusOutput{
		Running:          true,
		CatalogEntries:   stats.CatalogEntries,
		HistogramEntries: stats.HistogramEntries,
		CatalogSizeBytes: stats.CatalogSizeBytes,
	})
	return nil
}

func printStatus(out statusOutput) {
	if jsonOut {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}
	if !out.Running {
		fmt.Println("precached is not running")
		return
	}
	fmt.Printf("precached is running\n  catalog entries:   %d\n  histogram entries: %d\n  catalog size:      %d bytes\n",
		out.CatalogEntries, out.HistogramEntries, out.CatalogSizeBytes)
}
