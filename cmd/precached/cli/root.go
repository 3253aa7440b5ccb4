// Package cli implements the precached command-line interface using
// Cobra, grounded on _examples/majorcontext-moat/cmd/moat/cli/root.go's
// persistent-flags + PersistentPreRunE pattern.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/X3n0m0rph59/precached/internal/config"
	"github.com/X3n0m0rph59/precached/internal/logging"
)

// Exit codes, per spec.md: 0 success, 1 protocol/daemon error, 2 usage
// error.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
)

var (
	verbose bool
	jsonOut bool
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:           "precached",
	Short:         "precached - userspace page cache warmer",
	Long:          `precached traces per-executable file I/O and replays it ahead of time to warm the kernel page cache.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(logging.Options{
			Verbose:    verbose,
			JSONFormat: jsonOut,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath, "path to precached.conf")
}

// Execute runs the root command and translates the result into a process
// exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if ue, ok := err.(usageError); ok {
			_ = ue
			return ExitUsage
		}
		return ExitFailure
	}
	return ExitSuccess
}

// usageError marks an error as a CLI usage mistake (exit code 2) rather
// than a daemon/protocol failure (exit code 1).
type usageError struct{ error }

func newUsageError(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}
