package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/X3n0m0rph59/precached/internal/lifecycle"
	"github.com/X3n0m0rph59/precached/internal/logging"
	"github.com/X3n0m0rph59/precached/internal/service"
)

// daemonCmd is the hidden subcommand `start` self-execs into, matching
// moat's `_daemon` pattern: the foreground process, running under its own
// session, that actually builds and runs the Daemon.
var daemonCmd = &cobra.Command{
	Use:    "_daemon",
	Hidden: true,
	Short:  "Run the precached daemon in the foreground (internal use)",
	RunE:   runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	log := logging.For("cli")

	// Capability state is per-OS-thread on Linux; the privilege drop
	// below must happen on the thread that will run the main loop, and
	// that thread must never be handed back to the Go scheduler's pool.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	d, err := service.New(cfgPath)
	if err != nil {
		return err
	}

	if os.Geteuid() == 0 {
		if err := d.DropPrivileges(); err != nil {
			return err
		}
	} else {
		log.Warn("not running as root, skipping privilege drop")
	}

	if err := lifecycle.WritePIDFile(lifecycle.PIDFile); err != nil {
		return err
	}
	defer lifecycle.RemovePIDFile(lifecycle.PIDFile)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				log.Info("received SIGHUP, reloading configuration")
				if err := d.Reload(); err != nil {
					log.Warn("configuration reload failed", "error", err)
				}
				continue
			}
			log.Info("received shutdown signal")
			cancel()
			return
		}
	}()

	err = d.Run(ctx)
	if err != nil && ctx.Err() != nil {
		return nil // a canceled-by-signal Run isn't a failure
	}
	return err
}

func defaultDaemonLogPath() string {
	return filepath.Join(filepath.Dir(lifecycle.PIDFile), "precached.log")
}
