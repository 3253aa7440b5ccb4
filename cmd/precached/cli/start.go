package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/X3n0m0rph59/precached/internal/control"
	"github.com/X3n0m0rph59/precached/internal/lifecycle"
	"github.com/X3n0m0rph59/precached/internal/service"
)

var foreground bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the precached daemon",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVar(&foreground, "foreground", false, "run in the foreground instead of spawning a background daemon")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	if foreground {
		return runDaemon(cmd, args)
	}

	unlock, err := lifecycle.AcquireSpawnLock()
	if err != nil {
		return err
	}
	defer unlock()

	if pid, _ := lifecycle.ReadPIDFile(lifecycle.PIDFile); pid != 0 && lifecycle.IsAlive(pid) {
		fmt.Printf("precached is already running (pid %d)\n", pid)
		return nil
	}

	exe, err := resolveExecutable()
	if err != nil {
		return err
	}

	logPath := defaultDaemonLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("opening daemon log: %w", err)
	}
	defer logFile.Close()

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return fmt.Errorf("opening /dev/null: %w", err)
	}
	defer devNull.Close()

	procArgs := []string{exe, "_daemon", "--config", cfgPath}
	attr := &os.ProcAttr{
		Dir:   "/",
		Env:   os.Environ(),
		Files: []*os.File{devNull, logFile, logFile},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	}

	proc, err := os.StartProcess(exe, procArgs, attr)
	if err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}
	_ = proc.Release()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c, err := control.Dial(service.ControlSocketPath); err == nil {
			pingErr := c.Ping()
			c.Close()
			if pingErr == nil {
				fmt.Println("precached started")
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("daemon did not become ready within 5 seconds; see %s", logPath)
}

// resolveExecutable finds the precached binary to self-exec into the
// background daemon role, refusing to do so from a test binary.
func resolveExecutable() (string, error) {
	if exe := os.Getenv("PRECACHED_EXECUTABLE"); exe != "" {
		return exe, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("finding executable: %w", err)
	}
	if strings.HasSuffix(filepath.Base(exe), ".test") {
		return "", fmt.Errorf("daemon cannot be started from a test binary %q; set PRECACHED_EXECUTABLE", exe)
	}
	return exe, nil
}
