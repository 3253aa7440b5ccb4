package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRemovePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "precached.pid")

	require.NoError(t, WritePIDFile(path))

	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), pid)

	require.NoError(t, RemovePIDFile(path))
	pid, err = ReadPIDFile(path)
	require.NoError(t, err)
	require.Equal(t, 0, pid)
}

func TestReadPIDFileMissing(t *testing.T) {
	pid, err := ReadPIDFile(filepath.Join(t.TempDir(), "nope.pid"))
	require.NoError(t, err)
	require.Equal(t, 0, pid)
}

func TestReadPIDFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	_, err := ReadPIDFile(path)
	require.Error(t, err)
}

func TestRemovePIDFileMissingIsNotAnError(t *testing.T) {
	require.NoError(t, RemovePIDFile(filepath.Join(t.TempDir(), "nope.pid")))
}

func TestIsAliveCurrentProcess(t *testing.T) {
	require.True(t, IsAlive(os.Getpid()))
}

func TestIsAliveInvalidPID(t *testing.T) {
	require.False(t, IsAlive(0))
	require.False(t, IsAlive(-1))
}

func TestIsAliveUnlikelyPID(t *testing.T) {
	// PID 2^22-ish is far beyond any realistic live process but still a
	// syntactically valid candidate; on most systems this probe fails.
	require.False(t, IsAlive(4194303))
}
