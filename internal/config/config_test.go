package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "precached.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "user: precached\ngroup: precached\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, defaultStateDir, cfg.StateDir)
	require.Equal(t, defaultIOTraceDir, cfg.IOTraceDir)
	require.Greater(t, cfg.ResolvedWorkerThreads, 0)
}

func TestLoadRequiresUser(t *testing.T) {
	path := writeConfig(t, "group: precached\n")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "user")
}

func TestLoadRejectsRelativeStateDir(t *testing.T) {
	path := writeConfig(t, "user: precached\nstate_dir: relative/path\n")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "state_dir")
}

func TestLoadRejectsAbsoluteIOTraceDir(t *testing.T) {
	path := writeConfig(t, "user: precached\niotrace_dir: /abs/iotrace\n")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "iotrace_dir")
}

func TestLoadExplicitWorkerThreads(t *testing.T) {
	path := writeConfig(t, "user: precached\nworker_threads: \"3\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.ResolvedWorkerThreads)
}

func TestLoadRejectsBadGlob(t *testing.T) {
	path := writeConfig(t, "user: precached\nblacklist:\n  - \"[\"\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestIOTraceAbsDir(t *testing.T) {
	path := writeConfig(t, "user: precached\nstate_dir: /var/lib/precached\niotrace_dir: traces\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/precached/traces", cfg.IOTraceAbsDir())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.conf"))
	require.Error(t, err)
}
