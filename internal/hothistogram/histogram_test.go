package hothistogram

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordExecIncrementsStrictlyMonotonic(t *testing.T) {
	h := New()
	require.Equal(t, int64(0), h.Count("/bin/cat"))
	h.RecordExec("/bin/cat")
	require.Equal(t, int64(1), h.Count("/bin/cat"))
	h.RecordExec("/bin/cat")
	require.Equal(t, int64(2), h.Count("/bin/cat"))
}

func TestZeroRemovesEntry(t *testing.T) {
	h := New()
	h.RecordExec("/bin/cat")
	h.Zero("/bin/cat")
	require.Equal(t, int64(0), h.Count("/bin/cat"))
	require.Empty(t, h.Ranked())
}

func TestRankedSortsDescendingWithTieBreak(t *testing.T) {
	h := New()
	h.RecordExec("/bin/b")
	h.RecordExec("/bin/a")
	h.RecordExec("/bin/a")

	ranked := h.Ranked()
	require.Equal(t, []Entry{
		{Path: "/bin/a", Count: 2},
		{Path: "/bin/b", Count: 1},
	}, ranked)
}

func TestPruneMissingRemovesDeletedPaths(t *testing.T) {
	h := New()
	h.RecordExec("/bin/gone")
	h.RecordExec("/bin/here")

	removed := h.PruneMissing(func(path string) bool { return path == "/bin/here" })
	require.Equal(t, 1, removed)
	require.Equal(t, int64(0), h.Count("/bin/gone"))
	require.Equal(t, int64(1), h.Count("/bin/here"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	h := New()
	h.RecordExec("/bin/cat")
	h.RecordExec("/bin/cat")
	h.RecordExec("/bin/ls")

	path := filepath.Join(t.TempDir(), "hot_applications.state")
	require.NoError(t, h.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(2), loaded.Count("/bin/cat"))
	require.Equal(t, int64(1), loaded.Count("/bin/ls"))
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "missing.state"))
	require.NoError(t, err)
	require.Empty(t, loaded.Ranked())
}

func TestDeletedMarkerTreatedAsDistinctPath(t *testing.T) {
	h := New()
	h.RecordExec("/bin/cat (deleted)")
	require.Equal(t, int64(1), h.Count("/bin/cat (deleted)"))
	require.Equal(t, int64(0), h.Count("/bin/cat"))
}
