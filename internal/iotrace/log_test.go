package iotrace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSeedsSyntheticOpenEntry(t *testing.T) {
	l := New("/bin/cat", "cat", "/bin/cat", 4096)
	require.Len(t, l.TraceLog, 1)
	require.Equal(t, OpOpen, l.TraceLog[0].Operation)
	require.Equal(t, int64(4096), l.AccumulatedSize)
	require.Equal(t, []string{"/bin/cat"}, l.UniqueFiles())
}

func TestFingerprintDeterministic(t *testing.T) {
	a := FingerprintOf("/bin/cat", "/bin/cat file1 file2")
	b := FingerprintOf("/bin/cat", "/bin/cat file1 file2")
	require.Equal(t, a, b)

	c := FingerprintOf("/bin/cat", "/bin/cat other")
	require.NotEqual(t, a, c)
}

func TestShouldPersistFloor(t *testing.T) {
	l := New("/bin/cat", "cat", "/bin/cat", 100)
	require.False(t, l.ShouldPersist(), "below both length and size floor")

	for i := 0; i < 10; i++ {
		l.Add(OpRead, "/bin/cat", 3, 200*1024)
	}
	require.True(t, l.ShouldPersist())
}

func TestShouldPersistRequiresBothFloors(t *testing.T) {
	l := New("/bin/cat", "cat", "/bin/cat", 2<<20)
	require.False(t, l.ShouldPersist(), "only one entry, below MinTraceLogLength")
}

func TestAddTracksFileMapFirstSeenIndex(t *testing.T) {
	l := New("/bin/cat", "cat", "/bin/cat", 10)
	l.Add(OpOpen, "/etc/passwd", 3, 500)
	l.Add(OpRead, "/etc/passwd", 3, 500)
	l.Add(OpOpen, "/etc/group", 4, 100)

	require.Equal(t, 0, l.FileMap["/bin/cat"])
	require.Equal(t, 1, l.FileMap["/etc/passwd"])
	require.Equal(t, 2, l.FileMap["/etc/group"])
	require.Equal(t, []string{"/bin/cat", "/etc/passwd", "/etc/group"}, l.UniqueFiles())
}

func TestOptimizeCoalescesDuplicateOps(t *testing.T) {
	l := New("/bin/cat", "cat", "/bin/cat", 10)
	l.Add(OpRead, "/etc/passwd", 3, 100)
	l.Add(OpRead, "/etc/passwd", 3, 100)
	l.Add(OpRead, "/etc/passwd", 3, 100)

	require.Len(t, l.TraceLog, 4)
	l.Optimize()
	require.Len(t, l.TraceLog, 2) // synthetic open + single coalesced read
	require.True(t, l.Optimized)
}

func TestOptimizeIsIdempotent(t *testing.T) {
	l := New("/bin/cat", "cat", "/bin/cat", 10)
	l.Add(OpRead, "/etc/passwd", 3, 100)
	l.Add(OpRead, "/etc/passwd", 3, 100)

	l.Optimize()
	first := append([]Entry(nil), l.TraceLog...)
	l.Optimize()
	require.Equal(t, first, l.TraceLog)
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	l := New("/bin/cat", "cat", "/bin/cat file1", 4096)
	l.Add(OpRead, "/bin/cat", 3, 4096)
	l.Add(OpOpen, "/etc/ld.so.cache", 4, 12000)
	l.Stop()

	data, err := l.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	require.Equal(t, l.Hash, decoded.Hash)
	require.Equal(t, l.Exe, decoded.Exe)
	require.Equal(t, l.Cmdline, decoded.Cmdline)
	require.Equal(t, l.UniqueFiles(), decoded.UniqueFiles())
	require.Equal(t, l.AccumulatedSize, decoded.AccumulatedSize)
	require.NotNil(t, decoded.TraceStoppedAt)
}

