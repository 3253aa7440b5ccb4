package mountinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleMountinfo = `22 28 0:21 / /sys rw,nosuid,nodev,noexec,relatime shared:7 - sysfs sysfs rw
23 28 0:4 / /proc rw,nosuid,nodev,noexec,relatime shared:13 - proc proc rw
28 1 253:0 / / rw,relatime shared:1 - ext4 /dev/mapper/root rw,errors=remount-ro
45 28 253:1 / /home rw,relatime shared:2 - ext4 /dev/mapper/home rw
`

func writeSample(t *testing.T) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mountinfo")
	require.NoError(t, os.WriteFile(path, []byte(sampleMountinfo), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestParseReaderParsesLeadingFields(t *testing.T) {
	f := writeSample(t)
	mounts, err := parseReader(f)
	require.NoError(t, err)
	require.Len(t, mounts, 4)

	require.Equal(t, MountInfo{ID: 28, ParentID: 1, Major: 253, Minor: 0, Source: "/", Dest: "/"}, mounts[2])
	require.Equal(t, MountInfo{ID: 45, ParentID: 28, Major: 253, Minor: 1, Source: "/", Dest: "/home"}, mounts[3])
}

func TestDeviceForPicksLongestPrefix(t *testing.T) {
	f := writeSample(t)
	mounts, err := parseReader(f)
	require.NoError(t, err)

	m, ok := DeviceFor(mounts, "/home/alice/file.bin")
	require.True(t, ok)
	require.Equal(t, "/home", m.Dest)

	m, ok = DeviceFor(mounts, "/usr/bin/env")
	require.True(t, ok)
	require.Equal(t, "/", m.Dest)
}

func TestDeviceForNoMatch(t *testing.T) {
	_, ok := DeviceFor(nil, "/anything")
	require.False(t, ok)
}

func TestParseMissingProcess(t *testing.T) {
	_, err := Parse(-1)
	require.Error(t, err)
}
