package service

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/X3n0m0rph59/precached/internal/control"
	"github.com/X3n0m0rph59/precached/internal/iotrace"
)

func TestHandleBlacklistMarksMatchingTrace(t *testing.T) {
	store := openTestStore(t)
	d := &Daemon{store: store}

	l := iotrace.New("/bin/cat", "cat", "/bin/cat -n", 500*1024)
	for i := 0; i < 10; i++ {
		l.Add(iotrace.OpRead, "/bin/cat", 3, 100*1024)
	}
	require.NoError(t, store.Put(l, false))

	path := filepath.Join(store.Dir(), l.HashString()+".trace")
	raw, err := json.Marshal(blacklistRequest{Path: path, Enable: true})
	require.NoError(t, err)

	msgType, payload, err := d.handleBlacklist(raw)
	require.NoError(t, err)
	require.Equal(t, control.TypeBlacklisted, msgType)
	require.Equal(t, blacklistResponse{Matched: true}, payload)

	got, err := store.GetByExe("/bin/cat")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestHandleBlacklistUnknownPathReportsUnmatched(t *testing.T) {
	store := openTestStore(t)
	d := &Daemon{store: store}

	raw, err := json.Marshal(blacklistRequest{Path: "/no/such/artifact.trace", Enable: true})
	require.NoError(t, err)

	_, payload, err := d.handleBlacklist(raw)
	require.NoError(t, err)
	require.Equal(t, blacklistResponse{Matched: false}, payload)
}

func TestHandleBlacklistDryRunLeavesTraceReplayable(t *testing.T) {
	store := openTestStore(t)
	d := &Daemon{store: store}

	l := iotrace.New("/bin/cat", "cat", "/bin/cat -n", 500*1024)
	for i := 0; i < 10; i++ {
		l.Add(iotrace.OpRead, "/bin/cat", 3, 100*1024)
	}
	require.NoError(t, store.Put(l, false))
	path := filepath.Join(store.Dir(), l.HashString()+".trace")

	raw, err := json.Marshal(blacklistRequest{Path: path, Enable: true, DryRun: true})
	require.NoError(t, err)

	_, payload, err := d.handleBlacklist(raw)
	require.NoError(t, err)
	require.Equal(t, blacklistResponse{Matched: true}, payload)

	got, err := store.GetByExe("/bin/cat")
	require.NoError(t, err)
	require.NotNil(t, got)
}

