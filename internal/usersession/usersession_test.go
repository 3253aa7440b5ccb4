package usersession

import (
	"encoding/binary"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/X3n0m0rph59/precached/internal/eventbus"
)

func buildRecord(t *testing.T, recType int16, username string) []byte {
	t.Helper()
	rec := make([]byte, recordSize)
	binary.LittleEndian.PutUint16(rec[0:2], uint16(recType))
	binary.LittleEndian.PutUint32(rec[4:8], 1234)
	copy(rec[44:76], username)
	return rec
}

func writeUtmp(t *testing.T, usernames ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "utmp")
	var data []byte
	for _, u := range usernames {
		data = append(data, buildRecord(t, utmpUserProcess, u)...)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func currentUsername(t *testing.T) string {
	t.Helper()
	u, err := user.Current()
	require.NoError(t, err)
	return u.Username
}

func hasKindUser(events []eventbus.InternalEvent, kind eventbus.InternalEventKind, user string) bool {
	for _, ev := range events {
		if ev.Kind == kind && ev.User == user {
			return true
		}
	}
	return false
}

func TestPollDetectsNewLogin(t *testing.T) {
	me := currentUsername(t)
	path := writeUtmp(t, me)

	tr := New().WithUtmpPath(path)
	events, err := tr.Poll()
	require.NoError(t, err)
	require.True(t, hasKindUser(events, eventbus.EventUserLogin, me))
	require.Contains(t, tr.LoggedIn(), me)
}

func TestPollIsIdempotentOnceSeen(t *testing.T) {
	me := currentUsername(t)
	path := writeUtmp(t, me)

	tr := New().WithUtmpPath(path)
	_, err := tr.Poll()
	require.NoError(t, err)

	events, err := tr.Poll()
	require.NoError(t, err)
	require.False(t, hasKindUser(events, eventbus.EventUserLogin, me))
}

func TestPollDetectsLogout(t *testing.T) {
	me := currentUsername(t)
	loginPath := writeUtmp(t, me)

	tr := New().WithUtmpPath(loginPath)
	_, err := tr.Poll()
	require.NoError(t, err)

	logoutPath := writeUtmp(t) // nobody logged in anymore
	tr.WithUtmpPath(logoutPath)
	events, err := tr.Poll()
	require.NoError(t, err)
	require.True(t, hasKindUser(events, eventbus.EventUserLogout, me))
	require.NotContains(t, tr.LoggedIn(), me)
}

func TestPollIgnoresNonUserProcessRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "utmp")
	data := buildRecord(t, 2 /* BootTime */, "reboot")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tr := New().WithUtmpPath(path)
	events, err := tr.Poll()
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestPollSpuriousUnknownUserStillTracked(t *testing.T) {
	path := writeUtmp(t, "no-such-user-xyz")

	tr := New().WithUtmpPath(path)
	events, err := tr.Poll()
	require.NoError(t, err)
	require.True(t, hasKindUser(events, eventbus.EventUserLogin, "no-such-user-xyz"))
}

func TestPollMissingFile(t *testing.T) {
	tr := New().WithUtmpPath("/does/not/exist")
	_, err := tr.Poll()
	require.Error(t, err)
}
