// Package usersession detects interactive logins/logouts by polling
// /run/utmp (or /var/run/utmp) and emits UserLogin/UserLogout events.
//
// Grounded on original_source/src/util/utmpx.rs for the fixed-width utmp
// record layout and original_source/src/plugins/user_session.rs for the
// poll-and-diff login/logout detection. The original's Startup handler
// hardcoded uid 1000 as "assume the first user will log in subsequently" —
// replaced here with an actual /run/utmp scan at startup too, since a real
// scan costs nothing extra and removes a documented correctness bug (see
// DESIGN.md resolved ambiguities).
package usersession

import (
	"encoding/binary"
	"os"
)

// recordSize is sizeof(struct utmp) on Linux/glibc x86-64: 384 bytes,
// ending in a 20-byte reserved field.
const recordSize = 384

// utmpUserProcess is the ut_type value for an active login session (glibc
// <utmpx.h>: USER_PROCESS = 7).
const utmpUserProcess = 7

// Record is one parsed utmp entry.
type Record struct {
	Type int16
	PID  int32
	Line string
	User string
	Host string
}

// readUtmp parses every fixed-size record in path. A short trailing read
// (a partially-written record) is silently dropped rather than erroring,
// matching the original's best-effort scan.
func readUtmp(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []Record
	for off := 0; off+recordSize <= len(data); off += recordSize {
		rec := data[off : off+recordSize]
		records = append(records, parseRecord(rec))
	}
	return records, nil
}

// parseRecord decodes one 384-byte utmp struct:
//
//	int16  ut_type;      offset 0
//	[2]byte pad
//	int32  ut_pid;       offset 4
//	[32]byte ut_line;    offset 8
//	[4]byte  ut_id;      offset 40
//	[32]byte ut_user;    offset 44
//	[256]byte ut_host;   offset 76
//	(exit status, session, timestamps, addr, remainder pad) offset 332..384
func parseRecord(b []byte) Record {
	return Record{
		Type: int16(binary.LittleEndian.Uint16(b[0:2])),
		PID:  int32(binary.LittleEndian.Uint32(b[4:8])),
		Line: cstr(b[8:40]),
		User: cstr(b[44:76]),
		Host: cstr(b[76:332]),
	}
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
