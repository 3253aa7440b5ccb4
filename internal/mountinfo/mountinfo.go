// Package mountinfo parses /proc/<pid>/mountinfo, used by callers that
// need to know which device backs a given mount point (e.g. to apply a
// per-device prefetch policy: spinning disk vs SSD vs tmpfs).
//
// Grounded on original_source/src/util/mountinfo.rs (same five leading
// fields: id, parent id, major:minor, source, dest).
package mountinfo

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MountInfo is one parsed mountinfo row's leading fields. The remaining
// mountinfo fields (optional tags, filesystem type, mount options) are not
// needed by any SPEC_FULL component and are not parsed.
type MountInfo struct {
	ID       int
	ParentID int
	Major    int
	Minor    int
	Source   string
	Dest     string
}

// Parse reads and parses /proc/<pid>/mountinfo.
func Parse(pid int) ([]MountInfo, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/mountinfo", pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseReader(f)
}

func parseReader(f *os.File) ([]MountInfo, error) {
	var result []MountInfo
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, " ")
		if len(fields) < 5 {
			continue
		}

		id, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		parentID, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		majorMinor := strings.SplitN(fields[2], ":", 2)
		if len(majorMinor) != 2 {
			continue
		}
		major, err := strconv.Atoi(majorMinor[0])
		if err != nil {
			continue
		}
		minor, err := strconv.Atoi(majorMinor[1])
		if err != nil {
			continue
		}

		result = append(result, MountInfo{
			ID:       id,
			ParentID: parentID,
			Major:    major,
			Minor:    minor,
			Source:   fields[3],
			Dest:     fields[4],
		})
	}
	return result, scanner.Err()
}

// DeviceFor returns the mount entry whose Dest is the longest prefix match
// of path, i.e. the mount that actually backs path.
func DeviceFor(mounts []MountInfo, path string) (MountInfo, bool) {
	best := MountInfo{}
	found := false
	bestLen := -1
	for _, m := range mounts {
		if !strings.HasPrefix(path, m.Dest) {
			continue
		}
		// "/home" backs "/home/x" but not "/homework/x".
		if len(path) > len(m.Dest) && !strings.HasSuffix(m.Dest, "/") && path[len(m.Dest)] != '/' {
			continue
		}
		if len(m.Dest) > bestLen {
			best = m
			bestLen = len(m.Dest)
			found = true
		}
	}
	return best, found
}
