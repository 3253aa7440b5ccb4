//go:build linux

package procmon

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/X3n0m0rph59/precached/internal/logging"
)

// Wire constants for the Linux process-connector protocol. Bit-exact to
// <linux/cn_proc.h> / <linux/connector.h>.
const (
	netlinkConnector = 11 // NETLINK_CONNECTOR

	cnIdxProc = 0x1 // CN_IDX_PROC
	cnValProc = 0x1 // CN_VAL_PROC

	procCnMcastListen = 1 // PROC_CN_MCAST_LISTEN
	procCnMcastIgnore = 2 // PROC_CN_MCAST_IGNORE

	procEventNone = 0x00000000
	procEventFork = 0x00000001
	procEventExec = 0x00000002
	procEventExit = 0x80000000

	nlmsghdrLen = 16
	cnMsgLen    = 20
)

// Monitor owns the single process-global netlink proc-connector socket.
type Monitor struct {
	sock     int
	events   chan Event
	done     chan struct{}
	backoff  *reconnector
	dropped  int64
}

// New opens and subscribes the proc-connector socket. Failure here is
// fatal-init per spec (daemon startup should abort if this errors).
func New() (*Monitor, error) {
	sock, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM, netlinkConnector)
	if err != nil {
		return nil, fmt.Errorf("opening netlink connector socket: %w", err)
	}

	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: cnIdxProc, Pid: uint32(os.Getpid())}
	if err := unix.Bind(sock, addr); err != nil {
		_ = unix.Close(sock)
		return nil, fmt.Errorf("binding netlink connector socket: %w", err)
	}

	m := &Monitor{
		sock:    sock,
		events:  make(chan Event, 4096),
		done:    make(chan struct{}),
		backoff: newReconnector(),
	}

	if err := m.subscribe(true); err != nil {
		_ = unix.Close(sock)
		return nil, fmt.Errorf("subscribing to proc-connector multicast: %w", err)
	}

	go m.readLoop()

	return m, nil
}

// Events returns the channel of decoded process events. When the channel
// is full, the newly decoded event is dropped and a counter incremented
// rather than blocking the kernel read loop.
func (m *Monitor) Events() <-chan Event { return m.events }

// Dropped reports how many events have been discarded due to a full
// channel since startup.
func (m *Monitor) Dropped() int64 { return m.dropped }

// Close unsubscribes and releases the socket.
func (m *Monitor) Close() error {
	select {
	case <-m.done:
		return nil
	default:
		close(m.done)
	}
	_ = m.subscribe(false)
	return unix.Close(m.sock)
}

func (m *Monitor) subscribe(listen bool) error {
	op := uint32(procCnMcastListen)
	if !listen {
		op = procCnMcastIgnore
	}

	const bufLen = nlmsghdrLen + cnMsgLen + 4
	buf := make([]byte, bufLen)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(bufLen))    // nlmsg_len
	binary.LittleEndian.PutUint16(buf[4:6], uint16(unix.NLMSG_DONE)) // nlmsg_type
	binary.LittleEndian.PutUint16(buf[6:8], 0)                 // nlmsg_flags
	binary.LittleEndian.PutUint32(buf[8:12], 0)                // nlmsg_seq
	binary.LittleEndian.PutUint32(buf[12:16], uint32(os.Getpid()))

	off := nlmsghdrLen
	binary.LittleEndian.PutUint32(buf[off:off+4], cnIdxProc)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], cnValProc)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], 0) // seq
	binary.LittleEndian.PutUint32(buf[off+12:off+16], 0) // ack
	binary.LittleEndian.PutUint16(buf[off+16:off+18], 4) // len
	binary.LittleEndian.PutUint16(buf[off+18:off+20], 0) // flags

	binary.LittleEndian.PutUint32(buf[off+20:off+24], op)

	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Pid: 0, Groups: 0}
	return unix.Sendto(m.sock, buf, 0, sa)
}

func (m *Monitor) readLoop() {
	log := logging.For("procmon")
	buf := make([]byte, 4096)

	_ = unix.SetsockoptTimeval(m.sock, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &unix.Timeval{Sec: 1})

	consecutiveErrors := 0
	for {
		select {
		case <-m.done:
			return
		default:
		}

		n, _, err := unix.Recvfrom(m.sock, buf, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == syscall.EINTR {
				continue
			}
			consecutiveErrors++
			log.Warn("netlink recv error", "error", err, "consecutive", consecutiveErrors)
			if consecutiveErrors >= 10 {
				log.Error("netlink read loop giving up after repeated errors, attempting resync")
				if resyncErr := m.backoff.retry(func() error { return m.resync() }); resyncErr != nil {
					log.Error("netlink resync failed, exiting read loop", "error", resyncErr)
					return
				}
				consecutiveErrors = 0
			}
			continue
		}
		consecutiveErrors = 0

		ev, ok := parseMessage(buf[:n])
		if !ok {
			continue
		}

		select {
		case m.events <- ev:
		default:
			m.dropped++
		}
	}
}

func (m *Monitor) resync() error {
	if err := m.subscribe(false); err != nil {
		return err
	}
	return m.subscribe(true)
}

func parseMessage(buf []byte) (Event, bool) {
	if len(buf) < nlmsghdrLen+cnMsgLen+4 {
		return Event{}, false
	}

	off := nlmsghdrLen + cnMsgLen // start of proc_event
	if off+4 > len(buf) {
		return Event{}, false
	}
	what := binary.LittleEndian.Uint32(buf[off : off+4])
	// cpu (4 bytes) + timestamp (8 bytes) follow; skip to event_data.
	dataOff := off + 4 + 4 + 8
	if dataOff+4 > len(buf) {
		return Event{}, false
	}

	now := time.Now().UTC()

	switch what {
	case procEventFork:
		if dataOff+16 > len(buf) {
			return Event{}, false
		}
		parentPid := int(binary.LittleEndian.Uint32(buf[dataOff : dataOff+4]))
		childPid := int(binary.LittleEndian.Uint32(buf[dataOff+8 : dataOff+12]))
		return Event{Kind: KindFork, PID: childPid, PPID: parentPid, Timestamp: now}, true

	case procEventExec:
		if dataOff+8 > len(buf) {
			return Event{}, false
		}
		pid := int(binary.LittleEndian.Uint32(buf[dataOff : dataOff+4]))
		ev := Event{Kind: KindExec, PID: pid, Timestamp: now}
		enrichExecEvent(&ev)
		return ev, true

	case procEventExit:
		if dataOff+8 > len(buf) {
			return Event{}, false
		}
		pid := int(binary.LittleEndian.Uint32(buf[dataOff : dataOff+4]))
		return Event{Kind: KindExit, PID: pid, Timestamp: now}, true

	default:
		return Event{Kind: KindNothing, Timestamp: now}, true
	}
}

// enrichExecEvent best-effort populates Exe/Cmdline/WorkingDir/PPID from
// /proc. A process that has already exited yields zero values, never an
// error — the caller treats an under-populated exec event the same as a
// fully populated one and lets downstream StaticLists/FsTracer filtering
// drop it naturally.
func enrichExecEvent(ev *Event) {
	exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", ev.PID))
	if err == nil {
		ev.Exe = exe
	}

	if raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", ev.PID)); err == nil {
		parts := strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00")
		if len(parts) == 1 && parts[0] == "" {
			parts = nil
		}
		ev.Cmdline = parts
	}

	if cwd, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", ev.PID)); err == nil {
		ev.WorkingDir = cwd
	}

	if raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", ev.PID)); err == nil {
		for _, line := range strings.Split(string(raw), "\n") {
			if strings.HasPrefix(line, "PPid:") {
				fields := strings.Fields(line)
				if len(fields) == 2 {
					if ppid, err := strconv.Atoi(fields[1]); err == nil {
						ev.PPID = ppid
					}
				}
				break
			}
		}
	}
}
