//go:build linux

package fstracer

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/X3n0m0rph59/precached/internal/iotrace"
	"github.com/X3n0m0rph59/precached/internal/logging"
)

// fanotifyBackend is the preferred Linux tracer back-end: a single
// process-wide fanotify group marked on the root mount, correlating
// events to pids via the kernel-populated Pid field in each event's
// metadata record. Grounded on procmon's netlink_linux.go readLoop idiom
// (own goroutine, unix.Read in a tight loop, decode, dispatch, repeat).
type fanotifyBackend struct {
	fd     int
	closed int32
	done   chan struct{}
}

func newBackend() backend {
	return &fanotifyBackend{}
}

func (b *fanotifyBackend) start(m *Manager) error {
	fd, err := unix.FanotifyInit(unix.FAN_CLASS_NOTIF|unix.FAN_CLOEXEC|unix.FAN_NONBLOCK, uint(os.O_RDONLY))
	if err != nil {
		return fmt.Errorf("fanotify_init: %w", err)
	}

	mask := uint64(unix.FAN_OPEN | unix.FAN_ACCESS | unix.FAN_CLOSE_WRITE | unix.FAN_CLOSE_NOWRITE | unix.FAN_EVENT_ON_CHILD)
	if err := unix.FanotifyMark(fd, unix.FAN_MARK_ADD|unix.FAN_MARK_MOUNT, mask, -1, "/"); err != nil {
		unix.Close(fd)
		return fmt.Errorf("fanotify_mark: %w", err)
	}

	b.fd = fd
	b.done = make(chan struct{})
	go b.readLoop(m)
	return nil
}

func (b *fanotifyBackend) stop() {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return
	}
	close(b.done)
	unix.Close(b.fd)
}

func (b *fanotifyBackend) readLoop(m *Manager) {
	log := logging.For("fstracer")
	buf := make([]byte, 4096)

	for {
		select {
		case <-b.done:
			return
		default:
		}

		n, err := unix.Read(b.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				continue
			}
			if atomic.LoadInt32(&b.closed) == 1 {
				return
			}
			log.Warn("fanotify read failed", "error", err)
			return
		}

		offset := 0
		for offset+unix.SizeofFanotifyEventMetadata <= n {
			meta := (*unix.FanotifyEventMetadata)(unsafe.Pointer(&buf[offset]))
			if meta.Vers != unix.FANOTIFY_METADATA_VERSION {
				log.Warn("fanotify metadata version mismatch, dropping tail")
				break
			}
			b.handleEvent(m, meta)
			offset += int(meta.Event_len)
		}
	}
}

func (b *fanotifyBackend) handleEvent(m *Manager, meta *unix.FanotifyEventMetadata) {
	fd := int(meta.Fd)
	if fd < 0 {
		return
	}
	defer unix.Close(fd)

	pid := int(meta.Pid)
	path, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd))
	if err != nil {
		return
	}

	op, size := classify(meta.Mask, path)
	m.observe(pid, op, path, fd, size)
}

func classify(mask uint64, path string) (iotrace.Operation, int64) {
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	switch {
	case mask&unix.FAN_CLOSE_WRITE != 0:
		return iotrace.OpWrite, size
	case mask&unix.FAN_CLOSE_NOWRITE != 0:
		return iotrace.OpClose, size
	case mask&unix.FAN_ACCESS != 0:
		return iotrace.OpRead, size
	default:
		return iotrace.OpOpen, size
	}
}
