//go:build linux

package reactor

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller wraps epoll(7) (unix.EpollCreate1 / unix.EpollCtl /
// unix.EpollWait), with optional lazily-flushed changelist batching and
// a dup-alias caveat layered on top: a dup()'d fd shares the same
// underlying file description, so coalescing writes to it out of order
// relative to a non-batched fd can surprise callers unless dupSafe is
// set.
type epollPoller struct {
	epfd int

	mu      sync.Mutex
	batch   bool
	dupSafe bool
	changes []unix.EpollEvent
	ops     map[int]unix.EpollEvent // fd -> pending op, for coalescing
	aliases map[ino]int             // (dev,ino) -> fd last seen, to detect dup()

	events []unix.EpollEvent
}

type ino struct {
	dev, ino uint64
}

func newEpollPoller(batch, dupSafe bool) (*epollPoller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollPoller{
		epfd:    fd,
		batch:   batch,
		dupSafe: dupSafe,
		ops:     make(map[int]unix.EpollEvent),
		aliases: make(map[ino]int),
		events:  make([]unix.EpollEvent, 256),
	}, nil
}

func (p *epollPoller) name() string { return "epoll" }

func toEpollEvents(mask pollMask, edge bool) uint32 {
	var ev uint32
	if mask&pollRead != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&pollWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	ev |= unix.EPOLLRDHUP
	if edge {
		ev |= unix.EPOLLET
	}
	return ev
}

// detectAlias returns true if fd appears to be a dup() of an fd already
// tracked under a different number (same device/inode pair already
// mapped to a different fd). When detected and dupSafe is false, the
// batcher must flush immediately instead of coalescing.
func (p *epollPoller) detectAlias(fd int) bool {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false
	}
	key := ino{dev: uint64(st.Dev), ino: st.Ino}
	prev, ok := p.aliases[key]
	p.aliases[key] = fd
	return ok && prev != fd
}

func (p *epollPoller) queueOp(op int, fd int, mask pollMask, edge bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ev := unix.EpollEvent{Events: toEpollEvents(mask, edge), Fd: int32(fd)}

	aliased := p.detectAlias(fd)
	if !p.batch || (aliased && !p.dupSafe) {
		return p.flushOne(op, fd, ev)
	}
	p.ops[fd] = ev
	p.changes = append(p.changes, ev)
	_ = op // the op is re-derived as EPOLL_CTL_MOD-or-ADD at flush time
	return nil
}

func (p *epollPoller) flushOne(op int, fd int, ev unix.EpollEvent) error {
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl: %w", err)
	}
	return nil
}

// flush applies any batched changes. Called lazily before Wait.
func (p *epollPoller) flush() error {
	p.mu.Lock()
	ops := p.ops
	p.ops = make(map[int]unix.EpollEvent)
	p.changes = p.changes[:0]
	p.mu.Unlock()

	for fd, ev := range ops {
		e := ev
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &e); err != nil {
			if err == unix.ENOENT {
				if err2 := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &e); err2 != nil {
					return fmt.Errorf("reactor: epoll_ctl add: %w", err2)
				}
				continue
			}
			return fmt.Errorf("reactor: epoll_ctl mod: %w", err)
		}
	}
	return nil
}

func (p *epollPoller) Add(fd int, mask pollMask, edgeTriggered bool) error {
	return p.queueOp(unix.EPOLL_CTL_ADD, fd, mask, edgeTriggered)
}

func (p *epollPoller) Modify(fd int, mask pollMask) error {
	return p.queueOp(unix.EPOLL_CTL_MOD, fd, mask, false)
}

func (p *epollPoller) Del(fd int) error {
	p.mu.Lock()
	delete(p.ops, fd)
	p.mu.Unlock()
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT {
		return fmt.Errorf("reactor: epoll_ctl del: %w", err)
	}
	return nil
}

func (p *epollPoller) Wait(deadline time.Time) ([]readyFD, error) {
	if err := p.flush(); err != nil {
		return nil, err
	}
	timeoutMS := -1
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d < 0 {
			d = 0
		}
		timeoutMS = int(d / time.Millisecond)
	}

	n, err := unix.EpollWait(p.epfd, p.events, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	out := make([]readyFD, 0, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		var m pollMask
		if e.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
			m |= pollRead
		}
		if e.Events&unix.EPOLLOUT != 0 {
			m |= pollWrite
		}
		if e.Events&unix.EPOLLERR != 0 {
			m |= pollError
		}
		if e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			m |= pollHangup
		}
		out = append(out, readyFD{fd: int(e.Fd), mask: m})
	}
	return out, nil
}

func (p *epollPoller) Capabilities() Capabilities {
	return Capabilities{
		SupportsEdgeTriggered:     true,
		SupportsO1Readiness:       true,
		SupportsFDsNotJustSockets: true,
		SupportsEarlyClose:        true,
	}
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}

func newPlatformPoller(c *config) (Poller, error) {
	return newEpollPoller(c.epollChangelist, c.dupSafe)
}

const platformBackendName = "epoll"
