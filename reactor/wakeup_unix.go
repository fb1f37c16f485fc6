//go:build !windows

package reactor

import (
	"fmt"
	"syscall"
)

// selfPipe is the classic self-pipe wakeup trick: a real fd pair
// registered with the poller like any other fd, so that a write from any
// thread forces Wait to return even if no other readiness is pending.
type selfPipe struct {
	r, w int
}

func newSelfPipe() (*selfPipe, error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("reactor: self-pipe: %w", err)
	}
	_ = syscall.SetNonblock(fds[0], true)
	_ = syscall.SetNonblock(fds[1], true)
	return &selfPipe{r: fds[0], w: fds[1]}, nil
}

func (p *selfPipe) readFD() int { return p.r }

func (p *selfPipe) notify() {
	var b [1]byte
	_, _ = syscall.Write(p.w, b[:])
}

func (p *selfPipe) drain() {
	var buf [64]byte
	for {
		n, err := syscall.Read(p.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *selfPipe) close() error {
	_ = syscall.Close(p.w)
	return syscall.Close(p.r)
}
