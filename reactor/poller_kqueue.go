//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller wraps kqueue(2), grounded on eventloop/poller_darwin.go's
// FastPoller (unix.Kqueue / unix.Kevent_t). Change-list batching is not
// offered on this backend: kqueue's own kevent(2) call already accepts a
// changelist atomically per call, so there is nothing to amortize by
// deferring registration further.
type kqueuePoller struct {
	kq     int
	events []unix.Kevent_t
}

func newKqueuePoller() (*kqueuePoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("reactor: kqueue: %w", err)
	}
	return &kqueuePoller{kq: kq, events: make([]unix.Kevent_t, 256)}, nil
}

func (p *kqueuePoller) name() string { return "kqueue" }

func (p *kqueuePoller) apply(fd int, mask pollMask, flags uint16) error {
	var changes []unix.Kevent_t
	if mask&pollRead != 0 || flags&unix.EV_DELETE != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags,
		})
	}
	if mask&pollWrite != 0 || flags&unix.EV_DELETE != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags,
		})
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	if err != nil {
		return fmt.Errorf("reactor: kevent: %w", err)
	}
	return nil
}

func (p *kqueuePoller) Add(fd int, mask pollMask, edgeTriggered bool) error {
	flags := uint16(unix.EV_ADD | unix.EV_ENABLE)
	if edgeTriggered {
		flags |= unix.EV_CLEAR
	}
	return p.apply(fd, mask, flags)
}

func (p *kqueuePoller) Modify(fd int, mask pollMask) error {
	// kqueue has no single "modify" op: disable both filters, then
	// re-enable the ones requested.
	if err := p.apply(fd, pollRead|pollWrite, unix.EV_DELETE); err != nil {
		return err
	}
	return p.apply(fd, mask, unix.EV_ADD|unix.EV_ENABLE)
}

func (p *kqueuePoller) Del(fd int) error {
	return p.apply(fd, pollRead|pollWrite, unix.EV_DELETE)
}

func (p *kqueuePoller) Wait(deadline time.Time) ([]readyFD, error) {
	var ts *unix.Timespec
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d < 0 {
			d = 0
		}
		t := unix.NsecToTimespec(int64(d))
		ts = &t
	}

	n, err := unix.Kevent(p.kq, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: kevent wait: %w", err)
	}

	merged := make(map[int]pollMask, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		fd := int(e.Ident)
		switch e.Filter {
		case unix.EVFILT_READ:
			merged[fd] |= pollRead
		case unix.EVFILT_WRITE:
			merged[fd] |= pollWrite
		}
		if e.Flags&unix.EV_EOF != 0 {
			merged[fd] |= pollHangup
		}
		if e.Flags&unix.EV_ERROR != 0 {
			merged[fd] |= pollError
		}
	}
	out := make([]readyFD, 0, len(merged))
	for fd, m := range merged {
		out = append(out, readyFD{fd: fd, mask: m})
	}
	return out, nil
}

func (p *kqueuePoller) Capabilities() Capabilities {
	return Capabilities{
		SupportsEdgeTriggered:     true,
		SupportsO1Readiness:       true,
		SupportsFDsNotJustSockets: true,
		SupportsEarlyClose:        false,
	}
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}

func newPlatformPoller(c *config) (Poller, error) {
	return newKqueuePoller()
}

const platformBackendName = "kqueue"
