package bufferevent

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-reactor/reactor"
)

func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	return fds[0], fds[1]
}

// runUntil dispatches base in Once mode up to a deadline, stopping early
// once cond reports true.
func runUntil(t *testing.T, base *reactor.Base, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		if err := base.Dispatch(reactor.Once); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	if !cond() {
		t.Fatalf("condition not met before deadline")
	}
}

func TestSocketEchoRoundTrip(t *testing.T) {
	base, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	defer base.Free()

	fdA, fdB := socketpair(t)

	client := NewSocket(base, fdA)
	client.SetCloseOnFree(true)
	server := NewSocket(base, fdB)
	server.SetCloseOnFree(true)

	var received []byte
	server.SetCallbacks(func(be *BufferEvent) {
		buf := make([]byte, 4096)
		n, _ := be.Read(buf)
		received = append(received, buf[:n]...)
	}, nil, nil)

	if err := client.Enable(reactor.Read | reactor.Write); err != nil {
		t.Fatalf("client.Enable: %v", err)
	}
	if err := server.Enable(reactor.Read | reactor.Write); err != nil {
		t.Fatalf("server.Enable: %v", err)
	}

	if err := client.Write([]byte("hello reactor")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	runUntil(t, base, func() bool { return string(received) == "hello reactor" })
}

func TestSocketHighWatermarkStopsReading(t *testing.T) {
	base, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	defer base.Free()

	fdA, fdB := socketpair(t)

	client := NewSocket(base, fdA)
	client.SetCloseOnFree(true)
	server := NewSocket(base, fdB)
	server.SetCloseOnFree(true)

	server.SetWatermark(Reading, 0, 8)
	server.SetMaxSingleRead(4)
	if err := client.Enable(reactor.Write); err != nil {
		t.Fatalf("client.Enable: %v", err)
	}
	if err := server.Enable(reactor.Read); err != nil {
		t.Fatalf("server.Enable: %v", err)
	}

	if err := client.Write([]byte("0123456789abcdef")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	runUntil(t, base, func() bool { return server.GetInput().Length() > 0 })

	// Give the loop a few more iterations to make sure reading stayed
	// disabled once the high watermark was crossed, rather than draining
	// everything the socket had buffered.
	for i := 0; i < 5; i++ {
		_ = base.Dispatch(reactor.Once)
	}
	if server.GetInput().Length() > 8 {
		t.Fatalf("input grew past the high watermark: %d bytes", server.GetInput().Length())
	}
	if server.Enabled()&reactor.Read == 0 {
		t.Fatalf("expected Read to remain logically enabled even though the driver paused polling")
	}
}

func TestSocketEOFFiresEventCallback(t *testing.T) {
	base, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	defer base.Free()

	fdA, fdB := socketpair(t)

	client := NewSocket(base, fdA)
	client.SetCloseOnFree(true)
	server := NewSocket(base, fdB)
	server.SetCloseOnFree(true)

	var gotEOF bool
	server.SetCallbacks(nil, nil, func(be *BufferEvent, what reactor.Flag) {
		if what&reactor.EOF != 0 {
			gotEOF = true
		}
	})

	if err := server.Enable(reactor.Read); err != nil {
		t.Fatalf("server.Enable: %v", err)
	}
	if err := client.Decref(); err != nil {
		t.Fatalf("client.Decref: %v", err)
	}

	runUntil(t, base, func() bool { return gotEOF })
}
