package reactor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// signalRegistry is the process-wide hand-off point from os/signal to
// whichever Base is next in line for a given signal number: multiple
// bases per process coordinate so that exactly one base receives each
// delivery, round-robin by base registration order for the same signal.
// Lazily initialized on first signal event.
var signalRegistry struct {
	mu       sync.Mutex
	started  map[int]bool        // signum -> bridge goroutine running
	waiters  map[int][]*Base     // signum -> bases in registration order
	rr       map[int]int         // signum -> next index to hand off to
	stopOnce map[int]chan struct{}
}

func ensureSignalRegistry() {
	if signalRegistry.started == nil {
		signalRegistry.started = make(map[int]bool)
		signalRegistry.waiters = make(map[int][]*Base)
		signalRegistry.rr = make(map[int]int)
		signalRegistry.stopOnce = make(map[int]chan struct{})
	}
}

// registerSignalBase registers base as a round-robin recipient of signum
// and starts the bridge goroutine for signum if this is the first
// registration for it.
func registerSignalBase(base *Base, signum int) {
	signalRegistry.mu.Lock()
	defer signalRegistry.mu.Unlock()
	ensureSignalRegistry()

	signalRegistry.waiters[signum] = append(signalRegistry.waiters[signum], base)

	if !signalRegistry.started[signum] {
		signalRegistry.started[signum] = true
		stop := make(chan struct{})
		signalRegistry.stopOnce[signum] = stop
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.Signal(signum))
		go bridgeSignal(signum, ch, stop)
	}
}

func unregisterSignalBase(base *Base, signum int) {
	signalRegistry.mu.Lock()
	defer signalRegistry.mu.Unlock()
	waiters := signalRegistry.waiters[signum]
	for i, b := range waiters {
		if b == base {
			signalRegistry.waiters[signum] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
}

// bridgeSignal runs for the lifetime of the process (or until stop is
// closed): on each OS signal delivery, it hands off to exactly one base
// currently registered for that signal, in round-robin order, by writing
// to that base's self-pipe and marking the signal's Event active.
func bridgeSignal(signum int, ch chan os.Signal, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ch:
			signalRegistry.mu.Lock()
			waiters := signalRegistry.waiters[signum]
			if len(waiters) == 0 {
				signalRegistry.mu.Unlock()
				continue
			}
			idx := signalRegistry.rr[signum] % len(waiters)
			signalRegistry.rr[signum] = idx + 1
			target := waiters[idx]
			signalRegistry.mu.Unlock()

			target.deliverSignal(signum)
		}
	}
}
