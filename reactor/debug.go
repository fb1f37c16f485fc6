package reactor

import "sync"

// debugState is the process-wide debug-mode singleton. Debug mode must
// be set before any Base is created; once the first Base is created the
// flag is latched and further changes are ignored.
var debugState struct {
	mu      sync.Mutex
	enabled bool
	latched bool
	tags    map[*Event]struct{}
}

// EnableDebugMode turns on cross-base assertions: re-adding a pending
// event aborts via the fatal hook instead of returning an error. Use of
// an Event that was not created by a constructor is not detected. Must
// be called before any Base is created in the process; calling it
// afterwards is a no-op.
func EnableDebugMode() {
	debugState.mu.Lock()
	defer debugState.mu.Unlock()
	if debugState.latched {
		return
	}
	debugState.enabled = true
}

func debugModeEnabled() bool {
	debugState.mu.Lock()
	defer debugState.mu.Unlock()
	debugState.latched = true
	return debugState.enabled
}

func registerDebugTag(ev *Event) {
	debugState.mu.Lock()
	defer debugState.mu.Unlock()
	debugState.latched = true
	if debugState.tags == nil {
		debugState.tags = make(map[*Event]struct{})
	}
	debugState.tags[ev] = struct{}{}
}

func debugTagged(ev *Event) bool {
	debugState.mu.Lock()
	defer debugState.mu.Unlock()
	_, ok := debugState.tags[ev]
	return ok
}

// FatalHook is invoked by debug-mode assertion failures before the
// process terminates. Overridable for testing.
var FatalHook = func(err error) {
	panic(err)
}
