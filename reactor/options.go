package reactor

import "fmt"

// config holds resolved construction options for a Base. Grounded on
// eventloop/options.go's loopOptions/LoopOption/resolveLoopOptions shape.
type config struct {
	priorityCount  int
	noLock         bool
	ignoreEnv      bool
	noCacheTime    bool
	preciseTimer   bool
	epollChangelist bool
	logger         Logger
	exitOnEmpty    bool
	dupSafe        bool

	disabledBackends map[string]bool
}

// Option configures a Base at construction time.
type Option interface {
	apply(*config) error
}

type optionFunc func(*config) error

func (f optionFunc) apply(c *config) error { return f(c) }

// WithPriorityCount sets the number of priority levels (1..256). Default
// is 1. The middle level (n/2) is the default priority assigned to new
// events that don't call SetPriority.
func WithPriorityCount(n int) Option {
	return optionFunc(func(c *config) error {
		if n < 1 || n > 256 {
			return fmt.Errorf("reactor: priority count %d outside 1..256", n)
		}
		c.priorityCount = n
		return nil
	})
}

// WithNoLock disables internal locking; only safe when the Base and all
// its events are used from a single goroutine.
func WithNoLock(v bool) Option {
	return optionFunc(func(c *config) error { c.noLock = v; return nil })
}

// WithIgnoreEnv skips reading REACTOR_* environment overrides.
func WithIgnoreEnv(v bool) Option {
	return optionFunc(func(c *config) error { c.ignoreEnv = v; return nil })
}

// WithNoCacheTime disables the per-iteration cached "now" timestamp,
// calling the monotonic clock on every use instead.
func WithNoCacheTime(v bool) Option {
	return optionFunc(func(c *config) error { c.noCacheTime = v; return nil })
}

// WithPreciseTimer requests the backend avoid any timer coalescing.
func WithPreciseTimer(v bool) Option {
	return optionFunc(func(c *config) error { c.preciseTimer = v; return nil })
}

// WithEpollChangelistBatching enables lazily-flushed add/mod/del batching
// on backends that support it (currently epoll). See WithDupSafe for the
// dup-aliasing caveat.
func WithEpollChangelistBatching(v bool) Option {
	return optionFunc(func(c *config) error { c.epollChangelist = v; return nil })
}

// WithDupSafe, when true, tells the poller backend that the caller
// warrants no dup()-derived fd aliasing will be registered, allowing the
// changelist batcher to coalesce operations across such fds. Default
// false: the batcher flushes on every op touching a detected dup alias.
func WithDupSafe(v bool) Option {
	return optionFunc(func(c *config) error { c.dupSafe = v; return nil })
}

// WithLogger installs a structured logger for base-level diagnostics.
func WithLogger(l Logger) Option {
	return optionFunc(func(c *config) error { c.logger = l; return nil })
}

// WithExitOnEmpty controls whether Dispatch returns as soon as there are
// no registered events and no pending timers (default true).
func WithExitOnEmpty(v bool) Option {
	return optionFunc(func(c *config) error { c.exitOnEmpty = v; return nil })
}

func resolveConfig(opts []Option) (*config, error) {
	c := &config{
		priorityCount: 1,
		exitOnEmpty:   true,
		logger:        noopLogger{},
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o.apply(c); err != nil {
			return nil, err
		}
	}
	if !c.ignoreEnv {
		applyEnvOverrides(c)
	}
	return c, nil
}
