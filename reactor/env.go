package reactor

import (
	"os"
	"strings"
)

// Environment variables read at Base construction unless WithIgnoreEnv(true)
// is set.
const (
	// EnvDisableBackends is a comma-separated list of backend names
	// ("epoll", "kqueue") to exclude from selection.
	EnvDisableBackends = "REACTOR_DISABLE_BACKENDS"
	// EnvEpollChangelist, if set to "1"/"true", enables changelist
	// batching on the epoll backend.
	EnvEpollChangelist = "REACTOR_EPOLL_CHANGELIST"
)

func applyEnvOverrides(c *config) {
	if v := os.Getenv(EnvEpollChangelist); v == "1" || strings.EqualFold(v, "true") {
		c.epollChangelist = true
	}
	c.disabledBackends = parseDisabledBackends(os.Getenv(EnvDisableBackends))
}

func parseDisabledBackends(v string) map[string]bool {
	if v == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, name := range strings.Split(v, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name != "" {
			out[name] = true
		}
	}
	return out
}
