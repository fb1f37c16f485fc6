package reactor

import (
	"math/rand/v2"
	"time"
)

// processPRNG is a process-wide seeded source, not intended for
// cryptographic use. Its one consumer today is genericPoller.Wait's
// busy-poll jitter; exposing it as a named package seam (rather than
// scattering rand.* calls) keeps a single swap point if a future caller
// needs deterministic sequencing in tests.
var processPRNG = rand.New(rand.NewPCG(seedFromTime(), seedFromTime()^0x9e3779b97f4a7c15))

func seedFromTime() uint64 {
	return uint64(time.Now().UnixNano())
}

// IntN returns a pseudo-random value in [0, n) from the process-wide
// source. Panics if n <= 0, matching math/rand/v2.
func IntN(n int) int { return processPRNG.IntN(n) }
