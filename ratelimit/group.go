package ratelimit

import (
	"sync"
	"time"
)

// Group is a shared token bucket plus a set of member streams, rotating
// a per-tick minimum-share reservation round-robin across members.
// Member identity is caller-supplied (typically a *bufferevent.BufferEvent)
// as an opaque comparable key, so this package does not depend on
// bufferevent. Structurally grounded on catrate.Limiter's
// map-of-categories-plus-ordered-membership shape, adapted from sliding-
// window event counts to token-bucket byte counts.
type Group struct {
	mu       sync.Mutex
	shared   *Bucket
	minShare int

	members   []any
	memberSet map[any]struct{}
	rotateIdx int

	tickStart          time.Time
	reservedRemaining  int
	privilegedServiced bool
}

// NewGroup creates a Group with the given shared bucket configuration and
// per-member minimum share (bytes guaranteed to the privileged member
// each tick while the group is oversubscribed).
func NewGroup(sharedCfg Config, minShare int) *Group {
	return &Group{
		shared:    NewBucket(sharedCfg),
		minShare:  minShare,
		memberSet: make(map[any]struct{}),
		tickStart: time.Now(),
	}
}

// AddMember enrolls id in the group's round-robin rotation. A stream
// belongs to at most one group; callers are responsible for that
// invariant.
func (g *Group) AddMember(id any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.memberSet[id]; ok {
		return
	}
	g.memberSet[id] = struct{}{}
	g.members = append(g.members, id)
}

// RemoveMember removes id from rotation. Removing the last member does
// not free the group or its shared bucket.
func (g *Group) RemoveMember(id any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.memberSet[id]; !ok {
		return
	}
	delete(g.memberSet, id)
	for i, m := range g.members {
		if m == id {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	if g.rotateIdx >= len(g.members) {
		g.rotateIdx = 0
	}
}

func (g *Group) privilegedLocked() any {
	if len(g.members) == 0 {
		return nil
	}
	return g.members[g.rotateIdx]
}

// rollTickLocked advances the rotation and resets the per-tick
// reservation whenever the shared bucket's tick boundary has passed.
func (g *Group) rollTickLocked(now time.Time) {
	tick := g.shared.cfg.tick()
	if now.Sub(g.tickStart) < tick {
		return
	}
	g.tickStart = now
	if len(g.members) > 0 {
		g.rotateIdx = (g.rotateIdx + 1) % len(g.members)
	}
	g.privilegedServiced = false
	reserved := g.minShare
	if tokens := g.shared.Tokens(); reserved > tokens {
		reserved = tokens
	}
	g.reservedRemaining = reserved
}

// Consume draws up to want bytes of allowance for member id from the
// group's shared bucket this tick. The shared bucket bounds total
// throughput across every member; the privileged member for
// this tick (rotated round-robin by insertion order) may additionally
// draw against a reservation of up to min_share bytes that other members
// cannot touch until the privileged member has had its turn, so that
// every member eventually gets at least min_share bytes per
// len(members) ticks even under sustained oversubscription.
func (g *Group) Consume(now time.Time, id any, want int) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.memberSet[id]; !ok {
		return 0
	}

	g.shared.Refill(now)
	g.rollTickLocked(now)

	limit := want
	if id == g.privilegedLocked() {
		g.privilegedServiced = true
	} else {
		reserved := g.reservedRemaining
		if g.privilegedServiced {
			reserved = 0
		}
		free := g.shared.Tokens() - reserved
		if free < 0 {
			free = 0
		}
		if limit > free {
			limit = free
		}
	}

	grant := g.shared.Consume(now, limit)
	if id == g.privilegedLocked() {
		g.reservedRemaining -= grant
		if g.reservedRemaining < 0 {
			g.reservedRemaining = 0
		}
	}
	return grant
}

// Members returns the current rotation order, for inspection/CRUD
// surfaces.
func (g *Group) Members() []any {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]any, len(g.members))
	copy(out, g.members)
	return out
}
