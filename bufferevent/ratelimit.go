package bufferevent

import (
	"time"

	"github.com/joeycumines/go-reactor/ratelimit"
)

// streamLimiter is the per-BufferEvent rate-limiting state: an optional
// per-stream bucket and an optional group membership. A shared bucket
// is consulted first; per-stream buckets (if present) are consulted
// second; the smaller allowance wins.
type streamLimiter struct {
	read, write *ratelimit.Bucket
	group       *ratelimit.Group
}

func (l *streamLimiter) grant(be *BufferEvent, own *ratelimit.Bucket, want int) int {
	now := time.Now()
	if l.group != nil {
		want = min(want, l.group.Consume(now, be, want))
	}
	if own != nil {
		want = min(want, own.Consume(now, want))
	}
	return want
}

func (l *streamLimiter) grantRead(be *BufferEvent, want int) int {
	return l.grant(be, l.read, want)
}

func (l *streamLimiter) grantWrite(be *BufferEvent, want int) int {
	return l.grant(be, l.write, want)
}

// SetRateLimit installs per-stream read and write token buckets. A
// nil/zero Config for a direction leaves that direction unlimited.
func (be *BufferEvent) SetRateLimit(read, write *ratelimit.Config) {
	be.mu.Lock()
	defer be.mu.Unlock()
	if be.limiter == nil {
		be.limiter = &streamLimiter{}
	}
	if read != nil && *read != (ratelimit.Config{}) {
		be.limiter.read = ratelimit.NewBucket(*read)
	} else {
		be.limiter.read = nil
	}
	if write != nil && *write != (ratelimit.Config{}) {
		be.limiter.write = ratelimit.NewBucket(*write)
	} else {
		be.limiter.write = nil
	}
}

// JoinRateLimitGroup enrolls this stream in a shared rate-limit group.
// A stream belongs to at most one group; callers are responsible for
// that invariant.
func (be *BufferEvent) JoinRateLimitGroup(g *ratelimit.Group) {
	be.mu.Lock()
	if be.limiter == nil {
		be.limiter = &streamLimiter{}
	}
	be.limiter.group = g
	be.mu.Unlock()
	g.AddMember(be)
}

// LeaveRateLimitGroup removes this stream's group membership, if any.
func (be *BufferEvent) LeaveRateLimitGroup() {
	be.mu.Lock()
	l := be.limiter
	be.mu.Unlock()
	if l == nil || l.group == nil {
		return
	}
	l.group.RemoveMember(be)
	be.mu.Lock()
	l.group = nil
	be.mu.Unlock()
}
