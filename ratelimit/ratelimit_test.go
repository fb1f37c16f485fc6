package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketRefillClampsToBurst(t *testing.T) {
	start := time.Now()
	b := NewBucket(Config{Rate: 100, Burst: 100, TickLen: time.Second})
	b.Decrement(100)
	require.Equal(t, 0, b.Tokens())
	b.Refill(start.Add(5 * time.Second))
	assert.Equal(t, 100, b.Tokens(), "refill should clamp to burst")
}

func TestBucketConsumeNeverExceedsAvailable(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBucket(Config{Rate: 10, Burst: 10, TickLen: time.Second})
	assert.Equal(t, 10, b.Consume(now, 100))
	assert.Equal(t, 0, b.Consume(now, 5), "empty bucket grants nothing")
}

func TestGroupBoundsTotalThroughputAcrossMembers(t *testing.T) {
	g := NewGroup(Config{Rate: 1000, Burst: 1000, TickLen: time.Second}, 100)
	g.AddMember("a")
	g.AddMember("b")

	start := time.Now()
	total := 0
	for tick := 0; tick < 5; tick++ {
		now := start.Add(time.Duration(tick) * time.Second)
		total += g.Consume(now, "a", 5000)
		total += g.Consume(now, "b", 5000)
	}
	assert.LessOrEqual(t, total, 5000, "total granted over 5 ticks at rate 1000")
}

func TestGroupGuaranteesMinShareUnderOversubscription(t *testing.T) {
	g := NewGroup(Config{Rate: 100, Burst: 100, TickLen: time.Second}, 100)
	g.AddMember("greedy")
	g.AddMember("quiet")

	start := time.Now()
	quietTotal := 0
	for tick := 0; tick < 4; tick++ {
		now := start.Add(time.Duration(tick) * time.Second)
		// greedy always asks first and for everything available.
		g.Consume(now, "greedy", 1000)
		quietTotal += g.Consume(now, "quiet", 1000)
	}
	assert.Greater(t, quietTotal, 0, "quiet member should receive its reserved min_share on its rotation turn")
}

func TestRemoveMemberKeepsGroupAlive(t *testing.T) {
	g := NewGroup(Config{Rate: 10, Burst: 10, TickLen: time.Second}, 5)
	g.AddMember("only")
	g.RemoveMember("only")

	require.NotNil(t, g.shared, "shared bucket should survive member removal")
	assert.Equal(t, 0, g.Consume(time.Unix(0, 0), "only", 5), "removed member should get no allowance")
}
