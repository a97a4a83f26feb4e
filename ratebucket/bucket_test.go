package ratebucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFixedNow(t *testing.T, at time.Time) {
	t.Helper()
	old := nowFunc
	nowFunc = func() time.Time { return at }
	t.Cleanup(func() { nowFunc = old })
}

func TestUnlimitedBucket(t *testing.T) {
	b := NewUnlimited()
	granted, unlimited, ok := b.Available()
	assert.True(t, unlimited)
	assert.False(t, ok)
	assert.Zero(t, granted)
}

func TestLimitedBucketGrantsAndConsumes(t *testing.T) {
	now := time.Now()
	withFixedNow(t, now)

	b := NewLimited(10000)
	granted, unlimited, ok := b.Available()
	require.True(t, ok)
	assert.False(t, unlimited)
	assert.Equal(t, int64(10000), granted)

	// Immediately asking again at the same instant should find the
	// bucket drained.
	granted2, _, ok2 := b.Available()
	assert.False(t, ok2)
	assert.Zero(t, granted2)
}

func TestBucketRefillsOverTime(t *testing.T) {
	now := time.Now()
	withFixedNow(t, now)

	b := NewLimited(1000)
	_, _, ok := b.Available()
	require.True(t, ok)

	_, _, ok = b.Available()
	require.False(t, ok)

	withFixedNow(t, now.Add(1100*time.Millisecond))
	granted, _, ok := b.Available()
	require.True(t, ok)
	assert.InDelta(t, 1000, granted, 50)
}

func TestSetLimitOffMakesUnlimited(t *testing.T) {
	b := NewLimited(1000)
	assert.False(t, b.Unlimited())
	b.SetLimit(0)
	assert.True(t, b.Unlimited())
	assert.Equal(t, int64(0), b.Limit())
}

func TestGroupClampsChildGrant(t *testing.T) {
	now := time.Now()
	withFixedNow(t, now)

	group := NewGroup(500)
	child := NewLimited(10000)
	group.AddChild(child)

	granted, _, ok := child.Available()
	require.True(t, ok)
	assert.LessOrEqual(t, granted, int64(500))
}

func TestGroupRemoveBucketDetaches(t *testing.T) {
	group := NewGroup(100)
	child := NewLimited(10000)
	group.AddChild(child)
	group.RemoveBucket(child)
	assert.Nil(t, child.parent)
}

// P5 (rate conservation): the sum of bytes granted to the helper never
// exceeds the tokens taken from the bucket over the same interval.
func TestRateConservation(t *testing.T) {
	now := time.Now()
	withFixedNow(t, now)

	b := NewLimited(5000)
	var totalGranted int64
	for i := 0; i < 100; i++ {
		g, _, ok := b.Available()
		if !ok {
			break
		}
		totalGranted += g
	}
	assert.LessOrEqual(t, totalGranted, int64(5000))
}
