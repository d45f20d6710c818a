package utils

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemClockEveryStops(t *testing.T) {
	var ticks atomic.Int32
	stop := SystemClock().Every(5*time.Millisecond, func() { ticks.Add(1) })

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)

	stop()
	stop()
	settled := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, ticks.Load(), settled+1)
}

func TestManualClockFiresInOrder(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	var fired []string

	stopFast := clock.Every(time.Second, func() { fired = append(fired, "fast") })
	clock.Every(3*time.Second, func() { fired = append(fired, "slow") })

	clock.Advance(3 * time.Second)
	assert.Equal(t, []string{"fast", "fast", "fast", "slow"}, fired)
	assert.Equal(t, time.Unix(3, 0), clock.Now())
	assert.Equal(t, 1, clock.Active(time.Second))

	stopFast()
	fired = nil
	clock.Advance(3 * time.Second)
	assert.Equal(t, []string{"slow"}, fired)
	assert.Equal(t, 0, clock.Active(time.Second))
	assert.Equal(t, 2, clock.Started())
}
