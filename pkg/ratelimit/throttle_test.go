package ratelimit_test

import (
	"math"
	"testing"
	"time"

	"github.com/aretw0/arepl/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottler_LeadingCallRunsImmediately(t *testing.T) {
	rec := &recorder[int]{}
	th := ratelimit.NewThrottler(time.Hour, rec.record)

	th.Call(1)
	assert.Equal(t, []int{1}, rec.snapshot())

	th.Call(2)
	th.Call(3)
	assert.Equal(t, []int{1}, rec.snapshot(), "calls inside the window wait for the trailing run")
	th.Stop()
}

func TestThrottler_BurstIsBoundedAndDeliversLastArgumentOnce(t *testing.T) {
	rec := &recorder[int]{}
	interval := 40 * time.Millisecond
	th := ratelimit.NewThrottler(interval, rec.record)

	start := time.Now()
	const n = 20
	for i := 0; i < n; i++ {
		th.Call(i)
		time.Sleep(5 * time.Millisecond)
	}
	span := time.Since(start)

	require.Eventually(t, func() bool {
		calls := rec.snapshot()
		return len(calls) > 0 && calls[len(calls)-1] == n-1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(2 * interval)

	calls := rec.snapshot()
	limit := int(math.Ceil(float64(span)/float64(interval))) + 1
	assert.LessOrEqual(t, len(calls), limit)

	last := 0
	for _, c := range calls {
		if c == n-1 {
			last++
		}
	}
	assert.Equal(t, 1, last, "the final argument is delivered exactly once")
}

func TestThrottler_ForceBypassesWindow(t *testing.T) {
	rec := &recorder[string]{}
	th := ratelimit.NewThrottler(time.Hour, rec.record)

	th.Call("first")
	th.Call("queued")
	th.Force("forced")

	assert.Equal(t, []string{"first", "forced"}, rec.snapshot())
	th.Stop()
}

func TestThrottler_ZeroIntervalRunsEveryCall(t *testing.T) {
	rec := &recorder[int]{}
	th := ratelimit.NewThrottler(0, rec.record)

	for i := 0; i < 5; i++ {
		th.Call(i)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, rec.snapshot())
}

func TestThrottler_StopCancelsTrailingRun(t *testing.T) {
	rec := &recorder[int]{}
	th := ratelimit.NewThrottler(20*time.Millisecond, rec.record)

	th.Call(1)
	th.Call(2)
	th.Stop()
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, []int{1}, rec.snapshot())
}
