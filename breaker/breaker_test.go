package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(threshold int, recovery time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("test", threshold, recovery)
	b.now = func() time.Time { return now }
	return b, &now
}

func failing(ctx context.Context) error { return errBoom }

func succeeding(ctx context.Context) error { return nil }

func TestBreaker_OpensAfterThresholdFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, b.Call(context.Background(), failing), errBoom)
		assert.Equal(t, Closed, b.State())
	}

	require.ErrorIs(t, b.Call(context.Background(), failing), errBoom)
	assert.Equal(t, Open, b.State())
	assert.Equal(t, 3, b.Failures())
}

func TestBreaker_RejectsWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	require.ErrorIs(t, b.Call(context.Background(), failing), errBoom)
	require.Equal(t, Open, b.State())

	var invoked bool
	err := b.Call(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	require.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked, "operation must not run while open")
}

func TestBreaker_HalfOpenTrialSucceeds(t *testing.T) {
	b, now := newTestBreaker(2, time.Minute)
	require.Error(t, b.Call(context.Background(), failing))
	require.Error(t, b.Call(context.Background(), failing))
	require.Equal(t, Open, b.State())

	// Before the deadline the wrapped operation is never invoked.
	*now = now.Add(59 * time.Second)
	require.ErrorIs(t, b.Call(context.Background(), failing), ErrOpen)

	// At the deadline exactly one trial runs; success closes the breaker
	// and resets the counter.
	*now = now.Add(time.Second)
	require.NoError(t, b.Call(context.Background(), succeeding))
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreaker_HalfOpenTrialFails(t *testing.T) {
	b, now := newTestBreaker(2, time.Minute)
	require.Error(t, b.Call(context.Background(), failing))
	require.Error(t, b.Call(context.Background(), failing))

	*now = now.Add(time.Minute)
	require.ErrorIs(t, b.Call(context.Background(), failing), errBoom)

	// Back to open with the counter still at threshold and a fresh deadline.
	assert.Equal(t, Open, b.State())
	assert.Equal(t, 2, b.Failures())
	require.ErrorIs(t, b.Call(context.Background(), succeeding), ErrOpen)

	*now = now.Add(time.Minute)
	require.NoError(t, b.Call(context.Background(), succeeding))
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	require.Error(t, b.Call(context.Background(), failing))
	require.Error(t, b.Call(context.Background(), failing))
	require.NoError(t, b.Call(context.Background(), succeeding))
	assert.Equal(t, 0, b.Failures())

	// The earlier failures no longer count toward the threshold.
	require.Error(t, b.Call(context.Background(), failing))
	require.Error(t, b.Call(context.Background(), failing))
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_SingleHalfOpenTrialUnderConcurrency(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	require.Error(t, b.Call(context.Background(), failing))
	require.Equal(t, Open, b.State())

	*now = now.Add(time.Minute)

	var admitted atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Call(context.Background(), func(ctx context.Context) error {
				admitted.Add(1)
				<-release
				return nil
			})
		}()
	}

	// Give the goroutines a chance to race for admission.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load(), "only one half-open trial may be admitted")
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_NoLostFailureCounts(t *testing.T) {
	b, _ := newTestBreaker(1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_ = b.Call(context.Background(), failing)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, b.Failures())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
}
