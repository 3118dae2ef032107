package budget

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamwatch/streamwatch/internal/listing"
)

func newTestCounter(t *testing.T, cfg Config) *Counter {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c, err := NewCounter(cfg, logger)
	require.NoError(t, err)

	return c
}

// fixNow pins the counter's clock.
func fixNow(c *Counter, at time.Time) {
	c.now = func() time.Time { return at }
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults applied", cfg: Config{}, wantErr: false},
		{name: "valid explicit", cfg: Config{TargetUtilization: 0.5, MinDelay: time.Second}, wantErr: false},
		{name: "utilization above one", cfg: Config{TargetUtilization: 1.5}, wantErr: true},
		{name: "negative utilization", cfg: Config{TargetUtilization: -0.1}, wantErr: true},
		{name: "negative min delay", cfg: Config{MinDelay: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Positive(t, tt.cfg.TargetUtilization)
			assert.Positive(t, tt.cfg.MinDelay)
		})
	}
}

func TestCounter_NextDelay_UnobservedFallsBackToMinDelay(t *testing.T) {
	c := newTestCounter(t, Config{MinDelay: 2 * time.Second})
	h := c.Register()

	delay := c.NextDelay(h)

	// Jitter adds at most 1/16th on top of the floor.
	assert.GreaterOrEqual(t, delay, 2*time.Second)
	assert.LessOrEqual(t, delay, 2*time.Second+2*time.Second/16+time.Millisecond)
}

func TestCounter_NextDelay_StaleWindowFallsBackToMinDelay(t *testing.T) {
	c := newTestCounter(t, Config{MinDelay: time.Second})
	h := c.Register()

	now := time.Now()
	fixNow(c, now)
	c.Observe(listing.RateWindow{Capacity: 60, Remaining: 60, ResetAt: now.Add(60 * time.Second)})

	// The window reset passed with no fresh observation.
	fixNow(c, now.Add(2*time.Minute))

	delay := c.NextDelay(h)

	assert.GreaterOrEqual(t, delay, time.Second)
	assert.LessOrEqual(t, delay, time.Second+time.Second/16+time.Millisecond)
}

// Scenario from the drawing board: 60 calls, 90% target, 3 pollers, window
// resets in 60s. Per-poller spacing should be 60s / (54/3) = ~3.33s.
func TestCounter_NextDelay_DividesBudgetAcrossPollers(t *testing.T) {
	c := newTestCounter(t, Config{TargetUtilization: 0.9, MinDelay: 100 * time.Millisecond})

	h1 := c.Register()
	c.Register()
	c.Register()

	now := time.Now()
	fixNow(c, now)
	c.Observe(listing.RateWindow{Capacity: 60, Remaining: 60, ResetAt: now.Add(60 * time.Second)})

	delay := c.NextDelay(h1)

	base := 60 * time.Second / 18

	assert.GreaterOrEqual(t, delay, base)
	assert.LessOrEqual(t, delay, base+base/16+time.Millisecond)
}

func TestCounter_NextDelay_NeverNegativeAndBounded(t *testing.T) {
	c := newTestCounter(t, Config{MinDelay: 50 * time.Millisecond})
	h := c.Register()

	now := time.Now()
	fixNow(c, now)

	windows := []listing.RateWindow{
		{Capacity: 0, Remaining: 0, ResetAt: now.Add(10 * time.Second)},
		{Capacity: 60, Remaining: 1, ResetAt: now.Add(30 * time.Second)},
		{Capacity: 60, Remaining: 60, ResetAt: now.Add(60 * time.Second)},
		{Capacity: 1000, Remaining: 400, ResetAt: now.Add(90 * time.Second)},
	}

	for _, rw := range windows {
		c.Observe(rw)

		delay := c.NextDelay(h)
		assert.GreaterOrEqual(t, delay, time.Duration(0))
	}
}

// Aggregate expected usage across k pollers must stay under the target
// fraction of the window for any k.
func TestCounter_NextDelay_AggregateUsageUnderTarget(t *testing.T) {
	const (
		capacity = 60
		target   = 0.9
	)

	for _, k := range []int{1, 2, 5, 20} {
		c := newTestCounter(t, Config{TargetUtilization: target, MinDelay: time.Millisecond})

		handles := make([]*Handle, k)
		for i := range handles {
			handles[i] = c.Register()
		}

		now := time.Now()
		fixNow(c, now)

		timeToReset := 60 * time.Second
		c.Observe(listing.RateWindow{Capacity: capacity, Remaining: capacity, ResetAt: now.Add(timeToReset)})

		var expectedUses float64

		for _, h := range handles {
			delay := c.NextDelay(h)
			require.Positive(t, delay, "k=%d", k)

			expectedUses += float64(timeToReset) / float64(delay)
		}

		assert.LessOrEqualf(t, expectedUses, target*capacity+float64(k),
			"k=%d: combined expected usage %f above target budget", k, expectedUses)
	}
}

func TestCounter_Unregister_ImmediatelyWidensPerPollerShare(t *testing.T) {
	c := newTestCounter(t, Config{TargetUtilization: 0.9, MinDelay: time.Millisecond})

	h1 := c.Register()
	h2 := c.Register()
	h3 := c.Register()

	now := time.Now()
	fixNow(c, now)
	c.Observe(listing.RateWindow{Capacity: 60, Remaining: 60, ResetAt: now.Add(60 * time.Second)})

	before := c.NextDelay(h1)

	c.Unregister(h2)
	c.Unregister(h3)
	c.Unregister(h3) // idempotent
	c.Unregister(nil)

	after := c.NextDelay(h1)

	// With the same window state and fewer participants, the surviving
	// poller may fetch more often.
	assert.Less(t, after, before)
	assert.Equal(t, 1, c.Snapshot().Registered)
}

func TestCounter_Observe_AttributesDeltaToExternalConsumers(t *testing.T) {
	c := newTestCounter(t, Config{MinDelay: time.Millisecond})
	h := c.Register()

	now := time.Now()
	fixNow(c, now)
	c.Observe(listing.RateWindow{Capacity: 60, Remaining: 60, ResetAt: now.Add(60 * time.Second)})

	quiet := c.NextDelay(h)

	// One own call should leave 59 remaining; the service reports 55, so
	// four calls went to someone else.
	fixNow(c, now.Add(2*time.Second))
	c.Observe(listing.RateWindow{Capacity: 60, Remaining: 55, ResetAt: now.Add(60 * time.Second)})

	assert.Equal(t, 4, c.Snapshot().ObservedExternal)

	// Re-anchor the handle so elapsed-time credit does not skew the
	// comparison; external pressure must lengthen the delay.
	h2 := c.Register()
	busy := c.NextDelay(h2)

	assert.Greater(t, busy, quiet)
}

func TestCounter_Observe_WindowRolloverResetsExternalAccounting(t *testing.T) {
	c := newTestCounter(t, Config{MinDelay: time.Millisecond})
	c.Register()

	now := time.Now()
	fixNow(c, now)

	resetAt := now.Add(60 * time.Second)
	c.Observe(listing.RateWindow{Capacity: 60, Remaining: 60, ResetAt: resetAt})

	fixNow(c, now.Add(time.Second))
	c.Observe(listing.RateWindow{Capacity: 60, Remaining: 50, ResetAt: resetAt})
	assert.Equal(t, 9, c.Snapshot().ObservedExternal)

	// The reset timestamp moves forward: new window, fresh accounting.
	fixNow(c, now.Add(61*time.Second))
	c.Observe(listing.RateWindow{Capacity: 60, Remaining: 60, ResetAt: resetAt.Add(60 * time.Second)})

	state := c.Snapshot()
	assert.Equal(t, 0, state.ObservedExternal)
	assert.Equal(t, 60, state.Remaining)
}

func TestCounter_NextDelay_ExhaustedBudgetWaitsForReset(t *testing.T) {
	c := newTestCounter(t, Config{MinDelay: time.Millisecond})
	h := c.Register()

	now := time.Now()
	fixNow(c, now)
	c.Observe(listing.RateWindow{Capacity: 60, Remaining: 0, ResetAt: now.Add(30 * time.Second)})

	delay := c.NextDelay(h)

	// Fewer usable calls than pollers: the delay grows toward the full
	// time-to-reset instead of starving or hammering.
	assert.GreaterOrEqual(t, delay, 30*time.Second)
	assert.LessOrEqual(t, delay, 30*time.Second+30*time.Second/16+time.Millisecond)
}
