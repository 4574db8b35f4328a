package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(cfg Config) (*Controller, *[]time.Duration) {
	var slept []time.Duration
	c := New(cfg,
		WithSleeper(func(_ context.Context, d time.Duration) { slept = append(slept, d) }),
		WithRand(func() float64 { return 0.5 }), // zero jitter offset
	)
	return c, &slept
}

func TestController_DelayStrictlyIncreasesOnThrottle(t *testing.T) {
	c, _ := newTestController(Config{})

	prev := c.Delay()
	for i := 0; i < 5; i++ {
		c.OnThrottle()
		cur := c.Delay()
		assert.Greater(t, cur, prev, "signal %d", i)
		prev = cur
	}
}

func TestController_DelayCappedAtMax(t *testing.T) {
	cfg := DefaultConfig()
	c, _ := newTestController(cfg)

	for i := 0; i < 50; i++ {
		c.OnThrottle()
	}
	assert.Equal(t, cfg.Max, c.Delay())
}

func TestController_SuccessWindowDecaysDelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SuccessWindow = 3
	c, _ := newTestController(cfg)

	c.OnThrottle()
	raised := c.Delay()

	// Two successes: streak below window, no decay yet.
	c.OnSuccess()
	c.OnSuccess()
	assert.Equal(t, raised, c.Delay())

	// Third success completes the window.
	c.OnSuccess()
	decayed := c.Delay()
	assert.Less(t, decayed, raised)

	// Streak reset: the next success alone must not decay again.
	c.OnSuccess()
	assert.Equal(t, decayed, c.Delay())
}

func TestController_ThrottleResetsStreak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SuccessWindow = 3
	c, _ := newTestController(cfg)

	c.OnSuccess()
	c.OnSuccess()
	c.OnThrottle()
	raised := c.Delay()

	// Window must restart from zero after the throttle signal.
	c.OnSuccess()
	c.OnSuccess()
	assert.Equal(t, raised, c.Delay())
	c.OnSuccess()
	assert.Less(t, c.Delay(), raised)
}

func TestController_NeverDecaysBelowMin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Min = 20 * time.Millisecond
	cfg.Initial = 25 * time.Millisecond
	cfg.SuccessWindow = 1
	c, _ := newTestController(cfg)

	for i := 0; i < 100; i++ {
		c.OnSuccess()
	}
	assert.Equal(t, cfg.Min, c.Delay())
}

func TestController_EscalationUsesRaiseFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Initial = 1 * time.Millisecond // fully decayed start
	c, _ := newTestController(cfg)

	c.OnThrottle()
	// Escalation applies the multiplier to the raise floor, not to 1ms.
	assert.GreaterOrEqual(t, c.Delay(), time.Duration(float64(cfg.RaiseFloor)*cfg.UpMultiplier))
}

func TestController_SleepUsesCurrentDelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JitterFraction = 0
	c, slept := newTestController(cfg)

	c.Sleep(context.Background())
	require.Len(t, *slept, 1)
	assert.Equal(t, cfg.Initial, (*slept)[0])
}

func TestController_SleepJitterBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Initial = 100 * time.Millisecond
	cfg.JitterFraction = 0.15

	var slept []time.Duration
	c := New(cfg,
		WithSleeper(func(_ context.Context, d time.Duration) { slept = append(slept, d) }),
		WithRand(func() float64 { return 1.0 }), // maximum positive jitter
	)
	c.Sleep(context.Background())

	require.Len(t, slept, 1)
	assert.InDelta(t, float64(115*time.Millisecond), float64(slept[0]), float64(time.Millisecond))
}

func TestController_ErrorSignalEscalates(t *testing.T) {
	c, _ := newTestController(Config{})
	before := c.Delay()
	c.OnError()
	assert.Greater(t, c.Delay(), before)
}
