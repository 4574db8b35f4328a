// Package throttle provides the adaptive per-pipeline delay controller that
// paces every external call. The delay grows multiplicatively on throttle and
// error signals and decays slowly after a sustained run of successes, so
// steady-state latency stays low while bursts of rate limiting are absorbed
// without manual tuning.
package throttle

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Config holds the controller knobs. The defaults are empirically chosen;
// treat them as tunable, not optimal.
type Config struct {
	// Initial is the starting delay between requests. Default: 50ms.
	Initial time.Duration `yaml:"initial" mapstructure:"initial"`

	// Min and Max bound the delay. Defaults: 0 and 3s.
	Min time.Duration `yaml:"min" mapstructure:"min"`
	Max time.Duration `yaml:"max" mapstructure:"max"`

	// RaiseFloor is the minimum base the delay is raised from on a throttle
	// signal, so a fully decayed delay still escalates meaningfully.
	// Default: 50ms.
	RaiseFloor time.Duration `yaml:"raise_floor" mapstructure:"raise_floor"`

	// UpMultiplier scales the delay on throttle/error. Default: 1.6.
	UpMultiplier float64 `yaml:"up_multiplier" mapstructure:"up_multiplier"`

	// DownMultiplier scales the delay down after a full success window.
	// Default: 0.92.
	DownMultiplier float64 `yaml:"down_multiplier" mapstructure:"down_multiplier"`

	// SuccessWindow is the number of consecutive successes required before
	// one decay step. Default: 18.
	SuccessWindow int `yaml:"success_window" mapstructure:"success_window"`

	// JitterFraction randomizes each sleep by ±fraction of the delay.
	// Default: 0.15.
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() Config {
	return Config{
		Initial:        50 * time.Millisecond,
		Min:            0,
		Max:            3 * time.Second,
		RaiseFloor:     50 * time.Millisecond,
		UpMultiplier:   1.6,
		DownMultiplier: 0.92,
		SuccessWindow:  18,
		JitterFraction: 0.15,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Initial <= 0 {
		c.Initial = d.Initial
	}
	if c.Min < 0 {
		c.Min = 0
	}
	if c.Max <= 0 {
		c.Max = d.Max
	}
	if c.RaiseFloor <= 0 {
		c.RaiseFloor = d.RaiseFloor
	}
	if c.UpMultiplier <= 1 {
		c.UpMultiplier = d.UpMultiplier
	}
	if c.DownMultiplier <= 0 || c.DownMultiplier >= 1 {
		c.DownMultiplier = d.DownMultiplier
	}
	if c.SuccessWindow <= 0 {
		c.SuccessWindow = d.SuccessWindow
	}
	if c.JitterFraction < 0 {
		c.JitterFraction = 0
	}
	return c
}

// Controller is the throttle state machine. Safe for concurrent use; the
// delay and streak are guarded by a single mutex so concurrent callers
// observe one shared escalation sequence.
type Controller struct {
	mu     sync.Mutex
	cfg    Config
	delay  time.Duration
	streak int

	sleep func(context.Context, time.Duration)
	randf func() float64
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithSleeper overrides the sleep function, for deterministic tests.
func WithSleeper(fn func(context.Context, time.Duration)) ControllerOption {
	return func(c *Controller) { c.sleep = fn }
}

// WithRand overrides the jitter source, for deterministic tests.
func WithRand(fn func() float64) ControllerOption {
	return func(c *Controller) { c.randf = fn }
}

// New creates a Controller.
func New(cfg Config, opts ...ControllerOption) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:   cfg,
		delay: cfg.Initial,
		randf: rand.Float64,
	}
	c.sleep = func(ctx context.Context, d time.Duration) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Delay returns the current base delay.
func (c *Controller) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}

// Sleep blocks for the current delay ± jitter. Returns early if ctx is done.
func (c *Controller) Sleep(ctx context.Context) {
	c.mu.Lock()
	d := c.delay
	if c.cfg.JitterFraction > 0 && d > 0 {
		j := float64(d) * c.cfg.JitterFraction
		d = time.Duration(float64(d) + (c.randf()*2-1)*j)
	}
	c.mu.Unlock()

	if d <= 0 {
		return
	}
	c.sleep(ctx, d)
}

// OnSuccess records one successful call. After a full success window the
// delay decays one step and the streak resets.
func (c *Controller) OnSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.streak++
	if c.streak >= c.cfg.SuccessWindow {
		c.delay = maxDuration(c.cfg.Min, time.Duration(float64(c.delay)*c.cfg.DownMultiplier))
		c.streak = 0
	}
}

// OnThrottle records a rate-limit signal: the delay escalates and the
// success streak resets.
func (c *Controller) OnThrottle() {
	c.escalate()
}

// OnError records a transient upstream error; treated like a throttle signal.
func (c *Controller) OnError() {
	c.escalate()
}

func (c *Controller) escalate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := maxDuration(c.delay, c.cfg.RaiseFloor)
	c.delay = minDuration(c.cfg.Max, time.Duration(float64(base)*c.cfg.UpMultiplier))
	c.streak = 0
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
