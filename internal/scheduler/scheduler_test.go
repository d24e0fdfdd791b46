package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/TheCacophonyProject/powerflow/internal/power"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	ticks []Tick
}

func (r *recorder) sample(ctx context.Context, t Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, t)
}

func (r *recorder) all() []Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tick(nil), r.ticks...)
}

func (r *recorder) count() int {
	return len(r.all())
}

func slowConfig() Config {
	return Config{
		BackgroundInterval: time.Hour,
		ForegroundInterval: time.Hour,
		WarmupInterval:     time.Millisecond,
		WarmupSamples:      5,
		WarmupDeadline:     10 * time.Second,
	}
}

func start(t *testing.T, s *Scheduler) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not stop")
		}
	}
}

func TestWarmupExitsOnSampleBudget(t *testing.T) {
	rec := &recorder{}
	s := New(slowConfig(), rec.sample)
	finished := make(chan int, 1)
	s.OnWarmupDone(func(samples int) { finished <- samples })

	s.StartWarmup()
	stop := start(t, s)
	defer stop()

	select {
	case n := <-finished:
		assert.Equal(t, 5, n)
	case <-time.After(5 * time.Second):
		t.Fatal("warm-up did not finish")
	}
	assert.Equal(t, Background, s.Mode())
	assert.Equal(t, time.Hour, s.Interval())

	ticks := rec.all()
	require.GreaterOrEqual(t, len(ticks), 5)
	for _, tick := range ticks[:5] {
		assert.Equal(t, Warmup, tick.Mode)
		assert.Equal(t, power.Full, tick.Profile)
		assert.Equal(t, time.Millisecond, tick.Interval)
	}
}

func TestWarmupExitsOnDeadline(t *testing.T) {
	conf := slowConfig()
	conf.WarmupSamples = 100000
	conf.WarmupInterval = 5 * time.Millisecond
	conf.WarmupDeadline = 50 * time.Millisecond
	s := New(conf, (&recorder{}).sample)
	finished := make(chan int, 1)
	s.OnWarmupDone(func(samples int) { finished <- samples })

	s.StartWarmup()
	stop := start(t, s)
	defer stop()

	select {
	case n := <-finished:
		assert.Less(t, n, 100000)
		assert.Greater(t, n, 0)
	case <-time.After(5 * time.Second):
		t.Fatal("warm-up did not finish")
	}
}

func TestVisibilityChangesMode(t *testing.T) {
	rec := &recorder{}
	conf := slowConfig()
	conf.ForegroundInterval = 30 * time.Minute
	s := New(conf, rec.sample)
	stop := start(t, s)
	defer stop()

	s.SetVisible(true)
	assert.Eventually(t, func() bool { return s.Mode() == Foreground }, time.Second, time.Millisecond)
	assert.Equal(t, 30*time.Minute, s.Interval())
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	tick := rec.all()[0]
	assert.Equal(t, Foreground, tick.Mode)
	assert.Equal(t, power.Full, tick.Profile)

	s.SetVisible(false)
	assert.Eventually(t, func() bool { return s.Mode() == Background }, time.Second, time.Millisecond)
	assert.Equal(t, time.Hour, s.Interval())
}

func TestTriggerNowSamplesFull(t *testing.T) {
	rec := &recorder{}
	s := New(slowConfig(), rec.sample)
	stop := start(t, s)
	defer stop()

	s.TriggerNow()
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	tick := rec.all()[0]
	assert.True(t, tick.Triggered)
	assert.Equal(t, Background, tick.Mode)
	assert.Equal(t, power.Full, tick.Profile)
}

func TestBackgroundTicksUseSummary(t *testing.T) {
	rec := &recorder{}
	conf := slowConfig()
	conf.BackgroundInterval = 5 * time.Millisecond
	s := New(conf, rec.sample)
	stop := start(t, s)
	defer stop()

	assert.Eventually(t, func() bool { return rec.count() >= 2 }, 2*time.Second, time.Millisecond)
	for _, tick := range rec.all() {
		assert.Equal(t, power.Summary, tick.Profile)
		assert.False(t, tick.Triggered)
	}
}

func TestRequestsAfterStopDoNotBlock(t *testing.T) {
	s := New(slowConfig(), (&recorder{}).sample)
	stop := start(t, s)
	stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 40; i++ {
			s.SetVisible(i%2 == 0)
			s.StartWarmup()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SetVisible blocked after the scheduler stopped")
	}
}
