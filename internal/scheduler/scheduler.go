// Package scheduler decides when to sample and how much to read.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/TheCacophonyProject/powerflow/internal/logging"
	"github.com/TheCacophonyProject/powerflow/internal/power"
)

var log = logging.NewLogger("info")

func SetLogger(l *logging.Logger) {
	log = l
}

type Mode int

const (
	Background Mode = iota
	Foreground
	Warmup
)

func (m Mode) String() string {
	switch m {
	case Foreground:
		return "foreground"
	case Warmup:
		return "warm-up"
	}
	return "background"
}

type Config struct {
	BackgroundInterval time.Duration `mapstructure:"background-interval"`
	ForegroundInterval time.Duration `mapstructure:"foreground-interval"`
	WarmupInterval     time.Duration `mapstructure:"warmup-interval"`
	WarmupSamples      int           `mapstructure:"warmup-samples"`
	WarmupDeadline     time.Duration `mapstructure:"warmup-deadline"`
}

func DefaultConfig() Config {
	return Config{
		BackgroundInterval: 30 * time.Second,
		ForegroundInterval: 2 * time.Second,
		WarmupInterval:     250 * time.Millisecond,
		WarmupSamples:      60,
		WarmupDeadline:     20 * time.Second,
	}
}

// Tick describes one sample to take.
type Tick struct {
	Mode     Mode
	Profile  power.Profile
	Interval time.Duration
	// Triggered is set for samples asked for out of band.
	Triggered bool
}

type SampleFunc func(ctx context.Context, tick Tick)

type requestKind int

const (
	reqSample requestKind = iota
	reqVisible
	reqWarmup
)

type request struct {
	kind    requestKind
	visible bool
}

// Scheduler runs every sample on one goroutine. Requests from other
// goroutines are queued onto it.
type Scheduler struct {
	conf     Config
	sample   SampleFunc
	requests chan request
	done     chan struct{}

	onWarmupDone func(samples int)

	mu   sync.Mutex
	mode Mode

	// Owned by the Run goroutine.
	visible        bool
	warmupSamples  int
	warmupDeadline time.Time
}

func New(conf Config, sample SampleFunc) *Scheduler {
	return &Scheduler{
		conf:     conf,
		sample:   sample,
		requests: make(chan request, 16),
		done:     make(chan struct{}),
		mode:     Background,
	}
}

// OnWarmupDone is called on the scheduler goroutine when warm-up exits.
func (s *Scheduler) OnWarmupDone(fn func(samples int)) {
	s.onWarmupDone = fn
}

func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Scheduler) setMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != m {
		log.Debugf("Sampling mode %s -> %s", s.mode, m)
	}
	s.mode = m
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval(s.Mode())
}

func (s *Scheduler) interval(m Mode) time.Duration {
	switch m {
	case Foreground:
		return s.conf.ForegroundInterval
	case Warmup:
		return s.conf.WarmupInterval
	}
	return s.conf.BackgroundInterval
}

func profileFor(m Mode) power.Profile {
	if m == Background {
		return power.Summary
	}
	return power.Full
}

// TriggerNow queues an immediate full sample. Extra triggers while one is
// already queued are dropped.
func (s *Scheduler) TriggerNow() {
	select {
	case s.requests <- request{kind: reqSample}:
	default:
		log.Debug("Sample request queue full, dropping trigger")
	}
}

// SetVisible and StartWarmup queue a mode change. Once Run has returned
// they are dropped.
func (s *Scheduler) SetVisible(visible bool) {
	s.send(request{kind: reqVisible, visible: visible})
}

func (s *Scheduler) StartWarmup() {
	s.send(request{kind: reqWarmup})
}

func (s *Scheduler) send(req request) {
	select {
	case s.requests <- req:
	case <-s.done:
		log.Debug("Scheduler stopped, dropping request")
	}
}

// Run samples until ctx is cancelled. A sample in progress is finished first.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()
	defer close(s.done)
	log.Infof("Sampling in %s mode every %s", s.Mode(), s.Interval())

	for {
		select {
		case <-ctx.Done():
			log.Debug("Scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx, ticker, false)
		case req := <-s.requests:
			s.handle(ctx, ticker, req)
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, ticker *time.Ticker, req request) {
	switch req.kind {
	case reqSample:
		s.tick(ctx, ticker, true)
	case reqVisible:
		if req.visible == s.visible {
			return
		}
		s.visible = req.visible
		if s.Mode() == Warmup {
			return
		}
		s.transition(ticker, s.restingMode())
		if s.visible {
			s.tick(ctx, ticker, true)
		}
	case reqWarmup:
		if s.Mode() == Warmup {
			return
		}
		log.Infof("Starting warm-up, up to %d samples or %s", s.conf.WarmupSamples, s.conf.WarmupDeadline)
		s.warmupSamples = 0
		s.warmupDeadline = time.Now().Add(s.conf.WarmupDeadline)
		s.transition(ticker, Warmup)
		s.tick(ctx, ticker, false)
	}
}

func (s *Scheduler) restingMode() Mode {
	if s.visible {
		return Foreground
	}
	return Background
}

func (s *Scheduler) transition(ticker *time.Ticker, m Mode) {
	s.setMode(m)
	ticker.Reset(s.interval(m))
}

func (s *Scheduler) tick(ctx context.Context, ticker *time.Ticker, triggered bool) {
	if ctx.Err() != nil {
		return
	}
	mode := s.Mode()
	t := Tick{
		Mode:      mode,
		Profile:   profileFor(mode),
		Interval:  s.interval(mode),
		Triggered: triggered,
	}
	if triggered {
		t.Profile = power.Full
	}
	s.sample(ctx, t)

	if mode != Warmup {
		return
	}
	s.warmupSamples++
	if s.warmupSamples >= s.conf.WarmupSamples || !time.Now().Before(s.warmupDeadline) {
		log.Infof("Warm-up finished after %d samples", s.warmupSamples)
		s.transition(ticker, s.restingMode())
		if s.onWarmupDone != nil {
			s.onWarmupDone(s.warmupSamples)
		}
	}
}
