// Package gatekeeper holds back snapshots that fail the power balance check
// for a short window, publishing the least bad one if none passes.
package gatekeeper

import (
	"math"
	"sync"
	"time"

	"github.com/TheCacophonyProject/powerflow/internal/logging"
	"github.com/TheCacophonyProject/powerflow/internal/power"
)

var log = logging.NewLogger("info")

func SetLogger(l *logging.Logger) {
	log = l
}

type Config struct {
	MinHold     time.Duration `mapstructure:"min-hold"`
	MaxHold     time.Duration `mapstructure:"max-hold"`
	MaxAttempts int           `mapstructure:"max-attempts"`
	// Balance tolerance is max(FloorW, Relative * adapter power).
	FloorW      float64       `mapstructure:"floor-w"`
	Relative    float64       `mapstructure:"relative"`
	ResampleGap time.Duration `mapstructure:"resample-gap"`
}

func DefaultConfig() Config {
	return Config{
		MinHold:     time.Second,
		MaxHold:     2500 * time.Millisecond,
		MaxAttempts: 3,
		FloorW:      1.0,
		Relative:    0.15,
		ResampleGap: 500 * time.Millisecond,
	}
}

type pending struct {
	best     power.Snapshot
	score    float64
	start    time.Time
	attempts int
}

// Gatekeeper is idle until a snapshot fails the check, then holds until one
// passes, the hold window elapses or the attempt cap is reached.
type Gatekeeper struct {
	conf Config

	mu           sync.Mutex
	visible      bool
	pending      *pending
	lastResample time.Time
	resample     func()
}

// New returns a gatekeeper. resample, if set, is asked for an immediate full
// sample while holding and visible. It must not block.
func New(conf Config, resample func()) *Gatekeeper {
	return &Gatekeeper{conf: conf, resample: resample}
}

func (g *Gatekeeper) SetVisible(visible bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.visible = visible
}

// Holding reports whether a candidate is waiting.
func (g *Gatekeeper) Holding() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}

// Tolerance is the allowed balance error for s.
func (g *Gatekeeper) Tolerance(s power.Snapshot) float64 {
	return math.Max(g.conf.FloorW, g.conf.Relative*math.Abs(s.AdapterPower.Or(0)))
}

// Check returns the mismatch score of s and whether it passes. A snapshot
// whose balance cannot be computed passes.
func (g *Gatekeeper) Check(s power.Snapshot) (float64, bool) {
	balance, ok := s.BalanceError()
	if !ok {
		return 0, true
	}
	return balance, balance <= g.Tolerance(s)
}

// HoldWindow is the sampling interval clamped to the configured bounds.
func (g *Gatekeeper) HoldWindow(interval time.Duration) time.Duration {
	if interval < g.conf.MinHold {
		return g.conf.MinHold
	}
	if interval > g.conf.MaxHold {
		return g.conf.MaxHold
	}
	return interval
}

// Offer hands the gatekeeper the next snapshot. It returns the snapshot to
// publish, if any. The snapshot's own time is used as the clock.
func (g *Gatekeeper) Offer(s power.Snapshot, interval time.Duration) (power.Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	score, pass := g.Check(s)
	if pass {
		if g.pending != nil {
			log.Debugf("Balance recovered after %d attempts", g.pending.attempts)
			g.pending = nil
		}
		return s, true
	}

	if g.pending == nil {
		log.Debugf("Holding snapshot, balance error %.2fW over %.2fW", score, g.Tolerance(s))
		g.pending = &pending{best: s, score: score, start: s.Time, attempts: 1}
	} else {
		g.pending.attempts++
		if score < g.pending.score {
			g.pending.best = s
			g.pending.score = score
		}
	}

	p := g.pending
	if p.attempts >= g.conf.MaxAttempts || s.Time.Sub(p.start) >= g.HoldWindow(interval) {
		log.Debugf("Publishing best of %d inconsistent snapshots, balance error %.2fW", p.attempts, p.score)
		g.pending = nil
		return p.best, true
	}
	g.requestResample(s.Time)
	return power.Snapshot{}, false
}

func (g *Gatekeeper) requestResample(now time.Time) {
	if !g.visible || g.resample == nil {
		return
	}
	if !g.lastResample.IsZero() && now.Sub(g.lastResample) < g.conf.ResampleGap {
		return
	}
	g.lastResample = now
	g.resample()
}
