package smcreader

import (
	"time"

	"github.com/TheCacophonyProject/powerflow/internal/power"
)

// ReadFunc reads one key.
type ReadFunc func(key string) power.Float

// Capability is a quantity exposed under different keys on different
// hardware generations. Once a candidate succeeds only that key is read until
// it stops producing a value.
type Capability struct {
	Name            string
	Candidates      []string
	RequirePositive bool
	winner          string
}

func NewCapability(name string, candidates []string, requirePositive bool) *Capability {
	return &Capability{Name: name, Candidates: candidates, RequirePositive: requirePositive}
}

func (c *Capability) Winner() string {
	return c.winner
}

// Remember sets the winner from a previous run. Keys that are not candidates
// are ignored.
func (c *Capability) Remember(key string) {
	for _, k := range c.Candidates {
		if k == key {
			c.winner = key
			return
		}
	}
}

func (c *Capability) Forget() {
	c.winner = ""
}

func (c *Capability) accept(f power.Float) bool {
	if !f.Valid {
		return false
	}
	return !c.RequirePositive || f.Value > 0
}

// Resolve reads the remembered key, or scans the candidates in order when
// there is none or it failed. found reports a newly resolved winner.
func (c *Capability) Resolve(read ReadFunc) (value power.Float, key string, found bool) {
	if c.winner != "" {
		if v := read(c.winner); c.accept(v) {
			return v, c.winner, false
		}
		log.Debugf("%s key '%s' stopped producing a value, rescanning", c.Name, c.winner)
		c.winner = ""
	}
	for _, k := range c.Candidates {
		if v := read(k); c.accept(v) {
			c.winner = k
			log.Debugf("%s resolved to '%s'", c.Name, k)
			return v, k, true
		}
	}
	return power.None, "", false
}

const (
	DefaultTemperatureMin      = 5.0
	DefaultTemperatureMax      = 130.0
	DefaultTemperatureCooldown = time.Minute
)

// TemperatureProbe finds every candidate reporting a plausible die
// temperature and reports the hottest. The set is only rescanned when none of
// it reads, and an empty scan waits Cooldown before the next one.
type TemperatureProbe struct {
	Candidates []string
	Min, Max   float64
	Cooldown   time.Duration

	discovered []string
	lastEmpty  time.Time
}

func NewTemperatureProbe(candidates []string) *TemperatureProbe {
	return &TemperatureProbe{
		Candidates: candidates,
		Min:        DefaultTemperatureMin,
		Max:        DefaultTemperatureMax,
		Cooldown:   DefaultTemperatureCooldown,
	}
}

func (p *TemperatureProbe) Discovered() []string {
	return append([]string(nil), p.discovered...)
}

func (p *TemperatureProbe) Remember(keys []string) {
	p.discovered = append([]string(nil), keys...)
}

func (p *TemperatureProbe) Forget() {
	p.discovered = nil
	p.lastEmpty = time.Time{}
}

func (p *TemperatureProbe) plausible(f power.Float) bool {
	return f.Valid && f.Value >= p.Min && f.Value <= p.Max
}

// TemperatureReading is the result of one probe read.
type TemperatureReading struct {
	Value power.Float
	// Key is the hottest key, Keys every key with a plausible reading.
	Key  string
	Keys []string
	// Scanned reports that the discovered set was rebuilt this read.
	Scanned bool
}

// Read returns the hottest plausible reading.
func (p *TemperatureProbe) Read(now time.Time, read ReadFunc) TemperatureReading {
	if len(p.discovered) > 0 {
		r := p.hottest(p.discovered, read)
		if r.Value.Valid {
			return r
		}
		log.Debugf("none of the %d temperature keys read, rescanning", len(p.discovered))
		p.discovered = nil
	}
	if !p.lastEmpty.IsZero() && now.Sub(p.lastEmpty) < p.Cooldown {
		return TemperatureReading{}
	}
	r := p.hottest(p.Candidates, read)
	r.Scanned = true
	p.discovered = r.Keys
	if len(r.Keys) == 0 {
		p.lastEmpty = now
	} else {
		p.lastEmpty = time.Time{}
		log.Debugf("discovered temperature keys %v", r.Keys)
	}
	return r
}

func (p *TemperatureProbe) hottest(candidates []string, read ReadFunc) TemperatureReading {
	var r TemperatureReading
	for _, k := range candidates {
		v := read(k)
		if !p.plausible(v) {
			continue
		}
		r.Keys = append(r.Keys, k)
		if !r.Value.Valid || v.Value > r.Value.Value {
			r.Value = v
			r.Key = k
		}
	}
	return r
}
