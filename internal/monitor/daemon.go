package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/TheCacophonyProject/powerflow/ecrequest"
	"github.com/TheCacophonyProject/powerflow/internal/calibration"
	"github.com/TheCacophonyProject/powerflow/internal/gatekeeper"
	"github.com/TheCacophonyProject/powerflow/internal/history"
	"github.com/TheCacophonyProject/powerflow/internal/power"
	"github.com/TheCacophonyProject/powerflow/internal/reconcile"
	"github.com/TheCacophonyProject/powerflow/internal/scheduler"
	"github.com/TheCacophonyProject/powerflow/internal/smcreader"
)

// AuxCollector reads the OS battery, thermal and sensor sources.
type AuxCollector interface {
	Collect(ctx context.Context) power.Auxiliary
}

// Daemon connects the scheduler to the readers, the engine, the gatekeeper and
// everything that consumes accepted snapshots.
type Daemon struct {
	calib   *calibration.Manager
	reader  *smcreader.Reader
	regs    *smcreader.Collector
	aux     AuxCollector
	engine  *reconcile.Engine
	gate    *gatekeeper.Gatekeeper
	history *history.Ring
	sched   *scheduler.Scheduler
	needs   power.DisplayNeeds

	mu          sync.Mutex
	subscribers []func(power.Snapshot)
	holdTimer   *time.Timer
}

func NewDaemon(conf *Config, transport ecrequest.Transport, store calibration.Store, model string, aux AuxCollector) *Daemon {
	calib := calibration.NewManager(store, model)
	reader := smcreader.NewReader(transport, conf.MissingKeyTTL)
	d := &Daemon{
		calib:   calib,
		reader:  reader,
		regs:    smcreader.NewCollector(reader, calib, conf.TemperatureCooldown),
		aux:     aux,
		engine:  reconcile.NewEngine(conf.Reconcile, calib),
		history: history.NewRing(conf.HistoryCapacity),
		needs:   power.ParseDisplayNeeds(conf.StatusTemplate),
	}
	d.sched = scheduler.New(conf.Scheduler, d.Sample)
	d.sched.OnWarmupDone(d.warmupDone)
	d.gate = gatekeeper.New(conf.Gatekeeper, d.sched.TriggerNow)
	return d
}

func (d *Daemon) Calibration() *calibration.Manager { return d.calib }
func (d *Daemon) History() *history.Ring            { return d.history }

// OnSnapshot registers fn to receive every accepted snapshot. It is called on
// the sampling goroutine.
func (d *Daemon) OnSnapshot(fn func(power.Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, fn)
}

func (d *Daemon) SetVisible(visible bool) {
	d.gate.SetVisible(visible)
	d.sched.SetVisible(visible)
}

func (d *Daemon) TriggerNow() {
	d.sched.TriggerNow()
}

// Run samples until ctx is cancelled, starting with warm-up if this model
// has not finished it yet.
func (d *Daemon) Run(ctx context.Context) {
	if d.calib.NeedsWarmup() {
		d.sched.StartWarmup()
	}
	d.sched.Run(ctx)
}

func (d *Daemon) Close() error {
	d.stopHoldTimer()
	return d.reader.Close()
}

// Read takes one sample without the gatekeeper.
func (d *Daemon) Read(ctx context.Context, profile power.Profile) power.Snapshot {
	readings := d.regs.Collect(profile, d.needs)
	aux := d.aux.Collect(ctx)
	return d.engine.Reconcile(readings.Time, readings, aux)
}

// Sample is the scheduler's sample function.
func (d *Daemon) Sample(ctx context.Context, tick scheduler.Tick) {
	start := time.Now()
	snap := d.Read(ctx, tick.Profile)
	log.Debugf("%s sample took %s: battery %s W from %s, adapter %s W, load %s W",
		tick.Profile, time.Since(start), snap.BatteryPower, snap.BatterySource, snap.AdapterPower, snap.SystemLoad)

	holding := d.gate.Holding()
	out, ok := d.gate.Offer(snap, tick.Interval)
	if !ok {
		if !holding {
			d.armHoldTimer(d.gate.HoldWindow(tick.Interval))
		}
		return
	}
	d.stopHoldTimer()
	d.history.Push(out)

	d.mu.Lock()
	subscribers := append([]func(power.Snapshot){}, d.subscribers...)
	d.mu.Unlock()
	for _, fn := range subscribers {
		fn(out)
	}
}

// armHoldTimer asks for another sample once the hold window has passed, so a
// held snapshot is published even when the next tick is far off.
func (d *Daemon) armHoldTimer(window time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.holdTimer != nil {
		d.holdTimer.Stop()
	}
	d.holdTimer = time.AfterFunc(window, d.sched.TriggerNow)
}

func (d *Daemon) stopHoldTimer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.holdTimer != nil {
		d.holdTimer.Stop()
		d.holdTimer = nil
	}
}

func (d *Daemon) warmupDone(samples int) {
	keys := d.calib.DiscoveredKeys()
	if len(keys) == 0 {
		log.Warnf("Warm-up finished after %d samples without finding a CPU temperature key", samples)
	} else {
		log.Infof("Warm-up found %d CPU temperature keys", len(keys))
	}
	d.calib.MarkWarmupDone()
}
