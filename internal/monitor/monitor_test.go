package monitor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/TheCacophonyProject/powerflow/ecrequest"
	"github.com/TheCacophonyProject/powerflow/internal/calibration"
	"github.com/TheCacophonyProject/powerflow/internal/power"
	"github.com/TheCacophonyProject/powerflow/internal/reconcile"
	"github.com/TheCacophonyProject/powerflow/internal/scheduler"
	"github.com/TheCacophonyProject/powerflow/internal/smcreader"
	"github.com/TheCacophonyProject/powerflow/smc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedAux power.Auxiliary

func (f fixedAux) Collect(ctx context.Context) power.Auxiliary {
	return power.Auxiliary(f)
}

func chargingAux() fixedAux {
	return fixedAux{
		PropsAvailable:    true,
		IsCharging:        power.FlagOf(true),
		ExternalConnected: power.FlagOf(true),
		FullyCharged:      power.FlagOf(false),
		CurrentCapacity:   power.Some(76),
		MaxCapacity:       power.Some(100),
	}
}

func TestDefaultConfigValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, "applesmc", c.Transport)
	assert.Equal(t, uint16(0x0B), c.SMBus.Address)
	assert.Equal(t, 600, c.HistoryCapacity)
	assert.Equal(t, 30*time.Second, c.Scheduler.BackgroundInterval)
	assert.Equal(t, 0.15, c.Gatekeeper.Relative)

	c.Transport = "serial"
	assert.Error(t, c.Validate())
	c = DefaultConfig()
	c.Gatekeeper.MinHold = 5 * time.Second
	assert.Error(t, c.Validate())
	c = DefaultConfig()
	c.Scheduler.WarmupSamples = 0
	assert.Error(t, c.Validate())
}

func TestDaemonSampleEndToEnd(t *testing.T) {
	mock := ecrequest.NewMock()
	mock.SetFloat(smcreader.KeyAdapterPower, smc.TypeFLT, 65)
	mock.SetFloat(smcreader.KeySystemTotal, smc.TypeFLT, 40)
	mock.SetFloat(smcreader.KeyBatteryRate, smc.TypeFLT, -25)
	store := calibration.NewMemoryStore()

	conf := DefaultConfig()
	conf.StatusTemplate = "{battery}W {screen}W"
	d := NewDaemon(&conf, mock, store, "Mac14,2", chargingAux())

	var published []power.Snapshot
	d.OnSnapshot(func(s power.Snapshot) { published = append(published, s) })

	d.Sample(context.Background(), scheduler.Tick{Mode: scheduler.Foreground, Profile: power.Full, Interval: 2 * time.Second})

	require.Len(t, published, 1)
	s := published[0]
	assert.InDelta(t, 25, s.BatteryPower.Value, 1e-6)
	assert.Equal(t, reconcile.SourceRate, s.BatterySource)
	assert.True(t, s.IsCharging)
	assert.InDelta(t, 65, s.AdapterPower.Value, 1e-6)
	assert.False(t, s.ScreenPower.Valid)
	assert.False(t, s.PackagePower.Valid)
	level, _ := s.LevelPercent()
	assert.Equal(t, 76, level)

	assert.Equal(t, 1, d.History().Len())
	assert.Equal(t, calibration.PolarityNormal, d.Calibration().Polarity())
	assert.Equal(t, 1, store.WriteCount("SavePolarity"))
}

func TestDaemonHoldsInconsistentSnapshot(t *testing.T) {
	mock := ecrequest.NewMock()
	mock.SetFloat(smcreader.KeyAdapterPower, smc.TypeFLT, 60)
	mock.SetFloat(smcreader.KeySystemTotal, smc.TypeFLT, 20)
	mock.SetFloat(smcreader.KeyBatteryRate, smc.TypeFLT, -10)

	conf := DefaultConfig()
	d := NewDaemon(&conf, mock, calibration.NewMemoryStore(), "test", chargingAux())
	tick := scheduler.Tick{Profile: power.Summary, Interval: 30 * time.Second}

	// 60 - 20 - 10 is 30W out, over the 9W tolerance.
	d.Sample(context.Background(), tick)
	assert.Equal(t, 0, d.History().Len())

	mock.SetFloat(smcreader.KeyBatteryRate, smc.TypeFLT, -38)
	d.Sample(context.Background(), tick)
	assert.Equal(t, 1, d.History().Len())
	latest, ok := d.History().Latest()
	require.True(t, ok)
	assert.InDelta(t, 38, latest.BatteryPower.Value, 1e-6)
}

func TestDaemonReleasesHeldSnapshotAfterWindow(t *testing.T) {
	mock := ecrequest.NewMock()
	mock.SetFloat(smcreader.KeyAdapterPower, smc.TypeFLT, 60)
	mock.SetFloat(smcreader.KeySystemTotal, smc.TypeFLT, 20)
	mock.SetFloat(smcreader.KeyBatteryRate, smc.TypeFLT, -10)
	store := calibration.NewMemoryStore()
	require.NoError(t, store.SaveDiscoveredKeys("test", []string{"TC0P"}))
	require.NoError(t, store.MarkWarmupDone("test"))

	conf := DefaultConfig()
	conf.Gatekeeper.MinHold = 50 * time.Millisecond
	conf.Gatekeeper.MaxHold = 100 * time.Millisecond
	d := NewDaemon(&conf, mock, store, "test", chargingAux())
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	// Hidden UI: no resample is asked for and the next tick is 30s away.
	d.TriggerNow()
	assert.Eventually(t, func() bool { return d.History().Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	latest, ok := d.History().Latest()
	require.True(t, ok)
	assert.InDelta(t, 10, latest.BatteryPower.Value, 1e-6)
}

func TestWarmupDoneMarksCalibration(t *testing.T) {
	conf := DefaultConfig()
	d := NewDaemon(&conf, nil, calibration.NewMemoryStore(), "test", fixedAux{})
	assert.True(t, d.Calibration().NeedsWarmup())
	d.warmupDone(60)
	assert.True(t, d.Calibration().WarmupDone())
	assert.True(t, d.Calibration().NeedsWarmup(), "no temperature keys were found")
}

func TestPrintKeys(t *testing.T) {
	mock := ecrequest.NewMock()
	mock.SetFloat("B0AV", smc.TypeUI16, 12610)
	reader := smcreader.NewReader(mock, time.Minute)

	var buf bytes.Buffer
	require.NoError(t, printKeys(&buf, reader, []string{"B0AV", "ZZZZ"}))
	out := buf.String()
	assert.Contains(t, out, "B0AV [ui16, 2 bytes] 42 31 = 12610")
	assert.Contains(t, out, "ZZZZ: not available")
}

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, power.Snapshot{
		Time:          time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		BatteryPower:  power.Some(25),
		BatterySource: reconcile.SourceRate,
		Diagnostics:   map[string]float64{"polarity": 1},
	})
	out := buf.String()
	assert.Contains(t, out, "battery_power: 25.000")
	assert.Contains(t, out, "battery_source: rate")
	assert.Contains(t, out, "  polarity: 1.000")
	assert.NotContains(t, out, "screen_power")
}
