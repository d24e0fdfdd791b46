package smcreader

import (
	"testing"
	"time"

	"github.com/TheCacophonyProject/powerflow/ecrequest"
	"github.com/TheCacophonyProject/powerflow/internal/calibration"
	"github.com/TheCacophonyProject/powerflow/internal/power"
	"github.com/TheCacophonyProject/powerflow/smc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderCachesKeyInfo(t *testing.T) {
	mock := ecrequest.NewMock()
	mock.SetFloat("PPBR", smc.TypeFLT, 4.5)
	r := NewReader(mock, time.Minute)

	for i := 0; i < 3; i++ {
		v := r.Float("PPBR")
		require.True(t, v.Valid)
		assert.InDelta(t, 4.5, v.Value, 1e-6)
	}
	assert.Equal(t, 1, mock.InfoCalls["PPBR"])
	assert.Equal(t, 3, mock.ReadCalls["PPBR"])
	assert.Equal(t, 1, mock.Opens)
}

func TestReaderMissingKeyIsCachedForTTL(t *testing.T) {
	mock := ecrequest.NewMock()
	r := NewReader(mock, time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }

	assert.False(t, r.Float("PDBR").Valid)
	assert.False(t, r.Float("PDBR").Valid)
	assert.Equal(t, 1, mock.InfoCalls["PDBR"])

	mock.SetFloat("PDBR", smc.TypeFLT, 2)
	now = now.Add(2 * time.Minute)
	v := r.Float("PDBR")
	assert.True(t, v.Valid)
	assert.Equal(t, 2, mock.InfoCalls["PDBR"])
}

func TestReaderUnknownTypeIsNoValue(t *testing.T) {
	mock := ecrequest.NewMock()
	mock.SetRaw("ZZZZ", "hex_", []byte{0, 0})
	r := NewReader(mock, time.Minute)
	assert.False(t, r.Float("ZZZZ").Valid)
}

func TestReaderOpenFailureIsNoDataThisTick(t *testing.T) {
	mock := ecrequest.NewMock()
	mock.SetFloat("PPBR", smc.TypeFLT, 1)
	mock.FailOpen = true
	r := NewReader(mock, time.Minute)

	r.StartTick()
	assert.False(t, r.Float("PPBR").Valid)
	assert.False(t, r.Float("PDTR").Valid)
	assert.Equal(t, 1, mock.Opens)

	mock.FailOpen = false
	r.StartTick()
	assert.True(t, r.Float("PPBR").Valid)
	assert.Equal(t, 2, mock.Opens)
}

func TestNilTransport(t *testing.T) {
	r := NewReader(nil, time.Minute)
	assert.False(t, r.Float("PPBR").Valid)
	assert.NoError(t, r.Close())
}

func TestCapabilityProbeStability(t *testing.T) {
	mock := ecrequest.NewMock()
	mock.SetFloat("PHPS", smc.TypeFLT, 0)
	mock.SetFloat("PCTR", smc.TypeFLT, 7.25)
	mock.SetFloat("PCPC", smc.TypeFLT, 9)
	r := NewReader(mock, time.Minute)
	c := NewCapability("package", PackagePowerKeys, true)

	v, key, found := c.Resolve(r.Float)
	require.True(t, v.Valid)
	assert.Equal(t, "PCTR", key)
	assert.True(t, found)
	assert.Equal(t, 2, mock.Calls("PHPS"), "zero is read but skipped when positive is required")

	mock.ResetCalls()
	for i := 0; i < 5; i++ {
		v, key, found = c.Resolve(r.Float)
		assert.InDelta(t, 7.25, v.Value, 1e-6)
		assert.Equal(t, "PCTR", key)
		assert.False(t, found)
	}
	assert.Equal(t, 5, mock.Calls("PCTR"))
	for _, k := range []string{"PHPC", "PHPS", "PCPC", "PC0C"} {
		assert.Equal(t, 0, mock.Calls(k), k)
	}

	// The winner stops producing a value, so the list is scanned again.
	mock.SetFloat("PCTR", smc.TypeFLT, 0)
	_, key, found = c.Resolve(r.Float)
	assert.Equal(t, "PCPC", key)
	assert.True(t, found)
}

func TestTemperatureProbeHottestAndCooldown(t *testing.T) {
	mock := ecrequest.NewMock()
	r := NewReader(mock, 0)
	p := NewTemperatureProbe([]string{"Tp09", "Tp0T", "TC0P"})
	now := time.Now()

	// Nothing present: empty scan arms the cooldown.
	res := p.Read(now, r.Float)
	assert.False(t, res.Value.Valid)
	assert.True(t, res.Scanned)
	mock.ResetCalls()
	res = p.Read(now.Add(10*time.Second), r.Float)
	assert.False(t, res.Scanned)
	assert.Equal(t, 0, mock.Calls("Tp09"))

	mock.SetFloat("Tp09", "sp78", 61.5)
	mock.SetFloat("Tp0T", "sp78", 55)
	mock.SetFloat("TC0P", smc.TypeFLT, 140) // implausible
	res = p.Read(now.Add(2*time.Minute), r.Float)
	assert.True(t, res.Scanned)
	assert.Equal(t, 61.5, res.Value.Value)
	assert.Equal(t, "Tp09", res.Key)
	assert.Equal(t, []string{"Tp09", "Tp0T"}, p.Discovered())

	mock.ResetCalls()
	res = p.Read(now.Add(3*time.Minute), r.Float)
	assert.False(t, res.Scanned)
	assert.Equal(t, 0, mock.Calls("TC0P"))
}

func newCollectorFixture() (*ecrequest.Mock, *calibration.Manager, *Collector) {
	mock := ecrequest.NewMock()
	mock.SetText("RPlt", "j314s")
	mock.SetFloat("PPBR", smc.TypeFLT, -12)
	mock.SetFloat("PDTR", smc.TypeFLT, 65)
	mock.SetFloat("PSTR", smc.TypeFLT, 40)
	mock.SetFloat("PHPC", smc.TypeFLT, 8)
	mock.SetFloat("B0AV", smc.TypeUI16, 12600)
	mock.SetFloat("B0AC", smc.TypeSI16, 1900)
	mock.SetFloat("BRSC", smc.TypeUI16, 76)
	mock.SetFloat("B0RM", smc.TypeUI16, 5000)
	mock.SetFloat("B0FC", smc.TypeUI16, 6500)
	mock.SetFloat("B0DC", smc.TypeUI16, 6900)
	mock.SetFloat("FNum", smc.TypeUI8, 2)
	mock.SetFloat("F0Ac", smc.TypeFLT, 0)
	mock.SetFloat("Tp0T", "sp78", 48)
	calib := calibration.NewManager(calibration.NewMemoryStore(), "test")
	return mock, calib, NewCollector(NewReader(mock, time.Minute), calib, time.Minute)
}

func TestCollectSummaryReadsOnlyWhatIsNeeded(t *testing.T) {
	mock, _, c := newCollectorFixture()
	r := c.Collect(power.Summary, power.DisplayNeeds{})
	assert.True(t, r.BatteryRate.Valid)
	assert.Equal(t, 65.0, r.AdapterPower.Value)
	assert.False(t, r.ScreenPower.Valid)
	assert.False(t, r.Voltage.Valid)
	assert.Equal(t, 0, mock.Calls("PDBR"))
	assert.Equal(t, 0, mock.Calls("B0AV"))
	assert.Equal(t, 0, mock.Calls("RPlt"))

	r = c.Collect(power.Summary, power.DisplayNeeds{Package: true})
	assert.Equal(t, "PHPC", r.PackageKey)
	assert.Equal(t, 0, mock.Calls("PDBR"))
}

func TestCollectFull(t *testing.T) {
	_, calib, c := newCollectorFixture()
	r := c.Collect(power.Full, power.DisplayNeeds{})
	assert.Equal(t, "j314s", r.PlatformName)
	assert.Equal(t, 12600.0, r.Voltage.Value)
	assert.Equal(t, 76.0, r.Percent.Value)
	assert.Equal(t, 5000.0, r.RemainingCapacity.Value)
	assert.False(t, r.ScreenPower.Valid, "absent screen key is unavailable, not zero")
	require.Len(t, r.Fans, 2)
	assert.True(t, r.Fans[0].RPM.Valid)
	assert.Equal(t, 0.0, r.Fans[0].RPM.Value)
	assert.False(t, r.Fans[1].RPM.Valid)
	assert.Equal(t, 48.0, r.Temperature.Value)

	assert.Equal(t, "B0AV", calib.ResolvedKey(calibration.CapBatteryVoltage))
	assert.Equal(t, "BRSC", calib.ResolvedKey(calibration.CapBatteryPercent))
	assert.Equal(t, []string{"Tp0T"}, calib.DiscoveredKeys())
}

func TestCollectPlatformChangeReprobes(t *testing.T) {
	mock, calib, c := newCollectorFixture()
	c.Collect(power.Full, power.DisplayNeeds{})
	assert.Equal(t, "PHPC", calib.ResolvedKey(calibration.CapPackagePower))

	mock.Delete("PHPC")
	mock.SetFloat("PC0C", smc.TypeFLT, 5)
	mock.SetText("RPlt", "j414c")
	r := c.Collect(power.Full, power.DisplayNeeds{})
	assert.Equal(t, "PC0C", r.PackageKey)
	assert.Equal(t, "PC0C", calib.ResolvedKey(calibration.CapPackagePower))
}

func TestCollectBadFanCountIsAbsent(t *testing.T) {
	mock, _, c := newCollectorFixture()
	mock.SetFloat(KeyFanCount, smc.TypeSI8, -1)
	r := c.Collect(power.Full, power.DisplayNeeds{})
	assert.Empty(t, r.Fans)
	assert.True(t, r.BatteryRate.Valid)

	mock.SetFloat(KeyFanCount, smc.TypeUI8, 1)
	r = c.Collect(power.Full, power.DisplayNeeds{})
	require.Len(t, r.Fans, 1)
}
