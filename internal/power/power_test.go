package power

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloatAvailability(t *testing.T) {
	assert.True(t, Some(0).Valid)
	assert.False(t, None.Valid)
	assert.False(t, Some(math.NaN()).Valid)
	assert.Equal(t, 3.0, None.Or(3))
	assert.Equal(t, 0.0, Some(0).Or(3))
	assert.Equal(t, Some(2), First(None, Some(2), Some(3)))
	assert.False(t, First(None, None).Valid)
}

func TestParseDisplayNeeds(t *testing.T) {
	assert.Equal(t, DisplayNeeds{}, ParseDisplayNeeds("{battery}W"))
	assert.Equal(t, DisplayNeeds{Screen: true, Temperature: true}, ParseDisplayNeeds("{battery}W {screen}W {temp}°"))
	assert.Equal(t, DisplayNeeds{Package: true}, ParseDisplayNeeds("cpu { package }"))
	assert.Equal(t, DisplayNeeds{}, ParseDisplayNeeds("{screen"))
}

func TestBalanceError(t *testing.T) {
	s := Snapshot{AdapterPower: Some(65), SystemLoad: Some(40), BatteryPower: Some(24)}
	e, ok := s.BalanceError()
	assert.True(t, ok)
	assert.InDelta(t, 1.0, e, 1e-9)

	s.BatteryPower = None
	_, ok = s.BalanceError()
	assert.False(t, ok)
}

func TestLevelPercent(t *testing.T) {
	_, ok := Snapshot{}.LevelPercent()
	assert.False(t, ok)
	p, ok := Snapshot{Level: Some(66.6)}.LevelPercent()
	assert.True(t, ok)
	assert.Equal(t, 67, p)
}

func TestValuesOmitAbsentFields(t *testing.T) {
	s := Snapshot{AdapterPower: Some(0), ScreenPower: None}
	v := s.Values()
	assert.Contains(t, v, "adapter_power")
	assert.NotContains(t, v, "screen_power")
}

func TestThermalPressureNames(t *testing.T) {
	assert.Equal(t, ThermalHeavy, ParseThermalPressure("Heavy"))
	assert.Equal(t, ThermalUnknown, ParseThermalPressure("hot"))
	assert.Equal(t, "trapping", ThermalTrapping.String())
}
