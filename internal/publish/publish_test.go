package publish

import (
	"errors"
	"testing"
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/powerflow/internal/history"
	"github.com/TheCacophonyProject/powerflow/internal/power"
	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	visible  []bool
	triggers int
}

func (f *fakeController) SetVisible(v bool) { f.visible = append(f.visible, v) }
func (f *fakeController) TriggerNow()       { f.triggers++ }

func TestServiceMethods(t *testing.T) {
	ring := history.NewRing(10)
	ctrl := &fakeController{}
	s := &service{history: ring, ctrl: ctrl}

	_, _, _, dbusErr := s.Snapshot()
	require.NotNil(t, dbusErr)
	assert.Equal(t, dbusName+".NoSnapshot", dbusErr.Name)

	now := time.Now()
	ring.Push(power.Snapshot{Time: now.Add(-time.Hour), Level: power.Some(50)})
	ring.Push(power.Snapshot{Time: now, Level: power.Some(51), BatteryPower: power.Some(-7), BatterySource: "rate"})

	ts, values, labels, dbusErr := s.Snapshot()
	require.Nil(t, dbusErr)
	assert.Equal(t, now.Unix(), ts)
	assert.Equal(t, 51.0, values["level"])
	assert.Equal(t, -7.0, values["battery_power"])
	assert.Equal(t, "rate", labels["battery_source"])

	times, all, dbusErr := s.History(60)
	require.Nil(t, dbusErr)
	assert.Len(t, times, 1)
	assert.Len(t, all, 1)
	_, all, _ = s.History(0)
	assert.Len(t, all, 2)

	assert.Nil(t, s.SetVisible(true))
	assert.Nil(t, s.SampleNow())
	assert.Equal(t, []bool{true}, ctrl.visible)
	assert.Equal(t, 1, ctrl.triggers)
}

func TestIntrospection(t *testing.T) {
	names := []string{}
	for _, m := range introspect.Methods(&service{}) {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"History", "SampleNow", "SetVisible", "Snapshot"}, names)
}

func TestPowerSourceChange(t *testing.T) {
	sig := func(iface string, props ...string) *dbus.Signal {
		changed := map[string]dbus.Variant{}
		for _, p := range props {
			changed[p] = dbus.MakeVariant(true)
		}
		return &dbus.Signal{Name: propertiesChanged, Body: []interface{}{iface, changed, []string{}}}
	}
	assert.True(t, isPowerSourceChange(sig(upowerName, "OnBattery")))
	assert.True(t, isPowerSourceChange(sig(upowerDevice, "Percentage", "State")))
	assert.False(t, isPowerSourceChange(sig(upowerDevice, "Percentage", "Energy")))
	assert.False(t, isPowerSourceChange(sig("org.freedesktop.NetworkManager", "State")))
	assert.False(t, isPowerSourceChange(&dbus.Signal{Name: propertiesChanged}))
	assert.False(t, isPowerSourceChange(nil))
}

func TestEventReporter(t *testing.T) {
	var events []eventclient.Event
	r := &EventReporter{
		add: func(e eventclient.Event) error {
			events = append(events, e)
			return errors.New("event-reporter not running")
		},
		now: time.Now,
	}

	r.CalibrationEvent("powerflowPolarityLearned", map[string]interface{}{"polarity": -1})
	require.Len(t, events, 1)
	assert.Equal(t, "powerflowPolarityLearned", events[0].Type)

	r.Observe(power.Snapshot{ThermalPressure: power.ThermalNominal})
	r.Observe(power.Snapshot{ThermalPressure: power.ThermalHeavy, Temperature: power.Some(97)})
	r.Observe(power.Snapshot{ThermalPressure: power.ThermalTrapping})
	r.Observe(power.Snapshot{ThermalPressure: power.ThermalUnknown})
	r.Observe(power.Snapshot{ThermalPressure: power.ThermalHeavy})
	require.Len(t, events, 2, "one event per rise")
	assert.Equal(t, thermalEventType, events[1].Type)
	assert.Equal(t, "heavy", events[1].Details["level"])
	assert.Equal(t, 97.0, events[1].Details["temperature"])

	r.Observe(power.Snapshot{ThermalPressure: power.ThermalModerate})
	r.Observe(power.Snapshot{ThermalPressure: power.ThermalHeavy})
	assert.Len(t, events, 3)
}
