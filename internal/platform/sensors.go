package platform

import (
	"context"
	"errors"
	"strings"

	"github.com/TheCacophonyProject/powerflow/internal/power"
	"github.com/shirou/gopsutil/v3/host"
)

var errNoSensors = errors.New("no temperature sensors")

// sensorPreference orders sensor names by how closely they track the CPU
// package.
var sensorPreference = []string{"package", "tctl", "tdie", "cpu", "core", "soc"}

// SensorTemperature is the hardware independent CPU temperature fallback.
type SensorTemperature struct {
	read func(ctx context.Context) ([]host.TemperatureStat, error)
}

func NewSensorTemperature() *SensorTemperature {
	return &SensorTemperature{read: host.SensorsTemperaturesWithContext}
}

// Read returns the hottest sensor of the most preferred kind present.
func (s *SensorTemperature) Read(ctx context.Context) (power.Float, string, error) {
	temps, err := s.read(ctx)
	// gopsutil returns partial results alongside warnings.
	if len(temps) == 0 {
		if err == nil {
			err = errNoSensors
		}
		return power.None, "", err
	}
	for _, pref := range sensorPreference {
		best := power.None
		name := ""
		for _, t := range temps {
			if !strings.Contains(strings.ToLower(t.SensorKey), pref) {
				continue
			}
			if t.Temperature <= 0 || t.Temperature > 150 {
				continue
			}
			if !best.Valid || t.Temperature > best.Value {
				best = power.Some(t.Temperature)
				name = t.SensorKey
			}
		}
		if best.Valid {
			return best, name, nil
		}
	}
	return power.None, "", errNoSensors
}
