package platform

import (
	"context"
	"runtime"
	"time"

	"github.com/TheCacophonyProject/powerflow/internal/power"
)

// Collector reads every auxiliary source. A failing source is absence, never
// an error.
type Collector struct {
	Props   PropertySource
	Thermal ThermalSource
	Sensors *SensorTemperature
	Timeout time.Duration
}

// NewCollector picks the sources for the running OS.
func NewCollector(timeout time.Duration) *Collector {
	c := &Collector{
		Sensors: NewSensorTemperature(),
		Timeout: timeout,
	}
	if runtime.GOOS == "darwin" {
		c.Props = NewIORegSource()
		c.Thermal = NewPmsetThermal()
	} else {
		c.Props = NewBatterySource()
		c.Thermal = NewSensorThermal()
	}
	return c
}

func (c *Collector) Collect(ctx context.Context) power.Auxiliary {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	var aux power.Auxiliary
	if c.Props != nil {
		if p, err := c.Props.Properties(ctx); err != nil {
			log.Debugf("battery properties unavailable: %v", err)
		} else {
			AuxiliaryFromProps(p, &aux)
		}
	}
	if c.Thermal != nil {
		if level, err := c.Thermal.ThermalPressure(ctx); err != nil {
			log.Debugf("thermal pressure unavailable: %v", err)
		} else {
			aux.ThermalPressure = level
		}
	}
	if c.Sensors != nil {
		if t, name, err := c.Sensors.Read(ctx); err != nil {
			log.Debugf("sensor temperature unavailable: %v", err)
		} else {
			aux.SensorTemperature = t
			aux.SensorName = name
		}
	}
	return aux
}
