package platform

import (
	"context"
	"math"

	"github.com/distatus/battery"
)

// BatterySource builds the property bag from the OS battery interface on
// systems without ioreg. Capacities are reported as percent.
type BatterySource struct {
	getAll func() ([]*battery.Battery, error)
}

func NewBatterySource() *BatterySource {
	return &BatterySource{getAll: battery.GetAll}
}

func (s *BatterySource) Properties(ctx context.Context) (Props, error) {
	batteries, err := s.getAll()
	errs, partial := err.(battery.Errors)
	if err != nil && !partial {
		return nil, err
	}
	for i, b := range batteries {
		if partial && i < len(errs) && errs[i] != nil {
			log.Debugf("skipping battery %d: %v", i, errs[i])
			continue
		}
		// Some systems report a ghost battery with no capacity.
		if b == nil || b.Full <= 0 {
			continue
		}
		return propsFromBattery(b), nil
	}
	return nil, errNoBattery
}

func propsFromBattery(b *battery.Battery) Props {
	state := b.State.Raw
	discharging := state == battery.Discharging || state == battery.Empty
	p := Props{
		PropIsCharging:      state == battery.Charging,
		PropFullyCharged:    state == battery.Full,
		PropCurrentCapacity: math.Round(b.Current / b.Full * 100),
		PropMaxCapacity:     100.0,
	}
	if state != battery.Unknown {
		p[PropExternalConnected] = !discharging
	}
	// Base units: V, A and Ah. Small currents in mA would be read as amps.
	if b.Voltage > 0 {
		p[PropVoltage] = b.Voltage
		// ChargeRate is mW and unsigned.
		amps := b.ChargeRate / 1000 / b.Voltage
		if discharging {
			amps = -amps
		}
		p[PropAmperage] = amps
		p[PropRawCurrent] = b.Current / 1000 / b.Voltage
		p[PropRawMax] = b.Full / 1000 / b.Voltage
	}
	designVoltage := b.DesignVoltage
	if designVoltage <= 0 {
		designVoltage = b.Voltage
	}
	if b.Design > 0 && designVoltage > 0 {
		p[PropDesignCapacity] = b.Design / 1000 / designVoltage
	}
	if b.ChargeRate > 0 && b.Voltage > 0 {
		rate := b.ChargeRate
		switch state {
		case battery.Discharging:
			p[PropAvgTimeToEmpty] = b.Current / rate * 60
		case battery.Charging:
			p[PropAvgTimeToFull] = (b.Full - b.Current) / rate * 60
		}
	}
	return p
}
