package platform

import (
	"github.com/TheCacophonyProject/powerflow/internal/power"
)

// Property names, as published by the macOS AppleSmartBattery driver.
// BatterySource fills the same names on other systems.
const (
	PropIsCharging        = "IsCharging"
	PropExternalConnected = "ExternalConnected"
	PropFullyCharged      = "FullyCharged"
	PropCurrentCapacity   = "CurrentCapacity"
	PropMaxCapacity       = "MaxCapacity"
	PropRawCurrent        = "AppleRawCurrentCapacity"
	PropRawMax            = "AppleRawMaxCapacity"
	PropNominalCapacity   = "NominalChargeCapacity"
	PropDesignCapacity    = "DesignCapacity"
	PropCycleCount        = "CycleCount"
	PropVoltage           = "Voltage"
	PropAmperage          = "Amperage"
	PropInstantAmperage   = "InstantAmperage"
	PropTemperature       = "Temperature"
	PropAvgTimeToEmpty    = "AvgTimeToEmpty"
	PropAvgTimeToFull     = "AvgTimeToFull"
	PropTimeRemaining     = "TimeRemaining"
	PropDeviceName        = "DeviceName"
	PropAdapterDetails    = "AdapterDetails"
	PropBatteryData       = "BatteryData"
	PropCellVoltage       = "CellVoltage"
	PropTelemetry         = "PowerTelemetryData"
)

// unknownMinutes is what the driver reports while it has no estimate.
const unknownMinutes = 65535

// TelemetryFromProps reads the nested power telemetry block. It only exists on
// recent OS versions, every field is absent otherwise.
func TelemetryFromProps(p Props) power.Telemetry {
	t := p.Map(PropTelemetry)
	if t == nil {
		return power.Telemetry{}
	}
	return power.Telemetry{
		SystemPowerIn:   t.Float("SystemPowerIn"),
		SystemLoad:      t.Float("SystemLoad"),
		BatteryPower:    t.Float("BatteryPower"),
		SystemVoltageIn: t.Float("SystemVoltageIn"),
		SystemCurrentIn: t.Float("SystemCurrentIn"),
	}
}

// minutes drops the driver's "unknown" marker and negative values.
func minutes(p Props, key string) power.Float {
	v := p.Float(key)
	if !v.Valid || v.Value < 0 || v.Value >= unknownMinutes {
		return power.None
	}
	return v
}

// EstimatesFromProps returns the OS time-to-empty, time-to-full and
// remaining estimates in minutes.
func EstimatesFromProps(p Props) (toEmpty, toFull, remaining power.Float) {
	return minutes(p, PropAvgTimeToEmpty), minutes(p, PropAvgTimeToFull), minutes(p, PropTimeRemaining)
}

// AuxiliaryFromProps maps the property bag onto the auxiliary readings. Units
// are left as the driver reports them, the engine normalises.
func AuxiliaryFromProps(p Props, aux *power.Auxiliary) {
	if p == nil {
		return
	}
	aux.PropsAvailable = true
	aux.IsCharging = p.Bool(PropIsCharging)
	aux.ExternalConnected = p.Bool(PropExternalConnected)
	aux.FullyCharged = p.Bool(PropFullyCharged)

	aux.CurrentCapacity = p.Float(PropCurrentCapacity)
	aux.MaxCapacity = p.Float(PropMaxCapacity)
	aux.RawCurrent = p.Float(PropRawCurrent)
	aux.RawMax = power.First(p.Float(PropRawMax), p.Float(PropNominalCapacity))
	aux.DesignCapacity = p.Float(PropDesignCapacity)
	aux.CycleCount = p.Float(PropCycleCount)
	aux.Voltage = p.Float(PropVoltage)
	aux.Amperage = power.First(p.Float(PropInstantAmperage), p.Float(PropAmperage))
	if t := p.Float(PropTemperature); t.Valid {
		// centi-degrees
		aux.PackTemperature = power.Some(t.Value / 100)
	}
	aux.DeviceName = p.String(PropDeviceName)

	if bd := p.Map(PropBatteryData); bd != nil {
		for _, mv := range bd.Ints(PropCellVoltage) {
			if mv > 0 {
				aux.CellVoltages = append(aux.CellVoltages, float64(mv))
			}
		}
	}

	if ad := p.Map(PropAdapterDetails); ad != nil {
		aux.AdapterWatts = ad.Float("Watts")
		aux.AdapterVoltage = ad.Float("AdapterVoltage")
		aux.AdapterCurrent = ad.Float("Current")
		aux.AdapterName = ad.String("Name")
		if aux.AdapterName == "" {
			aux.AdapterName = ad.String("Description")
		}
	}

	aux.Telemetry = TelemetryFromProps(p)
	aux.TimeToEmpty, aux.TimeToFull, aux.TimeRemaining = EstimatesFromProps(p)
}
