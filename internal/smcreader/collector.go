package smcreader

import (
	"math"
	"time"

	"github.com/TheCacophonyProject/powerflow/internal/calibration"
	"github.com/TheCacophonyProject/powerflow/internal/power"
	"github.com/TheCacophonyProject/powerflow/smc"
)

const maxFans = 8

// Collector reads one tick's worth of controller values.
type Collector struct {
	reader *Reader
	calib  *calibration.Manager
	now    func() time.Time

	packagePower *Capability
	voltage      *Capability
	percent      *Capability
	remaining    *Capability
	temperature  *TemperatureProbe

	fanCount    int
	fanCountSet bool
}

// NewCollector restores remembered alias keys from calib.
func NewCollector(reader *Reader, calib *calibration.Manager, temperatureCooldown time.Duration) *Collector {
	c := &Collector{
		reader:       reader,
		calib:        calib,
		now:          time.Now,
		packagePower: NewCapability(calibration.CapPackagePower, PackagePowerKeys, true),
		voltage:      NewCapability(calibration.CapBatteryVoltage, BatteryVoltageKeys, true),
		percent:      NewCapability(calibration.CapBatteryPercent, BatteryPercentKeys, false),
		remaining:    NewCapability(calibration.CapRemainingCapacity, RemainingCapacityKeys, true),
		temperature:  NewTemperatureProbe(TemperatureKeys),
	}
	if temperatureCooldown > 0 {
		c.temperature.Cooldown = temperatureCooldown
	}
	c.restore()
	return c
}

func (c *Collector) capabilities() []*Capability {
	return []*Capability{c.packagePower, c.voltage, c.percent, c.remaining}
}

func (c *Collector) restore() {
	for _, cp := range c.capabilities() {
		cp.Remember(c.calib.ResolvedKey(cp.Name))
	}
	c.temperature.Remember(c.calib.DiscoveredKeys())
}

func (c *Collector) forget() {
	for _, cp := range c.capabilities() {
		cp.Forget()
	}
	c.temperature.Forget()
	c.fanCountSet = false
}

func (c *Collector) resolve(cp *Capability) (power.Float, string) {
	v, key, found := cp.Resolve(c.reader.Float)
	if found {
		c.calib.SetResolvedKey(cp.Name, key)
	}
	return v, key
}

// Collect reads the values for profile. The summary profile reads the battery,
// adapter and system rates plus whatever needs asks for.
func (c *Collector) Collect(profile power.Profile, needs power.DisplayNeeds) power.Readings {
	c.reader.StartTick()
	r := power.Readings{
		Time:    c.now(),
		Profile: profile,
	}
	if profile == power.Full {
		if name, ok := c.reader.Text(KeyPlatform); ok {
			r.PlatformName = name
			if c.calib.CheckPlatform(name) {
				c.forget()
			}
		}
		needs = power.AllNeeds
	}

	r.BatteryRate = c.reader.Float(KeyBatteryRate)
	r.AdapterPower = c.reader.Float(KeyAdapterPower)
	r.SystemTotal = c.reader.Float(KeySystemTotal)

	if needs.Screen {
		r.ScreenPower = c.reader.Float(KeyScreenPower)
	}
	if needs.Package {
		r.PackagePower, r.PackageKey = c.resolve(c.packagePower)
	}
	if needs.Temperature {
		t := c.temperature.Read(r.Time, c.reader.Float)
		r.Temperature = t.Value
		r.TemperatureKey = t.Key
		r.TemperatureKeys = t.Keys
		if t.Scanned {
			c.calib.SetDiscoveredKeys(c.temperature.Discovered())
		}
	}

	if profile != power.Full {
		return r
	}

	r.AdapterVoltage = c.reader.Float(KeyAdapterVoltage)
	r.AdapterCurrent = c.reader.Float(KeyAdapterCurrent)
	r.RemainingCapacity, _ = c.resolve(c.remaining)
	r.FullCapacity = c.reader.Float(KeyFullCapacity)
	r.DesignCapacity = c.reader.Float(KeyDesignCapacity)
	r.Voltage, _ = c.resolve(c.voltage)
	r.Current = c.reader.Float(KeyBatteryCurrent)
	r.Percent, _ = c.resolve(c.percent)
	r.CycleCount = c.reader.Float(KeyCycleCount)
	if lid := c.reader.Float(KeyLidClosed); lid.Valid {
		r.LidClosed = power.FlagOf(lid.Value != 0)
	}
	r.ChargeControl = c.reader.Float(KeyChargeControl)
	r.DischargeControl = c.reader.Float(KeyDischarge)
	r.Fans = c.readFans()
	return r
}

func (c *Collector) readFans() []power.Fan {
	if !c.fanCountSet {
		n := c.reader.Float(KeyFanCount)
		if !n.Valid || math.IsNaN(n.Value) || n.Value < 0 {
			return nil
		}
		c.fanCount = int(n.Value)
		if c.fanCount > maxFans {
			c.fanCount = maxFans
		}
		c.fanCountSet = true
	}
	fans := make([]power.Fan, 0, c.fanCount)
	for i := 0; i < c.fanCount; i++ {
		fans = append(fans, power.Fan{Index: i, RPM: c.reader.Float(smc.FanKey(i))})
	}
	return fans
}
