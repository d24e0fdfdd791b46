// Package reconcile turns raw controller readings and OS battery properties
// into one consistent snapshot.
package reconcile

import (
	"math"
	"sync"
	"time"

	"github.com/TheCacophonyProject/powerflow/internal/calibration"
	"github.com/TheCacophonyProject/powerflow/internal/logging"
	"github.com/TheCacophonyProject/powerflow/internal/power"
)

var log = logging.NewLogger("info")

func SetLogger(l *logging.Logger) {
	log = l
}

// Battery power sources, in precedence order.
const (
	SourceRate      = "rate"
	SourceTelemetry = "telemetry"
	SourceVI        = "voltage-current"
	SourceImplied   = "implied"
	SourceNone      = "none"

	directionSuffix = "+direction"
)

// Temperature provenance labels.
const (
	TempSMC     = "smc"
	TempCached  = "smc-cached"
	TempSensor  = "sensor"
	TempBattery = "battery"
)

// Engine reconciles one tick at a time. The current scale between the OS
// amperage and the controller current is learned here and only kept in memory.
type Engine struct {
	conf  Config
	calib *calibration.Manager

	mu           sync.Mutex
	currentScale float64
}

func NewEngine(conf Config, calib *calibration.Manager) *Engine {
	return &Engine{conf: conf, calib: calib}
}

// CurrentScale is the learned factor from controller current to OS amperage,
// zero until learned.
func (e *Engine) CurrentScale() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentScale
}

// Reconcile builds the snapshot for readings r and aux taken at now.
func (e *Engine) Reconcile(now time.Time, r power.Readings, aux power.Auxiliary) power.Snapshot {
	diag := map[string]float64{}
	s := power.Snapshot{
		Time:            now,
		Profile:         r.Profile,
		ScreenPower:     r.ScreenPower,
		PackagePower:    r.PackagePower,
		PackageKey:      r.PackageKey,
		LidClosed:       r.LidClosed,
		Fans:            append([]power.Fan(nil), r.Fans...),
		ThermalPressure: aux.ThermalPressure,
		CycleCount:      power.First(r.CycleCount, aux.CycleCount),
		Diagnostics:     diag,
	}

	polarity := e.polarity(r, aux)
	diag["polarity"] = float64(polarity)

	adapter := e.adapterPower(r, aux)
	load := power.First(r.SystemTotal, milliToWatts(aux.Telemetry.SystemLoad))
	s.AdapterPower = adapter
	s.SystemLoad = load
	s.SystemInput = power.First(milliToWatts(aux.Telemetry.SystemPowerIn), adapter)

	voltage := mapFloat(power.First(r.Voltage, aux.Voltage), Volts)
	current := e.batteryCurrent(r, aux)
	s.BatteryVoltage = voltage
	s.BatteryCurrent = current
	if voltage.Valid && current.Valid {
		s.BatteryWatts = power.Some(voltage.Value * current.Value)
	}

	s.BatteryPower, s.BatterySource = e.batteryPower(r, aux, polarity, adapter, load, voltage, current, diag)

	s.FullyCharged = aux.FullyCharged.True()
	switch s.BatterySource {
	case SourceNone:
		s.IsCharging = aux.IsCharging.True()
	default:
		s.IsCharging = s.BatteryPower.Value > 0 && !s.FullyCharged
	}
	if aux.ExternalConnected.Valid {
		s.ExternalPower = aux.ExternalConnected.Value
	} else {
		s.ExternalPower = adapter.Valid && adapter.Value > e.conf.AdapterPresentW
	}

	s.Level = level(r, aux)
	s.BatteryHealth = health(r, aux)
	s.RemainingEnergy = remainingEnergy(r, aux)
	for _, v := range aux.CellVoltages {
		s.CellVoltages = append(s.CellVoltages, CellVolts(v))
	}

	s.Temperature, s.TemperatureSource = e.temperature(now, r, aux)
	s.TimeRemaining, s.TimeRemainingValid = e.timeRemaining(s, r, aux)
	return s
}

// polarity returns the calibrated sign, learning it from the first clearly
// charging or discharging reading. Until learned the rate is taken as is.
func (e *Engine) polarity(r power.Readings, aux power.Auxiliary) int {
	if e.calib == nil {
		return calibration.PolarityNormal
	}
	if p := e.calib.Polarity(); p != calibration.PolarityUnknown {
		return p
	}
	raw := r.BatteryRate
	if !raw.Valid || math.Abs(raw.Value) <= e.conf.PolarityMinW {
		return calibration.PolarityNormal
	}
	// Uncalibrated convention is positive while discharging.
	var sign int
	switch {
	case aux.ExternalConnected.False() && aux.IsCharging.False():
		sign = signOf(raw.Value)
	case aux.ExternalConnected.True() && aux.IsCharging.True():
		sign = -signOf(raw.Value)
	default:
		return calibration.PolarityNormal
	}
	e.calib.LearnPolarity(sign)
	return sign
}

func (e *Engine) adapterPower(r power.Readings, aux power.Auxiliary) power.Float {
	if r.AdapterPower.Valid {
		return r.AdapterPower
	}
	if w := milliToWatts(aux.Telemetry.SystemPowerIn); w.Valid {
		return w
	}
	if r.AdapterVoltage.NonZero() && r.AdapterCurrent.Valid {
		return power.Some(Volts(r.AdapterVoltage.Value) * Amps(r.AdapterCurrent.Value))
	}
	if aux.ExternalConnected.False() {
		return power.Some(0)
	}
	return power.None
}

// batteryCurrent prefers the OS amperage. When only the controller current
// is present it is put on the OS scale once that scale has been learned.
func (e *Engine) batteryCurrent(r power.Readings, aux power.Auxiliary) power.Float {
	e.mu.Lock()
	defer e.mu.Unlock()
	if aux.Amperage.NonZero() && r.Current.NonZero() {
		if scale, ok := inferScale(r.Current.Value, aux.Amperage.Value, e.conf.ScaleTolerance); ok {
			if scale != e.currentScale {
				log.Debugf("controller current scale is %g", scale)
			}
			e.currentScale = scale
		}
	}
	switch {
	case aux.Amperage.Valid:
		return power.Some(Amps(aux.Amperage.Value))
	case r.Current.Valid && e.currentScale != 0:
		return power.Some(Amps(r.Current.Value * e.currentScale))
	case r.Current.Valid:
		return power.Some(Amps(r.Current.Value))
	}
	return power.None
}

// batteryPower picks the battery power (positive charging) from the best
// source, then makes sure its direction agrees with conservation.
func (e *Engine) batteryPower(r power.Readings, aux power.Auxiliary, polarity int,
	adapter, load, voltage, current power.Float, diag map[string]float64) (power.Float, string) {

	implied := power.None
	if adapter.Positive() && load.Positive() {
		implied = power.Some(adapter.Value - load.Value)
		diag["implied_battery_w"] = implied.Value
	}

	value, source := power.None, SourceNone
	if r.BatteryRate.Valid {
		diag["raw_battery_rate"] = r.BatteryRate.Value
		calibrated := r.BatteryRate.Value * float64(polarity)
		diag["calibrated_battery_rate"] = calibrated
		if math.Abs(calibrated) > e.conf.RateNoiseW {
			value, source = power.Some(-calibrated), SourceRate
		}
	}
	if !value.Valid {
		if w := e.telemetryBattery(aux); w.Valid {
			value, source = w, SourceTelemetry
		}
	}
	if !value.Valid && voltage.NonZero() && current.NonZero() {
		value, source = power.Some(voltage.Value*current.Value), SourceVI
	}
	if !value.Valid && implied.Valid {
		value, source = implied, SourceImplied
	}
	if !value.Valid {
		return power.Some(0), SourceNone
	}

	if implied.Valid && source != SourceImplied {
		tolerance := math.Max(e.conf.BalanceFloorW, e.conf.BalanceRelative*math.Abs(implied.Value))
		disagree := signOf(value.Value) != signOf(implied.Value)
		if disagree && math.Abs(value.Value-implied.Value) > tolerance {
			log.Debugf("%s battery power %.2fW disagrees with implied %.2fW, using implied direction",
				source, value.Value, implied.Value)
			value = power.Some(float64(signOf(implied.Value)) * math.Abs(value.Value))
			source += directionSuffix
		}
	}
	return value, source
}

// telemetryBattery is the OS telemetry battery power in watts, signed by the
// OS charge state when that is known.
func (e *Engine) telemetryBattery(aux power.Auxiliary) power.Float {
	w := milliToWatts(aux.Telemetry.BatteryPower)
	if !w.Valid {
		return power.None
	}
	mag := math.Abs(w.Value)
	if mag <= e.conf.TelemetryNoiseW {
		return power.None
	}
	switch {
	case aux.IsCharging.True():
		return power.Some(mag)
	case aux.IsCharging.False() && aux.ExternalConnected.False():
		return power.Some(-mag)
	}
	return w
}

// level prefers the OS percentage. The controller's raw capacity ratio adds
// sub-percent precision when it rounds to the same figure.
func level(r power.Readings, aux power.Auxiliary) power.Float {
	ratio := power.None
	switch {
	case r.RemainingCapacity.Valid && r.FullCapacity.Positive():
		ratio = power.Some(clamp(100*r.RemainingCapacity.Value/r.FullCapacity.Value, 0, 100))
	case aux.RawCurrent.Valid && aux.RawMax.Positive():
		ratio = power.Some(clamp(100*aux.RawCurrent.Value/aux.RawMax.Value, 0, 100))
	}

	reported := PercentFromCapacity(aux.CurrentCapacity, aux.MaxCapacity,
		InferCapacityUnit(aux.CurrentCapacity, aux.MaxCapacity))
	if !reported.Valid && r.Percent.Valid {
		reported = power.Some(clamp(r.Percent.Value, 0, 100))
	}
	if !reported.Valid {
		return ratio
	}
	if ratio.Valid && math.Round(ratio.Value) == math.Round(reported.Value) {
		return ratio
	}
	return reported
}

// health is full charge capacity over design capacity, from one source.
func health(r power.Readings, aux power.Auxiliary) power.Float {
	full, design := r.FullCapacity, r.DesignCapacity
	if !full.Positive() || !design.Positive() {
		full, design = aux.RawMax, aux.DesignCapacity
	}
	if !full.Positive() || !design.Positive() {
		return power.None
	}
	return power.Some(clamp(100*full.Value/design.Value, 0, 120))
}

func remainingEnergy(r power.Readings, aux power.Auxiliary) power.Float {
	capacity, volts := r.RemainingCapacity, r.Voltage
	if !capacity.Valid || !volts.Positive() {
		capacity, volts = aux.RawCurrent, aux.Voltage
	}
	if !capacity.Valid || !volts.Positive() {
		return power.None
	}
	return power.Some(AmpHours(capacity.Value) * Volts(volts.Value))
}

func (e *Engine) temperature(now time.Time, r power.Readings, aux power.Auxiliary) (power.Float, string) {
	if r.Temperature.Valid {
		source := TempSMC
		if r.TemperatureKey != "" {
			source += ":" + r.TemperatureKey
		}
		if e.calib != nil {
			e.calib.SaveTemperature(calibration.CachedTemperature{
				Value:  r.Temperature.Value,
				Source: source,
				Time:   now,
			})
		}
		return r.Temperature, source
	}
	if e.calib != nil {
		if t, ok := e.calib.CachedTemperature(now, e.conf.TemperatureTTL); ok {
			return power.Some(t.Value), TempCached
		}
	}
	if aux.SensorTemperature.Valid {
		source := TempSensor
		if aux.SensorName != "" {
			source += ":" + aux.SensorName
		}
		return aux.SensorTemperature, source
	}
	if aux.PackTemperature.Valid {
		return aux.PackTemperature, TempBattery
	}
	return power.None, ""
}

// timeRemaining is the OS estimate, or one worked out from energy and power.
// Implausible estimates are dropped.
func (e *Engine) timeRemaining(s power.Snapshot, r power.Readings, aux power.Auxiliary) (time.Duration, bool) {
	if s.ExternalPower && !s.IsCharging {
		return 0, false
	}
	var minutes power.Float
	if s.IsCharging {
		minutes = aux.TimeToFull
		if !minutes.Valid {
			minutes = estimateToFull(s, r, aux)
		}
	} else {
		minutes = power.First(aux.TimeToEmpty, aux.TimeRemaining)
		if !minutes.Valid && s.RemainingEnergy.Valid && s.BatteryPower.Value < 0 {
			minutes = power.Some(60 * s.RemainingEnergy.Value / -s.BatteryPower.Value)
		}
	}
	if !minutes.Positive() {
		return 0, false
	}
	d := time.Duration(minutes.Value * float64(time.Minute))
	limit := e.conf.MaxDischargeEstimate
	if s.IsCharging {
		limit = e.conf.MaxChargeEstimate
	}
	if d > limit {
		return 0, false
	}
	return d, true
}

func estimateToFull(s power.Snapshot, r power.Readings, aux power.Auxiliary) power.Float {
	if !s.BatteryPower.Positive() || !s.BatteryVoltage.Positive() {
		return power.None
	}
	remaining, full := r.RemainingCapacity, r.FullCapacity
	if !remaining.Valid || !full.Positive() {
		remaining, full = aux.RawCurrent, aux.RawMax
	}
	if !remaining.Valid || !full.Positive() || remaining.Value >= full.Value {
		return power.None
	}
	// Scale by the full capacity, the difference alone can look like amp hours.
	ah := (full.Value - remaining.Value) * AmpHours(full.Value) / full.Value
	wh := ah * s.BatteryVoltage.Value
	return power.Some(60 * wh / s.BatteryPower.Value)
}

func milliToWatts(f power.Float) power.Float {
	if !f.Valid {
		return power.None
	}
	return power.Some(f.Value / 1000)
}

func signOf(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
