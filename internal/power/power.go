// Package power holds the values passed between the readers, the
// reconciliation engine and the publishers.
package power

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Float is a reading that may legitimately be absent. Zero is a valid value.
type Float struct {
	Value float64
	Valid bool
}

var None = Float{}

func Some(v float64) Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return None
	}
	return Float{Value: v, Valid: true}
}

// Or returns the value, or def when absent.
func (f Float) Or(def float64) float64 {
	if !f.Valid {
		return def
	}
	return f.Value
}

// Positive reports whether the value is present and greater than zero.
func (f Float) Positive() bool {
	return f.Valid && f.Value > 0
}

// NonZero reports whether the value is present and not zero.
func (f Float) NonZero() bool {
	return f.Valid && f.Value != 0
}

// First returns the first present value.
func First(fs ...Float) Float {
	for _, f := range fs {
		if f.Valid {
			return f
		}
	}
	return None
}

func (f Float) String() string {
	if !f.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", f.Value)
}

// Flag is a boolean that may be unknown.
type Flag struct {
	Value bool
	Valid bool
}

func FlagOf(v bool) Flag {
	return Flag{Value: v, Valid: true}
}

// True reports whether the flag is known and set.
func (f Flag) True() bool {
	return f.Valid && f.Value
}

// False reports whether the flag is known and clear.
func (f Flag) False() bool {
	return f.Valid && !f.Value
}

// Profile selects how much the register reader reads per tick.
type Profile int

const (
	Summary Profile = iota
	Full
)

func (p Profile) String() string {
	if p == Full {
		return "full"
	}
	return "summary"
}

// DisplayNeeds is what the active status format shows, so the summary profile
// can skip the rest.
type DisplayNeeds struct {
	Screen      bool
	Package     bool
	Temperature bool
}

var AllNeeds = DisplayNeeds{Screen: true, Package: true, Temperature: true}

// ParseDisplayNeeds reads the placeholders out of a status template such as
// "{battery}W {screen}W {temp}".
func ParseDisplayNeeds(template string) DisplayNeeds {
	var needs DisplayNeeds
	rest := template
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			break
		}
		switch strings.ToLower(strings.TrimSpace(rest[start+1 : start+end])) {
		case "screen", "display", "brightness":
			needs.Screen = true
		case "package", "cpu", "heatpipe", "soc":
			needs.Package = true
		case "temp", "temperature":
			needs.Temperature = true
		}
		rest = rest[start+end+1:]
	}
	return needs
}

type ThermalPressure int

const (
	ThermalUnknown ThermalPressure = iota
	ThermalNominal
	ThermalModerate
	ThermalHeavy
	ThermalTrapping
	ThermalSleeping
)

var thermalNames = map[ThermalPressure]string{
	ThermalUnknown:  "unknown",
	ThermalNominal:  "nominal",
	ThermalModerate: "moderate",
	ThermalHeavy:    "heavy",
	ThermalTrapping: "trapping",
	ThermalSleeping: "sleeping",
}

func (t ThermalPressure) String() string {
	if s, ok := thermalNames[t]; ok {
		return s
	}
	return "unknown"
}

func ParseThermalPressure(s string) ThermalPressure {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, v := range thermalNames {
		if v == s {
			return k
		}
	}
	return ThermalUnknown
}

type Fan struct {
	Index int
	RPM   Float
}

// Readings is everything read from the embedded controller in one tick.
// BatteryRate is raw: its sign convention is unknown until calibrated.
type Readings struct {
	Time    time.Time
	Profile Profile

	BatteryRate  Float
	AdapterPower Float
	SystemTotal  Float
	ScreenPower  Float
	PackagePower Float
	PackageKey   string

	AdapterVoltage Float
	AdapterCurrent Float

	RemainingCapacity Float
	FullCapacity      Float
	DesignCapacity    Float
	Voltage           Float
	Current           Float
	Percent           Float
	CycleCount        Float

	LidClosed        Flag
	PlatformName     string
	ChargeControl    Float
	DischargeControl Float
	Fans             []Fan

	Temperature     Float
	TemperatureKey  string
	TemperatureKeys []string
}

// Telemetry is the OS power telemetry block, in milliwatts.
type Telemetry struct {
	SystemPowerIn   Float
	SystemLoad      Float
	BatteryPower    Float
	SystemVoltageIn Float
	SystemCurrentIn Float
}

// Auxiliary is everything read from sources other than the controller.
type Auxiliary struct {
	PropsAvailable bool

	IsCharging        Flag
	ExternalConnected Flag
	FullyCharged      Flag

	CurrentCapacity Float
	MaxCapacity     Float
	RawCurrent      Float
	RawMax          Float
	DesignCapacity  Float
	CycleCount      Float
	Voltage         Float
	Amperage        Float
	CellVoltages    []float64
	PackTemperature Float

	AdapterWatts   Float
	AdapterVoltage Float
	AdapterCurrent Float
	AdapterName    string
	DeviceName     string

	Telemetry Telemetry

	TimeToEmpty   Float
	TimeToFull    Float
	TimeRemaining Float

	ThermalPressure ThermalPressure

	SensorTemperature Float
	SensorName        string
}

// Snapshot is one reconciled tick. It is never mutated after construction.
// Its slices and the Diagnostics map are shared with every consumer and must
// be treated as read-only.
type Snapshot struct {
	Time    time.Time
	Profile Profile

	IsCharging    bool
	ExternalPower bool
	FullyCharged  bool

	Level              Float
	TimeRemaining      time.Duration
	TimeRemainingValid bool

	AdapterPower Float
	SystemInput  Float
	SystemLoad   Float
	// BatteryPower is positive when charging.
	BatteryPower  Float
	BatterySource string
	ScreenPower   Float
	PackagePower  Float
	PackageKey    string

	BatteryHealth   Float
	RemainingEnergy Float
	BatteryVoltage  Float
	BatteryCurrent  Float
	BatteryWatts    Float
	CellVoltages    []float64
	CycleCount      Float

	Temperature       Float
	TemperatureSource string
	ThermalPressure   ThermalPressure

	LidClosed Flag
	Fans      []Fan

	Diagnostics map[string]float64
}

// LevelPercent is the battery level rounded to a whole percent.
func (s Snapshot) LevelPercent() (int, bool) {
	if !s.Level.Valid {
		return 0, false
	}
	return int(math.Round(s.Level.Value)), true
}

// BalanceError is |adapter - load - battery|, the conservation mismatch.
func (s Snapshot) BalanceError() (float64, bool) {
	if !s.AdapterPower.Valid || !s.SystemLoad.Valid || !s.BatteryPower.Valid {
		return 0, false
	}
	return math.Abs(s.AdapterPower.Value - s.SystemLoad.Value - s.BatteryPower.Value), true
}

// Values flattens the present numeric fields, booleans as 0 or 1.
func (s Snapshot) Values() map[string]float64 {
	m := map[string]float64{
		"charging":       boolFloat(s.IsCharging),
		"external_power": boolFloat(s.ExternalPower),
		"fully_charged":  boolFloat(s.FullyCharged),
	}
	add := func(name string, f Float) {
		if f.Valid {
			m[name] = f.Value
		}
	}
	add("level", s.Level)
	add("adapter_power", s.AdapterPower)
	add("system_input", s.SystemInput)
	add("system_load", s.SystemLoad)
	add("battery_power", s.BatteryPower)
	add("screen_power", s.ScreenPower)
	add("package_power", s.PackagePower)
	add("battery_health", s.BatteryHealth)
	add("remaining_energy", s.RemainingEnergy)
	add("battery_voltage", s.BatteryVoltage)
	add("battery_current", s.BatteryCurrent)
	add("battery_watts", s.BatteryWatts)
	add("cycle_count", s.CycleCount)
	add("temperature", s.Temperature)
	if s.TimeRemainingValid {
		m["time_remaining"] = s.TimeRemaining.Minutes()
	}
	if s.LidClosed.Valid {
		m["lid_closed"] = boolFloat(s.LidClosed.Value)
	}
	for i, v := range s.CellVoltages {
		m[fmt.Sprintf("cell%d_voltage", i)] = v
	}
	for _, f := range s.Fans {
		add(fmt.Sprintf("fan%d_rpm", f.Index), f.RPM)
	}
	return m
}

// Labels are the string fields of the snapshot.
func (s Snapshot) Labels() map[string]string {
	return map[string]string{
		"battery_source":     s.BatterySource,
		"package_key":        s.PackageKey,
		"temperature_source": s.TemperatureSource,
		"thermal_pressure":   s.ThermalPressure.String(),
		"profile":            s.Profile.String(),
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
