package reconcile

import (
	"math"

	"github.com/TheCacophonyProject/powerflow/internal/power"
)

// milliThreshold: any voltage, current or capacity magnitude above it is in
// milli-units. No laptop battery reads above 100 V, 100 A or 100 Ah.
const milliThreshold = 100

func fromMilli(v float64) float64 {
	if math.Abs(v) > milliThreshold {
		return v / 1000
	}
	return v
}

// Volts normalises a voltage to volts.
func Volts(v float64) float64 { return fromMilli(v) }

// Amps normalises a current to amps.
func Amps(v float64) float64 { return fromMilli(v) }

// AmpHours normalises a capacity to amp hours.
func AmpHours(v float64) float64 { return fromMilli(v) }

// CellVolts normalises a cell voltage to volts.
func CellVolts(v float64) float64 { return fromMilli(v) }

func mapFloat(f power.Float, fn func(float64) float64) power.Float {
	if !f.Valid {
		return power.None
	}
	return power.Some(fn(f.Value))
}

// CapacityUnit is how a "current capacity" value is expressed.
type CapacityUnit int

const (
	UnitPercent CapacityUnit = iota
	UnitMilliampHours
)

func (u CapacityUnit) String() string {
	if u == UnitMilliampHours {
		return "mAh"
	}
	return "percent"
}

// InferCapacityUnit decides whether current/max are percent or mAh. A
// missing max counts as small.
func InferCapacityUnit(current, max power.Float) CapacityUnit {
	curSmall := !current.Valid || current.Value <= 100
	maxSmall := !max.Valid || max.Value <= 100
	switch {
	case curSmall && maxSmall:
		return UnitPercent
	case max.Valid && max.Value > 200:
		return UnitMilliampHours
	case current.Valid && current.Value > 100:
		return UnitMilliampHours
	default:
		return UnitPercent
	}
}

// PercentFromCapacity turns current/max into a 0-100 percentage. The mAh case
// needs a positive max.
func PercentFromCapacity(current, max power.Float, unit CapacityUnit) power.Float {
	if !current.Valid {
		return power.None
	}
	if unit == UnitPercent {
		return power.Some(clamp(current.Value, 0, 100))
	}
	if !max.Positive() {
		return power.None
	}
	return power.Some(clamp(100*current.Value/max.Value, 0, 100))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// currentScales are the decade factors tried between two current sources.
var currentScales = []float64{0.001, 0.01, 0.1, 1, 10, 100, 1000}

// inferScale returns the decade factor that maps from onto to, if the
// closest one is within tolerance.
func inferScale(from, to, tolerance float64) (float64, bool) {
	if from == 0 || to == 0 {
		return 0, false
	}
	ratio := math.Abs(to / from)
	best := 0.0
	bestDist := math.Inf(1)
	for _, s := range currentScales {
		d := math.Abs(math.Log(ratio / s))
		if d < bestDist {
			best, bestDist = s, d
		}
	}
	if bestDist > math.Log(tolerance) {
		return 0, false
	}
	return best, true
}
