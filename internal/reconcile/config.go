package reconcile

import "time"

// Config holds the engine's tolerances. They were found empirically and are
// tunable, not physical constants.
type Config struct {
	// PolarityMinW is the smallest raw rate that can teach the polarity.
	PolarityMinW float64 `mapstructure:"polarity-min-w"`
	// RateNoiseW is the floor below which the direct rate is ignored.
	RateNoiseW float64 `mapstructure:"rate-noise-w"`
	// TelemetryNoiseW is the floor for OS telemetry battery power.
	TelemetryNoiseW float64 `mapstructure:"telemetry-noise-w"`
	// BalanceFloorW and BalanceRelative form the direction cross-check
	// tolerance: max(floor, relative * |implied|).
	BalanceFloorW   float64 `mapstructure:"balance-floor-w"`
	BalanceRelative float64 `mapstructure:"balance-relative"`
	// ScaleTolerance is how far a current ratio may sit from its decade.
	ScaleTolerance float64 `mapstructure:"scale-tolerance"`
	// AdapterPresentW is the adapter power taken as external power when the
	// OS does not say.
	AdapterPresentW float64 `mapstructure:"adapter-present-w"`

	TemperatureTTL       time.Duration `mapstructure:"temperature-ttl"`
	MaxChargeEstimate    time.Duration `mapstructure:"max-charge-estimate"`
	MaxDischargeEstimate time.Duration `mapstructure:"max-discharge-estimate"`
}

func DefaultConfig() Config {
	return Config{
		PolarityMinW:         0.5,
		RateNoiseW:           0.05,
		TelemetryNoiseW:      0.01,
		BalanceFloorW:        1.0,
		BalanceRelative:      0.3,
		ScaleTolerance:       2.0,
		AdapterPresentW:      0.5,
		TemperatureTTL:       time.Minute,
		MaxChargeEstimate:    12 * time.Hour,
		MaxDischargeEstimate: 48 * time.Hour,
	}
}
