// Package calibration stores the facts learned about a hardware model: the
// battery rate polarity, which alias keys resolved, the discovered
// temperature keys and whether the warm-up burst has run.
package calibration

import (
	"strings"
	"time"
	"unicode"
)

// GlobalModel is used when the hardware model is unknown.
const GlobalModel = "global"

// Polarity values. Unknown means nothing has been learned yet.
const (
	PolarityUnknown  = 0
	PolarityNormal   = 1
	PolarityInverted = -1
)

// Capability names used for resolved alias keys.
const (
	CapPackagePower      = "package-power"
	CapBatteryVoltage    = "battery-voltage"
	CapBatteryPercent    = "battery-percent"
	CapRemainingCapacity = "remaining-capacity"
)

type CachedTemperature struct {
	Value  float64   `json:"value"`
	Source string    `json:"source"`
	Time   time.Time `json:"time"`
}

// State is the in-memory copy of one model's record.
type State struct {
	Polarity       int
	ResolvedKeys   map[string]string
	DiscoveredKeys []string
	WarmupDone     bool
	Platform       string
	Temperature    *CachedTemperature
}

// Store persists State records keyed by normalised model id.
type Store interface {
	LoadPolarity(model string) (int, error)
	SavePolarity(model string, sign int) error
	LoadDiscoveredKeys(model string) ([]string, error)
	SaveDiscoveredKeys(model string, keys []string) error
	LoadWarmupDone(model string) (bool, error)
	MarkWarmupDone(model string) error
	LoadCachedTemperature(model string) (*CachedTemperature, error)
	SaveCachedTemperature(model string, t CachedTemperature) error
	LoadResolvedKeys(model string) (map[string]string, error)
	SaveResolvedKey(model, capability, key string) error
	ClearResolvedKeys(model string) error
	LoadPlatform(model string) (string, error)
	SavePlatform(model, platform string) error
	Close() error
}

// NormaliseModel lowercases the model id and folds anything that is not a
// letter or digit into single dashes, "MacBookPro18,3" -> "macbookpro18-3".
func NormaliseModel(model string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(model)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if s == "" {
		return GlobalModel
	}
	return s
}
