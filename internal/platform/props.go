// Package platform reads the secondary power sources: the OS battery
// property bag and its telemetry block, thermal pressure, a generic
// temperature sensor and the OS time estimates.
package platform

import (
	"context"
	"math"

	"github.com/TheCacophonyProject/powerflow/internal/logging"
	"github.com/TheCacophonyProject/powerflow/internal/power"
)

var log = logging.NewLogger("info")

func SetLogger(l *logging.Logger) {
	log = l
}

// Props is a flat key to value bag as produced by the OS battery driver.
// Nested bags are Props or map[string]interface{}.
type Props map[string]interface{}

// PropertySource returns the battery property bag.
type PropertySource interface {
	Properties(ctx context.Context) (Props, error)
}

func (p Props) Bool(key string) power.Flag {
	switch v := p[key].(type) {
	case bool:
		return power.FlagOf(v)
	case string:
		switch v {
		case "Yes", "yes", "true", "TRUE", "1":
			return power.FlagOf(true)
		case "No", "no", "false", "FALSE", "0":
			return power.FlagOf(false)
		}
	default:
		if n, ok := toFloat(v); ok {
			return power.FlagOf(n != 0)
		}
	}
	return power.Flag{}
}

// Int handles the unsigned 64 bit encoding of negative values some drivers
// use for Amperage.
func (p Props) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	f, ok := toFloat(p[key])
	return int64(f), ok
}

func (p Props) Float(key string) power.Float {
	if u, ok := p[key].(uint64); ok {
		return power.Some(float64(int64(u)))
	}
	if f, ok := toFloat(p[key]); ok {
		return power.Some(f)
	}
	return power.None
}

func (p Props) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func (p Props) Map(key string) Props {
	switch v := p[key].(type) {
	case Props:
		return v
	case map[string]interface{}:
		return Props(v)
	}
	return nil
}

func (p Props) Ints(key string) []int64 {
	list, ok := p[key].([]interface{})
	if !ok {
		if ints, ok := p[key].([]int64); ok {
			return ints
		}
		return nil
	}
	out := make([]int64, 0, len(list))
	for _, item := range list {
		if u, ok := item.(uint64); ok {
			out = append(out, int64(u))
			continue
		}
		if f, ok := toFloat(item); ok {
			out = append(out, int64(f))
		}
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
