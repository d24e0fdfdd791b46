package platform

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TheCacophonyProject/powerflow/internal/power"
	"github.com/shirou/gopsutil/v3/host"
)

// ThermalSource reports the platform thermal pressure level.
type ThermalSource interface {
	ThermalPressure(ctx context.Context) (power.ThermalPressure, error)
}

// PmsetThermal parses `pmset -g therm`. pmset is slow so results are cached
// for TTL.
type PmsetThermal struct {
	TTL time.Duration
	run func(ctx context.Context) ([]byte, error)

	mu       sync.Mutex
	cached   power.ThermalPressure
	cachedAt time.Time
}

func NewPmsetThermal() *PmsetThermal {
	return &PmsetThermal{
		TTL: 10 * time.Second,
		run: func(ctx context.Context) ([]byte, error) {
			return exec.CommandContext(ctx, "pmset", "-g", "therm").Output()
		},
	}
}

func (t *PmsetThermal) ThermalPressure(ctx context.Context) (power.ThermalPressure, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cachedAt.IsZero() && time.Since(t.cachedAt) < t.TTL {
		return t.cached, nil
	}
	out, err := t.run(ctx)
	if err != nil {
		return power.ThermalUnknown, fmt.Errorf("pmset failed: %w", err)
	}
	t.cached = ParsePmsetTherm(out)
	t.cachedAt = time.Now()
	return t.cached, nil
}

// ParsePmsetTherm maps the thermal warning level and CPU speed limit from
// pmset output onto a pressure level.
func ParsePmsetTherm(out []byte) power.ThermalPressure {
	level := power.ThermalUnknown
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "no thermal warning level"):
			level = maxPressure(level, power.ThermalNominal)
		case strings.HasPrefix(lower, "thermal warning level"):
			level = maxPressure(level, power.ThermalModerate)
		case strings.Contains(lower, "sleeping"):
			level = maxPressure(level, power.ThermalSleeping)
		case strings.HasPrefix(lower, "cpu_speed_limit"):
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			limit, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				continue
			}
			level = maxPressure(level, pressureFromSpeedLimit(limit))
		}
	}
	return level
}

func pressureFromSpeedLimit(limit int) power.ThermalPressure {
	switch {
	case limit >= 100:
		return power.ThermalNominal
	case limit >= 80:
		return power.ThermalModerate
	case limit >= 50:
		return power.ThermalHeavy
	default:
		return power.ThermalTrapping
	}
}

func maxPressure(a, b power.ThermalPressure) power.ThermalPressure {
	if b > a {
		return b
	}
	return a
}

// SensorThermal derives a pressure level from hardware sensor readings
// against their high and critical thresholds.
type SensorThermal struct {
	read func(ctx context.Context) ([]host.TemperatureStat, error)
}

func NewSensorThermal() *SensorThermal {
	return &SensorThermal{read: host.SensorsTemperaturesWithContext}
}

func (t *SensorThermal) ThermalPressure(ctx context.Context) (power.ThermalPressure, error) {
	temps, err := t.read(ctx)
	if len(temps) == 0 {
		if err == nil {
			err = errNoSensors
		}
		return power.ThermalUnknown, err
	}
	level := power.ThermalUnknown
	for _, s := range temps {
		if s.Temperature <= 0 {
			continue
		}
		l := power.ThermalNominal
		switch {
		case s.Critical > 0 && s.Temperature >= s.Critical:
			l = power.ThermalTrapping
		case s.High > 0 && s.Temperature >= s.High:
			l = power.ThermalHeavy
		case s.High > 0 && s.Temperature >= s.High-10:
			l = power.ThermalModerate
		}
		level = maxPressure(level, l)
	}
	return level, nil
}
