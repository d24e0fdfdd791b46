package monitor

import (
	"fmt"
	"time"

	config "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/powerflow/ecrequest"
	"github.com/TheCacophonyProject/powerflow/internal/gatekeeper"
	"github.com/TheCacophonyProject/powerflow/internal/history"
	"github.com/TheCacophonyProject/powerflow/internal/reconcile"
	"github.com/TheCacophonyProject/powerflow/internal/scheduler"
	"github.com/TheCacophonyProject/powerflow/internal/smcreader"
)

const configKey = "power-flow"

type Config struct {
	// Transport is "applesmc", "smbus" or "none".
	Transport     string                `mapstructure:"transport"`
	SMBus         ecrequest.SMBusConfig `mapstructure:"smbus"`
	CalibrationDB string                `mapstructure:"calibration-db"`
	// Model overrides the detected hardware model.
	Model string `mapstructure:"model"`
	// StatusTemplate is the always visible readout, e.g. "{battery}W {temp}".
	// Its placeholders decide what the summary profile reads.
	StatusTemplate string `mapstructure:"status-template"`

	HistoryCapacity     int           `mapstructure:"history-capacity"`
	AuxTimeout          time.Duration `mapstructure:"aux-timeout"`
	MissingKeyTTL       time.Duration `mapstructure:"missing-key-ttl"`
	TemperatureCooldown time.Duration `mapstructure:"temperature-cooldown"`
	Events              bool          `mapstructure:"events"`

	Scheduler  scheduler.Config  `mapstructure:"scheduler"`
	Reconcile  reconcile.Config  `mapstructure:"reconcile"`
	Gatekeeper gatekeeper.Config `mapstructure:"gatekeeper"`
}

func DefaultConfig() Config {
	return Config{
		Transport: "applesmc",
		SMBus: ecrequest.SMBusConfig{
			Address: ecrequest.DefaultSMBusAddress,
			PEC:     true,
			Retries: 2,
		},
		CalibrationDB:       "/var/lib/powerflow/calibration.db",
		StatusTemplate:      "{battery}W",
		HistoryCapacity:     history.DefaultCapacity,
		AuxTimeout:          2 * time.Second,
		MissingKeyTTL:       smcreader.DefaultMissingTTL,
		TemperatureCooldown: time.Minute,
		Events:              true,
		Scheduler:           scheduler.DefaultConfig(),
		Reconcile:           reconcile.DefaultConfig(),
		Gatekeeper:          gatekeeper.DefaultConfig(),
	}
}

func ParseConfig(configDir string) (*Config, error) {
	conf, err := config.New(configDir)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig()
	if err := conf.Unmarshal(configKey, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch c.Transport {
	case "applesmc", "smbus", "none", "":
	default:
		return fmt.Errorf("unknown transport '%s'", c.Transport)
	}
	s := c.Scheduler
	if s.BackgroundInterval <= 0 || s.ForegroundInterval <= 0 || s.WarmupInterval <= 0 {
		return fmt.Errorf("sampling intervals must be positive")
	}
	if s.WarmupSamples <= 0 || s.WarmupDeadline <= 0 {
		return fmt.Errorf("warm-up needs a positive sample budget and deadline")
	}
	if c.Gatekeeper.MinHold > c.Gatekeeper.MaxHold {
		return fmt.Errorf("gatekeeper min-hold %s is longer than max-hold %s", c.Gatekeeper.MinHold, c.Gatekeeper.MaxHold)
	}
	if c.Gatekeeper.MaxAttempts < 1 {
		return fmt.Errorf("gatekeeper max-attempts must be at least 1")
	}
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("history-capacity must be at least 1")
	}
	return nil
}
