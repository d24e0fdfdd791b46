/*
powerflow - laptop power flow reconciliation
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	config "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/powerflow/ecrequest"
	"github.com/TheCacophonyProject/powerflow/internal/calibration"
	"github.com/TheCacophonyProject/powerflow/internal/gatekeeper"
	"github.com/TheCacophonyProject/powerflow/internal/logging"
	"github.com/TheCacophonyProject/powerflow/internal/platform"
	"github.com/TheCacophonyProject/powerflow/internal/power"
	"github.com/TheCacophonyProject/powerflow/internal/publish"
	"github.com/TheCacophonyProject/powerflow/internal/reconcile"
	"github.com/TheCacophonyProject/powerflow/internal/scheduler"
	"github.com/TheCacophonyProject/powerflow/internal/smcreader"
	arg "github.com/alexflint/go-arg"
)

var version = "No version provided"

var log = logging.NewLogger("info")

type Args struct {
	ConfigDir string `arg:"-c,--config" help:"configuration folder"`
	Visible   bool   `arg:"--visible" help:"start sampling in foreground mode"`
	NoDBus    bool   `arg:"--no-dbus" help:"don't publish snapshots on D-Bus"`
	logging.LogArgs
}

func (Args) Version() string {
	return version
}

var defaultArgs = Args{
	ConfigDir: config.DefaultConfigDir,
}

func procArgs(input []string, dest interface{}) error {
	parser, err := arg.NewParser(arg.Config{}, dest)
	if err != nil {
		return err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return err
}

func setLoggers(l *logging.Logger) {
	log = l
	calibration.SetLogger(l)
	gatekeeper.SetLogger(l)
	platform.SetLogger(l)
	publish.SetLogger(l)
	reconcile.SetLogger(l)
	scheduler.SetLogger(l)
	smcreader.SetLogger(l)
}

// setup builds a daemon from the config. The returned close function
// releases the transport and the calibration store.
func setup(conf *Config) (*Daemon, func(), error) {
	transport, err := ecrequest.New(conf.Transport, conf.SMBus)
	if err != nil {
		return nil, nil, err
	}
	store, err := calibration.OpenBoltStore(conf.CalibrationDB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open calibration store: %w", err)
	}
	model := conf.Model
	if model == "" {
		model = platform.HardwareModel()
	}
	log.Infof("Hardware model '%s', transport '%s'", model, conf.Transport)

	d := NewDaemon(conf, transport, store, model, platform.NewCollector(conf.AuxTimeout))
	closeFn := func() {
		if err := d.Close(); err != nil {
			log.Warnf("failed to close transport: %v", err)
		}
		if err := store.Close(); err != nil {
			log.Warnf("failed to close calibration store: %v", err)
		}
	}
	return d, closeFn, nil
}

// Run is the sampling daemon.
func Run(inputArgs []string, ver string) error {
	version = ver
	args := defaultArgs
	if err := procArgs(inputArgs, &args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}
	setLoggers(logging.NewLogger(args.LogLevel))
	log.Info("Running version: ", version)

	conf, err := ParseConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	d, closeFn, err := setup(conf)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if conf.Events {
		events := publish.NewEventReporter()
		d.Calibration().SetListener(events.CalibrationEvent)
		d.OnSnapshot(events.Observe)
	}

	if !args.NoDBus {
		pub, err := publish.StartService(d.History(), d)
		if err != nil {
			return err
		}
		d.OnSnapshot(func(s power.Snapshot) {
			if err := pub.Publish(s); err != nil {
				log.Warnf("failed to emit snapshot signal: %v", err)
			}
		})
		if err := publish.WatchUPower(ctx, d.TriggerNow); err != nil {
			log.Warnf("not watching UPower: %v", err)
		}
	}

	if args.Visible {
		d.SetVisible(true)
	}
	d.Run(ctx)
	log.Info("Stopped")
	return nil
}
