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

package publish

import (
	"errors"
	"time"

	"github.com/TheCacophonyProject/powerflow/internal/history"
	"github.com/TheCacophonyProject/powerflow/internal/logging"
	"github.com/TheCacophonyProject/powerflow/internal/power"
	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

var log = logging.NewLogger("info")

func SetLogger(l *logging.Logger) {
	log = l
}

const (
	dbusName       = "org.cacophony.powerflow"
	dbusPath       = "/org/cacophony/powerflow"
	snapshotSignal = dbusName + ".Snapshot"
)

// Controller is what D-Bus clients can ask the sampler to do.
type Controller interface {
	SetVisible(visible bool)
	TriggerNow()
}

type service struct {
	history *history.Ring
	ctrl    Controller
}

// Publisher owns the bus name and emits a signal for each accepted snapshot.
type Publisher struct {
	conn *dbus.Conn
}

// StartService claims org.cacophony.powerflow on the system bus.
func StartService(ring *history.Ring, ctrl Controller) (*Publisher, error) {
	log.Info("Starting powerflow service")
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, errors.New("name already taken")
	}

	s := &service{history: ring, ctrl: ctrl}
	if err := conn.Export(s, dbusPath, dbusName); err != nil {
		return nil, err
	}
	if err := conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, err
	}
	return &Publisher{conn: conn}, nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
			Signals: []introspect.Signal{{
				Name: "Snapshot",
				Args: []introspect.Arg{
					{Name: "time", Type: "x"},
					{Name: "values", Type: "a{sd}"},
					{Name: "labels", Type: "a{ss}"},
				},
			}},
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Publish emits the snapshot signal.
func (p *Publisher) Publish(s power.Snapshot) error {
	return p.conn.Emit(dbusPath, snapshotSignal, s.Time.Unix(), s.Values(), s.Labels())
}

/*
dbus-send --system --print-reply --dest=org.cacophony.powerflow /org/cacophony/powerflow \
org.cacophony.powerflow.Snapshot
*/

// Snapshot returns the latest accepted snapshot.
func (s *service) Snapshot() (int64, map[string]float64, map[string]string, *dbus.Error) {
	snap, ok := s.history.Latest()
	if !ok {
		return 0, nil, nil, dbus.NewError(dbusName+".NoSnapshot", nil)
	}
	return snap.Time.Unix(), snap.Values(), snap.Labels(), nil
}

// History returns the values of every snapshot from the last seconds seconds,
// oldest first. Zero or less returns the whole buffer.
func (s *service) History(seconds int32) ([]int64, []map[string]float64, *dbus.Error) {
	since := time.Time{}
	if seconds > 0 {
		since = time.Now().Add(-time.Duration(seconds) * time.Second)
	}
	snaps := s.history.Since(since)
	times := make([]int64, 0, len(snaps))
	values := make([]map[string]float64, 0, len(snaps))
	for _, snap := range snaps {
		times = append(times, snap.Time.Unix())
		values = append(values, snap.Values())
	}
	return times, values, nil
}

// SetVisible switches between background and foreground sampling.
func (s *service) SetVisible(visible bool) *dbus.Error {
	log.Debugf("Visible set to %t over D-Bus", visible)
	s.ctrl.SetVisible(visible)
	return nil
}

// SampleNow asks for an immediate full sample.
func (s *service) SampleNow() *dbus.Error {
	s.ctrl.TriggerNow()
	return nil
}
