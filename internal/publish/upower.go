package publish

import (
	"context"

	"github.com/godbus/dbus"
)

const (
	upowerName          = "org.freedesktop.UPower"
	upowerDevice        = upowerName + ".Device"
	propertiesChanged   = "org.freedesktop.DBus.Properties.PropertiesChanged"
	upowerMatchRule     = "type='signal',sender='org.freedesktop.UPower',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged'"
	upowerSignalBufSize = 10
)

// upowerTriggers are the UPower properties whose change means the power
// source or charge state changed.
var upowerTriggers = map[string][]string{
	upowerName:   {"OnBattery"},
	upowerDevice: {"State", "Online"},
}

// WatchUPower calls trigger whenever UPower reports a power source change,
// until ctx is done.
func WatchUPower(ctx context.Context, trigger func()) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, upowerMatchRule)
	if call.Err != nil {
		return call.Err
	}

	c := make(chan *dbus.Signal, upowerSignalBufSize)
	conn.Signal(c)
	log.Info("Listening for UPower power source changes")

	go func() {
		defer conn.RemoveSignal(c)
		for {
			select {
			case <-ctx.Done():
				return
			case signal := <-c:
				if isPowerSourceChange(signal) {
					log.Debugf("UPower power source change on %s", signal.Path)
					trigger()
				}
			}
		}
	}()
	return nil
}

func isPowerSourceChange(signal *dbus.Signal) bool {
	if signal == nil || signal.Name != propertiesChanged || len(signal.Body) < 2 {
		return false
	}
	iface, ok := signal.Body[0].(string)
	if !ok {
		return false
	}
	changed, ok := signal.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false
	}
	for _, prop := range upowerTriggers[iface] {
		if _, ok := changed[prop]; ok {
			return true
		}
	}
	return false
}
