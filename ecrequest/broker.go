package ecrequest

import (
	"github.com/godbus/dbus"
)

const (
	brokerDbusName = "org.cacophony.i2c"
	brokerDbusPath = "/org/cacophony/i2c"
)

// BrokerBus sends i2c transactions to the org.cacophony.i2c service, which
// serialises access to a bus shared with other daemons.
type BrokerBus struct {
	// Timeout in milliseconds the broker waits for the bus to be free.
	Timeout int
}

func (b *BrokerBus) Tx(addr uint16, w, r []byte) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	obj := conn.Object(brokerDbusName, brokerDbusPath)

	var response []byte
	if err := obj.Call(brokerDbusName+".Tx", 0, byte(addr), w, len(r), b.Timeout).Store(&response); err != nil {
		return err
	}
	if len(response) < len(r) {
		return &ShortReadError{Key: "i2c", Want: len(r), Got: len(response)}
	}
	copy(r, response)
	return nil
}
