// Package ecrequest provides the raw keyed read calls to an embedded
// controller. Implementations hold a stateful connection and are guarded by a
// mutex, callers still serialise whole ticks themselves.
package ecrequest

import (
	"errors"
	"fmt"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrNotOpen     = errors.New("transport not open")
	ErrUnsupported = errors.New("transport not supported on this platform")
)

// KeyInfo is the metadata the controller reports for a key.
type KeyInfo struct {
	Size int
	Type string
}

// Transport is the binary register transport.
type Transport interface {
	Open() error
	ReadKeyInfo(key string) (KeyInfo, error)
	ReadKeyBytes(key string, size int) ([]byte, error)
	Close() error
}

// StatusError is a non-success result code returned by the controller.
type StatusError struct {
	Key    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("controller returned status 0x%02x for key '%s'", e.Status, e.Key)
}

// ShortReadError is returned when the controller returned fewer bytes than
// were asked for.
type ShortReadError struct {
	Key       string
	Want, Got int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read for key '%s': wanted %d bytes, got %d", e.Key, e.Want, e.Got)
}

// New returns the transport named in the config. "none" returns a nil
// transport and no error.
func New(name string, smbus SMBusConfig) (Transport, error) {
	switch name {
	case "applesmc":
		return NewAppleSMC(), nil
	case "smbus":
		return NewSMBus(smbus), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown transport '%s'", name)
	}
}
