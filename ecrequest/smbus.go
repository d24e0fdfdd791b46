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

package ecrequest

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/TheCacophonyProject/powerflow/smc"
	"github.com/sigurn/crc8"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Smart Battery System commands.
const (
	sbsVoltage           byte = 0x09
	sbsCurrent           byte = 0x0A
	sbsRelativeSOC       byte = 0x0D
	sbsRemainingCapacity byte = 0x0F
	sbsFullChargeCap     byte = 0x10
	sbsCycleCount        byte = 0x17
	sbsDesignCapacity    byte = 0x18
	sbsDeviceName        byte = 0x21

	DefaultSMBusAddress = 0x0B
	maxBlockLen         = 32
)

// Bus is the subset of an i2c bus the SMBus transport needs.
// periph's i2c.Bus satisfies it.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

type SMBusConfig struct {
	Bus     string `mapstructure:"bus"`
	Address uint16 `mapstructure:"address"`
	PEC     bool   `mapstructure:"pec"`
	// Broker routes transactions through the org.cacophony.i2c D-Bus service
	// instead of opening the bus directly.
	Broker  bool `mapstructure:"broker"`
	Retries int  `mapstructure:"retries"`
}

type sbsKey struct {
	cmd   byte
	typ   string
	size  int
	block bool
}

// Controller keys served by the smart battery, using the same names and
// types the SMC exposes so the collector does not care which one it talks to.
var sbsKeys = map[string]sbsKey{
	"B0AV": {cmd: sbsVoltage, typ: smc.TypeUI16, size: 2},
	"B0AC": {cmd: sbsCurrent, typ: smc.TypeSI16, size: 2},
	"BRSC": {cmd: sbsRelativeSOC, typ: smc.TypeUI16, size: 2},
	"B0RM": {cmd: sbsRemainingCapacity, typ: smc.TypeUI16, size: 2},
	"B0FC": {cmd: sbsFullChargeCap, typ: smc.TypeUI16, size: 2},
	"B0CT": {cmd: sbsCycleCount, typ: smc.TypeUI16, size: 2},
	"B0DC": {cmd: sbsDesignCapacity, typ: smc.TypeUI16, size: 2},
	"RPlt": {cmd: sbsDeviceName, typ: smc.TypeCh8, size: maxBlockLen, block: true},
}

// keyBatteryRate is synthesised from voltage and current, positive when
// discharging to match the SMC's uninverted convention.
const keyBatteryRate = "PPBR"

var pecTable = crc8.MakeTable(crc8.Params{
	Poly:   0x07,
	Init:   0x00,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
})

// SMBus reads a Smart Battery System fuel gauge.
type SMBus struct {
	mu      sync.Mutex
	conf    SMBusConfig
	bus     Bus
	closer  func() error
	open    bool
	sleepFn func(time.Duration)
}

func NewSMBus(conf SMBusConfig) *SMBus {
	if conf.Address == 0 {
		conf.Address = DefaultSMBusAddress
	}
	return &SMBus{conf: conf, sleepFn: time.Sleep}
}

// NewSMBusWithBus uses an already opened bus.
func NewSMBusWithBus(conf SMBusConfig, bus Bus) *SMBus {
	s := NewSMBus(conf)
	s.bus = bus
	return s
}

func (s *SMBus) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}
	if s.bus == nil {
		if s.conf.Broker {
			s.bus = &BrokerBus{Timeout: 1000}
		} else {
			if _, err := host.Init(); err != nil {
				return fmt.Errorf("failed to init host: %w", err)
			}
			bus, err := i2creg.Open(s.conf.Bus)
			if err != nil {
				return fmt.Errorf("failed to open i2c bus '%s': %w", s.conf.Bus, err)
			}
			s.bus = bus
			s.closer = bus.Close
		}
	}
	s.open = true
	return nil
}

func (s *SMBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	if s.closer == nil {
		return nil
	}
	err := s.closer()
	s.closer = nil
	s.bus = nil
	return err
}

func (s *SMBus) ReadKeyInfo(key string) (KeyInfo, error) {
	if key == keyBatteryRate {
		return KeyInfo{Size: 4, Type: smc.TypeFLT}, nil
	}
	k, ok := sbsKeys[key]
	if !ok {
		return KeyInfo{}, ErrKeyNotFound
	}
	return KeyInfo{Size: k.size, Type: k.typ}, nil
}

func (s *SMBus) ReadKeyBytes(key string, size int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, ErrNotOpen
	}
	if key == keyBatteryRate {
		return s.batteryRate()
	}
	k, ok := sbsKeys[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	var data []byte
	var err error
	if k.block {
		data, err = s.readBlock(k.cmd)
		if err == nil {
			padded := make([]byte, size)
			copy(padded, data)
			data = padded
		}
	} else {
		data, err = s.readWord(k.cmd)
	}
	if err != nil {
		return nil, err
	}
	if len(data) < size {
		return nil, &ShortReadError{Key: key, Want: size, Got: len(data)}
	}
	return data[:size], nil
}

func (s *SMBus) batteryRate() ([]byte, error) {
	v, err := s.readWord(sbsVoltage)
	if err != nil {
		return nil, err
	}
	c, err := s.readWord(sbsCurrent)
	if err != nil {
		return nil, err
	}
	mV := float64(binary.LittleEndian.Uint16(v))
	mA := float64(int16(binary.LittleEndian.Uint16(c)))
	raw, _ := smc.Encode(smc.TypeFLT, -mV*mA/1e6)
	return raw, nil
}

func (s *SMBus) readWord(cmd byte) ([]byte, error) {
	return s.read(cmd, 2, func([]byte) int { return 2 })
}

func (s *SMBus) readBlock(cmd byte) ([]byte, error) {
	resp, err := s.read(cmd, maxBlockLen+1, func(buf []byte) int {
		return 1 + int(buf[0])
	})
	if err != nil {
		return nil, err
	}
	return resp[1:], nil
}

// read performs a write-command/read transaction of readLen bytes. payload
// reports how many of those bytes are data, the PEC byte follows them.
func (s *SMBus) read(cmd byte, readLen int, payload func([]byte) int) ([]byte, error) {
	if s.conf.PEC {
		readLen++
	}
	var lastErr error
	for i := 0; i <= s.conf.Retries; i++ {
		buf := make([]byte, readLen)
		err := s.bus.Tx(s.conf.Address, []byte{cmd}, buf)
		if err == nil {
			n := payload(buf)
			switch {
			case n > len(buf) || (s.conf.PEC && n >= len(buf)):
				err = fmt.Errorf("invalid length %d for command 0x%02x", n, cmd)
			case s.conf.PEC:
				err = checkPEC(uint8(s.conf.Address), cmd, buf[:n], buf[n])
			}
			if err == nil {
				return buf[:n], nil
			}
		}
		lastErr = err
		if i < s.conf.Retries {
			s.sleepFn(20 * time.Millisecond)
		}
	}
	return nil, fmt.Errorf("smbus read of command 0x%02x failed: %w", cmd, lastErr)
}

// PEC computes the SMBus packet error code for a read of cmd from addr that
// returned data.
func PEC(addr uint8, cmd byte, data []byte) byte {
	msg := make([]byte, 0, len(data)+3)
	msg = append(msg, addr<<1, cmd, addr<<1|1)
	msg = append(msg, data...)
	return crc8.Checksum(msg, pecTable)
}

func checkPEC(addr uint8, cmd byte, data []byte, received byte) error {
	calculated := PEC(addr, cmd, data)
	if received != calculated {
		return fmt.Errorf("PEC mismatch: received 0x%02X, calculated 0x%02X", received, calculated)
	}
	return nil
}

var _ Bus = i2c.Bus(nil)
