// Package smc decodes the typed, fixed-size values exposed by a keyed embedded
// controller (the Apple SMC layout: 4 character keys, 4 character type tags).
package smc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// MaxValueSize is the largest value the controller returns for a single key.
const MaxValueSize = 32

// Type tags understood by Decode.
const (
	TypeUI8  = "ui8 "
	TypeUI16 = "ui16"
	TypeUI32 = "ui32"
	TypeUI64 = "ui64"
	TypeSI8  = "si8 "
	TypeSI16 = "si16"
	TypeSI32 = "si32"
	TypeSI64 = "si64"
	TypeFLT  = "flt "
	TypeFlag = "flag"
	TypeCh8  = "ch8*"
)

type intType struct {
	width  int
	signed bool
}

var intTypes = map[string]intType{
	TypeUI8:  {1, false},
	TypeUI16: {2, false},
	TypeUI32: {4, false},
	TypeUI64: {8, false},
	TypeSI8:  {1, true},
	TypeSI16: {2, true},
	TypeSI32: {4, true},
	TypeSI64: {8, true},
}

type fixedType struct {
	divisor float64
	signed  bool
}

// Fixed point tags encode the binary point in the last hex digit of the tag:
// fpXY / spXY carry Y fraction bits.
var fixedTypes = map[string]fixedType{
	"fp1f": {32768, false},
	"fp2e": {16384, false},
	"fp3d": {8192, false},
	"fp4c": {4096, false},
	"fp5b": {2048, false},
	"fp6a": {1024, false},
	"fp79": {512, false},
	"fp88": {256, false},
	"fpa6": {64, false},
	"fpc4": {16, false},
	"fpe2": {4, false},
	"sp1e": {16384, true},
	"sp2d": {8192, true},
	"sp3c": {4096, true},
	"sp4b": {2048, true},
	"sp5a": {1024, true},
	"sp69": {512, true},
	"sp78": {256, true},
	"sp87": {128, true},
	"sp96": {64, true},
	"spa5": {32, true},
	"spb4": {16, true},
	"spf0": {1, true},
}

// Value is one raw reading from the controller.
type Value struct {
	Key   string
	Size  int
	Type  string
	Bytes [MaxValueSize]byte
}

// NewValue copies raw into a Value. Data beyond MaxValueSize is dropped.
func NewValue(key, typ string, size int, raw []byte) Value {
	v := Value{Key: key, Size: size, Type: typ}
	copy(v.Bytes[:], raw)
	if v.Size > MaxValueSize {
		v.Size = MaxValueSize
	}
	if v.Size > len(raw) {
		v.Size = len(raw)
	}
	return v
}

// Raw returns the declared bytes of the value.
func (v Value) Raw() []byte {
	return v.Bytes[:v.Size]
}

// Float returns the numeric interpretation of the value.
func (v Value) Float() (float64, bool) {
	return Decode(v.Type, v.Raw())
}

// Text returns the string interpretation for character array types.
func (v Value) Text() (string, bool) {
	if !IsText(v.Type) {
		return "", false
	}
	return decodeText(v.Raw())
}

func (v Value) String() string {
	if s, ok := v.Text(); ok {
		return fmt.Sprintf("%s [%s] %q", v.Key, v.Type, s)
	}
	if f, ok := v.Float(); ok {
		return fmt.Sprintf("%s [%s] %g", v.Key, v.Type, f)
	}
	return fmt.Sprintf("%s [%s] % x", v.Key, v.Type, v.Raw())
}

// IsText reports whether typ is a character array type.
func IsText(typ string) bool {
	return typ == TypeCh8 || strings.HasPrefix(typ, "{ch8") || typ == "ch8 "
}

// Known reports whether Decode understands typ.
func Known(typ string) bool {
	if _, ok := intTypes[typ]; ok {
		return true
	}
	if _, ok := fixedTypes[typ]; ok {
		return true
	}
	return typ == TypeFLT || typ == TypeFlag
}

// Decode interprets raw according to the type tag. An unknown tag or a buffer
// shorter than the type's width yields no value, never zero.
func Decode(typ string, raw []byte) (float64, bool) {
	if t, ok := intTypes[typ]; ok {
		if len(raw) < t.width {
			return 0, false
		}
		u := readUint(raw[:t.width])
		if !t.signed {
			return float64(u), true
		}
		return float64(signExtend(u, t.width)), true
	}
	if t, ok := fixedTypes[typ]; ok {
		if len(raw) < 2 {
			return 0, false
		}
		u := binary.BigEndian.Uint16(raw[:2])
		if t.signed {
			return float64(int16(u)) / t.divisor, true
		}
		return float64(u) / t.divisor, true
	}
	switch typ {
	case TypeFLT:
		if len(raw) < 4 {
			return 0, false
		}
		f := math.Float32frombits(binary.LittleEndian.Uint32(raw[:4]))
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return 0, false
		}
		return float64(f), true
	case TypeFlag:
		if len(raw) < 1 {
			return 0, false
		}
		if raw[0] != 0 {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func readUint(b []byte) uint64 {
	var u uint64
	for i := len(b) - 1; i >= 0; i-- {
		u = u<<8 | uint64(b[i])
	}
	return u
}

func signExtend(u uint64, width int) int64 {
	shift := uint(64 - width*8)
	return int64(u<<shift) >> shift
}

func decodeText(raw []byte) (string, bool) {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	s := strings.TrimRight(string(raw), " \t\r\n\x00")
	if s == "" {
		return "", false
	}
	return s, true
}

// Encode is the inverse of Decode for numeric types. Values are truncated
// toward zero for integer and fixed point types.
func Encode(typ string, f float64) ([]byte, bool) {
	if t, ok := intTypes[typ]; ok {
		out := make([]byte, t.width)
		var u uint64
		if t.signed {
			u = uint64(int64(f))
		} else {
			u = uint64(f)
		}
		for i := 0; i < t.width; i++ {
			out[i] = byte(u >> (8 * uint(i)))
		}
		return out, true
	}
	if t, ok := fixedTypes[typ]; ok {
		out := make([]byte, 2)
		if t.signed {
			binary.BigEndian.PutUint16(out, uint16(int16(f*t.divisor)))
		} else {
			binary.BigEndian.PutUint16(out, uint16(f*t.divisor))
		}
		return out, true
	}
	switch typ {
	case TypeFLT:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, math.Float32bits(float32(f)))
		return out, true
	case TypeFlag:
		if f != 0 {
			return []byte{1}, true
		}
		return []byte{0}, true
	}
	return nil, false
}

// EncodeText pads s with NULs to size bytes.
func EncodeText(s string, size int) []byte {
	out := make([]byte, size)
	copy(out, s)
	return out
}

// ValidKey reports whether key is a 4 character controller key.
func ValidKey(key string) bool {
	if len(key) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if key[i] < 0x20 || key[i] > 0x7e {
			return false
		}
	}
	return true
}

// FourCC packs a 4 character key or type tag big-endian, as the controller
// expects it on the wire.
func FourCC(s string) uint32 {
	var b [4]byte
	copy(b[:], s)
	return binary.BigEndian.Uint32(b[:])
}

// FromFourCC unpacks a big-endian 4 character code.
func FromFourCC(u uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], u)
	return string(b[:])
}

// FanKey is the actual-speed key of fan i.
func FanKey(i int) string {
	return fmt.Sprintf("F%dAc", i)
}
