package smc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegerRoundTrip(t *testing.T) {
	cases := map[string]float64{
		TypeUI8:  200,
		TypeUI16: 6834,
		TypeUI32: 3000000000,
		TypeUI64: 1 << 40,
		TypeSI8:  -100,
		TypeSI16: -1234,
		TypeSI32: -70000,
		TypeSI64: -(1 << 40),
	}
	for typ, want := range cases {
		raw, ok := Encode(typ, want)
		require.True(t, ok, typ)
		got, ok := Decode(typ, raw)
		require.True(t, ok, typ)
		assert.Equal(t, want, got, typ)
	}
}

func TestLittleEndianAndTwosComplement(t *testing.T) {
	v, ok := Decode(TypeUI16, []byte{0x34, 0x12})
	require.True(t, ok)
	assert.Equal(t, float64(0x1234), v)

	v, ok = Decode(TypeSI16, []byte{0xFF, 0xFF})
	require.True(t, ok)
	assert.Equal(t, -1.0, v)

	v, ok = Decode(TypeSI8, []byte{0x80})
	require.True(t, ok)
	assert.Equal(t, -128.0, v)
}

func TestFloatRoundTrip(t *testing.T) {
	for _, want := range []float64{0, 12.5, -4.2, 65.03} {
		raw, ok := Encode(TypeFLT, want)
		require.True(t, ok)
		got, ok := Decode(TypeFLT, raw)
		require.True(t, ok)
		assert.InDelta(t, want, got, 1e-5)
	}
}

func TestFixedPointRoundTrip(t *testing.T) {
	assert.GreaterOrEqual(t, len(fixedTypes), 20)
	for typ, ft := range fixedTypes {
		want := 1.5
		if ft.signed {
			want = -1.5
		}
		if ft.divisor >= 32768 {
			want = 0.75
		}
		raw, ok := Encode(typ, want)
		require.True(t, ok, typ)
		got, ok := Decode(typ, raw)
		require.True(t, ok, typ)
		assert.InDelta(t, want, got, 1/ft.divisor, typ)
	}

	// sp78 is the common temperature encoding.
	v, ok := Decode("sp78", []byte{0x2A, 0x80})
	require.True(t, ok)
	assert.Equal(t, 42.5, v)
}

func TestFlag(t *testing.T) {
	v, ok := Decode(TypeFlag, []byte{0})
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
	v, ok = Decode(TypeFlag, []byte{7})
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestUnknownTypeIsNoValue(t *testing.T) {
	v, ok := Decode("zzzz", []byte{0, 0, 0, 0})
	assert.False(t, ok)
	assert.Equal(t, 0.0, v)

	_, ok = Decode("hex_", []byte{1, 2})
	assert.False(t, ok)

	_, ok = Encode("zzzz", 1)
	assert.False(t, ok)
}

func TestShortBufferIsNoValue(t *testing.T) {
	_, ok := Decode(TypeUI32, []byte{1, 2})
	assert.False(t, ok)
	_, ok = Decode(TypeFLT, []byte{1, 2, 3})
	assert.False(t, ok)
	_, ok = Decode("sp78", []byte{1})
	assert.False(t, ok)
	_, ok = Decode(TypeFlag, nil)
	assert.False(t, ok)
}

func TestText(t *testing.T) {
	v := NewValue("RPlt", TypeCh8, 8, []byte("j314s\x00\x00\x00"))
	s, ok := v.Text()
	require.True(t, ok)
	assert.Equal(t, "j314s", s)
	_, ok = v.Float()
	assert.False(t, ok)

	empty := NewValue("RPlt", TypeCh8, 4, []byte{0, 0, ' ', 0})
	_, ok = empty.Text()
	assert.False(t, ok)

	padded := NewValue("RPlt", TypeCh8, 6, []byte("mac  \n"))
	s, ok = padded.Text()
	require.True(t, ok)
	assert.Equal(t, "mac", s)
}

func TestFourCC(t *testing.T) {
	assert.Equal(t, "PPBR", FromFourCC(FourCC("PPBR")))
	assert.True(t, ValidKey("F0Ac"))
	assert.False(t, ValidKey("F0A"))
	assert.Equal(t, "F1Ac", FanKey(1))
}
