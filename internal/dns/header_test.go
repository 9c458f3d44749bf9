package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsPackUnpackBijection(t *testing.T) {
	// Every 16-bit pattern maps to exactly one Flags value and back.
	for v := 0; v <= 0xFFFF; v++ {
		raw := uint16(v)
		if got := UnpackFlags(raw).Pack(); got != raw {
			t.Fatalf("pack(unpack(0x%04x)) = 0x%04x", raw, got)
		}
	}
}

func TestFlagsUnpackFields(t *testing.T) {
	f := UnpackFlags(0x8180) // QR, RD, RA
	assert.True(t, f.QR)
	assert.True(t, f.RD)
	assert.True(t, f.RA)
	assert.False(t, f.AA)
	assert.False(t, f.TC)
	assert.Equal(t, OpcodeQuery, f.Opcode)
	assert.Equal(t, RCodeNoError, f.RCode)

	f = UnpackFlags(0x0003)
	assert.Equal(t, RCodeNXDomain, f.RCode)
}

func TestFlagsPackMasksWidths(t *testing.T) {
	// Out-of-range field values must not bleed into neighboring bits.
	f := Flags{Opcode: 0xFF, Z: 0xFF, RCode: 0xFF}
	v := f.Pack()
	assert.Equal(t, Flags{Opcode: 0x0F, Z: 0x07, RCode: 0x0F}, UnpackFlags(v))
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		ID:      0x1234,
		Flags:   Flags{QR: true, RD: true, RA: true, RCode: RCodeNXDomain},
		QDCount: 1,
		ANCount: 2,
		NSCount: 3,
		ARCount: 4,
	}

	w := NewWriteBuffer(HeaderSize)
	h.Marshal(w)
	require.Equal(t, HeaderSize, w.Len())

	got, err := ParseHeader(NewReadBuffer(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestParseHeaderShort(t *testing.T) {
	_, err := ParseHeader(NewReadBuffer(make([]byte, 11)))
	assert.ErrorIs(t, err, ErrEndOfBuffer)
}
