package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEncodeStatString_WorkedExample matches spec.md §8 scenario 6 exactly:
// encoding {0x01..0x07} produces an 8-byte block whose first byte is 0x55.
func TestEncodeStatString_WorkedExample(t *testing.T) {
	input := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	encoded := EncodeStatString(input)

	require.Len(t, encoded, 8)
	require.Equal(t, byte(0x55), encoded[0])

	decoded := DecodeStatString(encoded)
	require.Equal(t, input, decoded)
}

// TestStatString_RoundTrip_NeverProducesZeroByte is P5 from spec.md §8:
// for every byte sequence not containing a null, decode(encode(s)) == s,
// and additionally the wire claims the encoded form is itself null-free.
func TestStatString_RoundTrip_NeverProducesZeroByte(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0x01},
		{0xFF},
		{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A},
		{0xFE, 0xFD, 0xFC, 0xFB, 0xFA, 0xF9, 0xF8, 0xF7, 0xF6},
	}

	for _, c := range cases {
		encoded := EncodeStatString(c)
		for _, b := range encoded {
			require.NotZero(t, b, "encoded stat string must never contain a null byte")
		}
		decoded := DecodeStatString(encoded)
		require.Equal(t, c, decoded)
	}
}

func TestStatString_RoundTrip_Exhaustive(t *testing.T) {
	input := make([]byte, 256)
	for i := range input {
		input[i] = byte(i)
	}
	require.Equal(t, input, DecodeStatString(EncodeStatString(input)))
}
