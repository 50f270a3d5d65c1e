package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrame_RoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	buf := Encode(FamilyGame, 0x1E, payload)

	f, n, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, FamilyGame, f.Family)
	require.Equal(t, byte(0x1E), f.Opcode)
	require.Equal(t, payload, f.Payload)
}

func TestDecode_ConsumesOneFrameFromSharedBuffer(t *testing.T) {
	f1 := Encode(FamilyRealm, 0x0A, []byte{0xAA})
	f2 := Encode(FamilyGPS, 0x02, []byte{0xBB, 0xCC})
	buf := append(append([]byte{}, f1...), f2...)

	first, n1, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, FamilyRealm, first.Family)
	require.Equal(t, len(f1), n1)

	second, n2, err := Decode(buf[n1:])
	require.NoError(t, err)
	require.Equal(t, FamilyGPS, second.Family)
	require.Equal(t, len(f2), n2)
}

func TestDecode_ShortLengthIsProtocolError(t *testing.T) {
	buf := []byte{byte(FamilyGame), 0x00, 0x02, 0x00} // length=2 < HeaderSize
	_, _, err := Decode(buf)
	require.Error(t, err)
}

func TestDecode_LengthExceedsBufferIsProtocolError(t *testing.T) {
	buf := []byte{byte(FamilyGame), 0x00, 0xFF, 0x00} // length=255, buffer only 4
	_, _, err := Decode(buf)
	require.Error(t, err)
}

func TestDecode_ShortBufferIsError(t *testing.T) {
	_, _, err := Decode([]byte{0x01, 0x02})
	require.Error(t, err)
}
