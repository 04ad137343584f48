package npdu

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bacgopher/bacstack/codec"
)

func TestEncodeDecodeRoundTripsALocalFrame(t *testing.T) {
	dst := codec.Address{Net: codec.NetworkLocal, Mac: []byte{1, 2, 3, 4}}
	src := codec.Address{Net: codec.NetworkLocal, Mac: []byte{9}}
	buf := Encode(dst, src, Meta{ExpectingReply: true, Priority: PriorityUrgent})

	h, n, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.False(t, h.HasDestination, "a local destination must not encode a DNET/DADR triplet")
	require.False(t, h.HasSource)
	require.True(t, h.ExpectingReply)
	require.Equal(t, PriorityUrgent, h.Priority)
}

func TestEncodeDecodeRoundTripsARemoteFrameWithHopCount(t *testing.T) {
	dst := codec.Address{Net: 7, Adr: []byte{1, 2, 3}}
	src := codec.Address{Net: codec.NetworkLocal, Mac: []byte{9}}
	buf := EncodeWithHopCount(dst, src, Meta{}, 200)

	h, _, err := Decode(buf)
	require.NoError(t, err)
	require.True(t, h.HasDestination)
	require.Equal(t, uint16(7), h.DNET)
	require.Equal(t, []byte{1, 2, 3}, h.DADR)
	require.Equal(t, byte(200), h.HopCount)
	require.Equal(t, dst, h.DestinationAddress())
}

func TestEncodeNetworkMessageSetsTheControlBitAndType(t *testing.T) {
	dst := codec.Address{Net: codec.NetworkLocal}
	src := codec.Address{Net: codec.NetworkLocal}
	mt := IAmRouterToNetwork
	buf := Encode(dst, src, Meta{NetworkMessage: &mt})

	h, _, err := Decode(buf)
	require.NoError(t, err)
	require.True(t, h.IsNetworkMessage)
	require.Equal(t, IAmRouterToNetwork, h.NetworkMessage)
}

func TestDecodeRejectsAnUnsupportedVersion(t *testing.T) {
	_, _, err := Decode([]byte{2, 0})
	require.Error(t, err)
}

func TestDecodeRejectsATruncatedHeader(t *testing.T) {
	_, _, err := Decode([]byte{ProtocolVersion})
	require.Error(t, err)
}

func TestDecrementHopCount(t *testing.T) {
	next, ok := DecrementHopCount(5)
	require.True(t, ok)
	require.Equal(t, byte(4), next)

	_, ok = DecrementHopCount(0)
	require.False(t, ok, "a hop count already at zero must drop the frame")
}
