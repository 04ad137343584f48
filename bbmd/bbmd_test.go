package bbmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/config"
)

func TestForeignDeviceClientTimerSecondsReregistersAtHalfTTL(t *testing.T) {
	var sends int
	client := NewForeignDeviceClient(codec.Address{Mac: []byte{1}}, 100, func(codec.Address, []byte) error {
		sends++
		return nil
	})
	require.NoError(t, client.Register())
	require.Equal(t, 1, sends)

	client.TimerSeconds(49)
	require.Equal(t, 1, sends, "re-registration must not fire before ttl/2 elapses")

	client.TimerSeconds(1)
	require.Equal(t, 2, sends, "re-registration fires once ttl/2 seconds have elapsed")
}

func TestForeignDeviceClientHandleResultTracksTriState(t *testing.T) {
	client := NewForeignDeviceClient(codec.Address{}, 60, func(codec.Address, []byte) error { return nil })
	require.Equal(t, RegistrationPending, client.LastResult())

	client.HandleResult(0)
	require.Equal(t, RegistrationSuccess, client.LastResult())

	client.HandleResult(1)
	require.Equal(t, RegistrationRejected, client.LastResult())
}

func TestBBMDReplicateSkipsTheInboundSourceAmongBDTPeers(t *testing.T) {
	peerA := codec.Address{Mac: []byte{1}}
	peerB := codec.Address{Mac: []byte{2}}
	var sentTo []codec.Address
	b := NewBBMD([]BDTEntry{{Address: peerA}, {Address: peerB}}, func(dest codec.Address, _ []byte) error {
		sentTo = append(sentTo, dest)
		return nil
	})

	b.Replicate(peerA, []byte{0x81, 0x0b})
	require.Equal(t, []codec.Address{peerB}, sentTo, "the peer the broadcast arrived from must not get it echoed back")
}

func TestBBMDReplicateAlsoForwardsToRegisteredForeignDevices(t *testing.T) {
	foreign := codec.Address{Mac: []byte{7}}
	var sentTo []codec.Address
	b := NewBBMD(nil, func(dest codec.Address, _ []byte) error {
		sentTo = append(sentTo, dest)
		return nil
	})
	b.RegisterForeignDevice(foreign, 300)

	b.Replicate(codec.Address{Mac: []byte{9}}, []byte{0x81, 0x0b})
	require.Equal(t, []codec.Address{foreign}, sentTo)
}

func TestBBMDTimerSecondsEvictsExpiredForeignDevices(t *testing.T) {
	foreign := codec.Address{Mac: []byte{7}}
	b := NewBBMD(nil, func(codec.Address, []byte) error { return nil })
	b.RegisterForeignDevice(foreign, config.MinForeignDeviceTTLSeconds)

	b.TimerSeconds(config.MinForeignDeviceTTLSeconds - 1)
	require.Len(t, b.foreign, 1, "entry must still be live one second before its TTL elapses")

	b.TimerSeconds(1)
	require.Len(t, b.foreign, 0, "entry must be evicted once its TTL reaches zero")
}
