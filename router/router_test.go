package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/npdu"
)

func TestVirtualMACRoundTrips(t *testing.T) {
	mac := VirtualMAC(0x0a0b0c)
	instance, ok := DecodeVirtualMAC(mac)
	require.True(t, ok)
	require.Equal(t, uint32(0x0a0b0c), instance)

	_, ok = DecodeVirtualMAC([]byte{1, 2})
	require.False(t, ok, "a non-3-byte MAC is never a virtual device address")
}

func TestIsLocalCoversUnsetAndConfiguredNetworks(t *testing.T) {
	r := New(func(codec.Address, npdu.Meta, []byte) error { return nil }, 5)
	require.True(t, r.IsLocal(codec.NetworkLocal))
	require.True(t, r.IsLocal(5))
	require.False(t, r.IsLocal(6))
}

func TestForwardReturnsTheRouteForARemoteNetwork(t *testing.T) {
	r := New(func(codec.Address, npdu.Meta, []byte) error { return nil })
	entry := RouteEntry{DNET: 9, PortID: 1, Reachable: codec.Address{Mac: []byte{1}}}
	r.AddRoute(entry)

	_, ok := r.Forward(codec.NetworkLocal)
	require.False(t, ok, "a local destination is never forwarded")

	got, ok := r.Forward(9)
	require.True(t, ok)
	require.Equal(t, entry, got)

	_, ok = r.Forward(10)
	require.False(t, ok, "an unknown network has no route")
}

func TestAddDeviceThenDeviceAndDevicesRoundTrip(t *testing.T) {
	r := New(func(codec.Address, npdu.Meta, []byte) error { return nil })
	d := RoutedDevice{Instance: 42, Name: "rtu-1", Address: codec.Address{Net: 7, Mac: VirtualMAC(42)}}
	r.AddDevice(d)

	got, ok := r.Device(42)
	require.True(t, ok)
	require.Equal(t, d, got)

	_, ok = r.Device(43)
	require.False(t, ok)

	require.Equal(t, []RoutedDevice{d}, r.Devices())
}

func TestHandleWhoIsRouterToNetworkBurstsOnlyOncePerTick(t *testing.T) {
	var sends int
	r := New(func(codec.Address, npdu.Meta, []byte) error { sends++; return nil })
	r.AddRoute(RouteEntry{DNET: 9})
	dest := codec.Address{Mac: []byte{1}}

	r.HandleWhoIsRouterToNetwork(dest, 9, true)
	require.Equal(t, 1, sends)

	r.HandleWhoIsRouterToNetwork(dest, 9, true)
	require.Equal(t, 1, sends, "a repeat query for the same network within a tick must not re-burst")

	r.MaintenanceTick()
	r.HandleWhoIsRouterToNetwork(dest, 9, true)
	require.Equal(t, 2, sends, "burst suppression clears on the next maintenance tick")
}

func TestHandleWhoIsRouterToNetworkIgnoresAnUnknownDnet(t *testing.T) {
	var sends int
	r := New(func(codec.Address, npdu.Meta, []byte) error { sends++; return nil })
	r.AddRoute(RouteEntry{DNET: 9})

	r.HandleWhoIsRouterToNetwork(codec.Address{}, 99, true)
	require.Zero(t, sends, "a query for a network with no route must not be answered")
}
