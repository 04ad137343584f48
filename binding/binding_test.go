package binding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bacgopher/bacstack/codec"
)

func TestAddThenLookupRoundTrips(t *testing.T) {
	c := New(8)
	addr := codec.Address{Mac: []byte{1, 2, 3, 4}}
	c.Add(42, 1476, addr, 600, false)

	e, ok := c.Lookup(42)
	require.True(t, ok)
	require.Equal(t, addr, e.Address)
	require.Equal(t, uint16(1476), e.MaxAPDU)
	require.Equal(t, StatusBound, e.Status)
}

func TestTimerEvictsExpiredDynamicEntries(t *testing.T) {
	c := New(8)
	c.Add(1, 0, codec.Address{}, 30, false)
	c.Add(2, 0, codec.Address{}, 0, true) // static, immortal regardless of ExpirySecond

	c.Timer(29)
	_, ok := c.Lookup(1)
	require.True(t, ok, "29 of 30 seconds elapsed, entry 1 must still be live")

	c.Timer(1)
	_, ok = c.Lookup(1)
	require.False(t, ok, "entry 1 must expire once its TTL reaches zero")

	_, ok = c.Lookup(2)
	require.True(t, ok, "a static entry must never expire")
}

func TestBindRequestProbesOnceThenLeavesTheEntryProbing(t *testing.T) {
	now := time.Unix(0, 0)
	c := New(8).WithClock(func() time.Time { return now })

	found, _, _, shouldProbe := c.BindRequest(7)
	require.False(t, found)
	require.True(t, shouldProbe, "the first bind request for an unknown device must probe")

	// A StatusProbing entry is not a binding, so a repeat BindRequest
	// reports not-found; it probes again only once BindRetryInterval has
	// elapsed since the last probe.
	now = now.Add(BindRetryInterval - time.Second)
	found, _, _, shouldProbe = c.BindRequest(7)
	require.False(t, found)
	require.False(t, shouldProbe)

	now = now.Add(time.Second)
	found, _, _, shouldProbe = c.BindRequest(7)
	require.False(t, found)
	require.True(t, shouldProbe)
}

func TestBindRequestReturnsCachedBindingWithoutProbing(t *testing.T) {
	c := New(8)
	addr := codec.Address{Mac: []byte{9}}
	c.Add(3, 480, addr, 60, false)

	found, gotAddr, maxAPDU, shouldProbe := c.BindRequest(3)
	require.True(t, found)
	require.Equal(t, addr, gotAddr)
	require.Equal(t, uint16(480), maxAPDU)
	require.False(t, shouldProbe)
}

func TestAddEvictsLowestTTLWhenFull(t *testing.T) {
	c := New(2)
	c.Add(1, 0, codec.Address{}, 100, false)
	c.Add(2, 0, codec.Address{}, 10, false)
	require.Equal(t, 2, c.Len())

	c.Add(3, 0, codec.Address{}, 50, false)
	require.Equal(t, 2, c.Len())
	_, ok := c.Lookup(2)
	require.False(t, ok, "the entry with the smallest remaining TTL must be evicted to make room")
	_, ok = c.Lookup(1)
	require.True(t, ok)
	_, ok = c.Lookup(3)
	require.True(t, ok)
}
