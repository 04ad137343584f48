package tsm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/npdu"
)

func addr(mac byte) codec.Address {
	return codec.Address{Mac: []byte{mac}}
}

func TestAllocStampsInvokeIDIntoPDU(t *testing.T) {
	var sent []byte
	table := NewTable(func(dest codec.Address, meta npdu.Meta, pdu []byte) error {
		sent = pdu
		return nil
	}, DefaultAPDUTimeoutMS, DefaultRetries, 0)

	pdu := []byte{0x00, 0x04, 0x00, 0x0c} // ctrl, maxseg/maxapdu, invoke-id placeholder, service
	id, err := table.Alloc(addr(1), npdu.Meta{}, pdu, func(Result) {})
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Equal(t, id, sent[2], "the allocated invoke-id must be stamped into the outgoing pdu")
	require.Equal(t, 1, table.Outstanding())
}

func TestCompleteFreesTheInvokeID(t *testing.T) {
	table := NewTable(func(codec.Address, npdu.Meta, []byte) error { return nil }, DefaultAPDUTimeoutMS, DefaultRetries, 0)
	var got Result
	id, err := table.Alloc(addr(1), npdu.Meta{}, []byte{0, 0, 0, 0}, func(r Result) { got = r })
	require.NoError(t, err)
	require.Equal(t, 1, table.Outstanding())

	table.Complete(id, Result{Kind: ResultSimpleACK})
	require.Equal(t, 0, table.Outstanding())
	require.Equal(t, ResultSimpleACK, got.Kind)
	require.Equal(t, id, got.InvokeID)

	_, ok := table.Lookup(id)
	require.False(t, ok)
}

func TestHandleInboundACKDiscardsOnPeerMismatch(t *testing.T) {
	table := NewTable(func(codec.Address, npdu.Meta, []byte) error { return nil }, DefaultAPDUTimeoutMS, DefaultRetries, 0)
	completed := false
	id, err := table.Alloc(addr(1), npdu.Meta{}, []byte{0, 0, 0, 0}, func(Result) { completed = true })
	require.NoError(t, err)

	table.HandleInboundACK(id, addr(2), ResultSimpleACK, nil, nil)
	require.False(t, completed, "an ack from the wrong peer must not complete the transaction")
	_, ok := table.Lookup(id)
	require.True(t, ok, "the entry must still be outstanding after a mismatched ack")

	table.HandleInboundACK(id, addr(1), ResultSimpleACK, nil, nil)
	require.True(t, completed)
}

func TestTimerMillisecondsRetriesThenTimesOut(t *testing.T) {
	sends := 0
	table := NewTable(func(codec.Address, npdu.Meta, []byte) error {
		sends++
		return nil
	}, 100, 1, 0)

	var result Result
	_, err := table.Alloc(addr(1), npdu.Meta{}, []byte{0, 0, 0, 0}, func(r Result) { result = r })
	require.NoError(t, err)
	require.Equal(t, 1, sends, "the initial send from Alloc")

	table.TimerMilliseconds(100)
	require.Equal(t, 2, sends, "one retry before retries are exhausted")
	require.Equal(t, 1, table.Outstanding())

	table.TimerMilliseconds(100)
	require.Equal(t, 2, sends, "no further sends once retries are exhausted")
	require.Equal(t, ResultTimeout, result.Kind)
	require.Equal(t, 0, table.Outstanding())
}

func TestSegmentedReassemblyOverflowAborts(t *testing.T) {
	table := NewTable(func(codec.Address, npdu.Meta, []byte) error { return nil }, DefaultAPDUTimeoutMS, DefaultRetries, 0)
	var result Result
	id, err := table.Alloc(addr(1), npdu.Meta{}, []byte{0, 0, 0, 0}, func(r Result) { result = r })
	require.NoError(t, err)

	table.BeginSegmentedReassembly(id, 4)
	err = table.AppendSegment(id, 4, make([]byte, 4*MaxSegments+1))
	require.Error(t, err)
	require.Equal(t, ResultAbort, result.Kind)
	_, ok := table.Lookup(id)
	require.False(t, ok)
}
