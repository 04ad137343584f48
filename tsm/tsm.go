// Package tsm implements the Transaction State Machine: it allocates
// invoke-ids, retransmits confirmed requests, recognizes
// ACK/NAK/Abort/Reject/Error, and surfaces completion to the caller that
// submitted the request. A naive invoke-id counter only ever increments and
// never frees a slot or detects a peer-address mismatch on an inbound ACK;
// this package generalizes that into a full allocate/free table with a
// proper state diagram per transaction.
package tsm

import (
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/baclog"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/npdu"
)

// State is one node of the transaction state diagram.
type State int

const (
	StateIdle State = iota
	StateAwaitConfirmation
	StateAwaitResponse
	StateSegmentedRequest
	StateSegmentedConfirmation
)

// Default transaction timing.
const (
	DefaultAPDUTimeoutMS = 3000
	DefaultRetries       = 3

	// MSTPAPDUTimeoutMS and MSTPRetries are the timing shift used for
	// MS/TP, where the data link itself retries.
	MSTPAPDUTimeoutMS = 60000
	MSTPRetries       = 0
)

// MaxInvokeID is the largest legal invoke-id; 0 means "no transaction".
const MaxInvokeID = 255

// MaxSegments bounds the reassembly buffer together with the negotiated
// max-APDU size: the buffer is never allowed to grow past
// maxAPDU*MaxSegments.
const MaxSegments = 64

// Result is delivered to a caller's completion callback when a
// transaction terminates.
type Result struct {
	InvokeID byte
	Kind     ResultKind
	Payload  []byte // ACK/Complex-ACK service data, when applicable
	Reason   *bacerr.Error
}

type ResultKind int

const (
	ResultSimpleACK ResultKind = iota
	ResultComplexACK
	ResultError
	ResultReject
	ResultAbort
	ResultTimeout
)

// Completion is the caller-registered handler invoked exactly once per
// transaction, when it reaches a terminal state.
type Completion func(Result)

// Entry is one outstanding transaction's state.
type Entry struct {
	InvokeID     byte
	State        State
	Peer         codec.Address
	NPDUMeta     npdu.Meta
	PDU          []byte
	RetryCount   int
	RetryTimerMS int

	maxRetries   int
	timeoutMS    int
	onComplete   Completion
	reassembly   []byte
}

// Sender is how the TSM retransmits a stored request; the embedder wires
// this to the Stack's raw send path. Handlers must not call back into the dispatcher
// reentrantly, so this is a narrow function, not the dispatcher itself.
type Sender func(dest codec.Address, meta npdu.Meta, pdu []byte) error

// Table is the process-wide TSM singleton, owned by a Stack value and
// passed by reference.
type Table struct {
	entries     [MaxInvokeID + 1]*Entry
	hint        byte
	apduTimeout int
	retries     int
	send        Sender
}

// NewTable creates an empty TSM table using apduTimeoutMS/retries as the
// default timing contract for every new transaction.
func NewTable(send Sender, apduTimeoutMS, retries int, invokeIDHint byte) *Table {
	return &Table{
		send:        send,
		apduTimeout: apduTimeoutMS,
		retries:     retries,
		hint:        invokeIDHint,
	}
}

// Alloc allocates a free invoke-id by linear search starting from the
// rotating hint, stamps it into pdu's invoke-id byte (offset 2, per
// EncodeConfirmedRequest's ctrl/maxseg-maxapdu/invoke-id/service layout) so
// the wire frame matches what this table tracks, stores the confirmed
// request for retry, transitions the new entry to AWAIT_CONFIRMATION, and
// sends it immediately.
func (t *Table) Alloc(dest codec.Address, meta npdu.Meta, pdu []byte, onComplete Completion) (byte, error) {
	start := t.hint
	for i := 0; i <= MaxInvokeID; i++ {
		id := byte((int(start) + i) % (MaxInvokeID + 1))
		if id == 0 {
			continue // 0 means "no transaction"
		}
		if t.entries[id] != nil {
			continue
		}
		t.hint = id + 1
		if len(pdu) > 2 {
			pdu[2] = id
		}
		e := &Entry{
			InvokeID:   id,
			State:      StateAwaitConfirmation,
			Peer:       dest,
			NPDUMeta:   meta,
			PDU:        pdu,
			maxRetries: t.retries,
			timeoutMS:  t.apduTimeout,
			onComplete: onComplete,
		}
		t.entries[id] = e
		if err := t.send(dest, meta, pdu); err != nil {
			t.free(id)
			return 0, bacerr.Wrap(bacerr.SendFailed, err, "tsm: initial send failed")
		}
		return id, nil
	}
	return 0, bacerr.New(bacerr.BufferOverflow, "tsm: no free invoke-id")
}

// Lookup returns the entry for id, if any is outstanding.
func (t *Table) Lookup(id byte) (*Entry, bool) {
	e := t.entries[id]
	if e == nil {
		return nil, false
	}
	return e, true
}

func (t *Table) free(id byte) {
	t.entries[id] = nil
}

// Complete terminates the transaction for id with the given result. A peer
// address mismatch is the caller's responsibility to check before calling
// Complete; HandleInboundACK below does that check for ordinary dispatch.
func (t *Table) Complete(id byte, result Result) {
	e, ok := t.Lookup(id)
	if !ok {
		return
	}
	t.free(id)
	if e.onComplete != nil {
		result.InvokeID = id
		e.onComplete(result)
	}
}

// HandleInboundACK processes an ACK/Complex-ACK/Error/Reject/Abort PDU
// addressed to invoke-id id, arriving from source src. If the source
// address does not match the stored peer, the PDU is discarded and logged
// rather than completing the transaction.
func (t *Table) HandleInboundACK(id byte, src codec.Address, kind ResultKind, payload []byte, reason *bacerr.Error) {
	e, ok := t.Lookup(id)
	if !ok {
		baclog.WithFields(baclog.Fields{"invoke_id": id}).Debug("tsm: ack for unknown invoke-id, dropped")
		return
	}
	if !e.Peer.Equal(src) {
		baclog.WithFields(baclog.Fields{
			"invoke_id": id, "expected": e.Peer.String(), "got": src.String(),
		}).Warn("tsm: ack source mismatch, discarded")
		return
	}
	t.Complete(id, Result{Kind: kind, Payload: payload, Reason: reason})
}

// TimerMilliseconds advances every outstanding entry's retry timer. An
// entry whose timer reaches the configured APDU timeout is resent (if
// retries remain) or completed with ResultTimeout (if not).
func (t *Table) TimerMilliseconds(elapsedMS int) {
	for id := byte(1); ; id++ {
		e := t.entries[id]
		if e != nil {
			t.tickEntry(e, elapsedMS)
		}
		if id == MaxInvokeID {
			break
		}
	}
}

func (t *Table) tickEntry(e *Entry, elapsedMS int) {
	if e.State != StateAwaitConfirmation && e.State != StateSegmentedRequest {
		return
	}
	e.RetryTimerMS += elapsedMS
	if e.RetryTimerMS < e.timeoutMS {
		return
	}
	e.RetryTimerMS = 0
	if e.RetryCount >= e.maxRetries {
		t.Complete(e.InvokeID, Result{Kind: ResultTimeout, Reason: bacerr.New(bacerr.APDUTimeout, "retries exhausted")})
		return
	}
	e.RetryCount++
	if err := t.send(e.Peer, e.NPDUMeta, e.PDU); err != nil {
		baclog.WithFields(baclog.Fields{"invoke_id": e.InvokeID, "error": err}).Warn("tsm: retry send failed")
	}
}

// BeginSegmentedReassembly starts a SEGMENTED_CONFIRMATION reassembly for
// an inbound segmented ACK, bounding the buffer at maxAPDU*MaxSegments.
func (t *Table) BeginSegmentedReassembly(id byte, maxAPDU int) {
	e, ok := t.Lookup(id)
	if !ok {
		return
	}
	e.State = StateSegmentedConfirmation
	e.reassembly = make([]byte, 0, maxAPDU*MaxSegments)
}

// AppendSegment appends one inbound segment to the reassembly buffer,
// aborting the transaction with BUFFER_OVERFLOW if the bound is exceeded.
func (t *Table) AppendSegment(id byte, maxAPDU int, segment []byte) error {
	e, ok := t.Lookup(id)
	if !ok || e.State != StateSegmentedConfirmation {
		return bacerr.New(bacerr.Abort, "tsm: append segment on non-segmented transaction")
	}
	if len(e.reassembly)+len(segment) > maxAPDU*MaxSegments {
		t.Complete(id, Result{Kind: ResultAbort, Reason: bacerr.New(bacerr.BufferOverflow, "segment reassembly overflow")})
		return bacerr.New(bacerr.BufferOverflow, "segment reassembly overflow")
	}
	e.reassembly = append(e.reassembly, segment...)
	return nil
}

// Reassembled returns the bytes accumulated so far for a segmented
// transaction.
func (t *Table) Reassembled(id byte) []byte {
	e, ok := t.Lookup(id)
	if !ok {
		return nil
	}
	return e.reassembly
}

// Outstanding reports how many invoke-ids are currently allocated, mostly
// useful for tests asserting the "exactly one entry per invoke-id" and
// "freeing zeros it" invariants.
func (t *Table) Outstanding() int {
	n := 0
	for id := byte(1); ; id++ {
		if t.entries[id] != nil {
			n++
		}
		if id == MaxInvokeID {
			break
		}
	}
	return n
}
