// Package npdu implements the BACnet network-layer PDU framing:
// source/destination network numbers, hop count, priority, and the
// network-layer message set used for routing (Who-Is-Router, I-Am-Router,
// Initialize-Routing-Table, etc). A thin NPDU{Version,Control} struct is
// widened here to carry DNET/DADR/SNET/SADR/hop-count and the
// network-message framing a router needs.
package npdu

import (
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/codec"
)

// ProtocolVersion is the only version this stack accepts on receive.
const ProtocolVersion byte = 1

// Control octet bits.
const (
	ctrlNetworkLayerMessage = 0x80
	ctrlDestinationPresent  = 0x20
	ctrlSourcePresent       = 0x08
	ctrlExpectingReply      = 0x04
	ctrlPriorityMask        = 0x03
)

// Priority is the 2-bit NPDU priority field.
type Priority byte

const (
	PriorityNormal Priority = iota
	PriorityUrgent
	PriorityCritical
	PriorityLifeSafety
)

// MessageType enumerates the network-layer messages.
type MessageType byte

const (
	WhoIsRouterToNetwork MessageType = iota
	IAmRouterToNetwork
	ICouldBeRouterToNetwork
	RejectMessageToNetwork
	RouterBusyToNetwork
	RouterAvailableToNetwork
	InitializeRoutingTable
	InitializeRoutingTableAck
	EstablishConnectionToNetwork
	DisconnectConnectionToNetwork
	ChallengeRequest
	SecurityPayload
	SecurityResponse
	RequestKeyUpdate
	UpdateKeySet
	UpdateDistributionKey
	RequestMasterKey
	SetMasterKey
	WhatIsNetworkNumber
	NetworkNumberIs
)

// RejectReason enumerates the Reject-Message-to-Network reasons.
type RejectReason byte

const (
	RejectOtherError RejectReason = iota
	RejectUnknownNetwork
	RejectMessageTooLong
	RejectSecurityError
	RejectAddressingError
	RejectUnknownMessageType
)

// Header is the decoded NPDU preceding an APDU or a network-layer message.
type Header struct {
	Version byte
	Control byte

	DNET uint16
	DADR []byte // present iff HasDestination
	SNET uint16
	SADR []byte // present iff HasSource

	HasDestination bool
	HasSource      bool

	ExpectingReply bool
	Priority       Priority

	// NetworkMessage, when IsNetworkMessage is true, selects the payload
	// type in the message dispatch table; VendorID is decoded only when
	// the message type is >= 0x80. The undecoded body follows the header,
	// at the offset Decode returns.
	IsNetworkMessage bool
	NetworkMessage   MessageType
	VendorID         uint16

	HopCount byte
}

// Meta is the sender-facing view of the fields a caller chooses when
// building an outgoing NPDU — the npdu_meta parameter the datalink
// capability passes through to datalink.send.
type Meta struct {
	ExpectingReply bool
	Priority       Priority
	NetworkMessage *MessageType // nil for an ordinary APDU-carrying NPDU
	VendorID       uint16
}

// Encode builds the wire bytes for an NPDU header addressed from src to
// dst. When dst.Net differs from the local network, the hop count is
// written as 255 (EncodeWithHopCount writes an explicit value instead).
// DADR and SADR are taken from the addresses' Adr fields.
func Encode(dst, src codec.Address, meta Meta) []byte {
	return EncodeWithHopCount(dst, src, meta, 255)
}

// EncodeWithHopCount is Encode with an explicit hop count, for relaying a
// frame that already carries one.
func EncodeWithHopCount(dst, src codec.Address, meta Meta, hopCount byte) []byte {
	buf := []byte{ProtocolVersion, 0}
	control := byte(0)

	remote := dst.Net != codec.NetworkLocal
	if remote {
		control |= ctrlDestinationPresent
		buf = append(buf, byte(dst.Net>>8), byte(dst.Net))
		buf = append(buf, byte(len(dst.Adr)))
		buf = append(buf, dst.Adr...)
	}
	if src.Net != codec.NetworkLocal {
		control |= ctrlSourcePresent
		buf = append(buf, byte(src.Net>>8), byte(src.Net))
		buf = append(buf, byte(len(src.Adr)))
		buf = append(buf, src.Adr...)
	}
	if remote {
		buf = append(buf, hopCount)
	}
	if meta.ExpectingReply {
		control |= ctrlExpectingReply
	}
	control |= byte(meta.Priority) & ctrlPriorityMask
	if meta.NetworkMessage != nil {
		control |= ctrlNetworkLayerMessage
		buf = append(buf, byte(*meta.NetworkMessage))
		if byte(*meta.NetworkMessage) >= 0x80 {
			buf = append(buf, byte(meta.VendorID>>8), byte(meta.VendorID))
		}
	}
	buf[1] = control
	return buf
}

// Decode parses an NPDU header from buf and returns the header plus the
// number of bytes consumed, so the caller can hand the remainder to the
// APDU dispatcher or the network-message handler.
func Decode(buf []byte) (Header, int, error) {
	if len(buf) < 2 {
		return Header{}, 0, bacerr.New(bacerr.InvalidPDULength, "npdu shorter than 2 bytes")
	}
	h := Header{Version: buf[0], Control: buf[1]}
	if h.Version != ProtocolVersion {
		return Header{}, 0, bacerr.New(bacerr.InvalidPDULength, "unsupported npdu version")
	}
	pos := 2

	h.HasDestination = h.Control&ctrlDestinationPresent != 0
	if h.HasDestination {
		if len(buf) < pos+3 {
			return Header{}, 0, bacerr.New(bacerr.InvalidPDULength, "truncated destination network address")
		}
		h.DNET = uint16(buf[pos])<<8 | uint16(buf[pos+1])
		dlen := int(buf[pos+2])
		pos += 3
		if len(buf) < pos+dlen {
			return Header{}, 0, bacerr.New(bacerr.InvalidPDULength, "truncated DADR")
		}
		h.DADR = append([]byte{}, buf[pos:pos+dlen]...)
		pos += dlen
	}

	h.HasSource = h.Control&ctrlSourcePresent != 0
	if h.HasSource {
		if len(buf) < pos+3 {
			return Header{}, 0, bacerr.New(bacerr.InvalidPDULength, "truncated source network address")
		}
		h.SNET = uint16(buf[pos])<<8 | uint16(buf[pos+1])
		slen := int(buf[pos+2])
		pos += 3
		if len(buf) < pos+slen {
			return Header{}, 0, bacerr.New(bacerr.InvalidPDULength, "truncated SADR")
		}
		h.SADR = append([]byte{}, buf[pos:pos+slen]...)
		pos += slen
	}

	if h.HasDestination {
		if len(buf) < pos+1 {
			return Header{}, 0, bacerr.New(bacerr.InvalidPDULength, "missing hop count")
		}
		h.HopCount = buf[pos]
		pos++
	}

	h.ExpectingReply = h.Control&ctrlExpectingReply != 0
	h.Priority = Priority(h.Control & ctrlPriorityMask)

	h.IsNetworkMessage = h.Control&ctrlNetworkLayerMessage != 0
	if h.IsNetworkMessage {
		if len(buf) < pos+1 {
			return Header{}, 0, bacerr.New(bacerr.InvalidPDULength, "missing network message type")
		}
		mt := buf[pos]
		h.NetworkMessage = MessageType(mt)
		pos++
		if mt >= 0x80 {
			if len(buf) < pos+2 {
				return Header{}, 0, bacerr.New(bacerr.InvalidPDULength, "missing vendor id")
			}
			h.VendorID = uint16(buf[pos])<<8 | uint16(buf[pos+1])
			pos += 2
		}
	}

	return h, pos, nil
}

// SourceAddress and DestinationAddress reconstruct the codec.Address a
// receiving NPDU implies, rewriting SNET/SADR and DNET/DADR into a
// unified Address.
func (h Header) SourceAddress() codec.Address {
	return codec.Address{Net: h.SNET, Adr: h.SADR}
}

func (h Header) DestinationAddress() codec.Address {
	return codec.Address{Net: h.DNET, Adr: h.DADR}
}

// DecrementHopCount applies the routing rule: decrement hop count for a
// remote destination, dropping the frame on underflow. ok is false when
// the frame must be dropped.
func DecrementHopCount(hopCount byte) (next byte, ok bool) {
	if hopCount == 0 {
		return 0, false
	}
	return hopCount - 1, true
}
