package npdu

import "github.com/bacgopher/bacstack/bacerr"

// RoutingTableEntry is one row of an Initialize-Routing-Table[-Ack]
// message: the port id a network is reachable through plus its
// port-specific info blob.
type RoutingTableEntry struct {
	DNET       uint16
	PortID     byte
	PortInfo   []byte
}

// EncodeWhoIsRouterToNetwork builds the payload following the NPDU header
// for a Who-Is-Router-To-Network message. dnet < 0 means "any network".
func EncodeWhoIsRouterToNetwork(dnet int) []byte {
	if dnet < 0 {
		return nil
	}
	return []byte{byte(dnet >> 8), byte(dnet)}
}

// DecodeWhoIsRouterToNetwork parses the optional DNET payload; ok is false
// when no DNET was present (broadcast "any network" form).
func DecodeWhoIsRouterToNetwork(body []byte) (dnet uint16, ok bool) {
	if len(body) < 2 {
		return 0, false
	}
	return uint16(body[0])<<8 | uint16(body[1]), true
}

// EncodeIAmRouterToNetwork builds the payload listing every network this
// router can reach, as used by the virtual router.
func EncodeIAmRouterToNetwork(dnets []uint16) []byte {
	buf := make([]byte, 0, len(dnets)*2)
	for _, d := range dnets {
		buf = append(buf, byte(d>>8), byte(d))
	}
	return buf
}

// DecodeIAmRouterToNetwork parses the DNET list.
func DecodeIAmRouterToNetwork(body []byte) ([]uint16, error) {
	if len(body)%2 != 0 {
		return nil, bacerr.New(bacerr.InvalidPDULength, "odd-length I-Am-Router-To-Network payload")
	}
	out := make([]uint16, 0, len(body)/2)
	for i := 0; i+1 < len(body); i += 2 {
		out = append(out, uint16(body[i])<<8|uint16(body[i+1]))
	}
	return out, nil
}

// EncodeRejectMessageToNetwork builds the payload for a
// Reject-Message-to-Network reply to an unknown message type.
func EncodeRejectMessageToNetwork(reason RejectReason, dnet uint16) []byte {
	return []byte{byte(reason), byte(dnet >> 8), byte(dnet)}
}

func DecodeRejectMessageToNetwork(body []byte) (RejectReason, uint16, error) {
	if len(body) < 3 {
		return 0, 0, bacerr.New(bacerr.InvalidPDULength, "truncated Reject-Message-to-Network")
	}
	return RejectReason(body[0]), uint16(body[1])<<8 | uint16(body[2]), nil
}

// EncodeInitializeRoutingTable builds the payload for
// Initialize-Routing-Table / Initialize-Routing-Table-Ack.
func EncodeInitializeRoutingTable(entries []RoutingTableEntry) []byte {
	buf := []byte{byte(len(entries))}
	for _, e := range entries {
		buf = append(buf, byte(e.DNET>>8), byte(e.DNET), e.PortID, byte(len(e.PortInfo)))
		buf = append(buf, e.PortInfo...)
	}
	return buf
}

func DecodeInitializeRoutingTable(body []byte) ([]RoutingTableEntry, error) {
	if len(body) < 1 {
		return nil, bacerr.New(bacerr.InvalidPDULength, "empty Initialize-Routing-Table")
	}
	count := int(body[0])
	pos := 1
	out := make([]RoutingTableEntry, 0, count)
	for i := 0; i < count; i++ {
		if len(body) < pos+4 {
			return nil, bacerr.New(bacerr.InvalidPDULength, "truncated routing table entry")
		}
		dnet := uint16(body[pos])<<8 | uint16(body[pos+1])
		portID := body[pos+2]
		infoLen := int(body[pos+3])
		pos += 4
		if len(body) < pos+infoLen {
			return nil, bacerr.New(bacerr.InvalidPDULength, "truncated routing table port info")
		}
		out = append(out, RoutingTableEntry{DNET: dnet, PortID: portID, PortInfo: append([]byte{}, body[pos:pos+infoLen]...)})
		pos += infoLen
	}
	return out, nil
}

// EncodeNetworkNumberIs builds the payload announcing this port's network
// number, with the "configured" flag spec leaves as a single trailing
// byte (0 = learned, 1 = configured).
func EncodeNetworkNumberIs(net uint16, configured bool) []byte {
	c := byte(0)
	if configured {
		c = 1
	}
	return []byte{byte(net >> 8), byte(net), c}
}

func DecodeNetworkNumberIs(body []byte) (net uint16, configured bool, err error) {
	if len(body) < 3 {
		return 0, false, bacerr.New(bacerr.InvalidPDULength, "truncated Network-Number-Is")
	}
	return uint16(body[0])<<8 | uint16(body[1]), body[2] != 0, nil
}
