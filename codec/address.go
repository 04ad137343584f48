// Package codec implements the BACnet application-tagged primitive, context
// construct, and property-value-list wire format, plus the shared Address
// and ObjectIdentifier value types every higher layer builds on, covering
// the full primitive tag set rather than just the handful a minimal
// decoder would need.
package codec

import "fmt"

// NetworkLocal and NetworkBroadcast are the two reserved network numbers
// with special addressing meaning.
const (
	NetworkLocal     uint16 = 0
	NetworkBroadcast uint16 = 0xFFFF
)

// Address is the tuple net=0 means the local network, net=0xFFFF is the
// broadcast network, and a zero-length Mac means broadcast on the local
// network. Adr carries the MAC within a remote network when the frame has
// been routed.
type Address struct {
	Net uint16
	Mac []byte
	Adr []byte
}

// IsBroadcast reports whether this address is a broadcast with a
// zero-length Mac, either on the local network (net local or unset) or
// on the global broadcast network.
func (a Address) IsBroadcast() bool {
	return len(a.Mac) == 0 && (a.Net == NetworkLocal || a.Net == NetworkBroadcast)
}

// IsGlobalBroadcast reports whether this address targets every network.
func (a Address) IsGlobalBroadcast() bool {
	return a.Net == NetworkBroadcast
}

// IsLocal reports whether the address refers to a device on the directly
// attached network (no routing required).
func (a Address) IsLocal() bool {
	return a.Net == NetworkLocal
}

func (a Address) String() string {
	if a.IsGlobalBroadcast() {
		return "global-broadcast"
	}
	if a.IsBroadcast() {
		return fmt.Sprintf("net%d-broadcast", a.Net)
	}
	return fmt.Sprintf("net%d-mac%x-adr%x", a.Net, a.Mac, a.Adr)
}

// Equal compares two addresses field by field; both represent the same
// peer only when net, mac and adr all match exactly.
func (a Address) Equal(b Address) bool {
	return a.Net == b.Net && bytesEqual(a.Mac, b.Mac) && bytesEqual(a.Adr, b.Adr)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
