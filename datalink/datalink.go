// Package datalink defines the DataLink capability the core consumes
// from an external, transport-specific collaborator, plus one reference
// implementation (BACnet/IP over UDP) so the stack has something
// runnable to demo against without baking a concrete transport into the
// core.
package datalink

import (
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/npdu"
)

// DataLink is the external capability a transport collaborator must
// provide: init, send, receive, local/broadcast address, a maintenance
// tick, and cleanup. Any transport (Ethernet, MS/TP, BACnet/IP,
// BACnet/IPv6) satisfying this interface can back a Stack.
type DataLink interface {
	Init(iface string) error
	Send(dest codec.Address, meta npdu.Meta, payload []byte) (int, error)
	// Receive blocks up to timeoutMs; it returns a zero-length payload on
	// timeout.
	Receive(timeoutMs int) (src codec.Address, payload []byte, err error)
	GetMyAddress() codec.Address
	GetBroadcastAddress() codec.Address
	MaintenanceTimer(elapsedSeconds int)
	Cleanup() error
}
