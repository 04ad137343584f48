// Package router implements the Virtual Router: a table of routed
// devices reachable only through virtual addressing, a local-vs-remote
// dispatch split keyed on DNET, and the router-discovery service pair
// (Who-Is-Router-To-Network / I-Am-Router-To-Network). A client that only
// ever talks to devices on its own local segment never needs to route at
// all, so the message-generation pattern here follows common BACnet
// stack convention for Send_Who_Is_Router_To_Network /
// Send_I_Am_Router_To_Network and the "Routing Device Record" table
// shape.
package router

import (
	"github.com/bacgopher/bacstack/baclog"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/npdu"
)

// VirtualMAC packs a device instance into a 3-byte MAC address (the
// encode_u24 convention), used to address devices that only exist behind
// this virtual router.
func VirtualMAC(instance uint32) []byte {
	return []byte{byte(instance >> 16), byte(instance >> 8), byte(instance)}
}

// DecodeVirtualMAC is VirtualMAC's inverse.
func DecodeVirtualMAC(mac []byte) (uint32, bool) {
	if len(mac) != 3 {
		return 0, false
	}
	return uint32(mac[0])<<16 | uint32(mac[1])<<8 | uint32(mac[2]), true
}

// RouteEntry is one Routing Device Record: a reachable network and the
// physical port/address it is reachable through.
type RouteEntry struct {
	DNET    uint16
	PortID  byte
	Reachable codec.Address // the next hop, or the device itself if directly attached
}

// RoutedDevice is one Routing Device Record: one logical device
// reachable only behind this router, identified the same way a locally
// hosted device would be (instance, name, description) plus the virtual
// network address Who-Is on its behalf needs to answer from.
type RoutedDevice struct {
	Instance    uint32
	Name        string
	Description string
	Address     codec.Address // Net is the device's DNET, Adr its virtual MAC
}

// Router is the virtual router singleton a Stack owns when routing is
// enabled.
type Router struct {
	routes     map[uint16]RouteEntry
	localDNETs map[uint16]bool
	devices    map[uint32]RoutedDevice
	send       Sender
	iAmBurst   map[uint16]int // suppresses redundant I-Am-Router-To-Network bursts per network
}

// Sender transmits an already-framed NPDU network-layer message.
type Sender func(dest codec.Address, meta npdu.Meta, payload []byte) error

// New creates a router with no routes and the given local (directly
// attached) networks.
func New(send Sender, localDNETs ...uint16) *Router {
	r := &Router{
		routes:     make(map[uint16]RouteEntry),
		localDNETs: make(map[uint16]bool),
		devices:    make(map[uint32]RoutedDevice),
		send:       send,
		iAmBurst:   make(map[uint16]int),
	}
	for _, d := range localDNETs {
		r.localDNETs[d] = true
	}
	return r
}

// IsLocal reports whether dnet is one of this router's directly attached
// networks, i.e. frames for it are never forwarded.
func (r *Router) IsLocal(dnet uint16) bool {
	return dnet == codec.NetworkLocal || r.localDNETs[dnet]
}

// AddRoute installs or replaces a reachable network.
func (r *Router) AddRoute(entry RouteEntry) {
	r.routes[entry.DNET] = entry
}

// Resolve returns the route for dnet, if known.
func (r *Router) Resolve(dnet uint16) (RouteEntry, bool) {
	e, ok := r.routes[dnet]
	return e, ok
}

// AddDevice records a logical device reachable only behind this router,
// so Who-Is can be answered on its behalf even though it never appears in
// the local object table.
func (r *Router) AddDevice(d RoutedDevice) {
	r.devices[d.Instance] = d
}

// Device looks up one routed device by instance.
func (r *Router) Device(instance uint32) (RoutedDevice, bool) {
	d, ok := r.devices[instance]
	return d, ok
}

// Devices returns every routed device, for a Who-Is with no instance
// range to sweep over.
func (r *Router) Devices() []RoutedDevice {
	out := make([]RoutedDevice, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// HandleWhoIsRouterToNetwork answers a discovery request: a specific dnet
// queries just that route, an absent dnet (dnetPresent=false) announces every
// reachable network in one I-Am-Router-To-Network.
func (r *Router) HandleWhoIsRouterToNetwork(src codec.Address, dnet uint16, dnetPresent bool) {
	var dnets []uint16
	if dnetPresent {
		if _, ok := r.routes[dnet]; ok {
			dnets = []uint16{dnet}
		}
	} else {
		for d := range r.routes {
			dnets = append(dnets, d)
		}
	}
	if len(dnets) == 0 {
		return
	}
	r.burstIAmRouterToNetwork(src, dnets)
}

// burstIAmRouterToNetwork rate-limits repeat bursts for the same network
// within a maintenance tick, so a storm of Who-Is-Router queries
// doesn't produce a storm of identical I-Am-Router replies.
func (r *Router) burstIAmRouterToNetwork(dest codec.Address, dnets []uint16) {
	var fresh []uint16
	for _, d := range dnets {
		if r.iAmBurst[d] > 0 {
			continue
		}
		r.iAmBurst[d] = 1
		fresh = append(fresh, d)
	}
	if len(fresh) == 0 {
		return
	}
	payload := npdu.EncodeIAmRouterToNetwork(fresh)
	meta := npdu.Meta{}
	if err := r.send(dest, meta, payload); err != nil {
		baclog.WithFields(baclog.Fields{"error": err}).Warn("router: i-am-router-to-network send failed")
	}
}

// AnnounceStartup broadcasts I-Am-Router-To-Network for every configured
// route, as a router does on startup.
func (r *Router) AnnounceStartup(broadcast codec.Address) {
	if len(r.routes) == 0 {
		return
	}
	dnets := make([]uint16, 0, len(r.routes))
	for d := range r.routes {
		dnets = append(dnets, d)
	}
	r.burstIAmRouterToNetwork(broadcast, dnets)
}

// MaintenanceTick clears the burst-suppression table, allowing the next
// Who-Is-Router-To-Network for a given network through again.
func (r *Router) MaintenanceTick() {
	r.iAmBurst = make(map[uint16]int)
}

// Forward decides whether an inbound frame addressed to dnet should be
// handled locally (dnet unset or one of r.localDNETs) or forwarded to the
// next hop; it returns the resolved route and whether forwarding applies.
func (r *Router) Forward(dnet uint16) (RouteEntry, bool) {
	if r.IsLocal(dnet) {
		return RouteEntry{}, false
	}
	e, ok := r.routes[dnet]
	return e, ok
}
