// Package bbmd implements BACnet/IP Broadcast Management: the
// foreign-device registration client (registration cadence, tri-state
// last-registration-result) and the BDT-driven broadcast replication a
// BBMD performs.
package bbmd

import (
	"github.com/bacgopher/bacstack/baclog"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/config"
)

// BVLC function codes (ASHRAE 135 Annex J).
const (
	FuncResult                      byte = 0x00
	FuncWriteBroadcastDistTable     byte = 0x01
	FuncReadBroadcastDistTable      byte = 0x02
	FuncReadBroadcastDistTableAck   byte = 0x03
	FuncForwardedNPDU               byte = 0x04
	FuncRegisterForeignDevice       byte = 0x05
	FuncReadForeignDeviceTable      byte = 0x06
	FuncReadForeignDeviceTableAck   byte = 0x07
	FuncDeleteForeignDeviceTableEntry byte = 0x08
	FuncDistributeBroadcastToNetwork byte = 0x09
	FuncOriginalUnicastNPDU         byte = 0x0a
	FuncOriginalBroadcastNPDU       byte = 0x0b
)

const bvlcType byte = 0x81

// RegistrationResult is the tri-state outcome tracked for a foreign-device
// registration: one that hasn't been attempted yet, one that succeeded,
// and one that was rejected (BVLC-Result carrying a nonzero code, or a
// registration send that failed).
type RegistrationResult int

const (
	RegistrationPending RegistrationResult = iota
	RegistrationSuccess
	RegistrationRejected
)

// ForeignDeviceClient tracks this device's registration with a remote
// BBMD: it re-registers at ttl/2, clamped to the legal TTL range, and
// exposes the last outcome.
type ForeignDeviceClient struct {
	bbmdAddr     codec.Address
	ttl          int
	elapsedSec   int
	lastResult   RegistrationResult
	send         func(dest codec.Address, payload []byte) error
}

// NewForeignDeviceClient creates a client targeting bbmdAddr with the
// given TTL, clamped per config.ClampForeignDeviceTTL.
func NewForeignDeviceClient(bbmdAddr codec.Address, ttlSeconds int, send func(codec.Address, []byte) error) *ForeignDeviceClient {
	return &ForeignDeviceClient{
		bbmdAddr: bbmdAddr,
		ttl:      config.ClampForeignDeviceTTL(ttlSeconds),
		send:     send,
	}
}

// EncodeRegisterForeignDevice builds the BVLC Register-Foreign-Device
// message.
func EncodeRegisterForeignDevice(ttlSeconds uint16) []byte {
	length := uint16(6)
	return []byte{bvlcType, FuncRegisterForeignDevice, byte(length >> 8), byte(length), byte(ttlSeconds >> 8), byte(ttlSeconds)}
}

// Register sends the initial Register-Foreign-Device request.
func (f *ForeignDeviceClient) Register() error {
	payload := EncodeRegisterForeignDevice(uint16(f.ttl))
	err := f.send(f.bbmdAddr, payload)
	f.elapsedSec = 0
	if err != nil {
		f.lastResult = RegistrationRejected
	}
	return err
}

// TimerSeconds drives the re-registration cadence: a fresh registration
// is sent every ttl/2 seconds, never more often than
// config.MinForeignDeviceTTLSeconds/2.
func (f *ForeignDeviceClient) TimerSeconds(elapsedSeconds int) {
	f.elapsedSec += elapsedSeconds
	interval := f.ttl / 2
	if interval < 1 {
		interval = 1
	}
	if f.elapsedSec < interval {
		return
	}
	if err := f.Register(); err != nil {
		baclog.WithFields(baclog.Fields{"error": err}).Warn("bbmd: foreign device re-registration failed")
	}
}

// HandleResult processes an inbound BVLC-Result reply to a registration
// attempt: a nonzero result code means rejected.
func (f *ForeignDeviceClient) HandleResult(code uint16) {
	if code == 0 {
		f.lastResult = RegistrationSuccess
	} else {
		f.lastResult = RegistrationRejected
	}
}

// LastResult reports the tri-state outcome of the most recent
// registration attempt.
func (f *ForeignDeviceClient) LastResult() RegistrationResult { return f.lastResult }

// BDTEntry is one row of a Broadcast Distribution Table.
type BDTEntry struct {
	Address codec.Address
	Mask    []byte // subnet mask for directed broadcast, 4 bytes for IPv4
}

// foreignEntry is one row of the Foreign Device Table: the registered
// device's address (needed to actually replicate to it) plus its
// remaining TTL.
type foreignEntry struct {
	addr codec.Address
	ttl  int
}

// BBMD is the Broadcast Distribution Master/slave role: it replicates an
// inbound original-broadcast NPDU to every BDT peer except the one it
// arrived from, and forwards a Distribute-Broadcast-to-Network from a
// registered foreign device the same way.
type BBMD struct {
	bdt     []BDTEntry
	foreign map[string]*foreignEntry // foreign device key -> address + remaining TTL seconds
	send    func(dest codec.Address, payload []byte) error
}

// NewBBMD creates a BBMD with the given static BDT.
func NewBBMD(bdt []BDTEntry, send func(codec.Address, []byte) error) *BBMD {
	return &BBMD{bdt: bdt, foreign: make(map[string]*foreignEntry), send: send}
}

// RegisterForeignDevice admits a foreign device for ttlSeconds (clamped),
// keyed by its address string.
func (b *BBMD) RegisterForeignDevice(addr codec.Address, ttlSeconds int) {
	b.foreign[addr.String()] = &foreignEntry{addr: addr, ttl: config.ClampForeignDeviceTTL(ttlSeconds)}
}

// TimerSeconds ages every foreign device entry and evicts expired ones.
func (b *BBMD) TimerSeconds(elapsedSeconds int) {
	for k, e := range b.foreign {
		e.ttl -= elapsedSeconds
		if e.ttl <= 0 {
			delete(b.foreign, k)
		}
	}
}

// Replicate forwards payload, which arrived from source, to every BDT
// peer and every registered foreign device except source itself.
func (b *BBMD) Replicate(source codec.Address, payload []byte) {
	sourceKey := source.String()
	for _, entry := range b.bdt {
		if entry.Address.String() == sourceKey {
			continue
		}
		if err := b.send(entry.Address, payload); err != nil {
			baclog.WithFields(baclog.Fields{"peer": entry.Address.String(), "error": err}).Warn("bbmd: bdt replication failed")
		}
	}
	for k, e := range b.foreign {
		if k == sourceKey {
			continue
		}
		if err := b.send(e.addr, payload); err != nil {
			baclog.WithFields(baclog.Fields{"foreign_device": k, "error": err}).Warn("bbmd: foreign device replication failed")
		}
	}
}
