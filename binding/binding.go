// Package binding implements the Address Binding Cache: a fixed-capacity
// map from device instance to (address, max-APDU), with lifetime and
// probe-rate policy. A client that resolves every device fresh from a
// single Who-Is scan never needs to cache a binding at all, so this
// package is grounded directly in the "Binding Entry" data model a
// conforming device's address resolution requires.
package binding

import (
	"time"

	"github.com/bacgopher/bacstack/baclog"
	"github.com/bacgopher/bacstack/codec"
)

// Status is the lifecycle state of one cache entry.
type Status int

const (
	StatusFree Status = iota
	StatusBound
	StatusProbing
	StatusStatic
)

// Entry is one Binding Entry.
type Entry struct {
	DeviceID     uint32
	Address      codec.Address
	MaxAPDU      uint16
	Status       Status
	ExpirySecond int // remaining TTL; meaningless for StatusStatic
}

// BindRetryInterval bounds how often bind_request may emit a fresh Who-Is
// for the same unbound device id.
const BindRetryInterval = 10 * time.Second

// Cache is the fixed-capacity binding cache singleton.
type Cache struct {
	capacity int
	entries  map[uint32]*Entry
	lastProbe map[uint32]time.Time
	now       func() time.Time
}

// New creates a Cache with the given fixed capacity.
func New(capacity int) *Cache {
	return &Cache{
		capacity:  capacity,
		entries:   make(map[uint32]*Entry, capacity),
		lastProbe: make(map[uint32]time.Time),
		now:       time.Now,
	}
}

// WithClock overrides the time source, for deterministic tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Lookup returns the current binding for deviceID, if any.
func (c *Cache) Lookup(deviceID uint32) (Entry, bool) {
	e, ok := c.entries[deviceID]
	if !ok || e.Status == StatusFree || e.Status == StatusProbing {
		return Entry{}, false
	}
	return *e, true
}

// BindRequest implements bind_request: if already bound it returns the
// cached tuple; otherwise it reports not-found and tells the caller
// whether a fresh Who-Is should be issued now (rate-limited to at most
// one per BindRetryInterval per device id).
func (c *Cache) BindRequest(deviceID uint32) (found bool, address codec.Address, maxAPDU uint16, shouldProbe bool) {
	if e, ok := c.Lookup(deviceID); ok {
		return true, e.Address, e.MaxAPDU, false
	}
	last, probed := c.lastProbe[deviceID]
	if probed && c.now().Sub(last) < BindRetryInterval {
		return false, codec.Address{}, 0, false
	}
	c.lastProbe[deviceID] = c.now()
	if e, ok := c.entries[deviceID]; ok {
		e.Status = StatusProbing
	} else {
		c.entries[deviceID] = &Entry{DeviceID: deviceID, Status: StatusProbing}
	}
	return false, codec.Address{}, 0, true
}

// Add inserts or refreshes a binding. A ttlSeconds of 0 with
// static=true creates an immortal entry; otherwise the entry expires in
// ttlSeconds absent a refresh. When the cache is full, the entry with the
// smallest remaining TTL that is not static is evicted.
func (c *Cache) Add(deviceID uint32, maxAPDU uint16, address codec.Address, ttlSeconds int, static bool) {
	status := StatusBound
	if static {
		status = StatusStatic
	}
	if e, ok := c.entries[deviceID]; ok {
		e.Address = address
		e.MaxAPDU = maxAPDU
		e.Status = status
		e.ExpirySecond = ttlSeconds
		return
	}
	if len(c.entries) >= c.capacity {
		c.evictOne()
	}
	c.entries[deviceID] = &Entry{
		DeviceID:     deviceID,
		Address:      address,
		MaxAPDU:      maxAPDU,
		Status:       status,
		ExpirySecond: ttlSeconds,
	}
}

func (c *Cache) evictOne() {
	var victim uint32
	found := false
	smallest := 0
	for id, e := range c.entries {
		if e.Status == StatusStatic || e.Status == StatusProbing {
			continue
		}
		if !found || e.ExpirySecond < smallest {
			victim = id
			smallest = e.ExpirySecond
			found = true
		}
	}
	if found {
		delete(c.entries, victim)
		baclog.WithFields(baclog.Fields{"device_id": victim}).Debug("binding: evicted entry to make room")
	}
}

// Timer ages every dynamic (non-static) entry by elapsedSeconds and
// removes anything that has expired.
func (c *Cache) Timer(elapsedSeconds int) {
	for id, e := range c.entries {
		if e.Status == StatusStatic || e.Status == StatusProbing {
			continue
		}
		e.ExpirySecond -= elapsedSeconds
		if e.ExpirySecond <= 0 {
			delete(c.entries, id)
		}
	}
}

// Len reports the number of entries currently occupying the cache.
func (c *Cache) Len() int { return len(c.entries) }
