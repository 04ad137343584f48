// Package config reads the environment-variable configuration surface
// that is the stack's optional input. It follows a functional-options
// idiom: a constructor assembles hard-coded defaults, then applies
// environment overrides, then caller-supplied Option funcs.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Default transaction and foreign-device-registration timing.
const (
	DefaultAPDUTimeoutMS  = 3000
	DefaultAPDURetries    = 3
	DefaultInvokeIDHint   = 0
	DefaultDeviceInstance = 260001

	MinForeignDeviceTTLSeconds = 30
	MaxForeignDeviceTTLSeconds = 60000

	// DefaultBindingCacheTTLSeconds is how long an address-binding entry
	// learned from an unsolicited I-Am is kept before it must be
	// refreshed, absent any TTL carried by the I-Am itself.
	DefaultBindingCacheTTLSeconds = 600
)

// BDTEntry is one row of the Broadcast Distribution Table.
type BDTEntry struct {
	Addr string
	Port int
	Mask string
}

// Options is the resolved configuration for one Stack instance.
type Options struct {
	APDUTimeoutMS  int
	APDURetries    int
	DeviceInstance uint32
	InvokeIDHint   byte

	MaxInfoFrames int
	MaxMaster     int
	MSTPBaud      int
	MSTPMac       int

	IPPort      int
	BBMDAddress string
	BBMDPort    int
	BBMDTTL     int
	BDT         []BDTEntry

	IPNATAddr string
	IPNATPort int

	BIP6Port      int
	BIP6Broadcast string

	BindingCacheTTLSeconds int
}

// Option mutates an Options value after environment defaults are applied.
type Option func(*Options)

// FromEnvironment builds Options from the process environment, falling
// back to the documented defaults for anything unset, then applies opts
// on top.
func FromEnvironment(opts ...Option) *Options {
	o := &Options{
		APDUTimeoutMS:  envInt("APDU_TIMEOUT_MS", DefaultAPDUTimeoutMS),
		APDURetries:    envInt("APDU_RETRIES", DefaultAPDURetries),
		DeviceInstance: uint32(envInt("DEVICE_INSTANCE", DefaultDeviceInstance)),
		InvokeIDHint:   byte(envInt("INVOKE_ID", DefaultInvokeIDHint)),

		MaxInfoFrames: envInt("MAX_INFO_FRAMES", 1),
		MaxMaster:     envInt("MAX_MASTER", 127),
		MSTPBaud:      envInt("MSTP_BAUD", 38400),
		MSTPMac:       envInt("MSTP_MAC", 0),

		IPPort:      envInt("IP_PORT", 47808),
		BBMDAddress: os.Getenv("BBMD_ADDRESS"),
		BBMDPort:    envInt("BBMD_PORT", 47808),
		BBMDTTL:     envInt("BBMD_TTL", 600),

		IPNATAddr: os.Getenv("IP_NAT_ADDR"),
		IPNATPort: envInt("IP_NAT_PORT", 0),

		BIP6Port:      envInt("BIP6_PORT", 47808),
		BIP6Broadcast: os.Getenv("BIP6_BROADCAST"),

		BindingCacheTTLSeconds: envInt("BINDING_CACHE_TTL_SECONDS", DefaultBindingCacheTTLSeconds),
	}
	o.BDT = bdtFromEnvironment()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithDeviceInstance overrides the device instance, useful in tests that
// don't want to depend on the process environment.
func WithDeviceInstance(id uint32) Option {
	return func(o *Options) { o.DeviceInstance = id }
}

// WithAPDUTimingForMSTP applies the MS/TP timing shift (60s timeout, 0
// retries, because the data link itself retries).
func WithAPDUTimingForMSTP() Option {
	return func(o *Options) {
		o.APDUTimeoutMS = 60000
		o.APDURetries = 0
	}
}

func bdtFromEnvironment() []BDTEntry {
	var entries []BDTEntry
	for i := 1; i <= 128; i++ {
		addr, ok := os.LookupEnv("BDT_ADDR_" + strconv.Itoa(i))
		if !ok || addr == "" {
			continue
		}
		port := envInt("BDT_PORT_"+strconv.Itoa(i), 47808)
		mask := os.Getenv("BDT_MASK_" + strconv.Itoa(i))
		entries = append(entries, BDTEntry{Addr: addr, Port: port, Mask: mask})
	}
	return entries
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// ClampForeignDeviceTTL enforces the [30s, 60000s] bound on the
// registration TTL.
func ClampForeignDeviceTTL(ttl int) int {
	if ttl < MinForeignDeviceTTLSeconds {
		return MinForeignDeviceTTLSeconds
	}
	if ttl > MaxForeignDeviceTTLSeconds {
		return MaxForeignDeviceTTLSeconds
	}
	return ttl
}
