package bridge

import "time"

// DefaultReachabilityTimeout is the liveness window used when none is set.
const DefaultReachabilityTimeout = 30 * time.Second

// Config configures one bridged accessory.
type Config struct {
	// Name is the display name. It also matches the advertised local name
	// when Address is empty.
	Name string
	// Address selects the peripheral by BLE address.
	Address string
	// PIN is the setup code used for pairing ("XXX-XX-XXX").
	PIN string
	// Reachability enables advertisement-driven liveness tracking.
	// nil means enabled.
	Reachability *bool
	// ReachabilityTimeout is the liveness window. Zero means the default.
	ReachabilityTimeout time.Duration
	// RSSI enables signal-strength log lines.
	RSSI bool
	// Remove switches the lifecycle to unpair-and-exit.
	Remove bool
}

func (c Config) reachabilityEnabled() bool {
	return c.Reachability == nil || *c.Reachability
}

func (c Config) reachabilityTimeout() time.Duration {
	if c.ReachabilityTimeout <= 0 {
		return DefaultReachabilityTimeout
	}
	return c.ReachabilityTimeout
}
