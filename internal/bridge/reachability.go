package bridge

// ReachabilityState is the bridge's belief about device presence.
type ReachabilityState int

const (
	ReachabilityUnknown ReachabilityState = iota
	Reachable
	Unreachable
)

func (s ReachabilityState) String() string {
	switch s {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	}
	return "unknown"
}

// Signal is an input to the reachability reducer.
type Signal int

const (
	// SignalSeen is a liveness watcher visible edge.
	SignalSeen Signal = iota
	// SignalTimeout is a liveness watcher timeout.
	SignalTimeout
	// SignalAssumed marks the device reachable when tracking is disabled.
	SignalAssumed
)

// Transition is the outcome of one reducer step.
type Transition struct {
	Next    ReachabilityState
	Changed bool
	// Refresh requests a full characteristic refresh.
	Refresh bool
}

// Reduce computes the next reachability state. Repeating the current state
// is a no-op; becoming reachable after startup requests a refresh.
func Reduce(cur ReachabilityState, sig Signal, started bool) Transition {
	next := Reachable
	if sig == SignalTimeout {
		next = Unreachable
	}
	if next == cur {
		return Transition{Next: cur}
	}
	return Transition{
		Next:    next,
		Changed: true,
		Refresh: started && next == Reachable,
	}
}

// LinkQuality maps an RSSI sample in dBm to the 1-4 HAP link quality scale.
// The threshold order is kept as deployed: anything below -60 dBm is 4.
func LinkQuality(rssi int) int {
	switch {
	case rssi < -60:
		return 4
	case rssi < -70:
		return 3
	case rssi < -80:
		return 2
	}
	return 1
}
