package pppos

import (
	"net/netip"
	"time"
)

// Defaults.
const (
	DefaultCleanupDelay     = 1000 * time.Millisecond
	DefaultWatchdogInterval = 3000 * time.Millisecond
	DefaultPumpInterval     = time.Millisecond
	// MaxBatch is the maximum number of bytes moved by one pump cycle.
	MaxBatch = 256
	// RxBufferSize and TxBufferSize are the recommended serial buffer sizes.
	RxBufferSize = 2048
	TxBufferSize = 2048
)

// IPConfig overrides the gateway and DNS server assigned by PPP negotiation.
// A zero or 0.0.0.0 address leaves the negotiated value.
type IPConfig struct {
	Gateway netip.Addr
	DNS     netip.Addr
}

// IsSet tells if addr overrides anything.
func IsSet(addr netip.Addr) bool {
	return addr.IsValid() && !addr.IsUnspecified()
}

// Empty tells if no override is configured.
func (c IPConfig) Empty() bool {
	return !IsSet(c.Gateway) && !IsSet(c.DNS)
}
