package pppos

import (
	"fmt"
	"strings"
)

// ConnectionStatus is the state of the PPP link.
type ConnectionStatus int32

const (
	// Connected means the link is up (set by the engine status callback only).
	Connected ConnectionStatus = iota
	// Connecting means negotiation was started (set by Connect only).
	Connecting
	// ConnectionLost means the engine reported a failure (set by the engine status callback only).
	ConnectionLost
	// Disconnected means no engine handle is held (set by Disconnect only).
	Disconnected
)

var statusNames = map[ConnectionStatus]string{
	Connected:      "CONNECTED",
	Connecting:     "CONNECTING",
	ConnectionLost: "CONNECTION_LOST",
	Disconnected:   "DISCONNECTED",
}

// String implements fmt.Stringer.
func (s ConnectionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ConnectionStatus(%d)", int32(s))
}

// IsActive indicates a connection attempt is in flight or established.
func (s ConnectionStatus) IsActive() bool {
	return s == Connecting || s == Connected
}

// IsValid tells if s is one of the defined values.
func (s ConnectionStatus) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseConnectionStatus parses the name produced by String.
func ParseConnectionStatus(str string) (ConnectionStatus, error) {
	name := strings.ToUpper(strings.TrimSpace(str))
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return Disconnected, fmt.Errorf("unknown connection status %q", str)
}
