package pppos

import (
	"fmt"
	"net/netip"
	"sync"
)

// ErrCode is the status reported by the PPP engine. Values follow lwIP's
// PPPERR_* codes.
type ErrCode int

// Engine status codes.
const (
	ErrNone        ErrCode = 0  // no error, link is up
	ErrParam       ErrCode = 1  // invalid parameter
	ErrOpen        ErrCode = 2  // unable to open PPP session
	ErrDevice      ErrCode = 3  // invalid I/O device
	ErrAlloc       ErrCode = 4  // unable to allocate resources
	ErrUser        ErrCode = 5  // user interrupt
	ErrConnect     ErrCode = 6  // connection lost
	ErrAuthFail    ErrCode = 7  // failed authentication challenge
	ErrProtocol    ErrCode = 8  // failed to meet protocol
	ErrPeerDead    ErrCode = 9  // connection timeout
	ErrIdleTimeout ErrCode = 10 // idle timeout
	ErrConnectTime ErrCode = 11 // max connect time reached
	ErrLoopback    ErrCode = 12 // loopback detected
)

var errCodeNames = map[ErrCode]string{
	ErrNone:        "none",
	ErrParam:       "param",
	ErrOpen:        "open",
	ErrDevice:      "device",
	ErrAlloc:       "alloc",
	ErrUser:        "user",
	ErrConnect:     "connect",
	ErrAuthFail:    "authfail",
	ErrProtocol:    "protocol",
	ErrPeerDead:    "peerdead",
	ErrIdleTimeout: "idletimeout",
	ErrConnectTime: "connecttime",
	ErrLoopback:    "loopback",
}

// String implements fmt.Stringer.
func (c ErrCode) String() string {
	if name, ok := errCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(c))
}

// IsKnown tells if c is one of the defined codes.
func (c ErrCode) IsKnown() bool {
	_, ok := errCodeNames[c]
	return ok
}

// OutputFunc is called by the engine to write bytes to the wire.
// It returns the number of bytes written.
type OutputFunc func(data []byte) int

// StatusFunc is called by the engine when the link status changes.
// It may be called from any goroutine, including from inside Engine.Connect.
type StatusFunc func(code ErrCode)

// Handle is an opaque engine session.
type Handle interface{}

// Engine is the PPP protocol implementation driven by the bridge.
type Engine interface {
	// Create allocates a session bound to netif.
	Create(netif *Netif, output OutputFunc, status StatusFunc) (Handle, error)
	// SetDefault registers the session as the default network interface.
	SetDefault(Handle) error
	// Connect starts protocol negotiation.
	Connect(Handle) error
	// Free releases the session. No callbacks are expected afterwards.
	Free(Handle) error
	// Input feeds bytes received from the wire. It is called from the
	// byte pump and must not block, the slice is reused after return.
	Input(Handle, []byte) error
}

// Stack is the host network stack which owns network interfaces,
// routes and resolvers.
type Stack interface {
	// Init initializes the stack, it can be called more than once.
	Init() error
	// RemoveNetif unbinds the interface from the system.
	RemoveNetif(*Netif) error
	// SetGateway sets the gateway of the interface.
	SetGateway(*Netif, netip.Addr) error
	// SetDefaultNetif makes the interface the default route.
	SetDefaultNetif(*Netif) error
	// SetDNSServer sets the resolver at index (0 is primary).
	SetDNSServer(index int, addr netip.Addr) error
	// DNSServer gets the resolver at index.
	DNSServer(index int) netip.Addr
}

// NetifInfo is a snapshot of a network interface record.
type NetifInfo struct {
	Name    string     `json:"name,omitempty"`
	Addr    netip.Addr `json:"addr"`
	Gateway netip.Addr `json:"gateway"`
	Peer    netip.Addr `json:"peer"`
	DNS     netip.Addr `json:"dns"`
}

// Netif is the network interface record shared by the bridge and the engine.
type Netif struct {
	lock sync.RWMutex
	info NetifInfo
}

// Snapshot returns a copy of the record.
func (n *Netif) Snapshot() NetifInfo {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.info
}

// Update modifies the record.
func (n *Netif) Update(fn func(*NetifInfo)) {
	n.lock.Lock()
	fn(&n.info)
	n.lock.Unlock()
}

// Name gets the interface name.
func (n *Netif) Name() string {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.info.Name
}

// Reset zeroes the record.
func (n *Netif) Reset() {
	n.lock.Lock()
	n.info = NetifInfo{}
	n.lock.Unlock()
}

// MarshalText implements encoding.TextMarshaler.
func (c ErrCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
