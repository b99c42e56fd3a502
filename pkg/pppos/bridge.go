package pppos

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.uber.org/atomic"

	fx "github.com/robotalks/pppos/pkg/framework"
)

// StatusNotifier is called after the connection status changed.
type StatusNotifier interface {
	StatusChanged(from, to ConnectionStatus)
}

// StatusChangedFunc is func type of StatusNotifier.
type StatusChangedFunc func(from, to ConnectionStatus)

// StatusChanged implements StatusNotifier.
func (f StatusChangedFunc) StatusChanged(from, to ConnectionStatus) {
	f(from, to)
}

// Stats are counters collected by the bridge.
type Stats struct {
	RxBytes    uint64           `json:"rx_bytes"`
	TxBytes    uint64           `json:"tx_bytes"`
	Connects   uint64           `json:"connects"`
	LinkUps    uint64           `json:"link_ups"`
	LinkLosses uint64           `json:"link_losses"`
	LastError  ErrCode          `json:"last_error"`
	Status     ConnectionStatus `json:"status"`
	Netif      NetifInfo        `json:"netif"`
}

// Bridge connects a serial Transport to a PPP Engine.
// Use New to create one.
type Bridge struct {
	Engine Engine
	Stack  Stack

	// CleanupDelay is the time Disconnect waits for the stack to release the interface.
	CleanupDelay time.Duration
	// WatchdogInterval is the interval between watchdog ticks.
	WatchdogInterval time.Duration
	// PumpInterval is the pause between byte pump cycles.
	PumpInterval time.Duration
	// Notifier receives status changes, optional.
	Notifier StatusNotifier

	transport Transport
	config    IPConfig
	netif     Netif

	status    *atomic.Int32
	session   atomic.Pointer[session]
	reconnect atomic.Bool
	lastErr   atomic.Int32

	rxBytes    atomic.Uint64
	txBytes    atomic.Uint64
	connects   atomic.Uint64
	linkUps    atomic.Uint64
	linkLosses atomic.Uint64

	// connLock serializes Connect and Disconnect, it guards handle.
	connLock sync.Mutex
	handle   Handle
	// stateLock guards status transitions and session states.
	stateLock sync.Mutex

	rxBuf  [MaxBatch]byte
	runner *fx.Runner
}

type transition struct {
	from, to ConnectionStatus
}

// New creates a Bridge in Disconnected status.
func New(engine Engine, stack Stack) *Bridge {
	return &Bridge{
		Engine:           engine,
		Stack:            stack,
		CleanupDelay:     DefaultCleanupDelay,
		WatchdogInterval: DefaultWatchdogInterval,
		PumpInterval:     DefaultPumpInterval,
		status:           atomic.NewInt32(int32(Disconnected)),
	}
}

// Begin keeps the transport and IP configuration, connects and starts
// the byte pump and the watchdog in the background until ctx is done.
// cfg can be nil. The transport must be opened and configured already.
func (b *Bridge) Begin(ctx context.Context, transport Transport, cfg *IPConfig) error {
	if transport == nil {
		return ErrNoTransport
	}
	if b.runner != nil {
		return errors.New("bridge already started")
	}
	b.transport = transport
	if cfg != nil {
		b.config = *cfg
	}

	glog.Info("begin: setting up PPPoS connection")
	if err := b.Connect(); err != nil {
		glog.Errorf("begin: connection setup failed, aborting: %v", err)
		return err
	}
	glog.Info("begin: connection setup complete, starting tasks")

	pump := fx.NewLoopWith("pppos-pump", b.PumpInterval).
		AddController(fx.PrLvIO, fx.ControlFunc(func(fx.ControlContext) error {
			b.Pump()
			return nil
		}))
	watchdog := fx.NewLoopWith("pppos-watchdog", b.WatchdogInterval).Add(NewWatchdog(b))
	b.runner = fx.NewRunnerWith(ctx).Go(pump, watchdog)
	return nil
}

// Wait waits for the background tasks started by Begin to stop,
// then disconnects a link left behind.
func (b *Bridge) Wait() error {
	if b.runner == nil {
		return nil
	}
	err := b.runner.Wait()
	if b.Status() != Disconnected {
		glog.Info("wait: tasks stopped, tearing down connection")
		b.Disconnect()
	}
	return err
}

// Connected indicates the link is up.
func (b *Bridge) Connected() bool {
	return b.Status() == Connected
}

// Status gets the connection status.
func (b *Bridge) Status() ConnectionStatus {
	return ConnectionStatus(b.status.Load())
}

// Config gets the IP configuration.
func (b *Bridge) Config() IPConfig {
	return b.config
}

// Netif gets a snapshot of the bound network interface.
func (b *Bridge) Netif() NetifInfo {
	return b.netif.Snapshot()
}

// LastError gets the last failure code reported by the engine,
// ErrNone after the link came up.
func (b *Bridge) LastError() ErrCode {
	return ErrCode(b.lastErr.Load())
}

// Stats collects counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		RxBytes:    b.rxBytes.Load(),
		TxBytes:    b.txBytes.Load(),
		Connects:   b.connects.Load(),
		LinkUps:    b.linkUps.Load(),
		LinkLosses: b.linkLosses.Load(),
		LastError:  b.LastError(),
		Status:     b.Status(),
		Netif:      b.Netif(),
	}
}

// RequestReconnect asks the watchdog to tear down an active link on its
// next tick. A new connection is attempted on a later tick.
func (b *Bridge) RequestReconnect() {
	b.reconnect.Store(true)
}

// Connect creates a PPP interface, makes it default and starts negotiation.
// On any failure the status is unchanged and the caller must retry.
func (b *Bridge) Connect() error {
	b.connLock.Lock()
	defer b.connLock.Unlock()

	switch b.Status() {
	case Connected, Connecting:
		glog.Warning("connect: connection already active, aborting")
		return ErrAlreadyActive
	case ConnectionLost:
		glog.Warning("connect: lost connection must be disconnected first, aborting")
		return ErrTeardownPending
	}
	if b.transport == nil {
		return ErrNoTransport
	}

	glog.Info("connect: initializing TCP/IP stack")
	if err := b.Stack.Init(); err != nil {
		return b.setupFailed(StepInit, err, nil)
	}

	glog.Info("connect: creating PPPoS interface")
	s := &session{bridge: b}
	handle, err := b.Engine.Create(&b.netif, s.output, s.linkStatus)
	if err == nil && handle == nil {
		err = errors.New("engine returned no handle")
	}
	if err != nil {
		return b.setupFailed(StepCreate, err, nil)
	}
	s.handle = handle

	glog.Info("connect: setting default interface")
	if err := b.Engine.SetDefault(handle); err != nil {
		return b.setupFailed(StepSetDefault, err, s)
	}

	glog.Info("connect: starting PPP connection")
	if err := b.Engine.Connect(handle); err != nil {
		return b.setupFailed(StepConnect, err, s)
	}

	if n := b.drainInput(); n > 0 {
		glog.Infof("connect: cleared %d stale bytes from serial buffer", n)
	}

	b.handle = handle
	b.session.Store(s)
	b.connects.Inc()

	b.stateLock.Lock()
	from := b.setStatus(Connecting)
	s.state = sessionActive
	deferred := s.deferred
	s.deferred = nil
	b.stateLock.Unlock()

	b.notify(transition{from: from, to: Connecting})
	for _, code := range deferred {
		b.notify(s.apply(code)...)
	}
	return nil
}

// Disconnect frees the PPP interface and unbinds the network interface.
// It blocks for CleanupDelay before reporting Disconnected.
func (b *Bridge) Disconnect() error {
	b.connLock.Lock()
	defer b.connLock.Unlock()

	if b.Status() == Disconnected {
		glog.Warning("disconnect: interface already disconnected, aborting")
		return ErrNotConnected
	}
	if b.handle == nil {
		glog.Warning("disconnect: no PPP interface found, aborting")
		return ErrNoEngine
	}

	glog.Info("disconnect: starting disconnection procedure")
	if s := b.session.Swap(nil); s != nil {
		b.stateLock.Lock()
		s.state = sessionDetached
		s.deferred = nil
		b.stateLock.Unlock()
	}

	glog.Info("disconnect: freeing PPP interface")
	if err := b.Engine.Free(b.handle); err != nil {
		glog.Warningf("disconnect: free PPP interface error: %v", err)
	}
	b.handle = nil

	glog.Info("disconnect: resetting network interface")
	if err := b.Stack.RemoveNetif(&b.netif); err != nil {
		glog.Warningf("disconnect: remove network interface error: %v", err)
	}
	b.netif.Reset()

	if b.CleanupDelay > 0 {
		glog.Info("disconnect: waiting for stack to clean up")
		time.Sleep(b.CleanupDelay)
	}

	b.stateLock.Lock()
	from := b.setStatus(Disconnected)
	b.stateLock.Unlock()
	b.notify(transition{from: from, to: Disconnected})
	return nil
}

func (b *Bridge) setupFailed(step string, err error, s *session) error {
	glog.Errorf("connect: %s failed: %v", step, err)
	if s != nil {
		b.stateLock.Lock()
		s.state = sessionDetached
		s.deferred = nil
		b.stateLock.Unlock()
		if ferr := b.Engine.Free(s.handle); ferr != nil {
			glog.Warningf("connect: free PPP interface error: %v", ferr)
		}
		b.netif.Reset()
	}
	return &SetupError{Step: step, Err: err}
}

// drainInput discards bytes buffered before negotiation started.
func (b *Bridge) drainInput() (n int) {
	for b.transport.Available() > 0 {
		if _, err := b.transport.ReadByte(); err != nil {
			break
		}
		n++
	}
	return
}

// setStatus must be called with stateLock held.
func (b *Bridge) setStatus(s ConnectionStatus) ConnectionStatus {
	return ConnectionStatus(b.status.Swap(int32(s)))
}

func (b *Bridge) notify(transitions ...transition) {
	n := b.Notifier
	for _, t := range transitions {
		if t.from == t.to {
			continue
		}
		glog.V(1).Infof("status: %s -> %s", t.from, t.to)
		if n != nil {
			n.StatusChanged(t.from, t.to)
		}
	}
}
