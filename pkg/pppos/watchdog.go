package pppos

import (
	"github.com/golang/glog"

	fx "github.com/robotalks/pppos/pkg/framework"
)

// WatchdogAction is what the watchdog did on a tick.
type WatchdogAction int

// Watchdog actions.
const (
	WatchdogIdle WatchdogAction = iota
	WatchdogDisconnect
	WatchdogConnect
)

func (a WatchdogAction) String() string {
	switch a {
	case WatchdogDisconnect:
		return "disconnect"
	case WatchdogConnect:
		return "connect"
	default:
		return "idle"
	}
}

// Watchdog recovers the link: a lost connection is torn down and a
// disconnected bridge is connected again.
type Watchdog struct {
	Bridge *Bridge
}

// NewWatchdog creates a Watchdog for the bridge.
func NewWatchdog(b *Bridge) *Watchdog {
	return &Watchdog{Bridge: b}
}

// AddToLoop implements framework.LoopAdder.
func (w *Watchdog) AddToLoop(l *fx.Loop) {
	l.AddController(fx.PrLvControl, w)
}

// Control implements framework.Controller.
func (w *Watchdog) Control(fx.ControlContext) error {
	w.Tick()
	return nil
}

// Tick checks the status once and takes at most one action.
func (w *Watchdog) Tick() WatchdogAction {
	b := w.Bridge
	status := b.Status()
	if b.reconnect.Swap(false) && status.IsActive() {
		glog.Infof("watchdog: reconnect requested while %s", status)
		if err := b.Disconnect(); err != nil {
			glog.Warningf("watchdog: disconnect error: %v", err)
		}
		return WatchdogDisconnect
	}
	switch status {
	case ConnectionLost:
		if err := b.Disconnect(); err != nil {
			glog.Warningf("watchdog: disconnect error: %v", err)
		}
		return WatchdogDisconnect
	case Disconnected:
		if err := b.Connect(); err != nil {
			glog.Warningf("watchdog: connect error: %v", err)
		}
		return WatchdogConnect
	}
	return WatchdogIdle
}
