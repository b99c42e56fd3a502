package pppos

import (
	"encoding/hex"

	"github.com/golang/glog"
)

type sessionState int

const (
	sessionPending  sessionState = iota // created, Connect not finished
	sessionActive                       // Connecting was published
	sessionDetached                     // freed or setup failed
)

// session binds engine callbacks to one connection attempt.
type session struct {
	bridge *Bridge
	handle Handle

	// guarded by bridge.stateLock
	state       sessionState
	deferred    []ErrCode
	configuring bool
}

func (s *session) output(data []byte) int {
	b := s.bridge
	t := b.transport
	if t == nil {
		return 0
	}
	n, err := t.Write(data)
	if err != nil {
		glog.Warningf("output: write %d bytes error: %v", len(data), err)
	}
	if n > 0 {
		b.txBytes.Add(uint64(n))
	}
	glog.V(2).Infof("output: sent %d bytes", n)
	if glog.V(4) {
		glog.Infof("output: TX hexdump:\n%s", hex.Dump(data))
	}
	return n
}

func (s *session) linkStatus(code ErrCode) {
	b := s.bridge
	b.stateLock.Lock()
	if s.state == sessionPending {
		s.deferred = append(s.deferred, code)
		b.stateLock.Unlock()
		return
	}
	b.stateLock.Unlock()
	b.notify(s.apply(code)...)
}

// apply takes stateLock. On link up the network config is installed
// without the lock, Connected is published afterwards.
func (s *session) apply(code ErrCode) []transition {
	b := s.bridge
	b.stateLock.Lock()
	if s.state == sessionDetached {
		b.stateLock.Unlock()
		glog.V(2).Infof("status: ignore %s from closed PPP interface", code)
		return nil
	}
	if code != ErrNone {
		t, changed := b.linkLost(code)
		b.stateLock.Unlock()
		if changed {
			return []transition{t}
		}
		return nil
	}

	current := b.Status()
	if current == Connected || s.configuring {
		b.stateLock.Unlock()
		glog.Info("status: connection already active")
		return nil
	}
	if current != Connecting {
		b.stateLock.Unlock()
		glog.Warningf("status: link up while %s, ignored", current)
		return nil
	}
	s.configuring = true
	b.stateLock.Unlock()

	glog.Info("status: connection established")
	b.applyNetworkConfig()

	b.stateLock.Lock()
	defer b.stateLock.Unlock()
	s.configuring = false
	if s.state != sessionActive || b.Status() != Connecting {
		glog.Warningf("status: link went %s while configuring, ignored", b.Status())
		return nil
	}
	b.lastErr.Store(int32(ErrNone))
	b.linkUps.Inc()
	return []transition{{from: b.setStatus(Connected), to: Connected}}
}

// linkLost must be called with stateLock held.
func (b *Bridge) linkLost(code ErrCode) (transition, bool) {
	b.lastErr.Store(int32(code))
	if !code.IsKnown() {
		glog.Warningf("status: unknown error: %d", int(code))
	} else if code == ErrConnect {
		glog.Warning("status: connection lost")
	} else {
		glog.Warningf("status: disconnected, error: %s (%d)", code, int(code))
	}
	current := b.Status()
	if !current.IsActive() {
		return transition{}, false
	}
	b.linkLosses.Inc()
	return transition{from: b.setStatus(ConnectionLost), to: ConnectionLost}, true
}
