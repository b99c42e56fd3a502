package pppos

import (
	"encoding/hex"

	"github.com/golang/glog"
)

// Pump runs one byte pump cycle and returns the number of bytes fed into
// the engine. It drains at most MaxBatch bytes already received and never
// blocks. It does nothing unless connecting or connected.
// Pump must not be called concurrently.
func (b *Bridge) Pump() int {
	if !b.Status().IsActive() {
		return 0
	}
	s := b.session.Load()
	if s == nil || b.transport == nil {
		return 0
	}

	n := 0
	for n < MaxBatch && b.transport.Available() > 0 {
		c, err := b.transport.ReadByte()
		if err != nil {
			// read error, keep what's already read.
			break
		}
		b.rxBuf[n] = c
		n++
	}
	if n == 0 {
		return 0
	}

	data := b.rxBuf[:n]
	b.rxBytes.Add(uint64(n))
	glog.V(2).Infof("pump: received %d bytes", n)
	if glog.V(4) {
		glog.Infof("pump: RX hexdump:\n%s", hex.Dump(data))
	}
	if err := b.Engine.Input(s.handle, data); err != nil {
		glog.Warningf("pump: input %d bytes error: %v", n, err)
	}
	return n
}
