package pppos

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func TestPumpIdleWhenDisconnected(t *testing.T) {
	c := newBridgeTestCtx(IPConfig{})
	c.transport.inject([]byte{1, 2, 3})
	assert.Zero(t, c.bridge.Pump())
	assert.Equal(t, 3, c.transport.Available())
	assert.Empty(t, c.engine.inputCalls())
}

func TestPumpNoData(t *testing.T) {
	c := newBridgeTestCtx(IPConfig{})
	c.mustConnect(t)
	assert.Zero(t, c.bridge.Pump())
	assert.Empty(t, c.engine.inputCalls())
}

func TestPumpFullBatch(t *testing.T) {
	c := newBridgeTestCtx(IPConfig{})
	c.mustConnect(t)
	data := seqBytes(MaxBatch)
	c.transport.inject(data)

	assert.Equal(t, MaxBatch, c.bridge.Pump())
	assert.Zero(t, c.transport.Available())
	inputs := c.engine.inputCalls()
	require.Len(t, inputs, 1)
	assert.Equal(t, data, inputs[0])
}

func TestPumpOverBatch(t *testing.T) {
	c := newBridgeTestCtx(IPConfig{})
	c.mustConnect(t)
	data := seqBytes(MaxBatch + 1)
	c.transport.inject(data)

	assert.Equal(t, MaxBatch, c.bridge.Pump())
	assert.Equal(t, 1, c.transport.Available())
	assert.Equal(t, 1, c.bridge.Pump())
	assert.Zero(t, c.bridge.Pump())

	inputs := c.engine.inputCalls()
	require.Len(t, inputs, 2)
	assert.Equal(t, data[:MaxBatch], inputs[0])
	assert.Equal(t, data[MaxBatch:], inputs[1])
	assert.EqualValues(t, MaxBatch+1, c.bridge.Stats().RxBytes)
}

func TestPumpWhileConnected(t *testing.T) {
	c := newBridgeTestCtx(IPConfig{})
	c.engine.linkUp(c.mustConnect(t))
	c.transport.inject([]byte{0x7e})
	assert.Equal(t, 1, c.bridge.Pump())
}

func TestPumpStopsOnReadError(t *testing.T) {
	c := newBridgeTestCtx(IPConfig{})
	c.mustConnect(t)
	c.transport.inject(seqBytes(10))
	c.transport.failAt = c.transport.reads + 4

	assert.Equal(t, 4, c.bridge.Pump())
	assert.Equal(t, 6, c.bridge.Pump())
	inputs := c.engine.inputCalls()
	require.Len(t, inputs, 2)
	assert.Equal(t, []byte{0, 1, 2, 3}, inputs[0])
}

func TestPumpAfterLossOrDisconnect(t *testing.T) {
	c := newBridgeTestCtx(IPConfig{})
	h := c.mustConnect(t)
	h.status(ErrConnect)
	c.transport.inject([]byte{1})
	assert.Zero(t, c.bridge.Pump())

	require.NoError(t, c.bridge.Disconnect())
	assert.Zero(t, c.bridge.Pump())
	assert.Empty(t, c.engine.inputCalls())
}

func TestOutputWriteError(t *testing.T) {
	c := newBridgeTestCtx(IPConfig{})
	h := c.mustConnect(t)
	c.transport.writeErr = errors.New("unplugged")
	assert.Zero(t, h.output([]byte{1, 2}))
	assert.EqualValues(t, 3, c.bridge.Stats().TxBytes)
}
